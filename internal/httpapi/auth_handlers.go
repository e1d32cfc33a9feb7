package httpapi

import (
	"errors"
	"net/http"

	"phasegate.org/internal/audit"
	"phasegate.org/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresIn int64      `json:"expires_in"`
	User      *auth.User `json:"user"`
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.deps.Users.Authenticate(r.Context(), req.Email, req.Password,
		r.Header.Get("User-Agent"), clientIP(r))
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login", false, map[string]any{
			"email": req.Email,
		})
		if errors.Is(err, auth.ErrNotFound) || errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		handleDomainError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.RoleIDs, user.IsAdmin, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", true, map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(a.tokenTTL.Seconds()),
		User:      user,
	})
}
