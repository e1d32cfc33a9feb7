package httpapi

import (
	"net/http"

	"phasegate.org/internal/access"
	"phasegate.org/internal/auth"
	"phasegate.org/internal/obs"
)

// requestContext captures the ambient request metadata persisted with every
// access decision.
func requestContext(r *http.Request) access.Context {
	return access.Context{
		Action:    r.Method + " " + obs.CanonicalPath(r.URL.Path),
		Resource:  r.URL.Path,
		Device:    r.Header.Get("User-Agent"),
		IPAddress: clientIP(r),
	}
}

func actorFrom(r *http.Request) (access.Actor, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return access.Actor{}, false
	}
	return access.Actor{
		ID:      principal.ID,
		RoleIDs: principal.RoleIDs,
		IsAdmin: principal.IsAdmin,
	}, true
}

// requireAccess runs the evaluator for the authenticated actor. A denied
// request gets a 403 carrying the sub-reasons so the caller can see which
// gate failed. Returns true when the handler may proceed.
func (a *API) requireAccess(w http.ResponseWriter, r *http.Request, targetProjectID string, required ...string) bool {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return false
	}
	dec, err := a.deps.Evaluator.Evaluate(r.Context(), actor, required, targetProjectID, requestContext(r))
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	if !dec.Granted {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"message": "Access denied based on current context",
			"context": map[string]any{
				"hasPermissions": dec.HasPermissions,
				"isWorkingHours": dec.IsWorkingHours,
				"isReviewPhase":  dec.IsReviewPhase,
			},
		})
		return false
	}
	return true
}

// requireAdmin grants only admins, through the same unconditional audit path.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return false
	}
	granted, err := a.deps.Evaluator.AuthorizeAdmin(r.Context(), actor, requestContext(r))
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	if !granted {
		writeError(w, r, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}
