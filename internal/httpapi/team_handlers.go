package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"phasegate.org/internal/audit"
	"phasegate.org/internal/team"
)

type createTeamRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Members     []team.Member `json:"members"`
}

type updateTeamRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type setMembersRequest struct {
	Members []team.Member `json:"members"`
}

func (a *API) handleTeams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireAccess(w, r, "", permViewTeams) {
			return
		}
		teams, err := a.deps.Teams.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req createTeamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.deps.Teams.Create(r.Context(), req.Name, req.Description, req.Members)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.create", true, map[string]any{
			"team_id": t.ID,
			"name":    t.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/teams/%s", t.ID))
		writeJSON(w, http.StatusCreated, t)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTeamScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/teams/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		a.handleTeamResource(w, r, id)
	case len(parts) == 2 && parts[1] == "members":
		a.handleTeamMembers(w, r, id)
	case len(parts) == 3 && parts[1] == "members":
		a.handleTeamMember(w, r, id, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTeamResource(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireAccess(w, r, "", permViewTeams) {
			return
		}
		t, err := a.deps.Teams.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPatch:
		if !a.requireAccess(w, r, "", permManageTeams) {
			return
		}
		var req updateTeamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.deps.Teams.Update(r.Context(), id, team.Update{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.update", true, map[string]any{
			"team_id": id,
		})
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if !a.requireAdmin(w, r) {
			return
		}
		if err := a.deps.Teams.Delete(r.Context(), id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.delete", true, map[string]any{
			"team_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleTeamMembers(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPost:
		if !a.requireAccess(w, r, "", permManageTeams) {
			return
		}
		var req addMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.deps.Teams.AddMember(r.Context(), id, req.UserID, req.RoleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.member.add", true, map[string]any{
			"team_id": id,
			"user_id": req.UserID,
			"role_id": req.RoleID,
		})
		writeJSON(w, http.StatusOK, t)
	case http.MethodPut:
		if !a.requireAccess(w, r, "", permManageTeams) {
			return
		}
		var req setMembersRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.deps.Teams.SetMembers(r.Context(), id, req.Members)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.members.set", true, map[string]any{
			"team_id":      id,
			"member_count": len(t.Members),
		})
		writeJSON(w, http.StatusOK, t)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodPut)
	}
}

func (a *API) handleTeamMember(w http.ResponseWriter, r *http.Request, id, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requireAccess(w, r, "", permManageTeams) {
		return
	}
	t, err := a.deps.Teams.RemoveMember(r.Context(), id, userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member.remove", true, map[string]any{
		"team_id": id,
		"user_id": userID,
	})
	writeJSON(w, http.StatusOK, t)
}
