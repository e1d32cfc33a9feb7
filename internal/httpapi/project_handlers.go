package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"phasegate.org/internal/audit"
	"phasegate.org/internal/auth"
	"phasegate.org/internal/project"
)

// Route gate permissions. Admins bypass the working-hours gate but still need
// no permission grants; everyone else is checked against these.
const (
	permViewProjects   = "view_projects"
	permManageProjects = "manage_projects"
	permViewTeams      = "view_teams"
	permManageTeams    = "manage_teams"
)

type createProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TeamIDs     []string `json:"team_ids"`
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type transitionRequest struct {
	Phase string `json:"phase"`
}

type setTeamsRequest struct {
	TeamIDs []string `json:"team_ids"`
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireAccess(w, r, "", permViewProjects) {
			return
		}
		projects, err := a.deps.Projects.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		if !a.requireAccess(w, r, "", permManageProjects) {
			return
		}
		var req createProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		principal, _ := auth.PrincipalFromContext(r.Context())
		p, err := a.deps.Projects.Create(r.Context(), req.Name, req.Description, req.TeamIDs, principal.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "project.create", true, map[string]any{
			"project_id": p.ID,
			"name":       p.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", p.ID))
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		a.handleProjectResource(w, r, id)
	case len(parts) == 2 && parts[1] == "phase":
		a.handleProjectPhase(w, r, id)
	case len(parts) == 2 && parts[1] == "teams":
		a.handleProjectTeams(w, r, id)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleProjectPermissions(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireAccess(w, r, "", permViewProjects) {
			return
		}
		p, err := a.deps.Projects.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPatch:
		if !a.requireAccess(w, r, "", permManageProjects) {
			return
		}
		var req updateProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.deps.Projects.Update(r.Context(), id, project.Update{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "project.update", true, map[string]any{
			"project_id": id,
		})
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if !a.requireAdmin(w, r) {
			return
		}
		if err := a.deps.Projects.Delete(r.Context(), id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "project.delete", true, map[string]any{
			"project_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// handleProjectPhase moves the project forward through its lifecycle. The
// check is project-scoped so the review-phase gate applies.
func (a *API) handleProjectPhase(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAccess(w, r, id, permManageProjects) {
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	p, err := a.deps.Projects.Transition(r.Context(), id, req.Phase, principal.ID)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "project.phase", false, map[string]any{
			"project_id": id,
			"requested":  req.Phase,
		})
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.phase", true, map[string]any{
		"project_id": id,
		"phase":      string(p.CurrentPhase),
	})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleProjectTeams(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requireAccess(w, r, id, permManageProjects) {
		return
	}
	var req setTeamsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.deps.Projects.SetTeams(r.Context(), id, req.TeamIDs)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.teams", true, map[string]any{
		"project_id": id,
		"team_count": len(p.TeamIDs),
	})
	writeJSON(w, http.StatusOK, p)
}

// handleProjectPermissions returns the policy-table row effective for the
// project's current phase.
func (a *API) handleProjectPermissions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAccess(w, r, "", permViewProjects) {
		return
	}
	p, err := a.deps.Projects.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id":   p.ID,
		"phase":        p.CurrentPhase,
		"capabilities": a.deps.Policy.Capabilities(p.CurrentPhase),
	})
}
