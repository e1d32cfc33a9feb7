package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"phasegate.org/internal/audit"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Permissions []string `json:"permissions"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type createUserRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	IsAdmin  bool     `json:"is_admin"`
	RoleIDs  []string `json:"role_ids"`
}

type setUserRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.deps.Roles.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.deps.Roles.CreateRole(r.Context(), req.Name, req.DisplayName, req.Permissions)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.create", true, map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	if !a.requireAdmin(w, r) {
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		role, err := a.deps.Roles.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req setPermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.deps.Roles.SetPermissions(r.Context(), id, req.Permissions)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.permissions.set", true, map[string]any{
			"role_id": id,
			"count":   len(role.Permissions),
		})
		writeJSON(w, http.StatusOK, role)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := a.deps.Users.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.deps.Users.Register(r.Context(), req.Email, req.Password, req.IsAdmin, req.RoleIDs)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.create", true, map[string]any{
			"user_id": user.ID,
			"email":   user.Email,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	if !a.requireAdmin(w, r) {
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		user, err := a.deps.Users.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := a.deps.Users.Delete(r.Context(), id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.delete", true, map[string]any{
			"user_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "roles":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req setUserRolesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.deps.Users.SetRoles(r.Context(), id, req.RoleIDs)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.roles.set", true, map[string]any{
			"user_id": id,
			"count":   len(user.RoleIDs),
		})
		writeJSON(w, http.StatusOK, user)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
