package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"phasegate.org/internal/access"
	"phasegate.org/internal/auth"
	"phasegate.org/internal/project"
	"phasegate.org/internal/store/memory"
	"phasegate.org/internal/stream"
	"phasegate.org/internal/team"
)

func workClock() time.Time {
	return time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
}

func setupAPI(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	t.Setenv("PHASEGATE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := memory.New()
	users, err := auth.NewUsers(store)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	projects, err := project.NewService(store)
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	teams, err := team.NewDirectory(store)
	if err != nil {
		t.Fatalf("teams: %v", err)
	}
	roles, err := access.NewRegistry(store)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	evaluator, err := access.NewEvaluator(roles, store, store, access.WithClock(workClock))
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}

	api := New(Deps{
		Users:     users,
		Projects:  projects,
		Teams:     teams,
		Roles:     roles,
		Evaluator: evaluator,
		Policy:    access.DefaultPhasePolicy(),
		Decisions: stream.New(),
	}, ReadyProbe{}, "test")
	return api.Handler(), store
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func managerToken(t *testing.T, store *memory.Store) string {
	t.Helper()
	role := &access.Role{Name: "project_manager", Permissions: []string{
		"view_projects", "manage_projects", "view_teams", "manage_teams",
	}}
	if err := store.CreateRole(context.Background(), role); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	user := &auth.User{Email: "pm@example.com", PasswordHash: "x", RoleIDs: []string{role.ID}}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := auth.GenerateToken(user.ID, user.RoleIDs, false, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken("admin-1", nil, true, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	h, _ := setupAPI(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/projects", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	h, _ := setupAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rec := doRequest(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	h, store := setupAPI(t)
	manager := managerToken(t, store)
	admin := adminToken(t)

	// Create a project.
	rec := doRequest(t, h, http.MethodPost, "/v1/projects", manager, map[string]any{
		"name":        "Tower A",
		"description": "HQ retrofit",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created project.Project
	decodeBody(t, rec, &created)
	if created.CurrentPhase != project.PhasePlanning {
		t.Fatalf("new project phase = %s", created.CurrentPhase)
	}

	// Execution entry without a team fails with 422.
	rec = doRequest(t, h, http.MethodPost, fmt.Sprintf("/v1/projects/%s/phase", created.ID), manager,
		map[string]any{"phase": "execution"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("teamless execution status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Admin creates a team, manager attaches it.
	rec = doRequest(t, h, http.MethodPost, "/v1/teams", admin, map[string]any{"name": "Structures"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create team status = %d, body %s", rec.Code, rec.Body.String())
	}
	var tm team.Team
	decodeBody(t, rec, &tm)

	rec = doRequest(t, h, http.MethodPut, fmt.Sprintf("/v1/projects/%s/teams", created.ID), manager,
		map[string]any{"team_ids": []string{tm.ID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("set teams status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Now the transition succeeds and rotates the history.
	rec = doRequest(t, h, http.MethodPost, fmt.Sprintf("/v1/projects/%s/phase", created.ID), manager,
		map[string]any{"phase": "execution"})
	if rec.Code != http.StatusOK {
		t.Fatalf("execution status = %d, body %s", rec.Code, rec.Body.String())
	}
	var transitioned project.Project
	decodeBody(t, rec, &transitioned)
	if transitioned.CurrentPhase != project.PhaseExecution || len(transitioned.PhaseHistory) != 2 {
		t.Fatalf("after transition: phase=%s history=%d", transitioned.CurrentPhase, len(transitioned.PhaseHistory))
	}

	// Move to review. The scoped check runs while the project is still in
	// execution, so the manager may perform this transition.
	rec = doRequest(t, h, http.MethodPost, fmt.Sprintf("/v1/projects/%s/phase", created.ID), manager,
		map[string]any{"phase": "review"})
	if rec.Code != http.StatusOK {
		t.Fatalf("review transition status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPut, fmt.Sprintf("/v1/projects/%s/teams", created.ID), manager,
		map[string]any{"team_ids": []string{tm.ID}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("review-phase write status = %d, want 403; body %s", rec.Code, rec.Body.String())
	}
	var denial struct {
		Message string `json:"message"`
		Context struct {
			HasPermissions bool `json:"hasPermissions"`
			IsWorkingHours bool `json:"isWorkingHours"`
			IsReviewPhase  bool `json:"isReviewPhase"`
		} `json:"context"`
	}
	decodeBody(t, rec, &denial)
	if !denial.Context.HasPermissions || !denial.Context.IsWorkingHours || !denial.Context.IsReviewPhase {
		t.Fatalf("denial sub-reasons wrong: %+v", denial.Context)
	}

	// Admin bypasses the review gate.
	rec = doRequest(t, h, http.MethodPut, fmt.Sprintf("/v1/projects/%s/teams", created.ID), admin,
		map[string]any{"team_ids": []string{tm.ID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin review-phase write status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Every decision above is on the audit trail.
	rec = doRequest(t, h, http.MethodGet, "/v1/access/logs", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("access logs status = %d", rec.Code)
	}
	var logs struct {
		Logs []access.AccessLog `json:"logs"`
	}
	decodeBody(t, rec, &logs)
	if len(logs.Logs) == 0 {
		t.Fatal("expected access log entries")
	}
	sawDenied := false
	for _, entry := range logs.Logs {
		if !entry.Granted {
			sawDenied = true
		}
	}
	if !sawDenied {
		t.Fatal("denied decision missing from the audit trail")
	}
}

func TestProjectPermissionsView(t *testing.T) {
	h, store := setupAPI(t)
	manager := managerToken(t, store)

	rec := doRequest(t, h, http.MethodPost, "/v1/projects", manager, map[string]any{"name": "Tower A"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project status = %d", rec.Code)
	}
	var created project.Project
	decodeBody(t, rec, &created)

	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/v1/projects/%s/permissions", created.ID), manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("permissions view status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Phase        string              `json:"phase"`
		Capabilities map[string][]string `json:"capabilities"`
	}
	decodeBody(t, rec, &view)
	if view.Phase != "planning" {
		t.Fatalf("phase = %q", view.Phase)
	}
	if len(view.Capabilities["edit_models"]) == 0 {
		t.Fatalf("capabilities missing: %+v", view.Capabilities)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	h, _ := setupAPI(t)
	admin := adminToken(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/users", admin, map[string]any{
		"email":    "alice@example.com",
		"password": "hunter22",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/auth/token", "", map[string]any{
		"email":    "alice@example.com",
		"password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" || resp.TokenType != "Bearer" {
		t.Fatalf("token response: %+v", resp)
	}
	if resp.User == nil || resp.User.LastLogin == nil {
		t.Fatal("login snapshot missing from response")
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/auth/token", "", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", rec.Code)
	}
}

func TestAdminGateOnUserRoutes(t *testing.T) {
	h, store := setupAPI(t)
	manager := managerToken(t, store)

	rec := doRequest(t, h, http.MethodGet, "/v1/users", manager, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin user list status = %d, want 403", rec.Code)
	}
}
