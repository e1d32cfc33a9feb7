package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"phasegate.org/internal/project"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestCurrentPhase(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select current_phase from projects").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"current_phase"}).AddRow("review"))

	phase, err := s.CurrentPhase(context.Background(), "p1")
	if err != nil {
		t.Fatalf("CurrentPhase: %v", err)
	}
	if phase != project.PhaseReview {
		t.Fatalf("phase = %s, want review", phase)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCurrentPhaseNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select current_phase from projects").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"current_phase"}))

	_, err := s.CurrentPhase(context.Background(), "ghost")
	if !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTransitionPhaseRunsInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from projects where id=").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select name, description, current_phase, created_at, updated_at").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "description", "current_phase", "created_at", "updated_at"}).
			AddRow("Tower A", "", "planning", start, start))
	mock.ExpectQuery("select team_id from project_teams").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("select phase, start_date, end_date, modified_by").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"phase", "start_date", "end_date", "modified_by"}).
			AddRow("planning", start, nil, "pm-1"))
	mock.ExpectExec("update phase_history set end_date").
		WithArgs("p1", sqlmock.AnyArg(), "pm-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into phase_history").
		WithArgs("p1", "execution", sqlmock.AnyArg(), "pm-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("update projects set current_phase").
		WithArgs("p1", "execution", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.TransitionPhase(context.Background(), "p1", project.PhaseExecution, "pm-1")
	if err != nil {
		t.Fatalf("TransitionPhase: %v", err)
	}
	if p.CurrentPhase != project.PhaseExecution || len(p.PhaseHistory) != 2 {
		t.Fatalf("after transition: phase=%s history=%d", p.CurrentPhase, len(p.PhaseHistory))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransitionPhaseRollsBackOnPrecondition(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from projects where id=").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select name, description, current_phase, created_at, updated_at").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "description", "current_phase", "created_at", "updated_at"}).
			AddRow("Tower A", "", "planning", start, start))
	mock.ExpectQuery("select team_id from project_teams").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}))
	mock.ExpectQuery("select phase, start_date, end_date, modified_by").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"phase", "start_date", "end_date", "modified_by"}).
			AddRow("planning", start, nil, "pm-1"))
	mock.ExpectRollback()

	_, err := s.TransitionPhase(context.Background(), "p1", project.PhaseExecution, "pm-1")
	if !errors.Is(err, project.ErrPreconditionFailed) {
		t.Fatalf("err = %v, want ErrPreconditionFailed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateProjectNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("update projects").
		WithArgs("ghost", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	name := "New name"
	_, err := s.UpdateProject(context.Background(), "ghost", project.Update{Name: &name})
	if !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListAccessLogs(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select id, user_id, action, resource, granted, decided_at, device, ip_address").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "granted", "decided_at", "device", "ip_address"}).
			AddRow("log-1", "u1", "GET /v1/projects", "/v1/projects", true, now, "cli", "10.0.0.1").
			AddRow("log-2", "u2", "POST /v1/projects", "/v1/projects", false, now.Add(-time.Minute), nil, nil))

	logs, err := s.ListAccessLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListAccessLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs", len(logs))
	}
	if logs[0].ID != "log-1" || !logs[0].Granted || logs[0].Device != "cli" {
		t.Fatalf("first log mismatch: %+v", logs[0])
	}
	if logs[1].Device != "" || logs[1].IPAddress != "" {
		t.Fatalf("null columns must map to empty strings: %+v", logs[1])
	}
}
