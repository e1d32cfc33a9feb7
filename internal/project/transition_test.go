package project

import (
	"errors"
	"testing"
	"time"
)

func TestNewProjectSeedsHistory(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	p := NewProject("Tower A", "HQ retrofit", nil, "user-1", now)

	if p.CurrentPhase != PhasePlanning {
		t.Fatalf("current phase = %s, want planning", p.CurrentPhase)
	}
	if len(p.PhaseHistory) != 1 {
		t.Fatalf("history length = %d, want 1", len(p.PhaseHistory))
	}
	rec := p.PhaseHistory[0]
	if rec.Phase != PhasePlanning || rec.EndDate != nil || rec.ModifiedBy != "user-1" {
		t.Fatalf("unexpected seed record: %+v", rec)
	}
}

func TestApplyTransitionClosesOpenRecord(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	p := NewProject("Tower A", "", []string{"team-1"}, "user-1", start)

	later := start.Add(48 * time.Hour)
	if err := ApplyTransition(p, PhaseExecution, "user-2", later); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}

	if p.CurrentPhase != PhaseExecution {
		t.Fatalf("current phase = %s, want execution", p.CurrentPhase)
	}
	if len(p.PhaseHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(p.PhaseHistory))
	}
	closed := p.PhaseHistory[0]
	if closed.EndDate == nil || !closed.EndDate.Equal(later) || closed.ModifiedBy != "user-2" {
		t.Fatalf("planning record not closed correctly: %+v", closed)
	}
	open := p.PhaseHistory[1]
	if open.Phase != PhaseExecution || open.EndDate != nil || !open.StartDate.Equal(later) {
		t.Fatalf("execution record not opened correctly: %+v", open)
	}

	// Exactly one open record after every transition.
	openCount := 0
	for _, rec := range p.PhaseHistory {
		if rec.EndDate == nil {
			openCount++
		}
	}
	if openCount != 1 {
		t.Fatalf("open records = %d, want 1", openCount)
	}
}

func TestApplyTransitionExecutionNeedsTeam(t *testing.T) {
	now := time.Now().UTC()
	p := NewProject("Tower A", "", nil, "user-1", now)

	err := ApplyTransition(p, PhaseExecution, "user-1", now)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("err = %v, want ErrPreconditionFailed", err)
	}
	if p.CurrentPhase != PhasePlanning || len(p.PhaseHistory) != 1 {
		t.Fatal("failed transition must not mutate the project")
	}

	// Skipping execution entirely does not hit the precondition.
	if err := ApplyTransition(p, PhaseReview, "user-1", now); err != nil {
		t.Fatalf("planning -> review: %v", err)
	}
}

func TestApplyTransitionRejectsBackward(t *testing.T) {
	now := time.Now().UTC()
	p := NewProject("Tower A", "", []string{"team-1"}, "user-1", now)
	if err := ApplyTransition(p, PhaseReview, "user-1", now); err != nil {
		t.Fatalf("planning -> review: %v", err)
	}
	err := ApplyTransition(p, PhaseExecution, "user-1", now)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	err = ApplyTransition(p, Phase("archived"), "user-1", now)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
