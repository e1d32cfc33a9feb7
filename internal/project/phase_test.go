package project

import "testing"

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		current   Phase
		requested Phase
		want      bool
	}{
		{PhasePlanning, PhaseExecution, true},
		{PhasePlanning, PhaseReview, true},
		{PhasePlanning, PhaseClosed, true},
		{PhaseExecution, PhaseReview, true},
		{PhaseExecution, PhaseClosed, true},
		{PhaseReview, PhaseClosed, true},
		{PhasePlanning, PhasePlanning, false},
		{PhaseExecution, PhasePlanning, false},
		{PhaseReview, PhaseExecution, false},
		{PhaseClosed, PhasePlanning, false},
		{PhaseClosed, PhaseClosed, false},
		{Phase("archived"), PhaseClosed, false},
		{PhasePlanning, Phase("archived"), false},
	}
	for _, tc := range cases {
		if got := IsValidTransition(tc.current, tc.requested); got != tc.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tc.current, tc.requested, got, tc.want)
		}
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("  Execution ")
	if err != nil {
		t.Fatalf("ParsePhase: %v", err)
	}
	if p != PhaseExecution {
		t.Fatalf("got %q, want %q", p, PhaseExecution)
	}
	if _, err := ParsePhase("archived"); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}

func TestPhasesOrdered(t *testing.T) {
	phases := Phases()
	if len(phases) != 4 {
		t.Fatalf("got %d phases, want 4", len(phases))
	}
	for i := 1; i < len(phases); i++ {
		if !IsValidTransition(phases[i-1], phases[i]) {
			t.Errorf("%s -> %s should be a legal step", phases[i-1], phases[i])
		}
	}
}
