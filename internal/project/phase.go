package project

import (
	"fmt"
	"strings"
)

// Phase is one stage of a project's lifecycle. Phases are totally ordered and
// transitions are forward-only; closed is terminal.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseExecution Phase = "execution"
	PhaseReview    Phase = "review"
	PhaseClosed    Phase = "closed"
)

var phaseOrder = map[Phase]int{
	PhasePlanning:  0,
	PhaseExecution: 1,
	PhaseReview:    2,
	PhaseClosed:    3,
}

// Phases lists all lifecycle phases in order.
func Phases() []Phase {
	return []Phase{PhasePlanning, PhaseExecution, PhaseReview, PhaseClosed}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// ParsePhase normalizes and validates a phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.TrimSpace(strings.ToLower(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, s)
	}
	return p, nil
}

// IsValidTransition reports whether moving from current to requested is legal.
// Legal iff the requested phase is strictly later in the order; skipping ahead
// is allowed, backward and same-phase transitions are not.
func IsValidTransition(current, requested Phase) bool {
	ci, ok := phaseOrder[current]
	if !ok {
		return false
	}
	ri, ok := phaseOrder[requested]
	if !ok {
		return false
	}
	return ri > ci
}
