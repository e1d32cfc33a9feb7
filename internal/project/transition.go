package project

import (
	"fmt"
	"time"
)

// NewProject seeds a project in the planning phase with one open history
// record stamped with the creating actor.
func NewProject(name, description string, teamIDs []string, actor string, now time.Time) *Project {
	return &Project{
		Name:         name,
		Description:  description,
		CurrentPhase: PhasePlanning,
		TeamIDs:      teamIDs,
		PhaseHistory: []PhaseRecord{{
			Phase:      PhasePlanning,
			StartDate:  now,
			ModifiedBy: actor,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyTransition advances a loaded project to the requested phase in place.
// It enforces the forward-only rule and the execution-entry precondition,
// closes the open history record and opens a new one. Both store
// implementations funnel phase changes through here so that the history
// invariant (exactly one open record, matching CurrentPhase) holds everywhere.
func ApplyTransition(p *Project, requested Phase, actor string, now time.Time) error {
	if !requested.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, requested)
	}
	if !IsValidTransition(p.CurrentPhase, requested) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.CurrentPhase, requested)
	}
	if requested == PhaseExecution && len(p.TeamIDs) == 0 {
		return fmt.Errorf("%w: entering execution requires at least one assigned team", ErrPreconditionFailed)
	}
	for i := range p.PhaseHistory {
		if p.PhaseHistory[i].EndDate == nil {
			end := now
			p.PhaseHistory[i].EndDate = &end
			p.PhaseHistory[i].ModifiedBy = actor
		}
	}
	p.PhaseHistory = append(p.PhaseHistory, PhaseRecord{
		Phase:      requested,
		StartDate:  now,
		ModifiedBy: actor,
	})
	p.CurrentPhase = requested
	p.UpdatedAt = now
	return nil
}
