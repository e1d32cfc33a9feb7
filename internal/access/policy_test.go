package access

import (
	"testing"

	"phasegate.org/internal/project"
)

func TestDefaultPhasePolicyTapersEditing(t *testing.T) {
	p := DefaultPhasePolicy()

	if !p.Allows(project.PhasePlanning, CapabilityEditModels, []string{RoleProjectManager}) {
		t.Error("project_manager should edit models in planning")
	}
	if p.Allows(project.PhaseExecution, CapabilityEditModels, []string{RoleProjectManager}) {
		t.Error("project_manager should not edit models in execution")
	}
	if p.Allows(project.PhaseClosed, CapabilityEditModels, []string{RoleAdmin}) {
		t.Error("nobody edits models in a closed project")
	}
	if !p.Allows(project.PhaseReview, CapabilityApprovePhase, []string{RoleReviewer}) {
		t.Error("reviewer approves phase in review")
	}
	if p.Allows(project.PhaseReview, CapabilityApprovePhase, []string{RoleEngineer, RoleViewer}) {
		t.Error("engineer/viewer must not approve phase in review")
	}
}

func TestPhasePolicyReturnsCopies(t *testing.T) {
	p := DefaultPhasePolicy()

	roles := p.RolesAllowed(project.PhasePlanning, CapabilityEditModels)
	roles[0] = "mutated"
	again := p.RolesAllowed(project.PhasePlanning, CapabilityEditModels)
	if again[0] == "mutated" {
		t.Fatal("RolesAllowed must return a copy")
	}

	caps := p.Capabilities(project.PhaseExecution)
	caps[CapabilityEditModels][0] = "mutated"
	if p.Capabilities(project.PhaseExecution)[CapabilityEditModels][0] == "mutated" {
		t.Fatal("Capabilities must return copies")
	}
}
