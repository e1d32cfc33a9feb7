package access

import "phasegate.org/internal/project"

// Capability is a phase-scoped action the policy table gates by role name.
type Capability string

const (
	CapabilityViewDocuments Capability = "view_documents"
	CapabilityEditModels    Capability = "edit_models"
	CapabilityEditRoles     Capability = "edit_roles"
	CapabilityApprovePhase  Capability = "approve_phase"
	CapabilityManageTeam    Capability = "manage_team"
)

// Built-in role names referenced by the default policy table and the seed
// catalog.
const (
	RoleAdmin          = "admin"
	RoleProjectManager = "project_manager"
	RoleArchitect      = "architect"
	RoleEngineer       = "engineer"
	RoleReviewer       = "reviewer"
	RoleViewer         = "viewer"
)

// PhasePolicy is the static per-phase mapping of capability to permitted role
// names. It is immutable configuration built once at startup and passed by
// reference; a project's effective capability roles at any instant are the
// lookup by its current phase.
type PhasePolicy struct {
	table map[project.Phase]map[Capability][]string
}

// DefaultPhasePolicy builds the built-in policy table. Editing tapers off as
// a project moves toward review and close; viewing stays broad throughout.
func DefaultPhasePolicy() *PhasePolicy {
	return &PhasePolicy{table: map[project.Phase]map[Capability][]string{
		project.PhasePlanning: {
			CapabilityViewDocuments: {RoleAdmin, RoleProjectManager, RoleArchitect, RoleEngineer, RoleReviewer, RoleViewer},
			CapabilityEditModels:    {RoleAdmin, RoleProjectManager, RoleArchitect},
			CapabilityEditRoles:     {RoleAdmin, RoleProjectManager},
			CapabilityApprovePhase:  {RoleAdmin, RoleProjectManager},
			CapabilityManageTeam:    {RoleAdmin, RoleProjectManager},
		},
		project.PhaseExecution: {
			CapabilityViewDocuments: {RoleAdmin, RoleProjectManager, RoleArchitect, RoleEngineer, RoleReviewer, RoleViewer},
			CapabilityEditModels:    {RoleAdmin, RoleArchitect, RoleEngineer},
			CapabilityEditRoles:     {RoleAdmin},
			CapabilityApprovePhase:  {RoleAdmin, RoleProjectManager},
			CapabilityManageTeam:    {RoleAdmin, RoleProjectManager},
		},
		project.PhaseReview: {
			CapabilityViewDocuments: {RoleAdmin, RoleProjectManager, RoleArchitect, RoleEngineer, RoleReviewer},
			CapabilityEditModels:    {RoleAdmin, RoleReviewer},
			CapabilityEditRoles:     {RoleAdmin},
			CapabilityApprovePhase:  {RoleAdmin, RoleReviewer},
			CapabilityManageTeam:    {RoleAdmin},
		},
		project.PhaseClosed: {
			CapabilityViewDocuments: {RoleAdmin, RoleProjectManager, RoleReviewer, RoleViewer},
			CapabilityEditModels:    {},
			CapabilityEditRoles:     {},
			CapabilityApprovePhase:  {},
			CapabilityManageTeam:    {RoleAdmin},
		},
	}}
}

// RolesAllowed returns a copy of the role names permitted the capability in
// the given phase.
func (p *PhasePolicy) RolesAllowed(phase project.Phase, cap Capability) []string {
	roles := p.table[phase][cap]
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}

// Allows reports whether any of the given role names is permitted the
// capability in the given phase.
func (p *PhasePolicy) Allows(phase project.Phase, cap Capability, roleNames []string) bool {
	allowed := p.table[phase][cap]
	for _, have := range roleNames {
		for _, want := range allowed {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Capabilities returns a copy of the full capability table for one phase.
func (p *PhasePolicy) Capabilities(phase project.Phase) map[Capability][]string {
	row := p.table[phase]
	out := make(map[Capability][]string, len(row))
	for cap, roles := range row {
		cp := make([]string, len(roles))
		copy(cp, roles)
		out[cap] = cp
	}
	return out
}
