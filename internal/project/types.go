package project

import "time"

// PhaseRecord is one entry of a project's append-only phase history. The
// record with a nil EndDate is the open one and always matches CurrentPhase.
type PhaseRecord struct {
	Phase      Phase      `json:"phase"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	ModifiedBy string     `json:"modified_by"`
}

// Project owns its lifecycle phase and history ledger. CurrentPhase changes
// only through a validated transition; stores must not expose another path.
type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	CurrentPhase Phase         `json:"current_phase"`
	TeamIDs      []string      `json:"team_ids"`
	PhaseHistory []PhaseRecord `json:"phase_history"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Update is the patch shape for project metadata. Phase and team changes have
// dedicated operations and are deliberately absent here.
type Update struct {
	Name        *string
	Description *string
}
