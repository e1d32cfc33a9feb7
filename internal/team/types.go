package team

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("team: not found")
	ErrInvalidInput = errors.New("team: invalid input")
)

// Member is a (user, role) pair scoped to one team. The same user may hold a
// different role in another team.
type Member struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

// Team groups members and project references. Membership is stored as an
// authoritative join relation; the TeamIDs slice on a user and the Members
// slice here are two views of the same rows, so they cannot drift.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Members     []Member  `json:"members"`
	ProjectIDs  []string  `json:"project_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update is the patch shape for team metadata.
type Update struct {
	Name        *string
	Description *string
}

// DiffMembers computes the membership changes needed to go from current to
// next: added members, removed user ids, and members whose role changed.
// Applying the result of an identical list is a no-op, which is what makes
// member sync idempotent.
func DiffMembers(current, next []Member) (added []Member, removed []string, rerolled []Member) {
	cur := make(map[string]string, len(current))
	for _, m := range current {
		cur[m.UserID] = m.RoleID
	}
	seen := make(map[string]struct{}, len(next))
	for _, m := range next {
		seen[m.UserID] = struct{}{}
		role, ok := cur[m.UserID]
		switch {
		case !ok:
			added = append(added, m)
		case role != m.RoleID:
			rerolled = append(rerolled, m)
		}
	}
	for _, m := range current {
		if _, ok := seen[m.UserID]; !ok {
			removed = append(removed, m.UserID)
		}
	}
	return added, removed, rerolled
}
