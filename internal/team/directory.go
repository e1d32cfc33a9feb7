package team

import (
	"context"
	"fmt"
	"strings"
)

// Store describes persistence for teams and the team↔user membership
// relation. Every membership mutation moves both sides of the relation in one
// transaction; a partial update must never be observable.
type Store interface {
	CreateTeam(ctx context.Context, t *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	ListTeams(ctx context.Context) ([]*Team, error)
	UpdateTeam(ctx context.Context, id string, upd Update) (*Team, error)
	DeleteTeam(ctx context.Context, id string) error
	AddMember(ctx context.Context, teamID, userID, roleID string) (*Team, error)
	RemoveMember(ctx context.Context, teamID, userID string) (*Team, error)
	SetTeamMembers(ctx context.Context, teamID string, members []Member) (*Team, error)
}

// Directory validates input and delegates membership bookkeeping to the store.
type Directory struct {
	store Store
}

// NewDirectory constructs the membership directory.
func NewDirectory(store Store) (*Directory, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: team store is required", ErrInvalidInput)
	}
	return &Directory{store: store}, nil
}

// Create registers a new team with an optional initial member list.
func (d *Directory) Create(ctx context.Context, name, description string, members []Member) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}
	normalized, err := normalizeMembers(members)
	if err != nil {
		return nil, err
	}
	t := &Team{Name: name, Description: strings.TrimSpace(description)}
	if err := d.store.CreateTeam(ctx, t); err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return t, nil
	}
	return d.store.SetTeamMembers(ctx, t.ID, normalized)
}

// Get returns one team with members and project references.
func (d *Directory) Get(ctx context.Context, id string) (*Team, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: team_id is required", ErrInvalidInput)
	}
	return d.store.GetTeam(ctx, id)
}

// List returns all teams.
func (d *Directory) List(ctx context.Context) ([]*Team, error) {
	return d.store.ListTeams(ctx)
}

// Update patches team metadata.
func (d *Directory) Update(ctx context.Context, id string, upd Update) (*Team, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: team_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: team name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return d.store.UpdateTeam(ctx, id, upd)
}

// AddMember attaches (user, role) to the team and mirrors the team reference
// onto the user.
func (d *Directory) AddMember(ctx context.Context, teamID, userID, roleID string) (*Team, error) {
	teamID = strings.TrimSpace(teamID)
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if teamID == "" || userID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: team_id, user_id and role_id are required", ErrInvalidInput)
	}
	return d.store.AddMember(ctx, teamID, userID, roleID)
}

// RemoveMember detaches the user from the team on both sides of the relation.
func (d *Directory) RemoveMember(ctx context.Context, teamID, userID string) (*Team, error) {
	teamID = strings.TrimSpace(teamID)
	userID = strings.TrimSpace(userID)
	if teamID == "" || userID == "" {
		return nil, fmt.Errorf("%w: team_id and user_id are required", ErrInvalidInput)
	}
	return d.store.RemoveMember(ctx, teamID, userID)
}

// SetMembers replaces the team's membership with the given list using a
// symmetric-difference sync; reapplying the same list is a no-op.
func (d *Directory) SetMembers(ctx context.Context, teamID string, members []Member) (*Team, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, fmt.Errorf("%w: team_id is required", ErrInvalidInput)
	}
	normalized, err := normalizeMembers(members)
	if err != nil {
		return nil, err
	}
	return d.store.SetTeamMembers(ctx, teamID, normalized)
}

// Delete removes a team after detaching it from every member user.
func (d *Directory) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: team_id is required", ErrInvalidInput)
	}
	return d.store.DeleteTeam(ctx, id)
}

// normalizeMembers trims ids, rejects blank pairs and duplicate users. All
// offending user ids are reported together so the caller can fix the whole
// payload in one round trip.
func normalizeMembers(members []Member) ([]Member, error) {
	if len(members) == 0 {
		return nil, nil
	}
	var dupes []string
	seen := make(map[string]struct{}, len(members))
	out := make([]Member, 0, len(members))
	for _, m := range members {
		m.UserID = strings.TrimSpace(m.UserID)
		m.RoleID = strings.TrimSpace(m.RoleID)
		if m.UserID == "" || m.RoleID == "" {
			return nil, fmt.Errorf("%w: each member requires user_id and role_id", ErrInvalidInput)
		}
		if _, ok := seen[m.UserID]; ok {
			dupes = append(dupes, m.UserID)
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m)
	}
	if len(dupes) > 0 {
		return nil, fmt.Errorf("%w: duplicate members: %s", ErrInvalidInput, strings.Join(dupes, ", "))
	}
	return out, nil
}
