package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"phasegate.org/internal/ids"
	"phasegate.org/internal/team"
)

func (s *Store) CreateTeam(ctx context.Context, t *team.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	stored := *t
	stored.Members = nil
	stored.ProjectIDs = nil
	s.teams[stored.ID] = &stored
	s.members[stored.ID] = make(map[string]string)
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (*team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.teamView(id)
}

func (s *Store) ListTeams(ctx context.Context) ([]*team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.teams))
	for id := range s.teams {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	out := make([]*team.Team, 0, len(keys))
	for _, id := range keys {
		t, err := s.teamView(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) UpdateTeam(ctx context.Context, id string, upd team.Update) (*team.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: team %s", team.ErrNotFound, id)
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	t.UpdatedAt = time.Now().UTC()
	return s.teamView(id)
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return fmt.Errorf("%w: team %s", team.ErrNotFound, id)
	}
	// Dropping the join rows detaches the team from member users and from
	// projects in the same step.
	delete(s.members, id)
	for _, teams := range s.projectTeams {
		delete(teams, id)
	}
	delete(s.teams, id)
	return nil
}

func (s *Store) AddMember(ctx context.Context, teamID, userID, roleID string) (*team.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("%w: team %s", team.ErrNotFound, teamID)
	}
	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("%w: unknown user ids: %s", team.ErrInvalidInput, userID)
	}
	if _, ok := s.roles[roleID]; !ok {
		return nil, fmt.Errorf("%w: unknown role ids: %s", team.ErrInvalidInput, roleID)
	}
	s.members[teamID][userID] = roleID
	t.UpdatedAt = time.Now().UTC()
	return s.teamView(teamID)
}

func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) (*team.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("%w: team %s", team.ErrNotFound, teamID)
	}
	delete(s.members[teamID], userID)
	t.UpdatedAt = time.Now().UTC()
	return s.teamView(teamID)
}

func (s *Store) SetTeamMembers(ctx context.Context, teamID string, members []team.Member) (*team.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("%w: team %s", team.ErrNotFound, teamID)
	}
	// Validate the whole payload before mutating anything.
	var unknownUsers, unknownRoles []string
	for _, m := range members {
		if _, ok := s.users[m.UserID]; !ok {
			unknownUsers = append(unknownUsers, m.UserID)
		}
		if _, ok := s.roles[m.RoleID]; !ok {
			unknownRoles = append(unknownRoles, m.RoleID)
		}
	}
	if len(unknownUsers) > 0 {
		return nil, fmt.Errorf("%w: unknown user ids: %s", team.ErrInvalidInput, strings.Join(unknownUsers, ", "))
	}
	if len(unknownRoles) > 0 {
		return nil, fmt.Errorf("%w: unknown role ids: %s", team.ErrInvalidInput, strings.Join(unknownRoles, ", "))
	}

	added, removed, rerolled := team.DiffMembers(s.membersOfTeam(teamID), members)
	if len(added) == 0 && len(removed) == 0 && len(rerolled) == 0 {
		return s.teamView(teamID)
	}
	for _, userID := range removed {
		delete(s.members[teamID], userID)
	}
	for _, m := range added {
		s.members[teamID][m.UserID] = m.RoleID
	}
	for _, m := range rerolled {
		s.members[teamID][m.UserID] = m.RoleID
	}
	t.UpdatedAt = time.Now().UTC()
	return s.teamView(teamID)
}

// teamView returns a copy with the derived member list and project reference
// set filled in. Callers must hold at least a read lock.
func (s *Store) teamView(id string) (*team.Team, error) {
	t, ok := s.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: team %s", team.ErrNotFound, id)
	}
	out := *t
	out.Members = s.membersOfTeam(id)
	out.ProjectIDs = s.projectsOfTeam(id)
	return &out, nil
}
