package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"phasegate.org/internal/ids"
	"phasegate.org/internal/project"
)

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkTeamIDs(p.TeamIDs); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	stored := *p
	stored.TeamIDs = nil
	stored.PhaseHistory = append([]project.PhaseRecord(nil), p.PhaseHistory...)
	s.projects[stored.ID] = &stored
	assigned := make(map[string]struct{}, len(p.TeamIDs))
	for _, teamID := range p.TeamIDs {
		assigned[teamID] = struct{}{}
	}
	s.projectTeams[stored.ID] = assigned
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectView(id)
}

func (s *Store) ListProjects(ctx context.Context) ([]*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.projects))
	for id := range s.projects {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	out := make([]*project.Project, 0, len(keys))
	for _, id := range keys {
		p, err := s.projectView(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, upd project.Update) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	p.UpdatedAt = time.Now().UTC()
	return s.projectView(id)
}

func (s *Store) TransitionPhase(ctx context.Context, id string, requested project.Phase, actor string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	// Validate against a working copy, then commit the whole result.
	work := *stored
	work.TeamIDs = s.teamsOfProject(id)
	work.PhaseHistory = append([]project.PhaseRecord(nil), stored.PhaseHistory...)
	if err := project.ApplyTransition(&work, requested, actor, time.Now().UTC()); err != nil {
		return nil, err
	}
	stored.CurrentPhase = work.CurrentPhase
	stored.PhaseHistory = work.PhaseHistory
	stored.UpdatedAt = work.UpdatedAt
	return s.projectView(id)
}

func (s *Store) SetProjectTeams(ctx context.Context, id string, teamIDs []string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	if err := s.checkTeamIDs(teamIDs); err != nil {
		return nil, err
	}
	assigned := make(map[string]struct{}, len(teamIDs))
	for _, teamID := range teamIDs {
		assigned[teamID] = struct{}{}
	}
	s.projectTeams[id] = assigned
	p.UpdatedAt = time.Now().UTC()
	return s.projectView(id)
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	// Dropping the join rows detaches the project from every team.
	delete(s.projectTeams, id)
	delete(s.projects, id)
	return nil
}

// CurrentPhase resolves a project's lifecycle phase for the access evaluator.
func (s *Store) CurrentPhase(ctx context.Context, projectID string) (project.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return "", fmt.Errorf("%w: project %s", project.ErrNotFound, projectID)
	}
	return p.CurrentPhase, nil
}

// checkTeamIDs reports every unknown team id together so bad input never
// partially applies. Callers must hold the write lock.
func (s *Store) checkTeamIDs(teamIDs []string) error {
	var unknown []string
	for _, teamID := range teamIDs {
		if _, ok := s.teams[teamID]; !ok {
			unknown = append(unknown, teamID)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown team ids: %s", project.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return nil
}

// projectView returns a copy with the derived team reference set filled in.
// Callers must hold at least a read lock.
func (s *Store) projectView(id string) (*project.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	out := *p
	out.TeamIDs = s.teamsOfProject(id)
	out.PhaseHistory = append([]project.PhaseRecord(nil), p.PhaseHistory...)
	return &out, nil
}
