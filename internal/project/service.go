package project

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store describes persistence operations for projects. Multi-entity mutations
// (create with teams, team sync, transition, delete) must be atomic: the
// project row and the mirrored team references move together or not at all.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	UpdateProject(ctx context.Context, id string, upd Update) (*Project, error)
	TransitionPhase(ctx context.Context, id string, requested Phase, actor string) (*Project, error)
	SetProjectTeams(ctx context.Context, id string, teamIDs []string) (*Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// Service validates input and delegates to the store. Creation seeds the
// history ledger and Transition is the only path that changes the current
// phase.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle manager.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: project store is required", ErrInvalidInput)
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates the name and seeds a planning-phase project.
func (s *Service) Create(ctx context.Context, name, description string, teamIDs []string, actor string) (*Project, error) {
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		return nil, fmt.Errorf("%w: project name must be at least 3 characters", ErrInvalidInput)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	p := NewProject(name, strings.TrimSpace(description), dedupe(teamIDs), actor, s.now().UTC())
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns one project with its team references and phase history.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}
	return s.store.GetProject(ctx, id)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]*Project, error) {
	return s.store.ListProjects(ctx)
}

// Update patches project metadata. Phase changes are rejected here by
// construction: the patch shape has no phase field.
func (s *Service) Update(ctx context.Context, id string, upd Update) (*Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if len(name) < 3 {
			return nil, fmt.Errorf("%w: project name must be at least 3 characters", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateProject(ctx, id, upd)
}

// Transition moves the project to the requested phase on behalf of actor.
func (s *Service) Transition(ctx context.Context, id, requestedPhase, actor string) (*Project, error) {
	id = strings.TrimSpace(id)
	actor = strings.TrimSpace(actor)
	if id == "" || actor == "" {
		return nil, fmt.Errorf("%w: project_id and actor are required", ErrInvalidInput)
	}
	requested, err := ParsePhase(requestedPhase)
	if err != nil {
		return nil, err
	}
	return s.store.TransitionPhase(ctx, id, requested, actor)
}

// SetTeams replaces the project's team reference set. The store validates
// every id up front and reports all unknown ids together before mutating.
func (s *Service) SetTeams(ctx context.Context, id string, teamIDs []string) (*Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}
	return s.store.SetProjectTeams(ctx, id, dedupe(teamIDs))
}

// Delete removes a project after detaching it from every referencing team.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}
	return s.store.DeleteProject(ctx, id)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
