package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"phasegate.org/internal/access"
	"phasegate.org/internal/ids"
)

func (s *Store) CreateRole(ctx context.Context, r *access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = ids.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	stored := *r
	stored.Permissions = copyStrings(r.Permissions)
	s.roles[stored.ID] = &stored
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*access.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", access.ErrNotFound, id)
	}
	out := *r
	out.Permissions = copyStrings(r.Permissions)
	return &out, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]*access.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.roles))
	for id := range s.roles {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	out := make([]*access.Role, 0, len(keys))
	for _, id := range keys {
		r := s.roles[id]
		cp := *r
		cp.Permissions = copyStrings(r.Permissions)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissions []string) (*access.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", access.ErrNotFound, roleID)
	}
	r.Permissions = copyStrings(permissions)
	r.UpdatedAt = time.Now().UTC()
	out := *r
	out.Permissions = copyStrings(r.Permissions)
	return &out, nil
}

func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, roleID := range roleIDs {
		r, ok := s.roles[roleID]
		if !ok {
			continue
		}
		for _, p := range r.Permissions {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) AppendAccessLog(ctx context.Context, entry *access.AccessLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	stored := *entry
	s.logs = append(s.logs, &stored)
	return nil
}

func (s *Store) ListAccessLogs(ctx context.Context, limit int) ([]*access.AccessLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	// Most recent first.
	out := make([]*access.AccessLog, 0, limit)
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}
