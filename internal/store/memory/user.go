package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"phasegate.org/internal/auth"
	"phasegate.org/internal/ids"
)

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email %s", auth.ErrConflict, u.Email)
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	stored := *u
	stored.RoleIDs = copyStrings(u.RoleIDs)
	stored.TeamIDs = nil
	stored.LoginHistory = append([]auth.LoginRecord(nil), u.LoginHistory...)
	s.users[stored.ID] = &stored
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userView(id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, u := range s.users {
		if u.Email == email {
			return s.userView(id)
		}
	}
	return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.users))
	for id := range s.users {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	out := make([]*auth.User, 0, len(keys))
	for _, id := range keys {
		u, err := s.userView(id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) SetUserRoles(ctx context.Context, userID string, roleIDs []string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	var unknown []string
	for _, roleID := range roleIDs {
		if _, ok := s.roles[roleID]; !ok {
			unknown = append(unknown, roleID)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown role ids: %s", auth.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	u.RoleIDs = copyStrings(roleIDs)
	u.UpdatedAt = time.Now().UTC()
	return s.userView(userID)
}

func (s *Store) RecordLogin(ctx context.Context, userID string, rec auth.LoginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	t := rec.Time
	u.LastLogin = &t
	u.LastDevice = rec.Device
	u.LoginHistory = append(u.LoginHistory, rec)
	u.UpdatedAt = rec.Time
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	// Detach memberships first; removing the join rows updates both views.
	for _, users := range s.members {
		delete(users, userID)
	}
	delete(s.users, userID)
	return nil
}

// userView returns a copy with the derived team reference set filled in.
// Callers must hold at least a read lock.
func (s *Store) userView(id string) (*auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	out := *u
	out.RoleIDs = copyStrings(u.RoleIDs)
	out.TeamIDs = s.teamsOfUser(id)
	out.LoginHistory = append([]auth.LoginRecord(nil), u.LoginHistory...)
	return &out, nil
}
