package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubUserStore struct {
	users  map[string]*User
	logins []LoginRecord
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: make(map[string]*User)}
}

func (s *stubUserStore) CreateUser(ctx context.Context, u *User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email %s already registered", ErrConflict, u.Email)
		}
	}
	u.ID = fmt.Sprintf("user-%d", len(s.users)+1)
	s.users[u.ID] = u
	return nil
}

func (s *stubUserStore) GetUser(ctx context.Context, id string) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

func (s *stubUserStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
}

func (s *stubUserStore) ListUsers(ctx context.Context) ([]*User, error) { return nil, nil }

func (s *stubUserStore) SetUserRoles(ctx context.Context, userID string, roleIDs []string) (*User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.RoleIDs = roleIDs
	return u, nil
}

func (s *stubUserStore) RecordLogin(ctx context.Context, userID string, rec LoginRecord) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	s.logins = append(s.logins, rec)
	return nil
}

func (s *stubUserStore) DeleteUser(ctx context.Context, userID string) error {
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	delete(s.users, userID)
	return nil
}

func TestRegisterNormalizesEmail(t *testing.T) {
	store := newStubUserStore()
	users, err := NewUsers(store)
	if err != nil {
		t.Fatalf("NewUsers: %v", err)
	}

	u, err := users.Register(context.Background(), "  Alice@Example.COM ", "hunter22", false, []string{"r1", "r1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.PasswordHash == "" || u.PasswordHash == "hunter22" {
		t.Fatal("password must be stored hashed")
	}
	if len(u.RoleIDs) != 1 {
		t.Fatalf("role ids not deduplicated: %v", u.RoleIDs)
	}

	if _, err := users.Register(context.Background(), "no-at-sign", "pw", false, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAuthenticateRecordsLoginContext(t *testing.T) {
	store := newStubUserStore()
	fixed := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	users, err := NewUsers(store, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewUsers: %v", err)
	}
	if _, err := users.Register(context.Background(), "alice@example.com", "hunter22", false, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	u, err := users.Authenticate(context.Background(), "alice@example.com", "hunter22", "firefox", "10.0.0.7")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.LastLogin == nil || !u.LastLogin.Equal(fixed) || u.LastDevice != "firefox" {
		t.Fatalf("login snapshot missing: %+v", u)
	}
	if len(store.logins) != 1 || store.logins[0].IPAddress != "10.0.0.7" {
		t.Fatalf("login history not recorded: %+v", store.logins)
	}

	if _, err := users.Authenticate(context.Background(), "alice@example.com", "wrong", "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if len(store.logins) != 1 {
		t.Fatal("failed login must not append history")
	}
}
