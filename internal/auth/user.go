package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// User represents an account that can authenticate and hold role and team
// references. The password hash never leaves this package in responses.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	IsAdmin      bool          `json:"is_admin"`
	RoleIDs      []string      `json:"role_ids"`
	TeamIDs      []string      `json:"team_ids"`
	LastLogin    *time.Time    `json:"last_login,omitempty"`
	LastDevice   string        `json:"last_device,omitempty"`
	LoginHistory []LoginRecord `json:"login_history,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// LoginRecord is one entry of the append-only login history.
type LoginRecord struct {
	Time      time.Time `json:"time"`
	Device    string    `json:"device,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// UserStore describes persistence operations for user accounts. DeleteUser
// detaches the user's team memberships in the same transaction; a user is
// never removed while a membership still points at it.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SetUserRoles(ctx context.Context, userID string, roleIDs []string) (*User, error)
	RecordLogin(ctx context.Context, userID string, rec LoginRecord) error
	DeleteUser(ctx context.Context, userID string) error
}

// Users provides account operations on top of a UserStore.
type Users struct {
	store UserStore
	now   func() time.Time
}

// UsersOption configures the Users service.
type UsersOption func(*Users)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) UsersOption {
	return func(u *Users) {
		if fn != nil {
			u.now = fn
		}
	}
}

// NewUsers constructs the account service.
func NewUsers(store UserStore, opts ...UsersOption) (*Users, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: user store is required", ErrInvalidInput)
	}
	u := &Users{store: store, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Register creates an account with a hashed password.
func (u *Users) Register(ctx context.Context, email, password string, isAdmin bool, roleIDs []string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := u.now().UTC()
	user := &User{
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		RoleIDs:      dedupeIDs(roleIDs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials and records the login context snapshot.
func (u *Users) Authenticate(ctx context.Context, email, password, device, ipAddress string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := u.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	rec := LoginRecord{Time: u.now().UTC(), Device: device, IPAddress: ipAddress}
	if err := u.store.RecordLogin(ctx, user.ID, rec); err != nil {
		return nil, err
	}
	user.LastLogin = &rec.Time
	user.LastDevice = rec.Device
	user.LoginHistory = append(user.LoginHistory, rec)
	return user, nil
}

// Get returns one account by id.
func (u *Users) Get(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return u.store.GetUser(ctx, id)
}

// List returns all accounts.
func (u *Users) List(ctx context.Context) ([]*User, error) {
	return u.store.ListUsers(ctx)
}

// SetRoles replaces the user's role reference set.
func (u *Users) SetRoles(ctx context.Context, userID string, roleIDs []string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return u.store.SetUserRoles(ctx, userID, dedupeIDs(roleIDs))
}

// Delete removes an account after detaching its team memberships.
func (u *Users) Delete(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return u.store.DeleteUser(ctx, userID)
}
