package access

import (
	"context"
	"errors"
	"time"

	"phasegate.org/internal/project"
)

var (
	ErrNotFound     = errors.New("access: not found")
	ErrInvalidInput = errors.New("access: invalid input")
)

// Role maps an identifier to a deduplicated set of permission strings.
// Referenced, not owned, by users and team memberships.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AccessLog is an append-only record of one access decision. Never mutated
// after creation.
type AccessLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Granted   bool      `json:"granted"`
	Time      time.Time `json:"time"`
	Device    string    `json:"device,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// Actor is the authenticated identity an access decision is made for.
type Actor struct {
	ID      string
	RoleIDs []string
	IsAdmin bool
}

// Context carries the ambient request metadata that modulates a decision and
// is persisted with it. A zero Time means "now".
type Context struct {
	Action    string
	Resource  string
	Time      time.Time
	Device    string
	IPAddress string
}

// RoleStore describes persistence for the role catalog.
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	SetRolePermissions(ctx context.Context, roleID string, permissions []string) (*Role, error)
	// PermissionsForRoles returns the union of permissions across all resolved
	// roles; unknown ids contribute nothing.
	PermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error)
}

// AccessLogStore appends and reads immutable decision records.
type AccessLogStore interface {
	AppendAccessLog(ctx context.Context, entry *AccessLog) error
	ListAccessLogs(ctx context.Context, limit int) ([]*AccessLog, error)
}

// PhaseLookup resolves a project's current lifecycle phase.
type PhaseLookup interface {
	CurrentPhase(ctx context.Context, projectID string) (project.Phase, error)
}
