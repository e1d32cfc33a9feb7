// Package pg implements the persistence interfaces over PostgreSQL. Relations
// are stored as join tables (team_members, project_teams, user_roles); every
// multi-entity mutation runs in one transaction with the parent row locked, so
// both sides of a bidirectional reference move together or not at all.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"phasegate.org/internal/access"
	"phasegate.org/internal/auth"
	"phasegate.org/internal/project"
	"phasegate.org/internal/team"
)

type Store struct {
	db *sql.DB
}

var (
	_ auth.UserStore        = (*Store)(nil)
	_ access.RoleStore      = (*Store)(nil)
	_ access.AccessLogStore = (*Store)(nil)
	_ access.PhaseLookup    = (*Store)(nil)
	_ team.Store            = (*Store)(nil)
	_ project.Store         = (*Store)(nil)
)

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// querier is satisfied by both *sql.DB and *sql.Tx so loaders can run inside
// or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullable(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
