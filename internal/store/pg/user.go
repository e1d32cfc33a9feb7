package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"phasegate.org/internal/auth"
	"phasegate.org/internal/ids"
)

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	err = tx.QueryRowContext(ctx, `select 1 from users where email=$1`, u.Email).Scan(&dummy)
	if err == nil {
		return fmt.Errorf("%w: email %s already registered", auth.ErrConflict, u.Email)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if err := checkRoleIDs(ctx, tx, u.RoleIDs); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, err := tx.ExecContext(ctx, `
		insert into users(id, email, password_hash, is_admin, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6)
	`, u.ID, u.Email, u.PasswordHash, u.IsAdmin, u.CreatedAt, u.UpdatedAt); err != nil {
		return err
	}
	for _, roleID := range u.RoleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles(user_id, role_id) values ($1,$2) on conflict do nothing
		`, u.ID, roleID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return loadUser(ctx, s.db, `id=$1`, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return loadUser(ctx, s.db, `email=$1`, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `select id from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*auth.User, 0, len(userIDs))
	for _, id := range userIDs {
		u, err := loadUser(ctx, s.db, `id=$1`, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) SetUserRoles(ctx context.Context, userID string, roleIDs []string) (*auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from users where id=$1 for update`, userID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
		}
		return nil, err
	}
	if err := checkRoleIDs(ctx, tx, roleIDs); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, userID); err != nil {
		return nil, err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles(user_id, role_id) values ($1,$2)
		`, userID, roleID); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `update users set updated_at=now() where id=$1`, userID); err != nil {
		return nil, err
	}
	u, err := loadUser(ctx, tx, `id=$1`, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) RecordLogin(ctx context.Context, userID string, rec auth.LoginRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users set last_login=$2, last_device=$3, updated_at=$2 where id=$1
	`, userID, rec.Time, rec.Device)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into login_history(user_id, logged_at, device, ip_address)
		values ($1,$2,$3,$4)
	`, userID, rec.Time, rec.Device, rec.IPAddress); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Memberships go first; a user is never removed while one points at it.
	if _, err := tx.ExecContext(ctx, `delete from team_members where user_id=$1`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from login_history where user_id=$1`, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from users where id=$1`, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	return tx.Commit()
}

// loadUser assembles an account with its role references, derived team
// reference set and login history. The where clause must bind exactly one
// parameter.
func loadUser(ctx context.Context, q querier, where string, arg any) (*auth.User, error) {
	u := &auth.User{}
	var lastLogin sql.NullTime
	var lastDevice sql.NullString
	err := q.QueryRowContext(ctx, `
		select id, email, password_hash, is_admin, last_login, last_device, created_at, updated_at
		from users where `+where, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &lastLogin, &lastDevice, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %v", auth.ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	u.LastDevice = lastDevice.String

	roles, err := q.QueryContext(ctx, `
		select role_id from user_roles where user_id=$1 order by role_id
	`, u.ID)
	if err != nil {
		return nil, err
	}
	defer roles.Close()
	for roles.Next() {
		var roleID string
		if err := roles.Scan(&roleID); err != nil {
			return nil, err
		}
		u.RoleIDs = append(u.RoleIDs, roleID)
	}
	if err := roles.Err(); err != nil {
		return nil, err
	}

	teams, err := q.QueryContext(ctx, `
		select distinct team_id from team_members where user_id=$1 order by team_id
	`, u.ID)
	if err != nil {
		return nil, err
	}
	defer teams.Close()
	for teams.Next() {
		var teamID string
		if err := teams.Scan(&teamID); err != nil {
			return nil, err
		}
		u.TeamIDs = append(u.TeamIDs, teamID)
	}
	if err := teams.Err(); err != nil {
		return nil, err
	}

	hist, err := q.QueryContext(ctx, `
		select logged_at, device, ip_address from login_history
		where user_id=$1 order by id
	`, u.ID)
	if err != nil {
		return nil, err
	}
	defer hist.Close()
	for hist.Next() {
		var rec auth.LoginRecord
		var device, ip sql.NullString
		var at time.Time
		if err := hist.Scan(&at, &device, &ip); err != nil {
			return nil, err
		}
		rec.Time = at
		rec.Device = device.String
		rec.IPAddress = ip.String
		u.LoginHistory = append(u.LoginHistory, rec)
	}
	return u, hist.Err()
}

// checkRoleIDs reports every unknown role id together before anything mutates.
func checkRoleIDs(ctx context.Context, q querier, roleIDs []string) error {
	var unknown []string
	for _, roleID := range roleIDs {
		var dummy int
		err := q.QueryRowContext(ctx, `select 1 from roles where id=$1`, roleID).Scan(&dummy)
		if errors.Is(err, sql.ErrNoRows) {
			unknown = append(unknown, roleID)
			continue
		}
		if err != nil {
			return err
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown role ids: %s", auth.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return nil
}
