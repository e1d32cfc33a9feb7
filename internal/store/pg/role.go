package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"phasegate.org/internal/access"
	"phasegate.org/internal/ids"
)

func (s *Store) CreateRole(ctx context.Context, r *access.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if r.ID == "" {
		r.ID = ids.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if _, err := tx.ExecContext(ctx, `
		insert into roles(id, name, display_name, created_at, updated_at)
		values ($1,$2,$3,$4,$5)
	`, r.ID, r.Name, r.DisplayName, r.CreatedAt, r.UpdatedAt); err != nil {
		return err
	}
	for _, perm := range r.Permissions {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission) values ($1,$2) on conflict do nothing
		`, r.ID, perm); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetRole(ctx context.Context, id string) (*access.Role, error) {
	return loadRole(ctx, s.db, id)
}

func (s *Store) ListRoles(ctx context.Context) ([]*access.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select id from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*access.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		r, err := loadRole(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissions []string) (*access.Role, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id=$1 for update`, roleID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: role %s", access.ErrNotFound, roleID)
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return nil, err
	}
	for _, perm := range permissions {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission) values ($1,$2) on conflict do nothing
		`, roleID, perm); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `update roles set updated_at=now() where id=$1`, roleID); err != nil {
		return nil, err
	}
	r, err := loadRole(ctx, tx, roleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	// Union across all resolved roles; unknown ids contribute nothing.
	seen := make(map[string]struct{})
	var out []string
	for _, roleID := range roleIDs {
		rows, err := s.db.QueryContext(ctx, `
			select permission from role_permissions where role_id=$1 order by permission
		`, roleID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var perm string
			if err := rows.Scan(&perm); err != nil {
				rows.Close()
				return nil, err
			}
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func (s *Store) AppendAccessLog(ctx context.Context, entry *access.AccessLog) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into access_logs(id, user_id, action, resource, granted, decided_at, device, ip_address)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.UserID, entry.Action, entry.Resource, entry.Granted, entry.Time, entry.Device, entry.IPAddress)
	return err
}

func (s *Store) ListAccessLogs(ctx context.Context, limit int) ([]*access.AccessLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, action, resource, granted, decided_at, device, ip_address
		from access_logs order by decided_at desc, id desc limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*access.AccessLog
	for rows.Next() {
		entry := &access.AccessLog{}
		var device, ip sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Resource,
			&entry.Granted, &entry.Time, &device, &ip); err != nil {
			return nil, err
		}
		entry.Device = device.String
		entry.IPAddress = ip.String
		out = append(out, entry)
	}
	return out, rows.Err()
}

// loadRole assembles a role with its permission set.
func loadRole(ctx context.Context, q querier, id string) (*access.Role, error) {
	r := &access.Role{ID: id}
	var display sql.NullString
	err := q.QueryRowContext(ctx, `
		select name, display_name, created_at, updated_at from roles where id=$1
	`, id).Scan(&r.Name, &display, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %s", access.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	r.DisplayName = display.String

	rows, err := q.QueryContext(ctx, `
		select permission from role_permissions where role_id=$1 order by permission
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, err
		}
		r.Permissions = append(r.Permissions, perm)
	}
	return r, rows.Err()
}
