package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"phasegate.org/internal/ids"
	"phasegate.org/internal/team"
)

func (s *Store) CreateTeam(ctx context.Context, t *team.Team) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into teams(id, name, description, created_at, updated_at)
		values ($1,$2,$3,$4,$5)
	`, t.ID, t.Name, t.Description, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) GetTeam(ctx context.Context, id string) (*team.Team, error) {
	return loadTeam(ctx, s.db, id)
}

func (s *Store) ListTeams(ctx context.Context) ([]*team.Team, error) {
	rows, err := s.db.QueryContext(ctx, `select id from teams order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teamIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		teamIDs = append(teamIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*team.Team, 0, len(teamIDs))
	for _, id := range teamIDs {
		t, err := loadTeam(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) UpdateTeam(ctx context.Context, id string, upd team.Update) (*team.Team, error) {
	res, err := s.db.ExecContext(ctx, `
		update teams
		set name = coalesce($2, name),
		    description = coalesce($3, description),
		    updated_at = now()
		where id = $1
	`, id, nullable(upd.Name), nullable(upd.Description))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: team %s", team.ErrNotFound, id)
	}
	return loadTeam(ctx, s.db, id)
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Detach memberships and project references before removing the record.
	if _, err := tx.ExecContext(ctx, `delete from team_members where team_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from project_teams where team_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from teams where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: team %s", team.ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *Store) AddMember(ctx context.Context, teamID, userID, roleID string) (*team.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTeam(ctx, tx, teamID); err != nil {
		return nil, err
	}
	if err := checkMemberIDs(ctx, tx, []team.Member{{UserID: userID, RoleID: roleID}}); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into team_members(team_id, user_id, role_id)
		values ($1,$2,$3)
		on conflict (team_id, user_id) do update set role_id = excluded.role_id
	`, teamID, userID, roleID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `update teams set updated_at=now() where id=$1`, teamID); err != nil {
		return nil, err
	}
	t, err := loadTeam(ctx, tx, teamID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) (*team.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTeam(ctx, tx, teamID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from team_members where team_id=$1 and user_id=$2
	`, teamID, userID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `update teams set updated_at=now() where id=$1`, teamID); err != nil {
		return nil, err
	}
	t, err := loadTeam(ctx, tx, teamID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) SetTeamMembers(ctx context.Context, teamID string, members []team.Member) (*team.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTeam(ctx, tx, teamID); err != nil {
		return nil, err
	}
	if err := checkMemberIDs(ctx, tx, members); err != nil {
		return nil, err
	}

	current, err := loadMembers(ctx, tx, teamID)
	if err != nil {
		return nil, err
	}
	added, removed, rerolled := team.DiffMembers(current, members)
	if len(added) == 0 && len(removed) == 0 && len(rerolled) == 0 {
		t, err := loadTeam(ctx, tx, teamID)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return t, nil
	}
	for _, userID := range removed {
		if _, err := tx.ExecContext(ctx, `
			delete from team_members where team_id=$1 and user_id=$2
		`, teamID, userID); err != nil {
			return nil, err
		}
	}
	for _, m := range append(added, rerolled...) {
		if _, err := tx.ExecContext(ctx, `
			insert into team_members(team_id, user_id, role_id)
			values ($1,$2,$3)
			on conflict (team_id, user_id) do update set role_id = excluded.role_id
		`, teamID, m.UserID, m.RoleID); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `update teams set updated_at=now() where id=$1`, teamID); err != nil {
		return nil, err
	}
	t, err := loadTeam(ctx, tx, teamID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

// lockTeam takes a row lock on the team so membership rewrites serialize.
func lockTeam(ctx context.Context, q querier, teamID string) error {
	var dummy int
	err := q.QueryRowContext(ctx, `select 1 from teams where id=$1 for update`, teamID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: team %s", team.ErrNotFound, teamID)
	}
	return err
}

// checkMemberIDs reports every unknown user and role id together so bad input
// never partially applies.
func checkMemberIDs(ctx context.Context, q querier, members []team.Member) error {
	var unknownUsers, unknownRoles []string
	for _, m := range members {
		var dummy int
		err := q.QueryRowContext(ctx, `select 1 from users where id=$1`, m.UserID).Scan(&dummy)
		if errors.Is(err, sql.ErrNoRows) {
			unknownUsers = append(unknownUsers, m.UserID)
		} else if err != nil {
			return err
		}
		err = q.QueryRowContext(ctx, `select 1 from roles where id=$1`, m.RoleID).Scan(&dummy)
		if errors.Is(err, sql.ErrNoRows) {
			unknownRoles = append(unknownRoles, m.RoleID)
		} else if err != nil {
			return err
		}
	}
	if len(unknownUsers) > 0 {
		return fmt.Errorf("%w: unknown user ids: %s", team.ErrInvalidInput, strings.Join(unknownUsers, ", "))
	}
	if len(unknownRoles) > 0 {
		return fmt.Errorf("%w: unknown role ids: %s", team.ErrInvalidInput, strings.Join(unknownRoles, ", "))
	}
	return nil
}

func loadMembers(ctx context.Context, q querier, teamID string) ([]team.Member, error) {
	rows, err := q.QueryContext(ctx, `
		select user_id, role_id from team_members where team_id=$1 order by user_id
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []team.Member
	for rows.Next() {
		var m team.Member
		if err := rows.Scan(&m.UserID, &m.RoleID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// loadTeam assembles a team with its member list and derived project
// reference set.
func loadTeam(ctx context.Context, q querier, id string) (*team.Team, error) {
	t := &team.Team{ID: id}
	err := q.QueryRowContext(ctx, `
		select name, description, created_at, updated_at from teams where id=$1
	`, id).Scan(&t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: team %s", team.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	t.Members, err = loadMembers(ctx, q, id)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		select project_id from project_teams where team_id=$1 order by project_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var projectID string
		if err := rows.Scan(&projectID); err != nil {
			return nil, err
		}
		t.ProjectIDs = append(t.ProjectIDs, projectID)
	}
	return t, rows.Err()
}
