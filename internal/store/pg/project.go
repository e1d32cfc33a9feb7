package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"phasegate.org/internal/ids"
	"phasegate.org/internal/project"
)

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkTeamIDs(ctx, tx, p.TeamIDs); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	if _, err := tx.ExecContext(ctx, `
		insert into projects(id, name, description, current_phase, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$5)
	`, p.ID, p.Name, p.Description, string(p.CurrentPhase), p.CreatedAt); err != nil {
		return err
	}
	for _, rec := range p.PhaseHistory {
		if _, err := tx.ExecContext(ctx, `
			insert into phase_history(project_id, phase, start_date, end_date, modified_by)
			values ($1,$2,$3,$4,$5)
		`, p.ID, string(rec.Phase), rec.StartDate, rec.EndDate, rec.ModifiedBy); err != nil {
			return err
		}
	}
	for _, teamID := range p.TeamIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into project_teams(project_id, team_id) values ($1,$2) on conflict do nothing
		`, p.ID, teamID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	return loadProject(ctx, s.db, id)
}

func (s *Store) ListProjects(ctx context.Context) ([]*project.Project, error) {
	rows, err := s.db.QueryContext(ctx, `select id from projects order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projectIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		projectIDs = append(projectIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*project.Project, 0, len(projectIDs))
	for _, id := range projectIDs {
		p, err := loadProject(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, upd project.Update) (*project.Project, error) {
	res, err := s.db.ExecContext(ctx, `
		update projects
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
		return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	return loadProject(ctx, s.db, id)
}

func (s *Store) TransitionPhase(ctx context.Context, id string, requested project.Phase, actor string) (*project.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the project row so concurrent transitions serialize.
	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from projects where id=$1 for update`, id).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
		}
		return nil, err
	}

	p, err := loadProject(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := project.ApplyTransition(p, requested, actor, now); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		update phase_history set end_date=$2, modified_by=$3
		where project_id=$1 and end_date is null
	`, id, now, actor); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into phase_history(project_id, phase, start_date, end_date, modified_by)
		values ($1,$2,$3,null,$4)
	`, id, string(requested), now, actor); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		update projects set current_phase=$2, updated_at=$3 where id=$1
	`, id, string(requested), now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) SetProjectTeams(ctx context.Context, id string, teamIDs []string) (*project.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from projects where id=$1 for update`, id).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
		}
		return nil, err
	}
	if err := checkTeamIDs(ctx, tx, teamIDs); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `delete from project_teams where project_id=$1`, id); err != nil {
		return nil, err
	}
	for _, teamID := range teamIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into project_teams(project_id, team_id) values ($1,$2)
		`, id, teamID); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `update projects set updated_at=now() where id=$1`, id); err != nil {
		return nil, err
	}
	p, err := loadProject(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Detach from every referencing team before removing the record.
	if _, err := tx.ExecContext(ctx, `delete from project_teams where project_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from phase_history where project_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from projects where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	return tx.Commit()
}

// CurrentPhase resolves a project's lifecycle phase for the access evaluator.
func (s *Store) CurrentPhase(ctx context.Context, projectID string) (project.Phase, error) {
	var phase string
	err := s.db.QueryRowContext(ctx, `select current_phase from projects where id=$1`, projectID).Scan(&phase)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: project %s", project.ErrNotFound, projectID)
	}
	if err != nil {
		return "", err
	}
	return project.Phase(phase), nil
}

// loadProject assembles a project with its derived team references and phase
// history from the join tables.
func loadProject(ctx context.Context, q querier, id string) (*project.Project, error) {
	p := &project.Project{ID: id}
	var phase string
	err := q.QueryRowContext(ctx, `
		select name, description, current_phase, created_at, updated_at
		from projects where id=$1
	`, id).Scan(&p.Name, &p.Description, &phase, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %s", project.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	p.CurrentPhase = project.Phase(phase)

	rows, err := q.QueryContext(ctx, `
		select team_id from project_teams where project_id=$1 order by team_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var teamID string
		if err := rows.Scan(&teamID); err != nil {
			return nil, err
		}
		p.TeamIDs = append(p.TeamIDs, teamID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hist, err := q.QueryContext(ctx, `
		select phase, start_date, end_date, modified_by
		from phase_history where project_id=$1 order by id
	`, id)
	if err != nil {
		return nil, err
	}
	defer hist.Close()
	for hist.Next() {
		var rec project.PhaseRecord
		var recPhase string
		var end sql.NullTime
		if err := hist.Scan(&recPhase, &rec.StartDate, &end, &rec.ModifiedBy); err != nil {
			return nil, err
		}
		rec.Phase = project.Phase(recPhase)
		if end.Valid {
			t := end.Time
			rec.EndDate = &t
		}
		p.PhaseHistory = append(p.PhaseHistory, rec)
	}
	if err := hist.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkTeamIDs verifies every id resolves to an existing team and reports all
// unknown ids together before anything mutates.
func checkTeamIDs(ctx context.Context, q querier, teamIDs []string) error {
	var unknown []string
	for _, teamID := range teamIDs {
		var dummy int
		err := q.QueryRowContext(ctx, `select 1 from teams where id=$1`, teamID).Scan(&dummy)
		if errors.Is(err, sql.ErrNoRows) {
			unknown = append(unknown, teamID)
			continue
		}
		if err != nil {
			return err
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown team ids: %s", project.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return nil
}
