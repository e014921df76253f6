package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cst_tracker/backend/internal/models"
)

func (s *Store) InsertAgent(ctx context.Context, a *models.Agent) error {
	schedule, err := json.Marshal(a.Schedule)
	if err != nil {
		return err
	}
	var base []byte
	if a.BaseLocation != nil {
		if base, err = json.Marshal(a.BaseLocation); err != nil {
			return err
		}
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO service_agents
			(id, name, type, skills, coverage_zones, base_location, schedule, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.ID, a.Name, a.Type, a.Skills, a.CoverageZones, base, schedule, a.Active, a.CreatedAt)
	return err
}

func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, type, skills, coverage_zones, base_location, schedule, active, created_at
		FROM service_agents WHERE id = $1
	`, id)
	return scanAgent(row)
}

func (s *Store) UpdateAgent(ctx context.Context, a *models.Agent) error {
	schedule, err := json.Marshal(a.Schedule)
	if err != nil {
		return err
	}
	var base []byte
	if a.BaseLocation != nil {
		if base, err = json.Marshal(a.BaseLocation); err != nil {
			return err
		}
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE service_agents
		SET name = $2, type = $3, skills = $4, coverage_zones = $5,
			base_location = $6, schedule = $7, active = $8
		WHERE id = $1
	`, a.ID, a.Name, a.Type, a.Skills, a.CoverageZones, base, schedule, a.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM service_agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAgents filters the directory by skill and coverage zone, both optional.
func (s *Store) ListAgents(ctx context.Context, skill, zone string) ([]models.Agent, error) {
	query := `SELECT id, name, type, skills, coverage_zones, base_location, schedule, active, created_at FROM service_agents`
	var args []any
	var wheres []string
	if skill != "" {
		args = append(args, skill)
		wheres = append(wheres, fmt.Sprintf("$%d = ANY(skills)", len(args)))
	}
	if zone != "" {
		args = append(args, zone)
		wheres = append(wheres, fmt.Sprintf("$%d = ANY(coverage_zones)", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY name ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

// ListActiveAgents is the candidate pool for dispatch, in stable id order so
// tie-breaks are reproducible.
func (s *Store) ListActiveAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, type, skills, coverage_zones, base_location, schedule, active, created_at
		FROM service_agents WHERE active ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

// OpenWorkloads snapshots per-agent open request counts (assigned or
// in_progress). The snapshot may lag concurrent writes.
func (s *Store) OpenWorkloads(ctx context.Context) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT assigned_agent_id, COUNT(*)
		FROM service_requests
		WHERE assigned_agent_id IS NOT NULL AND status IN ('assigned', 'in_progress')
		GROUP BY assigned_agent_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var agentID string
		var count int
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, err
		}
		out[agentID] = count
	}
	return out, rows.Err()
}

func (s *Store) OpenWorkloadOf(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM service_requests
		WHERE assigned_agent_id = $1 AND status IN ('assigned', 'in_progress')
	`, agentID).Scan(&count)
	return count, err
}

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var (
		a        models.Agent
		base     []byte
		schedule []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Skills, &a.CoverageZones, &base, &schedule, &a.Active, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(schedule, &a.Schedule); err != nil {
		return nil, err
	}
	if len(base) > 0 {
		a.BaseLocation = &models.Location{}
		if err := json.Unmarshal(base, a.BaseLocation); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func collectAgents(rows pgx.Rows) ([]models.Agent, error) {
	var out []models.Agent
	for rows.Next() {
		var (
			a        models.Agent
			base     []byte
			schedule []byte
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Skills, &a.CoverageZones, &base, &schedule, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(schedule, &a.Schedule); err != nil {
			return nil, err
		}
		if len(base) > 0 {
			a.BaseLocation = &models.Location{}
			if err := json.Unmarshal(base, a.BaseLocation); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
