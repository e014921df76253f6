package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/cst_tracker/backend/internal/models"
)

func (s *Store) CreateLog(ctx context.Context, log *models.PerformanceLog) error {
	stream, err := json.Marshal(log.EventStream)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO performance_logs
			(request_id, event_stream, resolution_minutes, sla_target_hours,
			 sla_state, escalation_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (request_id) DO NOTHING
	`, log.RequestID, stream, log.ComputedKPIs.ResolutionMinutes,
		log.ComputedKPIs.SLATargetHours, log.ComputedKPIs.SLAState,
		log.ComputedKPIs.EscalationCount, log.CreatedAt)
	return err
}

// AppendEvent pushes one event onto the request's stream. The upsert creates
// the log with default KPIs the first time, so appends never race log
// creation; existing events are never rewritten.
func (s *Store) AppendEvent(ctx context.Context, requestID string, ev models.LogEvent) error {
	event, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO performance_logs (request_id, event_stream, created_at)
		VALUES ($1, jsonb_build_array($2::jsonb), $3)
		ON CONFLICT (request_id) DO UPDATE
		SET event_stream = performance_logs.event_stream || EXCLUDED.event_stream
	`, requestID, event, ev.At)
	return err
}

func (s *Store) GetLogByRequest(ctx context.Context, requestID string) (*models.PerformanceLog, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT request_id, event_stream, resolution_minutes, sla_target_hours,
			sla_state, escalation_count, citizen_feedback, created_at
		FROM performance_logs WHERE request_id = $1
	`, requestID)

	var (
		log      models.PerformanceLog
		stream   []byte
		feedback []byte
	)
	err := row.Scan(&log.RequestID, &stream, &log.ComputedKPIs.ResolutionMinutes,
		&log.ComputedKPIs.SLATargetHours, &log.ComputedKPIs.SLAState,
		&log.ComputedKPIs.EscalationCount, &feedback, &log.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(stream, &log.EventStream); err != nil {
		return nil, err
	}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &log.CitizenFeedback); err != nil {
			return nil, err
		}
	}
	return &log, nil
}

// SetResolutionKPIs freezes the resolution duration and final SLA state;
// the IS NULL guard makes the first resolution win.
func (s *Store) SetResolutionKPIs(ctx context.Context, requestID string, minutes int, state string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE performance_logs
		SET resolution_minutes = $2, sla_state = $3
		WHERE request_id = $1 AND resolution_minutes IS NULL
	`, requestID, minutes, state)
	return err
}

// IncrementEscalation bumps the escalation counter, seeding the log row at
// count 1 when no row exists yet.
func (s *Store) IncrementEscalation(ctx context.Context, requestID string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO performance_logs (request_id, escalation_count, created_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (request_id) DO UPDATE
		SET escalation_count = performance_logs.escalation_count + 1
	`, requestID)
	return err
}

func (s *Store) SetCitizenFeedback(ctx context.Context, requestID string, feedback map[string]any) error {
	payload, err := json.Marshal(feedback)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE performance_logs SET citizen_feedback = $2 WHERE request_id = $1
	`, requestID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListLogs(ctx context.Context, limit int) ([]models.PerformanceLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT request_id, event_stream, resolution_minutes, sla_target_hours,
			sla_state, escalation_count, citizen_feedback, created_at
		FROM performance_logs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PerformanceLog
	for rows.Next() {
		var (
			log      models.PerformanceLog
			stream   []byte
			feedback []byte
		)
		if err := rows.Scan(&log.RequestID, &stream, &log.ComputedKPIs.ResolutionMinutes,
			&log.ComputedKPIs.SLATargetHours, &log.ComputedKPIs.SLAState,
			&log.ComputedKPIs.EscalationCount, &feedback, &log.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(stream, &log.EventStream); err != nil {
			return nil, err
		}
		if len(feedback) > 0 {
			if err := json.Unmarshal(feedback, &log.CitizenFeedback); err != nil {
				return nil, err
			}
		}
		out = append(out, log)
	}
	return out, rows.Err()
}
