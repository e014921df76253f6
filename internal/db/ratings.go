package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/cst_tracker/backend/internal/models"
)

// One rating per request; the primary key enforces it and a duplicate insert
// surfaces as ErrConflict.
func (s *Store) InsertRating(ctx context.Context, r *models.Rating) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO ratings (request_id, citizen_id, stars, reason_code, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, r.RequestID, r.CitizenID, r.Stars, nullable(r.ReasonCode), nullable(r.Comment), r.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetRatingByRequest(ctx context.Context, requestID string) (*models.Rating, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT request_id, citizen_id, stars, COALESCE(reason_code, ''), COALESCE(comment, ''), created_at
		FROM ratings WHERE request_id = $1
	`, requestID)
	var r models.Rating
	if err := row.Scan(&r.RequestID, &r.CitizenID, &r.Stars, &r.ReasonCode, &r.Comment, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRatingsByCitizen(ctx context.Context, citizenID string) ([]models.Rating, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT request_id, citizen_id, stars, COALESCE(reason_code, ''), COALESCE(comment, ''), created_at
		FROM ratings WHERE citizen_id = $1 ORDER BY created_at ASC
	`, citizenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.RequestID, &r.CitizenID, &r.Stars, &r.ReasonCode, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
