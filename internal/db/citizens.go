package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cst_tracker/backend/internal/models"
)

const citizenColumns = `id, full_name, COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(neighborhood, ''), COALESCE(city, ''), COALESCE(zone_id, ''),
	verification_state, COALESCE(verification_token, ''), verification_token_expires,
	avg_rating, total_requests, created_at`

func (s *Store) InsertCitizen(ctx context.Context, c *models.Citizen) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO citizens
			(id, full_name, email, phone, neighborhood, city, zone_id,
			 verification_state, avg_rating, total_requests, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, c.ID, c.FullName, nullable(c.Email), nullable(c.Phone), nullable(c.Neighborhood),
		nullable(c.City), nullable(c.ZoneID), c.VerificationState, c.AvgRating,
		c.TotalRequests, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetCitizen(ctx context.Context, id string) (*models.Citizen, error) {
	return scanCitizen(s.Pool.QueryRow(ctx, `SELECT `+citizenColumns+` FROM citizens WHERE id = $1`, id))
}

func (s *Store) GetCitizenByEmail(ctx context.Context, email string) (*models.Citizen, error) {
	return scanCitizen(s.Pool.QueryRow(ctx, `SELECT `+citizenColumns+` FROM citizens WHERE email = $1`, email))
}

// UpdateCitizenProfile writes the caller-editable fields; verification state,
// counters and ratings have dedicated methods.
func (s *Store) UpdateCitizenProfile(ctx context.Context, c *models.Citizen) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE citizens
		SET full_name = $2, email = $3, phone = $4, neighborhood = $5, city = $6, zone_id = $7
		WHERE id = $1
	`, c.ID, c.FullName, nullable(c.Email), nullable(c.Phone), nullable(c.Neighborhood),
		nullable(c.City), nullable(c.ZoneID))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCitizen(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM citizens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListCitizens(ctx context.Context, verificationState, city string, limit int) ([]models.Citizen, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + citizenColumns + ` FROM citizens`
	var args []any
	var wheres []string
	if verificationState != "" {
		args = append(args, verificationState)
		wheres = append(wheres, fmt.Sprintf("verification_state = $%d", len(args)))
	}
	if city != "" {
		args = append(args, city)
		wheres = append(wheres, fmt.Sprintf("city = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Citizen
	for rows.Next() {
		c, err := scanCitizenRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAvgRating(ctx context.Context, id string, avg float64) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE citizens SET avg_rating = $2 WHERE id = $1`, id, avg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) IncrementTotalRequests(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE citizens SET total_requests = total_requests + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE citizens
		SET verification_state = 'pending', verification_token = $2, verification_token_expires = $3
		WHERE id = $1
	`, id, token, expires)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkVerified(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE citizens
		SET verification_state = 'verified', verification_token = NULL, verification_token_expires = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCitizen(row pgx.Row) (*models.Citizen, error) {
	c, err := scanCitizenRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func scanCitizenRow(row pgx.Row) (*models.Citizen, error) {
	var c models.Citizen
	if err := row.Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Neighborhood,
		&c.City, &c.ZoneID, &c.VerificationState, &c.VerificationToken,
		&c.VerificationTokenExpires, &c.AvgRating, &c.TotalRequests, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
