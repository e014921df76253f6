package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/cst_tracker/backend/internal/models"
)

func (s *Store) InsertCategory(ctx context.Context, c *models.Category) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO categories (id, name, description, icon, department, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.Name, nullable(c.Description), nullable(c.Icon), nullable(c.Department), c.Active, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(icon, ''), COALESCE(department, ''), active, created_at
		FROM categories WHERE id = $1
	`, id)
	var c models.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Department, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE categories
		SET name = $2, description = $3, icon = $4, department = $5, active = $6
		WHERE id = $1
	`, c.ID, c.Name, nullable(c.Description), nullable(c.Icon), nullable(c.Department), c.Active)
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

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	query := `SELECT id, name, COALESCE(description, ''), COALESCE(icon, ''), COALESCE(department, ''), active, created_at FROM categories`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Department, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
