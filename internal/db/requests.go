package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cst_tracker/backend/internal/geo"
	"github.com/cst_tracker/backend/internal/models"
)

// Requests are stored as a JSONB document plus scalar columns for the
// indexed fields. The scalar columns are always rewritten from the document
// on update so filters never drift from the document itself.

func (s *Store) InsertRequest(ctx context.Context, req *models.ServiceRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO service_requests
			(id, request_code, citizen_id, category, priority, status, zone_id,
			 assigned_agent_id, lng, lat, idempotency_key, created_at, updated_at, doc)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, req.ID, req.RequestCode, citizenID(req), req.Category, req.Priority, req.Status,
		nullable(req.Location.ZoneID), nullable(req.Assignment.AssignedAgentID),
		coord(req, 0), coord(req, 1), nullable(req.IdempotencyKey),
		req.Timestamps.CreatedAt, req.Timestamps.UpdatedAt, doc)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	return s.scanRequest(s.Pool.QueryRow(ctx, `SELECT doc FROM service_requests WHERE id = $1`, id))
}

func (s *Store) GetRequestByIdempotencyKey(ctx context.Context, key string) (*models.ServiceRequest, error) {
	return s.scanRequest(s.Pool.QueryRow(ctx, `SELECT doc FROM service_requests WHERE idempotency_key = $1`, key))
}

// UpdateRequest is the compare-and-set write serializing concurrent mutations
// of one request: the row is touched only while its status still matches what
// the caller loaded.
func (s *Store) UpdateRequest(ctx context.Context, req *models.ServiceRequest, expectedStatus string) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE service_requests
		SET status = $2, priority = $3, zone_id = $4, assigned_agent_id = $5,
			updated_at = $6, doc = $7
		WHERE id = $1 AND status = $8
	`, req.ID, req.Status, req.Priority, nullable(req.Location.ZoneID),
		nullable(req.Assignment.AssignedAgentID), req.Timestamps.UpdatedAt, doc, expectedStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM service_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM service_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type RequestFilter struct {
	Status   string
	Category string
	Priority string
	ZoneID   string
	Skip     int
	Limit    int
}

func (s *Store) ListRequests(ctx context.Context, f RequestFilter) ([]models.ServiceRequest, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	if f.Skip < 0 {
		f.Skip = 0
	}

	query := `SELECT doc FROM service_requests`
	var args []any
	var wheres []string
	if f.Status != "" {
		args = append(args, f.Status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		wheres = append(wheres, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		wheres = append(wheres, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.ZoneID != "" {
		args = append(args, f.ZoneID)
		wheres = append(wheres, fmt.Sprintf("zone_id = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Skip)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *Store) ListRequestsByCitizen(ctx context.Context, citizenID string) ([]models.ServiceRequest, error) {
	rows, err := s.Pool.Query(ctx, `SELECT doc FROM service_requests WHERE citizen_id = $1 ORDER BY created_at DESC`, citizenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// ListRequestsNear returns requests within maxDistance meters of the point,
// nearest first, capped at limit. A coarse bounding box narrows the scan in
// SQL; exact distances come from the haversine formula.
func (s *Store) ListRequestsNear(ctx context.Context, lng, lat float64, maxDistanceM float64, limit int) ([]models.ServiceRequest, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	minLat, maxLat, minLng, maxLng := geo.BoundingBox(lat, lng, maxDistanceM)
	rows, err := s.Pool.Query(ctx, `
		SELECT doc FROM service_requests
		WHERE lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4
	`, minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}

	type withDistance struct {
		req  models.ServiceRequest
		dist float64
	}
	var near []withDistance
	for _, r := range candidates {
		d := geo.HaversineM(lat, lng, r.Location.Lat(), r.Location.Lng())
		if d <= maxDistanceM {
			near = append(near, withDistance{req: r, dist: d})
		}
	}
	sort.Slice(near, func(i, j int) bool { return near[i].dist < near[j].dist })

	out := make([]models.ServiceRequest, 0, limit)
	for i, n := range near {
		if i == limit {
			break
		}
		out = append(out, n.req)
	}
	return out, nil
}

func (s *Store) scanRequest(row pgx.Row) (*models.ServiceRequest, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var req models.ServiceRequest
	if err := json.Unmarshal(doc, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var req models.ServiceRequest
		if err := json.Unmarshal(doc, &req); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func citizenID(req *models.ServiceRequest) *string {
	if req.CitizenRef == nil || req.CitizenRef.CitizenID == "" {
		return nil
	}
	return &req.CitizenRef.CitizenID
}

func coord(req *models.ServiceRequest, idx int) *float64 {
	if len(req.Location.Coordinates) != 2 {
		return nil
	}
	v := req.Location.Coordinates[idx]
	return &v
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
