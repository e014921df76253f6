package service

import (
	"context"

	"github.com/cst_tracker/backend/internal/models"
)

// Storage contracts the orchestrator depends on. internal/db implements all
// of them; tests substitute in-memory fakes. Implementations signal missing
// rows with db.ErrNotFound and failed conditional updates with db.ErrConflict.

type RequestStore interface {
	InsertRequest(ctx context.Context, req *models.ServiceRequest) error
	GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error)
	GetRequestByIdempotencyKey(ctx context.Context, key string) (*models.ServiceRequest, error)
	// UpdateRequest persists the request only if its stored status still
	// equals expectedStatus (compare-and-set; request-scoped serialization).
	UpdateRequest(ctx context.Context, req *models.ServiceRequest, expectedStatus string) error
}

type LogStore interface {
	CreateLog(ctx context.Context, log *models.PerformanceLog) error
	// AppendEvent appends to the request's event stream, creating the log
	// with default KPIs when none exists yet.
	AppendEvent(ctx context.Context, requestID string, ev models.LogEvent) error
	GetLogByRequest(ctx context.Context, requestID string) (*models.PerformanceLog, error)
	// SetResolutionKPIs records the final resolution duration and SLA state;
	// first write wins, later calls are no-ops.
	SetResolutionKPIs(ctx context.Context, requestID string, minutes int, state string) error
	IncrementEscalation(ctx context.Context, requestID string) error
	SetCitizenFeedback(ctx context.Context, requestID string, feedback map[string]any) error
}

type AgentDirectory interface {
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListActiveAgents(ctx context.Context) ([]models.Agent, error)
	// OpenWorkloads returns per-agent counts of requests currently in
	// assigned or in_progress. An eventually consistent snapshot.
	OpenWorkloads(ctx context.Context) (map[string]int, error)
}

type CitizenStore interface {
	GetCitizen(ctx context.Context, id string) (*models.Citizen, error)
	UpdateAvgRating(ctx context.Context, id string, avg float64) error
	IncrementTotalRequests(ctx context.Context, id string) error
}

type RatingStore interface {
	GetRatingByRequest(ctx context.Context, requestID string) (*models.Rating, error)
	InsertRating(ctx context.Context, r *models.Rating) error
	ListRatingsByCitizen(ctx context.Context, citizenID string) ([]models.Rating, error)
}
