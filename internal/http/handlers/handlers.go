package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/cst_tracker/backend/internal/db"
	"github.com/cst_tracker/backend/internal/geo"
	"github.com/cst_tracker/backend/internal/service"
	"github.com/cst_tracker/backend/internal/workflow"
)

type Handler struct {
	Store     *db.Store
	Lifecycle *service.LifecycleService
	Validator *validator.Validate
	Logger    zerolog.Logger
	Zones     geo.ZoneTable
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps the lifecycle error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	var invalid *workflow.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		writeError(c, http.StatusBadRequest, "INVALID_TRANSITION",
			fmt.Sprintf("Invalid transition from %q to %q", invalid.From, invalid.To),
			gin.H{"allowed": invalid.Allowed})
	case errors.Is(err, service.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, service.ErrNoAgentAvailable):
		writeError(c, http.StatusConflict, "NO_AGENT_AVAILABLE", "No agent available for this request", nil)
	case errors.Is(err, service.ErrForbidden):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "Actor not allowed to perform this action", nil)
	case errors.Is(err, service.ErrInvalidMilestone):
		writeError(c, http.StatusBadRequest, "INVALID_MILESTONE", "Unknown milestone type", err.Error())
	case errors.Is(err, service.ErrAlreadyRated):
		writeError(c, http.StatusConflict, "ALREADY_RATED", "Request already has a rating", nil)
	case errors.Is(err, service.ErrInvalidStars):
		writeError(c, http.StatusBadRequest, "INVALID_STARS", "Stars must be between 1 and 5", nil)
	case errors.Is(err, service.ErrRequestNotResolved):
		writeError(c, http.StatusConflict, "REQUEST_NOT_RESOLVED", "Request must be resolved or closed before rating", nil)
	case errors.Is(err, service.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "Concurrent modification, retry the operation", nil)
	case errors.Is(err, service.ErrStorageUnavailable):
		writeError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage unavailable", nil)
	default:
		h.Logger.Error().Err(err).Msg("unhandled service error")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Internal error", nil)
	}
}

// writeStoreError is the CRUD-path equivalent for direct store access.
func (h *Handler) writeStoreError(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", notFoundMsg, nil)
	case errors.Is(err, db.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "Record conflicts with an existing one", nil)
	default:
		h.Logger.Error().Err(err).Msg("store error")
		writeError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage unavailable", nil)
	}
}
