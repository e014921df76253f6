package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cst_tracker/backend/internal/geo"
	"github.com/cst_tracker/backend/internal/models"
)

type SchedulePayload struct {
	Day   string `json:"day" validate:"required,oneof=mon tue wed thu fri sat sun"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type AgentPayload struct {
	Name          string            `json:"name" validate:"required,min=2,max=100"`
	Type          string            `json:"type" validate:"omitempty,oneof=agent team"`
	Skills        []string          `json:"skills" validate:"required,min=1"`
	CoverageZones []string          `json:"coverage_zones"`
	BaseLocation  *LocationPayload  `json:"base_location"`
	Schedule      []SchedulePayload `json:"schedule" validate:"dive"`
	Active        *bool             `json:"active"`
}

func (p AgentPayload) toModel(id string, createdAt time.Time, zoneFor func(lat, lng float64) string) *models.Agent {
	a := &models.Agent{
		ID:            id,
		Name:          p.Name,
		Type:          p.Type,
		Skills:        p.Skills,
		CoverageZones: p.CoverageZones,
		Active:        true,
		CreatedAt:     createdAt,
	}
	if a.Type == "" {
		a.Type = "agent"
	}
	if p.Active != nil {
		a.Active = *p.Active
	}
	for _, w := range p.Schedule {
		a.Schedule = append(a.Schedule, models.ScheduleWindow{Day: w.Day, Start: w.Start, End: w.End})
	}
	if p.BaseLocation != nil {
		a.BaseLocation = &models.Location{
			Type:        "Point",
			Coordinates: p.BaseLocation.Coordinates,
			AddressHint: p.BaseLocation.AddressHint,
		}
		// The base location implies a home zone; append it when it is
		// not already listed.
		zone := zoneFor(a.BaseLocation.Lat(), a.BaseLocation.Lng())
		if zone != "" && zone != geo.ZoneUnknown && !containsZone(a.CoverageZones, zone) {
			a.CoverageZones = append(a.CoverageZones, zone)
		}
	}
	return a
}

func containsZone(zones []string, zone string) bool {
	for _, z := range zones {
		if z == zone {
			return true
		}
	}
	return false
}

// @Summary Register a field agent or team
// @Tags agents
// @Accept json
// @Produce json
// @Param agent body AgentPayload true "agent"
// @Success 201 {object} models.Agent
// @Failure 400 {object} map[string]any
// @Router /api/agents [post]
func (h *Handler) CreateAgent(c *gin.Context) {
	var payload AgentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	agent := payload.toModel(uuid.NewString(), time.Now().UTC(), h.Zones.Lookup)
	if err := h.Store.InsertAgent(c.Request.Context(), agent); err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.Store.ListAgents(c.Request.Context(), c.Query("skill"), c.Query("zone"))
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": agents})
}

// GetAgent returns the agent together with its current open workload,
// the same count auto-assignment ranks by.
func (h *Handler) GetAgent(c *gin.Context) {
	agent, err := h.Store.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Agent not found")
		return
	}
	workload, err := h.Store.OpenWorkloadOf(c.Request.Context(), agent.ID)
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent, "open_workload": workload})
}

func (h *Handler) UpdateAgent(c *gin.Context) {
	existing, err := h.Store.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Agent not found")
		return
	}

	var payload AgentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	agent := payload.toModel(existing.ID, existing.CreatedAt, h.Zones.Lookup)
	if err := h.Store.UpdateAgent(c.Request.Context(), agent); err != nil {
		h.writeStoreError(c, err, "Agent not found")
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *Handler) DeleteAgent(c *gin.Context) {
	if err := h.Store.DeleteAgent(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, err, "Agent not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// AgentWorkloads reports open request counts for every agent that has any.
func (h *Handler) AgentWorkloads(c *gin.Context) {
	workloads, err := h.Store.OpenWorkloads(c.Request.Context())
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"workloads": workloads})
}
