package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cst_tracker/backend/internal/db"
	"github.com/cst_tracker/backend/internal/models"
	"github.com/cst_tracker/backend/internal/service"
)

const idempotencyKeyHeader = "X-Idempotency-Key"

type LocationPayload struct {
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
	AddressHint string    `json:"address_hint"`
	ZoneID      string    `json:"zone_id"`
}

type EvidencePayload struct {
	Type   string `json:"type" validate:"required,oneof=photo video document"`
	URL    string `json:"url" validate:"required"`
	SHA256 string `json:"sha256"`
}

type CitizenRefPayload struct {
	CitizenID      string `json:"citizen_id"`
	Anonymous      bool   `json:"anonymous"`
	ContactChannel string `json:"contact_channel"`
}

type CreateRequestPayload struct {
	Title       string             `json:"title" validate:"required,min=3,max=100"`
	Description string             `json:"description" validate:"required,min=10,max=500"`
	Category    string             `json:"category" validate:"required"`
	SubCategory string             `json:"sub_category"`
	Priority    string             `json:"priority" validate:"omitempty,oneof=P0 P1 P2 P3"`
	Tags        []string           `json:"tags"`
	Location    LocationPayload    `json:"location" validate:"required"`
	Address     string             `json:"address"`
	CitizenRef  *CitizenRefPayload `json:"citizen_ref"`
	Evidence    []EvidencePayload  `json:"evidence" validate:"dive"`
}

// @Summary Create a service request
// @Tags requests
// @Accept json
// @Produce json
// @Param request body CreateRequestPayload true "request"
// @Success 201 {object} models.ServiceRequest
// @Failure 400 {object} map[string]any
// @Router /api/requests [post]
func (h *Handler) CreateRequest(c *gin.Context) {
	var payload CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	in := service.CreateRequestInput{
		Title:       payload.Title,
		Description: payload.Description,
		Category:    payload.Category,
		SubCategory: payload.SubCategory,
		Priority:    payload.Priority,
		Tags:        payload.Tags,
		Location: models.Location{
			Type:        "Point",
			Coordinates: payload.Location.Coordinates,
			AddressHint: payload.Location.AddressHint,
			ZoneID:      payload.Location.ZoneID,
		},
		Address:        payload.Address,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	}
	if payload.CitizenRef != nil {
		in.CitizenRef = &models.CitizenRef{
			CitizenID:      payload.CitizenRef.CitizenID,
			Anonymous:      payload.CitizenRef.Anonymous,
			ContactChannel: payload.CitizenRef.ContactChannel,
		}
	}
	now := time.Now().UTC()
	for _, ev := range payload.Evidence {
		in.Evidence = append(in.Evidence, models.Evidence{
			Type:       ev.Type,
			URL:        ev.URL,
			SHA256:     ev.SHA256,
			UploadedBy: "citizen",
			UploadedAt: now,
		})
	}

	req, err := h.Lifecycle.CreateRequest(c.Request.Context(), in)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// @Summary List service requests
// @Tags requests
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/requests [get]
func (h *Handler) ListRequests(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	items, err := h.Store.ListRequests(c.Request.Context(), db.RequestFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		ZoneID:   c.Query("zone_id"),
		Skip:     skip,
		Limit:    limit,
	})
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "skip": skip, "limit": limit})
}

func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.Store.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Request not found")
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) DeleteRequest(c *gin.Context) {
	if err := h.Store.DeleteRequest(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, err, "Request not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) GetRequestLog(c *gin.Context) {
	log, err := h.Store.GetLogByRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "No performance log for this request")
		return
	}
	c.JSON(http.StatusOK, log)
}

// @Summary Evaluate a request's SLA state
// @Tags requests
// @Produce json
// @Success 200 {object} sla.Evaluation
// @Router /api/requests/{id}/sla [get]
func (h *Handler) EvaluateSLA(c *gin.Context) {
	var at time.Time
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "at must be RFC3339", err.Error())
			return
		}
		at = parsed
	}
	eval, err := h.Lifecycle.EvaluateSLA(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (h *Handler) NearbyRequests(c *gin.Context) {
	lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	if errLng != nil || errLat != nil || lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "longitude and latitude are required", nil)
		return
	}
	maxDistance, _ := strconv.Atoi(c.DefaultQuery("max_distance", "5000"))
	if maxDistance < 100 || maxDistance > 50000 {
		maxDistance = 5000
	}

	items, err := h.Store.ListRequestsNear(c.Request.Context(), lng, lat, float64(maxDistance), 50)
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "max_distance": maxDistance})
}

// ListLogs is the staff-facing dump of recent performance logs.
func (h *Handler) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.Store.ListLogs(c.Request.Context(), limit)
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

type TransitionPayload struct {
	NewState  string `json:"new_state" validate:"required,oneof=new triaged assigned in_progress resolved closed"`
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id" validate:"required"`
	Notes     string `json:"notes"`
}

// @Summary Transition a request through the workflow
// @Tags requests
// @Accept json
// @Produce json
// @Param transition body TransitionPayload true "transition"
// @Success 200 {object} models.ServiceRequest
// @Failure 400 {object} map[string]any
// @Router /api/requests/{id}/transition [patch]
func (h *Handler) TransitionRequest(c *gin.Context) {
	var payload TransitionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if payload.ActorType == "" {
		payload.ActorType = "staff"
	}

	actor := models.Actor{ActorType: payload.ActorType, ActorID: payload.ActorID}
	req, err := h.Lifecycle.Transition(c.Request.Context(), c.Param("id"), payload.NewState, actor, payload.Notes)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// @Summary Auto-assign the best available agent
// @Tags requests
// @Produce json
// @Success 200 {object} service.AssignResult
// @Failure 409 {object} map[string]any
// @Router /api/requests/{id}/auto-assign [post]
func (h *Handler) AutoAssign(c *gin.Context) {
	res, err := h.Lifecycle.AutoAssign(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type ManualAssignPayload struct {
	AgentID string `json:"agent_id" validate:"required"`
	ActorID string `json:"actor_id"`
}

func (h *Handler) ManualAssign(c *gin.Context) {
	var payload ManualAssignPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	actor := models.Actor{ActorType: "dispatcher", ActorID: "manual"}
	if payload.ActorID != "" {
		actor = models.Actor{ActorType: "staff", ActorID: payload.ActorID}
	}
	req, err := h.Lifecycle.ManualAssign(c.Request.Context(), c.Param("id"), payload.AgentID, actor)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type MilestonePayload struct {
	AgentID   string `json:"agent_id" validate:"required"`
	Milestone string `json:"milestone" validate:"required"`
}

func (h *Handler) RecordMilestone(c *gin.Context) {
	var payload MilestonePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	if err := h.Lifecycle.RecordMilestone(c.Request.Context(), c.Param("id"), payload.AgentID, payload.Milestone); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "milestone": payload.Milestone})
}

type EscalatePayload struct {
	Reason      string `json:"reason" validate:"required"`
	EscalatedBy string `json:"escalated_by" validate:"required"`
	Level       string `json:"escalation_level"`
}

func (h *Handler) EscalateRequest(c *gin.Context) {
	var payload EscalatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	res, err := h.Lifecycle.Escalate(c.Request.Context(), c.Param("id"), payload.Reason, payload.EscalatedBy, payload.Level)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type RatePayload struct {
	CitizenID  string `json:"citizen_id" validate:"required"`
	// The [1,5] range is enforced by the lifecycle service.
	Stars      int    `json:"stars"`
	ReasonCode string `json:"reason_code"`
	Comment    string `json:"comment"`
}

func (h *Handler) RateRequest(c *gin.Context) {
	var payload RatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	rating, err := h.Lifecycle.Rate(c.Request.Context(), c.Param("id"), payload.CitizenID, payload.Stars, payload.ReasonCode, payload.Comment)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rating)
}
