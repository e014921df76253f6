package handlers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cst_tracker/backend/internal/models"
)

const verificationTokenTTL = 10 * time.Minute

type CitizenPayload struct {
	FullName     string `json:"full_name" validate:"required,min=2,max=100"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	ZoneID       string `json:"zone_id"`
}

// @Summary Register a citizen
// @Tags citizens
// @Accept json
// @Produce json
// @Param citizen body CitizenPayload true "citizen"
// @Success 201 {object} models.Citizen
// @Failure 409 {object} map[string]any
// @Router /api/citizens [post]
func (h *Handler) CreateCitizen(c *gin.Context) {
	var payload CitizenPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	citizen := &models.Citizen{
		ID:                uuid.NewString(),
		FullName:          payload.FullName,
		Email:             payload.Email,
		Phone:             payload.Phone,
		Neighborhood:      payload.Neighborhood,
		City:              payload.City,
		ZoneID:            payload.ZoneID,
		VerificationState: "unverified",
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.Store.InsertCitizen(c.Request.Context(), citizen); err != nil {
		h.writeStoreError(c, err, "Email already registered")
		return
	}
	c.JSON(http.StatusCreated, citizen)
}

func (h *Handler) ListCitizens(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	citizens, err := h.Store.ListCitizens(c.Request.Context(), c.Query("verification_state"), c.Query("city"), limit)
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": citizens})
}

// LookupCitizen finds a citizen by email, for app logins that only hold the
// address.
func (h *Handler) LookupCitizen(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "email query parameter is required", nil)
		return
	}
	citizen, err := h.Store.GetCitizenByEmail(c.Request.Context(), email)
	if err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	c.JSON(http.StatusOK, citizen)
}

func (h *Handler) GetCitizen(c *gin.Context) {
	citizen, err := h.Store.GetCitizen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	c.JSON(http.StatusOK, citizen)
}

func (h *Handler) UpdateCitizen(c *gin.Context) {
	existing, err := h.Store.GetCitizen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}

	var payload CitizenPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	existing.FullName = payload.FullName
	existing.Email = payload.Email
	existing.Phone = payload.Phone
	existing.Neighborhood = payload.Neighborhood
	existing.City = payload.City
	existing.ZoneID = payload.ZoneID
	if err := h.Store.UpdateCitizenProfile(c.Request.Context(), existing); err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	c.JSON(http.StatusOK, existing)
}

func (h *Handler) DeleteCitizen(c *gin.Context) {
	if err := h.Store.DeleteCitizen(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) ListCitizenRequests(c *gin.Context) {
	if _, err := h.Store.GetCitizen(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	requests, err := h.Store.ListRequestsByCitizen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": requests})
}

// CitizenStatistics aggregates the citizen's request history and
// submitted ratings into a small report card.
func (h *Handler) CitizenStatistics(c *gin.Context) {
	citizen, err := h.Store.GetCitizen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	requests, err := h.Store.ListRequestsByCitizen(c.Request.Context(), citizen.ID)
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	ratings, err := h.Store.ListRatingsByCitizen(c.Request.Context(), citizen.ID)
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}

	byStatus := map[string]int{}
	for _, r := range requests {
		byStatus[r.Status]++
	}
	c.JSON(http.StatusOK, gin.H{
		"citizen_id":         citizen.ID,
		"verification_state": citizen.VerificationState,
		"total_requests":     citizen.TotalRequests,
		"requests_by_status": byStatus,
		"ratings_submitted":  len(ratings),
		"avg_rating_given":   citizen.AvgRating,
	})
}

// RequestVerification issues a short-lived one-time code. Delivery is
// out of band; the code is returned in the response until an SMS/email
// channel is wired up.
func (h *Handler) RequestVerification(c *gin.Context) {
	citizen, err := h.Store.GetCitizen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	if citizen.VerificationState == "verified" {
		writeError(c, http.StatusConflict, "ALREADY_VERIFIED", "Citizen is already verified", nil)
		return
	}

	token, err := verificationCode()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Could not generate verification code", nil)
		return
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)
	if err := h.Store.SetVerificationToken(c.Request.Context(), citizen.ID, token, expires); err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	h.Logger.Info().Str("citizen_id", citizen.ID).Time("expires", expires).Msg("verification code issued")
	c.JSON(http.StatusOK, gin.H{"verification_token": token, "expires_at": expires})
}

type VerifyPayload struct {
	Token string `json:"token" validate:"required,len=6"`
}

func (h *Handler) VerifyCitizen(c *gin.Context) {
	var payload VerifyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	citizen, err := h.Store.GetCitizen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	if citizen.VerificationToken == "" || citizen.VerificationToken != payload.Token {
		writeError(c, http.StatusBadRequest, "INVALID_TOKEN", "Verification code does not match", nil)
		return
	}
	if citizen.VerificationTokenExpires == nil || time.Now().UTC().After(*citizen.VerificationTokenExpires) {
		writeError(c, http.StatusBadRequest, "TOKEN_EXPIRED", "Verification code has expired", nil)
		return
	}

	if err := h.Store.MarkVerified(c.Request.Context(), citizen.ID); err != nil {
		h.writeStoreError(c, err, "Citizen not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
