package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cst_tracker/backend/internal/models"
)

type CategoryPayload struct {
	Name        string `json:"name" validate:"required,min=2,max=60"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Department  string `json:"department"`
	Active      *bool  `json:"active"`
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var payload CategoryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	cat := &models.Category{
		ID:          uuid.NewString(),
		Name:        payload.Name,
		Description: payload.Description,
		Icon:        payload.Icon,
		Department:  payload.Department,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if payload.Active != nil {
		cat.Active = *payload.Active
	}
	if err := h.Store.InsertCategory(c.Request.Context(), cat); err != nil {
		h.writeStoreError(c, err, "Category name already exists")
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) ListCategories(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "true") != "false"
	cats, err := h.Store.ListCategories(c.Request.Context(), activeOnly)
	if err != nil {
		h.writeStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": cats})
}

func (h *Handler) GetCategory(c *gin.Context) {
	cat, err := h.Store.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Category not found")
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	existing, err := h.Store.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeStoreError(c, err, "Category not found")
		return
	}

	var payload CategoryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(payload); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	existing.Name = payload.Name
	existing.Description = payload.Description
	existing.Icon = payload.Icon
	existing.Department = payload.Department
	if payload.Active != nil {
		existing.Active = *payload.Active
	}
	if err := h.Store.UpdateCategory(c.Request.Context(), existing); err != nil {
		h.writeStoreError(c, err, "Category not found")
		return
	}
	c.JSON(http.StatusOK, existing)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	if err := h.Store.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, err, "Category not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
