package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Mentrauz/OpenRoll-sub000/internal/dto"
	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	appErrors "github.com/Mentrauz/OpenRoll-sub000/pkg/errors"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/response"
)

type changeService interface {
	Submit(ctx context.Context, req dto.SubmitChangeRequest, actor *models.JWTClaims) (*dto.SubmitChangeResponse, error)
	List(ctx context.Context, query dto.ChangeQuery, actor *models.JWTClaims) ([]models.PendingChange, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PendingChange, error)
	Approve(ctx context.Context, id string, req dto.ReviewChangeRequest, actor *models.JWTClaims) (*models.PendingChange, error)
	Reject(ctx context.Context, id string, req dto.ReviewChangeRequest, actor *models.JWTClaims) (*models.PendingChange, error)
	Stats(ctx context.Context, actor *models.JWTClaims) (*dto.ChangeStatsResponse, error)
}

// ChangeHandler exposes REST endpoints for the change-approval workflow.
type ChangeHandler struct {
	service changeService
}

// NewChangeHandler constructs the handler.
func NewChangeHandler(service changeService) *ChangeHandler {
	return &ChangeHandler{service: service}
}

// Submit godoc
// @Summary Submit a change request
// @Description Privileged roles apply immediately; others enter the review queue.
// @Tags Changes
// @Accept json
// @Produce json
// @Param payload body dto.SubmitChangeRequest true "Change payload"
// @Success 201 {object} response.Envelope
// @Router /changes [post]
func (h *ChangeHandler) Submit(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change service not configured"))
		return
	}
	var req dto.SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid change payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Submit(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if !result.Applied {
		status = http.StatusCreated
	}
	response.JSON(c, status, result, nil)
}

// List godoc
// @Summary List change requests
// @Tags Changes
// @Produce json
// @Param status query string false "Comma separated statuses, or 'all'"
// @Param entity query string false "Target entity"
// @Param type query string false "Change type"
// @Success 200 {object} response.Envelope
// @Router /changes [get]
func (h *ChangeHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ChangeQuery{
		Entity: models.TargetEntity(strings.ToLower(strings.TrimSpace(c.Query("entity")))),
	}
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.ChangeType(strings.ToUpper(strings.TrimSpace(rawType)))
	}
	if rawStatus := c.Query("status"); rawStatus != "" && !strings.EqualFold(rawStatus, "all") {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ChangeStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ChangeStatus(part))
		}
		query.Status = statuses
	} else if strings.EqualFold(rawStatus, "all") {
		query.Status = []models.ChangeStatus{
			models.ChangeStatusPending, models.ChangeStatusApproved,
			models.ChangeStatusRejected, models.ChangeStatusApplyFailed,
		}
	}
	changes, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, changes, nil)
}

// Stats godoc
// @Summary Change workflow statistics
// @Tags Changes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /changes/stats [get]
func (h *ChangeHandler) Stats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Get godoc
// @Summary Get change detail
// @Tags Changes
// @Produce json
// @Param id path string true "Change ID"
// @Success 200 {object} response.Envelope
// @Router /changes/{id} [get]
func (h *ChangeHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	change, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// Approve godoc
// @Summary Approve a pending change
// @Tags Changes
// @Accept json
// @Produce json
// @Param id path string true "Change ID"
// @Param payload body dto.ReviewChangeRequest false "Optional reviewer comments"
// @Success 200 {object} response.Envelope
// @Router /changes/{id}/approve [post]
func (h *ChangeHandler) Approve(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewChangeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
			return
		}
	}
	change, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// Reject godoc
// @Summary Reject a pending change
// @Tags Changes
// @Accept json
// @Produce json
// @Param id path string true "Change ID"
// @Param payload body dto.ReviewChangeRequest true "Reviewer comments"
// @Success 200 {object} response.Envelope
// @Router /changes/{id}/reject [post]
func (h *ChangeHandler) Reject(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	change, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}
