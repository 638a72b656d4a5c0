package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
	"github.com/noah-isme/sma-lms-api/pkg/response"
)

type promotionService interface {
	Assign(ctx context.Context, req dto.AssignPromotionsRequest, claims *models.JWTClaims) ([]models.PromotionRecord, error)
	List(ctx context.Context, filter models.PromotionFilter) (*dto.PromotionListResponse, error)
	Execute(ctx context.Context, fromSessionID, toSessionID string, claims *models.JWTClaims) (*dto.ExecutePromotionsResult, error)
}

// PromotionHandler exposes the end-of-session promotion workflow.
type PromotionHandler struct {
	promotions promotionService
}

// NewPromotionHandler constructs PromotionHandler.
func NewPromotionHandler(promotions promotionService) *PromotionHandler {
	return &PromotionHandler{promotions: promotions}
}

// Assign godoc
// @Summary Record promotion decisions for a class
// @Description Each decision carries exactly one outcome: to_class_name, graduated or detain
// @Tags Promotions
// @Accept json
// @Produce json
// @Param payload body dto.AssignPromotionsRequest true "Decisions"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /promotions/assign [post]
func (h *PromotionHandler) Assign(c *gin.Context) {
	var req dto.AssignPromotionsRequest
	if !bindJSON(c, &req, "invalid promotion payload") {
		return
	}
	records, err := h.promotions.Assign(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// ListBySession godoc
// @Summary List promotion records of a source session
// @Tags Promotions
// @Produce json
// @Param id path string true "Session ID"
// @Param status query string false "PENDING, PROMOTED, DETAINED or GRADUATED"
// @Param classId query string false "Filter by current class"
// @Success 200 {object} response.Envelope
// @Router /promotions/session/{id} [get]
func (h *PromotionHandler) ListBySession(c *gin.Context) {
	filter := models.PromotionFilter{
		SessionID: c.Param("id"),
		ClassID:   query(c, "classId"),
		Status:    models.PromotionStatus(query(c, "status")),
	}
	result, err := h.promotions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Execute godoc
// @Summary Apply every pending promotion of a session
// @Tags Promotions
// @Produce json
// @Param fromSessionId query string true "Source session"
// @Param toSessionId query string true "Target session"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /promotions/execute [post]
func (h *PromotionHandler) Execute(c *gin.Context) {
	from, to := query(c, "fromSessionId"), query(c, "toSessionId")
	if from == "" || to == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "fromSessionId and toSessionId are required"))
		return
	}
	result, err := h.promotions.Execute(c.Request.Context(), from, to, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, result, "promotions executed")
}
