package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/pkg/response"
)

type feeService interface {
	Catalog(ctx context.Context, studentID, sessionID string) (*models.FeeCatalog, error)
	Generate(ctx context.Context, studentID string, req dto.GenerateFeesRequest, claims *models.JWTClaims) (*models.FeeCatalog, error)
	Pay(ctx context.Context, feeID string, req dto.PayFeeRequest, claims *models.JWTClaims) (*dto.PayFeeResponse, error)
	Export(ctx context.Context, studentID, sessionID string, format dto.FeeExportFormat) (*dto.FeeExport, error)
	Receipt(ctx context.Context, token string) (*dto.FeeExport, error)
}

type feeStructureService interface {
	List(ctx context.Context, sessionID string) ([]models.FeeStructureDetail, error)
	Upsert(ctx context.Context, classID string, req dto.FeeStructureRequest, claims *models.JWTClaims) (*models.FeeStructure, error)
}

// FeeHandler exposes fee catalogs, payments, exports and receipts.
type FeeHandler struct {
	fees       feeService
	structures feeStructureService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees feeService, structures feeStructureService) *FeeHandler {
	return &FeeHandler{fees: fees, structures: structures}
}

// Catalog godoc
// @Summary Student fee catalog
// @Description Monthly schedule with derived overdue status and totals. Session defaults to the student's class session
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Param sessionId query string false "Session ID"
// @Success 200 {object} response.Envelope
// @Router /fees/students/{id} [get]
func (h *FeeHandler) Catalog(c *gin.Context) {
	catalog, err := h.fees.Catalog(c.Request.Context(), c.Param("id"), query(c, "sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, catalog, nil)
}

// Generate godoc
// @Summary Generate a student's fee schedule
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.GenerateFeesRequest false "Session"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "FEES_ALREADY_EXIST"
// @Router /fees/students/{id}/generate [post]
func (h *FeeHandler) Generate(c *gin.Context) {
	var req dto.GenerateFeesRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid generate payload") {
		return
	}
	catalog, err := h.fees.Generate(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, catalog)
}

// Pay godoc
// @Summary Pay a monthly fee
// @Description An empty receipt number is generated server side
// @Tags Fees
// @Accept json
// @Produce json
// @Param feeId path string true "Fee ID"
// @Param payload body dto.PayFeeRequest false "Payment"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/{feeId}/pay [post]
func (h *FeeHandler) Pay(c *gin.Context) {
	var req dto.PayFeeRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	result, err := h.fees.Pay(c.Request.Context(), c.Param("feeId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export a fee catalog
// @Tags Fees
// @Produce octet-stream
// @Param id path string true "Student ID"
// @Param sessionId query string false "Session ID"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} file
// @Router /fees/students/{id}/export [get]
func (h *FeeHandler) Export(c *gin.Context) {
	format := dto.FeeExportFormat(c.DefaultQuery("format", string(dto.FeeExportCSV)))
	file, err := h.fees.Export(c.Request.Context(), c.Param("id"), query(c, "sessionId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Receipt godoc
// @Summary Download a payment receipt through a signed link
// @Tags Fees
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /receipts/{token} [get]
func (h *FeeHandler) Receipt(c *gin.Context) {
	file, err := h.fees.Receipt(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// ListStructures godoc
// @Summary List fee structures of a session
// @Tags Fee Structures
// @Produce json
// @Param sessionId query string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /fee-structures [get]
func (h *FeeHandler) ListStructures(c *gin.Context) {
	items, err := h.structures.List(c.Request.Context(), query(c, "sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// UpsertStructure godoc
// @Summary Set the monthly rate of a class
// @Tags Fee Structures
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.FeeStructureRequest true "Rate"
// @Success 200 {object} response.Envelope
// @Router /fee-structures/class/{classId} [put]
func (h *FeeHandler) UpsertStructure(c *gin.Context) {
	var req dto.FeeStructureRequest
	if !bindJSON(c, &req, "invalid fee structure payload") {
		return
	}
	structure, err := h.structures.Upsert(c.Request.Context(), c.Param("classId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}
