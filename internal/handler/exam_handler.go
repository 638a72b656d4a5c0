package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/pkg/response"
)

type examService interface {
	ListClassExams(ctx context.Context, classID string) ([]models.ClassExam, error)
	SyncClassExams(ctx context.Context, classID string, req dto.SyncClassExamsRequest) ([]models.ClassExam, error)
	ListExams(ctx context.Context, classID string) ([]models.Exam, error)
	CreateExam(ctx context.Context, req dto.CreateExamRequest) (*models.Exam, error)
	UploadMarks(ctx context.Context, examID string, req dto.UploadMarksRequest, claims *models.JWTClaims) ([]models.Mark, error)
	Results(ctx context.Context, examID string) ([]models.ExamResult, error)
}

// ExamHandler exposes exam type assignment, exams and marks.
type ExamHandler struct {
	exams examService
}

// NewExamHandler constructs ExamHandler.
func NewExamHandler(exams examService) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// ClassExams godoc
// @Summary Exam types assigned to a class
// @Tags Exams
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /class-exams/class/{id} [get]
func (h *ExamHandler) ClassExams(c *gin.Context) {
	items, err := h.exams.ListClassExams(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// SyncClassExams godoc
// @Summary Replace the exam types assigned to a class
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.SyncClassExamsRequest true "Exam type ids"
// @Success 200 {object} response.Envelope
// @Router /exams/sync/class/{id} [put]
func (h *ExamHandler) SyncClassExams(c *gin.Context) {
	var req dto.SyncClassExamsRequest
	if !bindJSON(c, &req, "invalid exam sync payload") {
		return
	}
	items, err := h.exams.SyncClassExams(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListByClass godoc
// @Summary Exams of a class
// @Tags Exams
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /exams/class/{id} [get]
func (h *ExamHandler) ListByClass(c *gin.Context) {
	exams, err := h.exams.ListExams(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, nil)
}

// Create godoc
// @Summary Schedule an exam paper
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body dto.CreateExamRequest true "Exam"
// @Success 201 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req dto.CreateExamRequest
	if !bindJSON(c, &req, "invalid exam payload") {
		return
	}
	exam, err := h.exams.CreateExam(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// UploadMarks godoc
// @Summary Upload marks for an exam
// @Description Rejects the whole batch when any mark is outside 0..max_marks
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body dto.UploadMarksRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exams/{id}/marks [post]
func (h *ExamHandler) UploadMarks(c *gin.Context) {
	var req dto.UploadMarksRequest
	if !bindJSON(c, &req, "invalid marks payload") {
		return
	}
	marks, err := h.exams.UploadMarks(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// Results godoc
// @Summary Exam results with pass flags
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/results [get]
func (h *ExamHandler) Results(c *gin.Context) {
	results, err := h.exams.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}
