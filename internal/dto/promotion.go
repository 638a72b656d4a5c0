package dto

import "github.com/noah-isme/sma-lms-api/internal/models"

// PromotionDecision carries exactly one outcome for a student.
type PromotionDecision struct {
	StudentID   string  `json:"student_id" validate:"required"`
	ToClassName *string `json:"to_class_name"`
	Graduated   bool    `json:"graduated"`
	Detain      bool    `json:"detain"`
	Remarks     *string `json:"remarks" validate:"omitempty,max=255"`
}

// AssignPromotionsRequest is submitted by the class teacher.
type AssignPromotionsRequest struct {
	ClassID   string              `json:"class_id" validate:"required"`
	SessionID string              `json:"session_id" validate:"required"`
	Decisions []PromotionDecision `json:"decisions" validate:"required,min=1,dive"`
}

// PromotionListResponse lists records with a status summary.
type PromotionListResponse struct {
	Records []models.PromotionRecordDetail `json:"records"`
	Summary models.PromotionSummary        `json:"summary"`
}

// ExecutePromotionsResult reports what an execution pass applied.
type ExecutePromotionsResult struct {
	FromSessionID string `json:"from_session_id"`
	ToSessionID   string `json:"to_session_id"`
	Promoted      int    `json:"promoted"`
	Detained      int    `json:"detained"`
	Graduated     int    `json:"graduated"`
	Processed     int    `json:"processed"`
	FeesGenerated int    `json:"fees_generated"`
}
