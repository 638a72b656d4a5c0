package models

import (
	"errors"
	"time"
)

// PromotionStatus captures the lifecycle of a promotion record.
type PromotionStatus string

const (
	PromotionStatusPending   PromotionStatus = "PENDING"
	PromotionStatusPromoted  PromotionStatus = "PROMOTED"
	PromotionStatusDetained  PromotionStatus = "DETAINED"
	PromotionStatusGraduated PromotionStatus = "GRADUATED"
)

// ErrGraduateWithTarget is returned when a graduated record names a destination class.
var ErrGraduateWithTarget = errors.New("graduated record must not carry a target class")

// PromotionRecord is the per-student decision for leaving a session.
type PromotionRecord struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	FromClassName   string          `db:"from_class_name" json:"from_class_name"`
	ToClassName     *string         `db:"to_class_name" json:"to_class_name,omitempty"`
	Status          PromotionStatus `db:"status" json:"status"`
	Remarks         *string         `db:"remarks" json:"remarks,omitempty"`
	IsGraduated     bool            `db:"is_graduated" json:"is_graduated"`
	SessionID       string          `db:"session_id" json:"session_id"`
	AssignedBy      string          `db:"assigned_by" json:"assigned_by"`
	ExecutedAt      *time.Time      `db:"executed_at" json:"executed_at,omitempty"`
	TargetSessionID *string         `db:"target_session_id" json:"target_session_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// PromotionRecordDetail joins the student name and current class for listings.
type PromotionRecordDetail struct {
	PromotionRecord
	StudentName string  `db:"student_name" json:"student_name"`
	StudentPAN  string  `db:"student_pan" json:"student_pan"`
	ClassID     *string `db:"class_id" json:"class_id,omitempty"`
}

// Validate enforces the graduation/target exclusivity.
func (r PromotionRecord) Validate() error {
	if r.IsGraduated && r.ToClassName != nil {
		return ErrGraduateWithTarget
	}
	return nil
}

// IsDetained reports whether the record keeps the student in place.
func (r PromotionRecord) IsDetained() bool {
	return !r.IsGraduated && r.ToClassName == nil
}

// Outcome is the status the record transitions to when executed.
func (r PromotionRecord) Outcome() PromotionStatus {
	switch {
	case r.IsGraduated:
		return PromotionStatusGraduated
	case r.ToClassName != nil:
		return PromotionStatusPromoted
	default:
		return PromotionStatusDetained
	}
}

// PromotionSummary counts records of a source session by status.
type PromotionSummary struct {
	Pending   int `db:"pending" json:"pending"`
	Promoted  int `db:"promoted" json:"promoted"`
	Detained  int `db:"detained" json:"detained"`
	Graduated int `db:"graduated" json:"graduated"`
	Total     int `db:"total" json:"total"`
}

// PromotionFilter constrains listing queries.
type PromotionFilter struct {
	SessionID string
	ClassID   string
	Status    PromotionStatus
}
