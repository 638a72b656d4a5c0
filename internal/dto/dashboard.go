package dto

import "github.com/noah-isme/sma-lms-api/internal/models"

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	SessionID  string                  `json:"session_id"`
	Students   StudentCounts           `json:"students"`
	Classes    int                     `json:"classes"`
	Promotions models.PromotionSummary `json:"promotions"`
	Fees       FeeTotals               `json:"fees"`
}

// StudentCounts groups students by status.
type StudentCounts struct {
	Active    int `db:"active" json:"active"`
	Inactive  int `db:"inactive" json:"inactive"`
	Graduated int `db:"graduated" json:"graduated"`
}

// FeeTotals summarises collection for a session.
type FeeTotals struct {
	Collected float64 `db:"collected" json:"collected"`
	Pending   float64 `db:"pending" json:"pending"`
	Overdue   float64 `db:"overdue" json:"overdue"`
}

// TeacherDashboardResponse lists the classes a teacher is responsible for.
type TeacherDashboardResponse struct {
	TeacherID string              `json:"teacher_id"`
	SessionID string              `json:"session_id"`
	Classes   []TeacherClassStats `json:"classes"`
}

// TeacherClassStats holds per-class counts.
type TeacherClassStats struct {
	ClassID           string `db:"class_id" json:"class_id"`
	ClassName         string `db:"class_name" json:"class_name"`
	StudentCount      int    `db:"student_count" json:"student_count"`
	PendingPromotions int    `db:"pending_promotions" json:"pending_promotions"`
}
