package models

import "time"

// Class represents a class section of a single session, e.g. "5-A" in 2024-2025.
type Class struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	SessionID      string    `db:"session_id" json:"session_id"`
	ClassTeacherID *string   `db:"class_teacher_id" json:"class_teacher_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with session and teacher names plus head count.
type ClassDetail struct {
	Class
	SessionName      string  `db:"session_name" json:"session_name"`
	ClassTeacherName *string `db:"class_teacher_name" json:"class_teacher_name,omitempty"`
	StudentCount     int     `db:"student_count" json:"student_count"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	SessionID      string
	ClassTeacherID string
	Search         string
	Page           int
	PageSize       int
}
