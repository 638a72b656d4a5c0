package dto

import "time"

// SessionRequest creates or updates an academic session.
type SessionRequest struct {
	Name      string    `json:"name" validate:"required,max=64"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// ClassRequest creates or updates a class.
type ClassRequest struct {
	Name           string  `json:"name" validate:"required,max=64"`
	SessionID      string  `json:"session_id" validate:"required"`
	ClassTeacherID *string `json:"class_teacher_id"`
}

// CreateStudentRequest admits a student, optionally into a class.
type CreateStudentRequest struct {
	PAN        string  `json:"pan" validate:"required,max=32"`
	FullName   string  `json:"full_name" validate:"required,max=128"`
	ClassID    *string `json:"class_id"`
	Section    string  `json:"section" validate:"max=16"`
	RollNumber string  `json:"roll_number" validate:"max=16"`
}

// UpdateStudentRequest edits profile fields only.
type UpdateStudentRequest struct {
	FullName   string `json:"full_name" validate:"required,max=128"`
	Section    string `json:"section" validate:"max=16"`
	RollNumber string `json:"roll_number" validate:"max=16"`
}

// ChangeStudentClassRequest moves a student and regenerates their schedule.
type ChangeStudentClassRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// UpdateStudentStatusRequest toggles enrolment.
type UpdateStudentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}
