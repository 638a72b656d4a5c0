package models

import "time"

// StudentStatus enumerates enrolment states.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusInactive  StudentStatus = "INACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
)

// Student represents a learner seated in at most one class.
type Student struct {
	ID         string        `db:"id" json:"id"`
	PAN        string        `db:"pan" json:"pan"`
	FullName   string        `db:"full_name" json:"full_name"`
	ClassID    *string       `db:"class_id" json:"class_id,omitempty"`
	Section    string        `db:"section" json:"section"`
	RollNumber string        `db:"roll_number" json:"roll_number"`
	Status     StudentStatus `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail contains student information with class and fee context.
type StudentDetail struct {
	Student
	ClassName   *string   `db:"class_name" json:"class_name,omitempty"`
	SessionID   *string   `db:"session_id" json:"session_id,omitempty"`
	SessionName *string   `db:"session_name" json:"session_name,omitempty"`
	FeeStatus   FeeStatus `db:"-" json:"fee_status,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	ClassID  string
	Status   StudentStatus
	Page     int
	PageSize int
}
