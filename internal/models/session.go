package models

import "time"

// Session models an academic year such as "2024-2025".
type Session struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SessionFilter defines filters supported by list endpoints.
type SessionFilter struct {
	IsActive  *bool
	Page      int
	PageSize  int
	SortOrder string
}
