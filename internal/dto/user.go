package dto

import "github.com/noah-isme/sma-lms-api/internal/models"

// CreateUserRequest provisions a staff account.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email,max=255"`
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER"`
	Password string          `json:"password" validate:"required,min=8,max=72"`
	Active   *bool           `json:"active"`
}

// UpdateUserRequest edits a staff account. An empty password keeps the current one.
type UpdateUserRequest struct {
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER"`
	Active   *bool           `json:"active"`
	Password string          `json:"password" validate:"omitempty,min=8,max=72"`
}
