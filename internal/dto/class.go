package dto

import "github.com/noah-isme/bimbel-api/internal/models"

// CreateClassRequest is the admin payload for a new class.
type CreateClassRequest struct {
	Name     string               `json:"name" validate:"required"`
	Subject  string               `json:"subject" validate:"required"`
	Category models.ClassCategory `json:"category" validate:"omitempty,oneof=ENROLLABLE INTERNAL"`
	Capacity int                  `json:"capacity" validate:"required,min=1"`
	TutorID  *string              `json:"tutor_id"`
}

// UpdateClassRequest edits an existing class.
type UpdateClassRequest struct {
	Name     string               `json:"name" validate:"required"`
	Subject  string               `json:"subject" validate:"required"`
	Category models.ClassCategory `json:"category" validate:"omitempty,oneof=ENROLLABLE INTERNAL"`
	Capacity int                  `json:"capacity" validate:"required,min=1"`
	TutorID  *string              `json:"tutor_id"`
	Active   bool                 `json:"active"`
}
