package dto

import "github.com/noah-isme/bimbel-api/internal/models"

// RegisterStudentRequest creates a user account plus a pending student profile.
type RegisterStudentRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	FullName   string `json:"full_name" validate:"required"`
	Phone      string `json:"phone" validate:"max=32"`
	School     string `json:"school" validate:"max=128"`
	GradeLevel string `json:"grade_level" validate:"max=32"`
}

// ReviewStudentRequest is the admin decision on a pending registration.
type ReviewStudentRequest struct {
	Status models.StudentStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Note   string               `json:"note" validate:"max=500"`
}

// UpdateStudentProfileRequest edits the mutable profile fields.
type UpdateStudentProfileRequest struct {
	FullName   string `json:"full_name" validate:"required"`
	Phone      string `json:"phone" validate:"max=32"`
	School     string `json:"school" validate:"max=128"`
	GradeLevel string `json:"grade_level" validate:"max=32"`
}
