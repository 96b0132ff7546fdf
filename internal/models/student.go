package models

import "time"

// StudentStatus is the registration approval state of a student profile.
type StudentStatus string

// Registration approval states.
const (
	StudentStatusPending  StudentStatus = "PENDING"
	StudentStatusApproved StudentStatus = "APPROVED"
	StudentStatusRejected StudentStatus = "REJECTED"
)

// Student represents a learner profile owned by a user account.
type Student struct {
	ID         string        `db:"id" json:"id"`
	UserID     string        `db:"user_id" json:"user_id"`
	FullName   string        `db:"full_name" json:"full_name"`
	Phone      string        `db:"phone" json:"phone"`
	School     string        `db:"school" json:"school"`
	GradeLevel string        `db:"grade_level" json:"grade_level"`
	Status     StudentStatus `db:"status" json:"status"`
	StatusNote string        `db:"status_note" json:"status_note"`
	ReviewedBy *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
