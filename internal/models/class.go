package models

import "time"

// ClassCategory distinguishes classes students may request to join from
// internal ones managed directly by staff.
type ClassCategory string

const (
	ClassCategoryEnrollable ClassCategory = "ENROLLABLE"
	ClassCategoryInternal   ClassCategory = "INTERNAL"
)

// Class represents a tutoring class with a fixed seat capacity.
type Class struct {
	ID        string        `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Subject   string        `db:"subject" json:"subject"`
	Category  ClassCategory `db:"category" json:"category"`
	Capacity  int           `db:"capacity" json:"capacity"`
	TutorID   *string       `db:"tutor_id" json:"tutor_id,omitempty"`
	Active    bool          `db:"active" json:"active"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with the current enrolled-seat count.
type ClassDetail struct {
	Class
	EnrolledCount int `db:"enrolled_count" json:"enrolled_count"`
}

// ClassMember is one enrolled (class, student) pair. A single row carries
// both sides of the membership.
type ClassMember struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// RosterEntry describes one enrolled student in roster listings and exports.
type RosterEntry struct {
	StudentID   string    `db:"student_id" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	School      string    `db:"school" json:"school"`
	GradeLevel  string    `db:"grade_level" json:"grade_level"`
	JoinedAt    time.Time `db:"joined_at" json:"joined_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Subject   string
	Category  ClassCategory
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
