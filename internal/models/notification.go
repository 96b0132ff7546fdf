package models

import (
	"encoding/json"
	"time"
)

// Notification types emitted by the enrollment workflow.
const (
	NotificationTypeRequestApproved = "REQUEST_APPROVED"
	NotificationTypeRequestRejected = "REQUEST_REJECTED"
	NotificationTypeRequestUpdated  = "REQUEST_UPDATED"
	NotificationTypeRequestDeleted  = "REQUEST_DELETED"
	NotificationTypeStudentReviewed = "STUDENT_REVIEWED"
)

// Notification is a persisted per-user message.
type Notification struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Type      string          `db:"type" json:"type"`
	Title     string          `db:"title" json:"title"`
	Message   string          `db:"message" json:"message"`
	Data      json.RawMessage `db:"data" json:"data,omitempty"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	ReadAt    *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
