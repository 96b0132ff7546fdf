package models

import "time"

// RequestStatus represents the lifecycle of a class enrollment request.
type RequestStatus string

// Request lifecycle states. PENDING is the initial state; any state may be
// reached from any other via an admin status change.
const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// Valid reports whether the value is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// AdminResponse records the most recent admin decision on a request.
type AdminResponse struct {
	ActedBy string    `json:"acted_by"`
	ActedAt time.Time `json:"acted_at"`
	Note    string    `json:"note"`
}

// ClassRequest is a student's application to join a class.
type ClassRequest struct {
	ID        string        `db:"id" json:"id"`
	StudentID string        `db:"student_id" json:"student_id"`
	ClassID   string        `db:"class_id" json:"class_id"`
	Reason    string        `db:"reason" json:"reason"`
	Status    RequestStatus `db:"status" json:"status"`
	ActedBy   *string       `db:"acted_by" json:"acted_by,omitempty"`
	ActedAt   *time.Time    `db:"acted_at" json:"acted_at,omitempty"`
	AdminNote string        `db:"admin_note" json:"admin_note"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// AdminResponse returns the decision record, or nil while the request has
// never been acted on.
func (r *ClassRequest) AdminResponse() *AdminResponse {
	if r.ActedBy == nil || r.ActedAt == nil {
		return nil
	}
	return &AdminResponse{ActedBy: *r.ActedBy, ActedAt: *r.ActedAt, Note: r.AdminNote}
}

// ClassRequestDetail enriches ClassRequest with student and class info.
type ClassRequestDetail struct {
	ClassRequest
	StudentName string `db:"student_name" json:"student_name"`
	ClassName   string `db:"class_name" json:"class_name"`
}

// ClassRequestFilter provides filters for listing requests.
type ClassRequestFilter struct {
	StudentID string
	ClassID   string
	Status    RequestStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// MembershipEffect names the class-membership side effect of a status
// transition.
type MembershipEffect int

const (
	MembershipKeep MembershipEffect = iota
	MembershipAdd
	MembershipRemove
)
