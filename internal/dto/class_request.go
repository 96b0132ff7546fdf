package dto

import "github.com/noah-isme/bimbel-api/internal/models"

// CreateClassRequestRequest is the payload a student submits to apply for a
// class seat.
type CreateClassRequestRequest struct {
	ClassID string `json:"class_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=500"`
}

// ReviewRequest carries an optional admin note for approve/reject decisions.
type ReviewRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// ChangeStatusRequest moves a request to an arbitrary status.
type ChangeStatusRequest struct {
	Status models.RequestStatus `json:"status" validate:"required"`
	Note   string               `json:"note" validate:"max=500"`
}

// ApproveFailure describes one request that could not be bulk-approved.
type ApproveFailure struct {
	RequestID string `json:"request_id"`
	Student   string `json:"student"`
	Class     string `json:"class"`
	Reason    string `json:"reason"`
}

// ApproveAllResult aggregates the outcome of a bulk approval pass.
type ApproveAllResult struct {
	ApprovedCount int              `json:"approved_count"`
	FailedCount   int              `json:"failed_count"`
	Failures      []ApproveFailure `json:"failures"`
}

// AdminDeleteSummary reports what an administrative delete removed.
type AdminDeleteSummary struct {
	RequestID         string               `json:"request_id"`
	Status            models.RequestStatus `json:"status"`
	MembershipRemoved bool                 `json:"membership_removed"`
}
