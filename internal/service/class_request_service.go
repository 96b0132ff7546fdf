package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/dto"
	"github.com/noah-isme/bimbel-api/internal/models"
	"github.com/noah-isme/bimbel-api/internal/repository"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type classRequestRepository interface {
	List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassRequestDetail, error)
	ExistsPending(ctx context.Context, studentID, classID string) (bool, error)
	Create(ctx context.Context, request *models.ClassRequest) error
	ListPending(ctx context.Context) ([]models.ClassRequestDetail, error)
	ApplyTransition(ctx context.Context, request *models.ClassRequest, newStatus models.RequestStatus, resp models.AdminResponse, effect models.MembershipEffect) error
	Delete(ctx context.Context, id string) error
	DeleteWithCleanup(ctx context.Context, request *models.ClassRequest) (bool, error)
}

type requestStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type requestClassStore interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	IsMember(ctx context.Context, classID, studentID string) (bool, error)
}

type notifier interface {
	Notify(ctx context.Context, userID, ntype, title, message string, data map[string]string) error
}

type auditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ClassRequestService coordinates the enrollment request lifecycle: status
// transitions, capacity-checked seat grants, and notification side effects.
// All membership edits flow through a single transition path so the seat
// invariants are enforced uniformly.
type ClassRequestService struct {
	repo      classRequestRepository
	students  requestStudentStore
	classes   requestClassStore
	notifier  notifier
	auditor   auditor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassRequestService constructs ClassRequestService.
func NewClassRequestService(repo classRequestRepository, students requestStudentStore, classes requestClassStore, notifier notifier, auditor auditor, validate *validator.Validate, logger *zap.Logger) *ClassRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassRequestService{repo: repo, students: students, classes: classes, notifier: notifier, auditor: auditor, validator: validate, logger: logger}
}

// List returns requests with pagination metadata.
func (s *ClassRequestService) List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListOwn returns the requests belonging to the calling student.
func (s *ClassRequestService) ListOwn(ctx context.Context, userID string, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	filter.StudentID = student.ID
	return s.List(ctx, filter)
}

// Create submits a new enrollment request for the calling student. The
// request starts out pending; no notification is sent on creation.
func (s *ClassRequestService) Create(ctx context.Context, userID string, req dto.CreateClassRequestRequest) (*models.ClassRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.StudentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student registration is not approved")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !class.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class is not active")
	}
	if class.Category != models.ClassCategoryEnrollable {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class is not open for enrollment")
	}

	member, err := s.classes.IsMember(ctx, class.ID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if member {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is already enrolled in this class")
	}

	// Friendly pre-check; the partial unique index remains authoritative
	// under concurrency.
	pending, err := s.repo.ExistsPending(ctx, student.ID, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a pending request for this class already exists")
	}

	request := &models.ClassRequest{StudentID: student.ID, ClassID: class.ID, Reason: req.Reason, Status: models.RequestStatusPending}
	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicatePending) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a pending request for this class already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	detail, err := s.repo.FindDetailByID(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request detail")
	}
	return detail, nil
}

// Approve grants the requested seat. Only pending requests can be approved;
// the seat grant and status update commit atomically.
func (s *ClassRequestService) Approve(ctx context.Context, id string, actor *models.JWTClaims, note string) (*models.ClassRequestDetail, error) {
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "request is not pending")
	}

	if err := s.transition(ctx, request, models.RequestStatusApproved, actor.UserID, note, models.MembershipAdd); err != nil {
		return nil, err
	}

	s.audit(ctx, actor.UserID, models.AuditActionRequestReview, request.ID, request.Status)
	s.notifyStudent(ctx, request, models.NotificationTypeRequestApproved, "Enrollment approved", "Your enrollment request has been approved.")
	return s.detail(ctx, request.ID)
}

// Reject declines a pending request. No seat was granted, so membership is
// untouched.
func (s *ClassRequestService) Reject(ctx context.Context, id string, actor *models.JWTClaims, note string) (*models.ClassRequestDetail, error) {
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "request is not pending")
	}

	if err := s.transition(ctx, request, models.RequestStatusRejected, actor.UserID, note, models.MembershipKeep); err != nil {
		return nil, err
	}

	s.audit(ctx, actor.UserID, models.AuditActionRequestReview, request.ID, request.Status)
	s.notifyStudent(ctx, request, models.NotificationTypeRequestRejected, "Enrollment rejected", "Your enrollment request has been rejected.")
	return s.detail(ctx, request.ID)
}

// ChangeStatus moves a request to an arbitrary status from any origin.
// Leaving APPROVED releases the seat; entering APPROVED re-runs the capacity
// check and aborts without touching the request when the class is full.
func (s *ClassRequestService) ChangeStatus(ctx context.Context, id string, req dto.ChangeStatusRequest, actor *models.JWTClaims) (*models.ClassRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown request status")
	}

	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	effect := models.MembershipKeep
	switch {
	case request.Status == models.RequestStatusApproved && req.Status != models.RequestStatusApproved:
		effect = models.MembershipRemove
	case request.Status != models.RequestStatusApproved && req.Status == models.RequestStatusApproved:
		effect = models.MembershipAdd
	}

	if err := s.transition(ctx, request, req.Status, actor.UserID, req.Note, effect); err != nil {
		return nil, err
	}

	s.audit(ctx, actor.UserID, models.AuditActionRequestReview, request.ID, request.Status)
	s.notifyStudent(ctx, request, models.NotificationTypeRequestUpdated, "Enrollment request updated", "The status of your enrollment request has changed to "+string(req.Status)+".")
	return s.detail(ctx, request.ID)
}

// ApproveAllPending approves the current pending set one request at a time.
// A full class skips that request and the pass continues; every skipped
// request is reported in the result. An empty pending set is an error, not a
// silent no-op.
func (s *ClassRequestService) ApproveAllPending(ctx context.Context, actor *models.JWTClaims, note string) (*dto.ApproveAllResult, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending requests")
	}
	if len(pending) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no pending requests to approve")
	}

	result := &dto.ApproveAllResult{Failures: []dto.ApproveFailure{}}
	for i := range pending {
		item := &pending[i]
		err := s.transition(ctx, &item.ClassRequest, models.RequestStatusApproved, actor.UserID, note, models.MembershipAdd)
		switch {
		case err == nil:
			result.ApprovedCount++
			s.notifyStudent(ctx, &item.ClassRequest, models.NotificationTypeRequestApproved, "Enrollment approved", "Your enrollment request has been approved.")
		case isCapacityError(err):
			result.FailedCount++
			result.Failures = append(result.Failures, dto.ApproveFailure{RequestID: item.ID, Student: item.StudentName, Class: item.ClassName, Reason: "capacity"})
		default:
			s.logger.Error("bulk approval item failed", zap.String("request_id", item.ID), zap.Error(err))
			result.FailedCount++
			result.Failures = append(result.Failures, dto.ApproveFailure{RequestID: item.ID, Student: item.StudentName, Class: item.ClassName, Reason: "error"})
		}
	}

	s.audit(ctx, actor.UserID, models.AuditActionRequestReview, "", models.RequestStatusPending)
	return result, nil
}

// Delete removes the caller's own pending request. Approved or rejected
// requests can only be removed by an admin.
func (s *ClassRequestService) Delete(ctx context.Context, id, userID string) error {
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return err
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil || student.ID != request.StudentID {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	if request.Status != models.RequestStatusPending {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "only pending requests can be withdrawn")
	}

	if err := s.repo.Delete(ctx, request.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}
	return nil
}

// AdminDelete removes a request in any status. Deleting an approved request
// also releases the granted seat in the same transaction.
func (s *ClassRequestService) AdminDelete(ctx context.Context, id string, actor *models.JWTClaims) (*dto.AdminDeleteSummary, error) {
	request, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	removed, err := s.repo.DeleteWithCleanup(ctx, request)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}

	s.audit(ctx, actor.UserID, models.AuditActionRequestDelete, request.ID, request.Status)
	s.notifyStudent(ctx, request, models.NotificationTypeRequestDeleted, "Enrollment request removed", "Your enrollment request was removed by an administrator.")
	return &dto.AdminDeleteSummary{RequestID: request.ID, Status: request.Status, MembershipRemoved: removed}, nil
}

// transition is the single path for every status change. It maps the
// repository sentinels onto the public error taxonomy.
func (s *ClassRequestService) transition(ctx context.Context, request *models.ClassRequest, newStatus models.RequestStatus, actorID, note string, effect models.MembershipEffect) error {
	resp := models.AdminResponse{ActedBy: actorID, ActedAt: time.Now().UTC(), Note: note}
	err := s.repo.ApplyTransition(ctx, request, newStatus, resp, effect)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrClassFull):
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "class has no free seats")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
}

func (s *ClassRequestService) findRequest(ctx context.Context, id string) (*models.ClassRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *ClassRequestService) detail(ctx context.Context, id string) (*models.ClassRequestDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request detail")
	}
	return detail, nil
}

// notifyStudent dispatches a best-effort notification to the request's owner.
// Failures are logged and never surface to the caller.
func (s *ClassRequestService) notifyStudent(ctx context.Context, request *models.ClassRequest, ntype, title, message string) {
	if s.notifier == nil {
		return
	}
	student, err := s.students.FindByID(ctx, request.StudentID)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipient", zap.String("student_id", request.StudentID), zap.Error(err))
		return
	}
	data := map[string]string{"request_id": request.ID, "class_id": request.ClassID, "status": string(request.Status)}
	if err := s.notifier.Notify(ctx, student.UserID, ntype, title, message, data); err != nil {
		s.logger.Warn("failed to dispatch notification", zap.String("request_id", request.ID), zap.Error(err))
	}
}

func (s *ClassRequestService) audit(ctx context.Context, actorID, action, requestID string, status models.RequestStatus) {
	if s.auditor == nil {
		return
	}
	values, _ := json.Marshal(map[string]string{"status": string(status)})
	log := &models.AuditLog{UserID: &actorID, Action: action, Resource: "class_request", NewValues: values}
	if requestID != "" {
		log.ResourceID = &requestID
	}
	if err := s.auditor.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func isCapacityError(err error) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr) && appErr.Code == appErrors.ErrCapacityExceeded.Code
}
