package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/bimbel-api/internal/models"
)

// Sentinel errors surfaced by request transitions. Services map them onto the
// public error taxonomy.
var (
	ErrClassFull        = errors.New("class capacity reached")
	ErrDuplicatePending = errors.New("pending request already exists")
)

const pqUniqueViolation = "23505"

// ClassRequestRepository owns enrollment requests and the write side of class
// membership. Every transition that touches membership runs in a single
// transaction so a request's status and its seat can never disagree.
type ClassRequestRepository struct {
	db *sqlx.DB
}

// NewClassRequestRepository constructs the repository.
func NewClassRequestRepository(db *sqlx.DB) *ClassRequestRepository {
	return &ClassRequestRepository{db: db}
}

const requestColumns = `id, student_id, class_id, reason, status, acted_by, acted_at, admin_note, created_at, updated_at`

// Create persists a new request. The partial unique index on
// (student_id, class_id) WHERE status = 'PENDING' is the authority for the
// no-duplicate-pending rule; a violation maps to ErrDuplicatePending.
func (r *ClassRequestRepository) Create(ctx context.Context, request *models.ClassRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	const query = `INSERT INTO class_requests (id, student_id, class_id, reason, status, admin_note, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :reason, :status, :admin_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicatePending
		}
		return fmt.Errorf("create class request: %w", err)
	}
	return nil
}

// FindByID returns a request by identifier.
func (r *ClassRequestRepository) FindByID(ctx context.Context, id string) (*models.ClassRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_requests WHERE id = $1 LIMIT 1`, requestColumns)
	var request models.ClassRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID returns a request with student and class names.
func (r *ClassRequestRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassRequestDetail, error) {
	const query = `SELECT r.id, r.student_id, r.class_id, r.reason, r.status, r.acted_by, r.acted_at, r.admin_note, r.created_at, r.updated_at,
        s.full_name AS student_name, c.name AS class_name
        FROM class_requests r
        JOIN students s ON s.id = r.student_id
        JOIN classes c ON c.id = r.class_id
        WHERE r.id = $1`
	var detail models.ClassRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsPending reports whether a pending request exists for the pair. Used
// for a friendly precondition message; the unique index remains authoritative.
func (r *ClassRequestRepository) ExistsPending(ctx context.Context, studentID, classID string) (bool, error) {
	const query = `SELECT 1 FROM class_requests WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID, models.RequestStatusPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return true, nil
}

// List returns requests filtered by the provided criteria.
func (r *ClassRequestRepository) List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, int, error) {
	base := `FROM class_requests r
JOIN students s ON s.id = r.student_id
JOIN classes c ON c.id = r.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("r.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "r.created_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.student_id, r.class_id, r.reason, r.status, r.acted_by, r.acted_at, r.admin_note, r.created_at, r.updated_at,
        s.full_name AS student_name, c.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var requests []models.ClassRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class requests: %w", err)
	}
	return requests, total, nil
}

// ListPending returns the full pending set ordered oldest first. Bulk
// approval operates on this snapshot.
func (r *ClassRequestRepository) ListPending(ctx context.Context) ([]models.ClassRequestDetail, error) {
	const query = `SELECT r.id, r.student_id, r.class_id, r.reason, r.status, r.acted_by, r.acted_at, r.admin_note, r.created_at, r.updated_at,
        s.full_name AS student_name, c.name AS class_name
        FROM class_requests r
        JOIN students s ON s.id = r.student_id
        JOIN classes c ON c.id = r.class_id
        WHERE r.status = $1
        ORDER BY r.created_at ASC`
	var requests []models.ClassRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, models.RequestStatusPending); err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return requests, nil
}

// ApplyTransition atomically updates a request's status, decision record, and
// class membership. Returns ErrClassFull when effect is MembershipAdd and the
// class has no free seat, leaving the request untouched.
func (r *ClassRequestRepository) ApplyTransition(ctx context.Context, request *models.ClassRequest, newStatus models.RequestStatus, resp models.AdminResponse, effect models.MembershipEffect) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	switch effect {
	case models.MembershipAdd:
		if err := addMemberIfRoom(ctx, tx, request.ClassID, request.StudentID); err != nil {
			return err
		}
	case models.MembershipRemove:
		if err := removeMember(ctx, tx, request.ClassID, request.StudentID); err != nil {
			return err
		}
	}

	const query = `UPDATE class_requests SET status = $2, acted_by = $3, acted_at = $4, admin_note = $5, updated_at = $4 WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, request.ID, newStatus, resp.ActedBy, resp.ActedAt, resp.Note)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}

	request.Status = newStatus
	request.ActedBy = &resp.ActedBy
	request.ActedAt = &resp.ActedAt
	request.AdminNote = resp.Note
	request.UpdatedAt = resp.ActedAt
	return nil
}

// Delete removes a request without touching membership. Used for
// student-initiated deletion of pending requests.
func (r *ClassRequestRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM class_requests WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete class request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteWithCleanup removes a request and, for approved requests, the seat it
// granted, in one transaction. Reports whether a membership row was removed.
func (r *ClassRequestRepository) DeleteWithCleanup(ctx context.Context, request *models.ClassRequest) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	removed := false
	if request.Status == models.RequestStatusApproved {
		res, err := tx.ExecContext(ctx, `DELETE FROM class_members WHERE class_id = $1 AND student_id = $2`, request.ClassID, request.StudentID)
		if err != nil {
			return false, fmt.Errorf("remove class member: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			removed = true
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM class_requests WHERE id = $1`, request.ID)
	if err != nil {
		return false, fmt.Errorf("delete class request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return false, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return removed, nil
}

// addMemberIfRoom grants a seat if one is free. The class row lock serializes
// concurrent capacity checks against the same class; the conditional insert
// with ON CONFLICT DO NOTHING makes the grant idempotent.
func addMemberIfRoom(ctx context.Context, tx *sqlx.Tx, classID, studentID string) error {
	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM classes WHERE id = $1 FOR UPDATE`, classID); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock class row: %w", err)
	}

	const insert = `INSERT INTO class_members (id, class_id, student_id, joined_at)
        SELECT $1, $2, $3, $4
        WHERE (SELECT COUNT(*) FROM class_members WHERE class_id = $2) < $5
        ON CONFLICT (class_id, student_id) DO NOTHING`
	res, err := tx.ExecContext(ctx, insert, uuid.NewString(), classID, studentID, time.Now().UTC(), capacity)
	if err != nil {
		return fmt.Errorf("add class member: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add class member result: %w", err)
	}
	if inserted > 0 {
		return nil
	}

	// No row inserted: either the student already holds a seat (fine) or the
	// class is full.
	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2 LIMIT 1`, classID, studentID)
	if err == sql.ErrNoRows {
		return ErrClassFull
	}
	if err != nil {
		return fmt.Errorf("check class member: %w", err)
	}
	return nil
}

func removeMember(ctx context.Context, tx *sqlx.Tx, classID, studentID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM class_members WHERE class_id = $1 AND student_id = $2`, classID, studentID); err != nil {
		return fmt.Errorf("remove class member: %w", err)
	}
	return nil
}
