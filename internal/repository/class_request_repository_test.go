package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	return db, mock, func() { db.Close() } //nolint:errcheck
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "class_id", "reason", "status", "acted_by", "acted_at", "admin_note", "created_at", "updated_at"})
}

func TestClassRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	request := &models.ClassRequest{StudentID: "stu-1", ClassID: "class-1", Reason: "want to join"}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryCreateDuplicatePending(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_requests")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), &models.ClassRequest{StudentID: "stu-1", ClassID: "class-1"})
	assert.ErrorIs(t, err, ErrDuplicatePending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, class_id, reason, status, acted_by, acted_at, admin_note, created_at, updated_at FROM class_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(requestRows().AddRow("req-1", "stu-1", "class-1", "", models.RequestStatusPending, nil, nil, "", now, now))

	request, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", request.ID)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.Nil(t, request.AdminResponse())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryExistsPending(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_requests WHERE student_id = $1 AND class_id = $2 AND status = $3")).
		WithArgs("stu-1", "class-1", models.RequestStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsPending(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_requests WHERE student_id = $1 AND class_id = $2 AND status = $3")).
		WithArgs("stu-2", "class-1", models.RequestStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsPending(context.Background(), "stu-2", "class-1")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryApplyTransitionApprove(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM classes WHERE id = $1 FOR UPDATE")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(10))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_members")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_requests SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.ClassRequest{ID: "req-1", StudentID: "stu-1", ClassID: "class-1", Status: models.RequestStatusPending}
	resp := models.AdminResponse{ActedBy: "admin-1", ActedAt: time.Now().UTC(), Note: "welcome"}
	require.NoError(t, repo.ApplyTransition(context.Background(), request, models.RequestStatusApproved, resp, models.MembershipAdd))

	assert.Equal(t, models.RequestStatusApproved, request.Status)
	require.NotNil(t, request.ActedBy)
	assert.Equal(t, "admin-1", *request.ActedBy)
	assert.Equal(t, "welcome", request.AdminNote)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryApplyTransitionClassFull(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM classes WHERE id = $1 FOR UPDATE")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(1))
	// The conditional insert finds no free seat.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_members")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The student does not already hold a seat either.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2")).
		WithArgs("class-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	request := &models.ClassRequest{ID: "req-1", StudentID: "stu-1", ClassID: "class-1", Status: models.RequestStatusPending}
	resp := models.AdminResponse{ActedBy: "admin-1", ActedAt: time.Now().UTC()}
	err := repo.ApplyTransition(context.Background(), request, models.RequestStatusApproved, resp, models.MembershipAdd)
	assert.ErrorIs(t, err, ErrClassFull)

	// The request is untouched on a failed grant.
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.Nil(t, request.ActedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryApplyTransitionExistingSeatIdempotent(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM classes WHERE id = $1 FOR UPDATE")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_members")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// No insert, but the student already holds the seat: the grant succeeds.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2")).
		WithArgs("class-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_requests SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.ClassRequest{ID: "req-1", StudentID: "stu-1", ClassID: "class-1", Status: models.RequestStatusPending}
	resp := models.AdminResponse{ActedBy: "admin-1", ActedAt: time.Now().UTC()}
	require.NoError(t, repo.ApplyTransition(context.Background(), request, models.RequestStatusApproved, resp, models.MembershipAdd))
	assert.Equal(t, models.RequestStatusApproved, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryApplyTransitionRemove(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_members WHERE class_id = $1 AND student_id = $2")).
		WithArgs("class-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_requests SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.ClassRequest{ID: "req-1", StudentID: "stu-1", ClassID: "class-1", Status: models.RequestStatusApproved}
	resp := models.AdminResponse{ActedBy: "admin-1", ActedAt: time.Now().UTC()}
	require.NoError(t, repo.ApplyTransition(context.Background(), request, models.RequestStatusRejected, resp, models.MembershipRemove))
	assert.Equal(t, models.RequestStatusRejected, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryApplyTransitionMissingRequest(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_requests SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	request := &models.ClassRequest{ID: "missing", StudentID: "stu-1", ClassID: "class-1", Status: models.RequestStatusPending}
	resp := models.AdminResponse{ActedBy: "admin-1", ActedAt: time.Now().UTC()}
	err := repo.ApplyTransition(context.Background(), request, models.RequestStatusRejected, resp, models.MembershipKeep)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "req-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryDeleteWithCleanupApproved(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_members WHERE class_id = $1 AND student_id = $2")).
		WithArgs("class-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.ClassRequest{ID: "req-1", StudentID: "stu-1", ClassID: "class-1", Status: models.RequestStatusApproved}
	removed, err := repo.DeleteWithCleanup(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryDeleteWithCleanupPending(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.ClassRequest{ID: "req-1", StudentID: "stu-1", ClassID: "class-1", Status: models.RequestStatusPending}
	removed, err := repo.DeleteWithCleanup(context.Background(), request)
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryListPending(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "reason", "status", "acted_by", "acted_at", "admin_note", "created_at", "updated_at", "student_name", "class_name"}).
		AddRow("req-1", "stu-1", "class-1", "", models.RequestStatusPending, nil, nil, "", now.Add(-time.Hour), now, "Dina", "Math A").
		AddRow("req-2", "stu-2", "class-1", "", models.RequestStatusPending, nil, nil, "", now, now, "Budi", "Math A")

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY r.created_at ASC")).
		WithArgs(models.RequestStatusPending).
		WillReturnRows(rows)

	pending, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "req-1", pending[0].ID)
	assert.Equal(t, "Dina", pending[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}
