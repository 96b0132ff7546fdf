package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
)

func TestClassRepositoryFindDetailByID(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "subject", "category", "capacity", "tutor_id", "active", "created_at", "updated_at", "enrolled_count"}).
		AddRow("class-1", "Math A", "Math", models.ClassCategoryEnrollable, 20, nil, true, now, now, 7)

	mock.ExpectQuery(regexp.QuoteMeta("FROM classes c WHERE c.id = $1")).
		WithArgs("class-1").
		WillReturnRows(rows)

	detail, err := repo.FindDetailByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, "Math A", detail.Name)
	assert.Equal(t, 20, detail.Capacity)
	assert.Equal(t, 7, detail.EnrolledCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryIsMember(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2")).
		WithArgs("class-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	member, err := repo.IsMember(context.Background(), "class-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, member)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2")).
		WithArgs("class-1", "stu-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	member, err = repo.IsMember(context.Background(), "class-1", "stu-2")
	require.NoError(t, err)
	assert.False(t, member)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryCountMembers(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM class_members WHERE class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountMembers(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Class{ID: "missing", Name: "Math A", Subject: "Math", Capacity: 20})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListRoster(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"student_id", "student_name", "school", "grade_level", "joined_at"}).
		AddRow("stu-1", "Dina Putri", "SMA 3", "11", now.Add(-time.Hour)).
		AddRow("stu-2", "Budi Santoso", "SMA 5", "12", now)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY m.joined_at ASC")).
		WithArgs("class-1").
		WillReturnRows(rows)

	roster, err := repo.ListRoster(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Dina Putri", roster[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}
