package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/jobs"
)

type mockNotificationRepo struct {
	mu      sync.Mutex
	stored  []*models.Notification
	read    []string
	readAll []string
	unread  int
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.stored {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.unread, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.stored {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			n.ReadAt = &readAt
			m.read = append(m.read, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readAll = append(m.readAll, userID)
	return nil
}

func (m *mockNotificationRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func newNotificationService(repo *mockNotificationRepo) *NotificationService {
	return NewNotificationService(repo, jobs.QueueConfig{Workers: 1, BufferSize: 8, RetryDelay: 10 * time.Millisecond}, zap.NewNop())
}

func TestNotificationServiceNotifyDelivers(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo)
	svc.Start(context.Background())
	defer svc.Stop()

	err := svc.Notify(context.Background(), "user-1", models.NotificationTypeRequestApproved, "Enrollment approved", "Your enrollment request has been approved.", map[string]string{"request_id": "req-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 10*time.Millisecond)

	repo.mu.Lock()
	n := repo.stored[0]
	repo.mu.Unlock()
	assert.Equal(t, "user-1", n.UserID)
	assert.Equal(t, models.NotificationTypeRequestApproved, n.Type)
	assert.NotEmpty(t, n.ID)
	assert.JSONEq(t, `{"request_id":"req-1"}`, string(n.Data))
}

func TestNotificationServiceNotifyBeforeStart(t *testing.T) {
	svc := newNotificationService(&mockNotificationRepo{})

	err := svc.Notify(context.Background(), "user-1", models.NotificationTypeRequestUpdated, "t", "m", nil)
	require.Error(t, err)
}

func TestNotificationServiceListForUser(t *testing.T) {
	repo := &mockNotificationRepo{}
	repo.stored = []*models.Notification{
		{ID: "n-1", UserID: "user-1", IsRead: false},
		{ID: "n-2", UserID: "user-1", IsRead: true},
		{ID: "n-3", UserID: "user-2", IsRead: false},
	}
	svc := newNotificationService(repo)

	all, err := svc.ListForUser(context.Background(), "user-1", false, 50)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unread, err := svc.ListForUser(context.Background(), "user-1", true, 50)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n-1", unread[0].ID)

	none, err := svc.ListForUser(context.Background(), "user-9", false, 50)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	repo := &mockNotificationRepo{}
	repo.stored = []*models.Notification{{ID: "n-1", UserID: "user-1"}}
	svc := newNotificationService(repo)

	require.NoError(t, svc.MarkRead(context.Background(), "n-1", "user-1"))
	assert.True(t, repo.stored[0].IsRead)

	// Another user's notification is invisible, not forbidden.
	err := svc.MarkRead(context.Background(), "n-1", "user-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationServiceMarkAllRead(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo)

	require.NoError(t, svc.MarkAllRead(context.Background(), "user-1"))
	assert.Contains(t, repo.readAll, "user-1")
}
