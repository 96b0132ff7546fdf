package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/dto"
	"github.com/noah-isme/bimbel-api/internal/middleware"
	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type classRequestServiceMock struct {
	createResp *models.ClassRequestDetail
	createErr  error
	listResp   []models.ClassRequestDetail
	listErr    error
	detailResp *models.ClassRequestDetail
	detailErr  error
	bulkResp   *dto.ApproveAllResult
	bulkErr    error
	deleteErr  error
	adminResp  *dto.AdminDeleteSummary
	adminErr   error

	createCalled bool
	approveNote  string
	deletedID    string
	lastStatus   models.RequestStatus
}

func (m *classRequestServiceMock) List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error) {
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, m.listErr
}

func (m *classRequestServiceMock) ListOwn(ctx context.Context, userID string, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error) {
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, m.listErr
}

func (m *classRequestServiceMock) Create(ctx context.Context, userID string, req dto.CreateClassRequestRequest) (*models.ClassRequestDetail, error) {
	m.createCalled = true
	return m.createResp, m.createErr
}

func (m *classRequestServiceMock) Approve(ctx context.Context, id string, actor *models.JWTClaims, note string) (*models.ClassRequestDetail, error) {
	m.approveNote = note
	return m.detailResp, m.detailErr
}

func (m *classRequestServiceMock) Reject(ctx context.Context, id string, actor *models.JWTClaims, note string) (*models.ClassRequestDetail, error) {
	return m.detailResp, m.detailErr
}

func (m *classRequestServiceMock) ChangeStatus(ctx context.Context, id string, req dto.ChangeStatusRequest, actor *models.JWTClaims) (*models.ClassRequestDetail, error) {
	m.lastStatus = req.Status
	return m.detailResp, m.detailErr
}

func (m *classRequestServiceMock) ApproveAllPending(ctx context.Context, actor *models.JWTClaims, note string) (*dto.ApproveAllResult, error) {
	return m.bulkResp, m.bulkErr
}

func (m *classRequestServiceMock) Delete(ctx context.Context, id, userID string) error {
	m.deletedID = id
	return m.deleteErr
}

func (m *classRequestServiceMock) AdminDelete(ctx context.Context, id string, actor *models.JWTClaims) (*dto.AdminDeleteSummary, error) {
	return m.adminResp, m.adminErr
}

func testContext(t *testing.T, method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
}

func TestClassRequestHandlerCreate(t *testing.T) {
	mockSvc := &classRequestServiceMock{
		createResp: &models.ClassRequestDetail{
			ClassRequest: models.ClassRequest{ID: "req-1", Status: models.RequestStatusPending},
			ClassName:    "Math A",
		},
	}
	handler := NewClassRequestHandler(mockSvc)

	payload, _ := json.Marshal(dto.CreateClassRequestRequest{ClassID: "class-1", Reason: "want to join"})
	c, w := testContext(t, http.MethodPost, "/requests", payload, studentClaims())

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.createCalled)
	assert.Contains(t, w.Body.String(), "req-1")
}

func TestClassRequestHandlerCreateUnauthenticated(t *testing.T) {
	handler := NewClassRequestHandler(&classRequestServiceMock{})

	payload, _ := json.Marshal(dto.CreateClassRequestRequest{ClassID: "class-1"})
	c, w := testContext(t, http.MethodPost, "/requests", payload, nil)

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClassRequestHandlerCreateConflict(t *testing.T) {
	mockSvc := &classRequestServiceMock{
		createErr: appErrors.Clone(appErrors.ErrConflict, "a pending request for this class already exists"),
	}
	handler := NewClassRequestHandler(mockSvc)

	payload, _ := json.Marshal(dto.CreateClassRequestRequest{ClassID: "class-1"})
	c, w := testContext(t, http.MethodPost, "/requests", payload, studentClaims())

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}

func TestClassRequestHandlerApproveWithoutBody(t *testing.T) {
	mockSvc := &classRequestServiceMock{
		detailResp: &models.ClassRequestDetail{
			ClassRequest: models.ClassRequest{ID: "req-1", Status: models.RequestStatusApproved},
		},
	}
	handler := NewClassRequestHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/requests/req-1/approve", nil, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mockSvc.approveNote)
}

func TestClassRequestHandlerApproveCapacityExceeded(t *testing.T) {
	mockSvc := &classRequestServiceMock{
		detailErr: appErrors.Clone(appErrors.ErrCapacityExceeded, "class has no free seats"),
	}
	handler := NewClassRequestHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/requests/req-1/approve", nil, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CAPACITY_EXCEEDED")
}

func TestClassRequestHandlerChangeStatusInvalidBody(t *testing.T) {
	handler := NewClassRequestHandler(&classRequestServiceMock{})

	c, w := testContext(t, http.MethodPut, "/requests/req-1/status", []byte(`{"status":`), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.ChangeStatus(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassRequestHandlerApproveAll(t *testing.T) {
	mockSvc := &classRequestServiceMock{
		bulkResp: &dto.ApproveAllResult{
			ApprovedCount: 2,
			FailedCount:   1,
			Failures:      []dto.ApproveFailure{{RequestID: "req-3", Reason: "capacity"}},
		},
	}
	handler := NewClassRequestHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/requests/approve-all", nil, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.ApproveAll(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"approved_count":2`)
	assert.Contains(t, w.Body.String(), "capacity")
}

func TestClassRequestHandlerDelete(t *testing.T) {
	mockSvc := &classRequestServiceMock{}
	handler := NewClassRequestHandler(mockSvc)

	c, w := testContext(t, http.MethodDelete, "/requests/req-1", nil, studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-1", mockSvc.deletedID)
}

func TestClassRequestHandlerDeleteForbidden(t *testing.T) {
	mockSvc := &classRequestServiceMock{
		deleteErr: appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student"),
	}
	handler := NewClassRequestHandler(mockSvc)

	c, w := testContext(t, http.MethodDelete, "/requests/req-1", nil, studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Delete(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestClassRequestHandlerAdminDelete(t *testing.T) {
	mockSvc := &classRequestServiceMock{
		adminResp: &dto.AdminDeleteSummary{RequestID: "req-1", Status: models.RequestStatusApproved, MembershipRemoved: true},
	}
	handler := NewClassRequestHandler(mockSvc)

	c, w := testContext(t, http.MethodDelete, "/admin/requests/req-1", nil, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.AdminDelete(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"membership_removed":true`)
}
