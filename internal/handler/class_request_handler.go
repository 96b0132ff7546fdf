package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bimbel-api/internal/dto"
	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/response"
)

type classRequestService interface {
	List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error)
	ListOwn(ctx context.Context, userID string, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error)
	Create(ctx context.Context, userID string, req dto.CreateClassRequestRequest) (*models.ClassRequestDetail, error)
	Approve(ctx context.Context, id string, actor *models.JWTClaims, note string) (*models.ClassRequestDetail, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims, note string) (*models.ClassRequestDetail, error)
	ChangeStatus(ctx context.Context, id string, req dto.ChangeStatusRequest, actor *models.JWTClaims) (*models.ClassRequestDetail, error)
	ApproveAllPending(ctx context.Context, actor *models.JWTClaims, note string) (*dto.ApproveAllResult, error)
	Delete(ctx context.Context, id, userID string) error
	AdminDelete(ctx context.Context, id string, actor *models.JWTClaims) (*dto.AdminDeleteSummary, error)
}

// ClassRequestHandler wires HTTP endpoints to the enrollment request service.
type ClassRequestHandler struct {
	service classRequestService
}

// NewClassRequestHandler creates a new handler.
func NewClassRequestHandler(svc classRequestService) *ClassRequestHandler {
	return &ClassRequestHandler{service: svc}
}

// Create godoc
// @Summary Submit enrollment request
// @Description Request a seat in an enrollable class
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /requests [post]
func (h *ClassRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateClassRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	detail, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, detail)
}

// List godoc
// @Summary List enrollment requests
// @Description List requests with filters and pagination
// @Tags Requests
// @Produce json
// @Param status query string false "Filter by status"
// @Param class_id query string false "Filter by class"
// @Param student_id query string false "Filter by student"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *ClassRequestHandler) List(c *gin.Context) {
	filter := models.ClassRequestFilter{
		StudentID: c.Query("student_id"),
		ClassID:   c.Query("class_id"),
		Status:    models.RequestStatus(c.Query("status")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	requests, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, pagination)
}

// ListMine godoc
// @Summary Own enrollment requests
// @Description List the calling student's requests
// @Tags Requests
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /requests/mine [get]
func (h *ClassRequestHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ClassRequestFilter{
		Status:   models.RequestStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	requests, pagination, err := h.service.ListOwn(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, pagination)
}

// Approve godoc
// @Summary Approve request
// @Description Approve a pending request, granting a seat if the class has room
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *ClassRequestHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
			return
		}
	}

	detail, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Reject godoc
// @Summary Reject request
// @Description Reject a pending request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *ClassRequestHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
			return
		}
	}

	detail, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// ChangeStatus godoc
// @Summary Change request status
// @Description Move a request to any status, adjusting membership as needed
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ChangeStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/status [put]
func (h *ClassRequestHandler) ChangeStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	detail, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// ApproveAll godoc
// @Summary Approve all pending requests
// @Description Approve the pending set, reporting per-request failures
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.ReviewRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /requests/approve-all [post]
func (h *ClassRequestHandler) ApproveAll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
			return
		}
	}

	result, err := h.service.ApproveAllPending(c.Request.Context(), claims, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Withdraw own request
// @Description Delete the calling student's pending request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /requests/{id} [delete]
func (h *ClassRequestHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// AdminDelete godoc
// @Summary Remove request
// @Description Delete a request in any status, releasing its seat if approved
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/requests/{id} [delete]
func (h *ClassRequestHandler) AdminDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.service.AdminDelete(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}
