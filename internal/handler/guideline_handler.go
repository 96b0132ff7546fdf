package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bimbel-api/internal/dto"
	"github.com/noah-isme/bimbel-api/internal/service"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/response"
)

// GuidelineHandler wires HTTP endpoints to the guideline library service.
type GuidelineHandler struct {
	service *service.GuidelineService
}

// NewGuidelineHandler creates a new handler.
func NewGuidelineHandler(svc *service.GuidelineService) *GuidelineHandler {
	return &GuidelineHandler{service: svc}
}

// CreateFolder godoc
// @Summary Create folder
// @Description Add a guideline folder
// @Tags Guidelines
// @Accept json
// @Produce json
// @Param payload body dto.CreateFolderRequest true "Folder payload"
// @Success 201 {object} response.Envelope
// @Router /guidelines/folders [post]
func (h *GuidelineHandler) CreateFolder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	folder, err := h.service.CreateFolder(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, folder)
}

// ListFolders godoc
// @Summary List folders
// @Description List guideline folders, optionally by subject
// @Tags Guidelines
// @Produce json
// @Param subject query string false "Filter by subject"
// @Success 200 {object} response.Envelope
// @Router /guidelines/folders [get]
func (h *GuidelineHandler) ListFolders(c *gin.Context) {
	folders, err := h.service.ListFolders(c.Request.Context(), c.Query("subject"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folders, nil)
}

// UpdateFolder godoc
// @Summary Update folder
// @Description Rename or re-subject a folder
// @Tags Guidelines
// @Accept json
// @Produce json
// @Param id path string true "Folder ID"
// @Param payload body dto.UpdateFolderRequest true "Folder payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guidelines/folders/{id} [put]
func (h *GuidelineHandler) UpdateFolder(c *gin.Context) {
	var req dto.UpdateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	folder, err := h.service.UpdateFolder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, folder, nil)
}

// DeleteFolder godoc
// @Summary Delete folder
// @Description Remove a folder with its files
// @Tags Guidelines
// @Produce json
// @Param id path string true "Folder ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guidelines/folders/{id} [delete]
func (h *GuidelineHandler) DeleteFolder(c *gin.Context) {
	if err := h.service.DeleteFolder(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadFile godoc
// @Summary Upload file
// @Description Store a document inside a folder
// @Tags Guidelines
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Folder ID"
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /guidelines/folders/{id}/files [post]
func (h *GuidelineHandler) UploadFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	file, err := h.service.UploadFile(
		c.Request.Context(),
		c.Param("id"),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		io.Reader(src),
		claims.UserID,
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, file)
}

// ListFiles godoc
// @Summary List files
// @Description List the files inside a folder
// @Tags Guidelines
// @Produce json
// @Param id path string true "Folder ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guidelines/folders/{id}/files [get]
func (h *GuidelineHandler) ListFiles(c *gin.Context) {
	files, err := h.service.ListFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, nil)
}

// DownloadLink godoc
// @Summary Signed download link
// @Description Issue a short-lived signed URL for a file
// @Tags Guidelines
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guidelines/files/{id}/download-link [get]
func (h *GuidelineHandler) DownloadLink(c *gin.Context) {
	baseURL := "/api/v1/guidelines/download"
	link, err := h.service.DownloadLink(c.Request.Context(), c.Param("id"), baseURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download file
// @Description Stream file bytes for a valid signed token
// @Tags Guidelines
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /guidelines/download [get]
func (h *GuidelineHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}

	file, handle, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer handle.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment; filename="+file.Name)
	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, file.SizeBytes, contentType, handle, nil)
}

// DeleteFile godoc
// @Summary Delete file
// @Description Remove a stored document
// @Tags Guidelines
// @Produce json
// @Param id path string true "File ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guidelines/files/{id} [delete]
func (h *GuidelineHandler) DeleteFile(c *gin.Context) {
	if err := h.service.DeleteFile(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
