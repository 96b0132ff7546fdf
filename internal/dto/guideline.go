package dto

import "time"

// CreateFolderRequest creates a guideline folder.
type CreateFolderRequest struct {
	Name    string `json:"name" validate:"required"`
	Subject string `json:"subject" validate:"required"`
}

// UpdateFolderRequest renames or re-subjects a folder.
type UpdateFolderRequest struct {
	Name    string `json:"name" validate:"required"`
	Subject string `json:"subject" validate:"required"`
}

// FileDownload is the signed-URL response for a stored file.
type FileDownload struct {
	FileID    string    `json:"file_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
