package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/dto"
	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/storage"
)

type guidelineRepository interface {
	CreateFolder(ctx context.Context, folder *models.GuidelineFolder) error
	FindFolderByID(ctx context.Context, id string) (*models.GuidelineFolder, error)
	ListFolders(ctx context.Context, subject string) ([]models.GuidelineFolder, error)
	UpdateFolder(ctx context.Context, folder *models.GuidelineFolder) error
	DeleteFolder(ctx context.Context, id string) error
	CreateFile(ctx context.Context, file *models.GuidelineFile) error
	FindFileByID(ctx context.Context, id string) (*models.GuidelineFile, error)
	ListFiles(ctx context.Context, folderID string) ([]models.GuidelineFile, error)
	DeleteFile(ctx context.Context, id string) error
}

// GuidelineService manages the guideline library: subject folders, uploaded
// documents and signed download links. File bytes live on local disk, only
// metadata goes to the database.
type GuidelineService struct {
	repo      guidelineRepository
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	maxSize   int64
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGuidelineService constructs GuidelineService.
func NewGuidelineService(repo guidelineRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, maxSize int64, validate *validator.Validate, logger *zap.Logger) *GuidelineService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = 25 << 20
	}
	return &GuidelineService{repo: repo, store: store, signer: signer, maxSize: maxSize, validator: validate, logger: logger}
}

// CreateFolder adds a folder to the library.
func (s *GuidelineService) CreateFolder(ctx context.Context, req dto.CreateFolderRequest, createdBy string) (*models.GuidelineFolder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}
	folder := &models.GuidelineFolder{Name: req.Name, Subject: req.Subject, CreatedBy: &createdBy}
	if err := s.repo.CreateFolder(ctx, folder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create folder")
	}
	return folder, nil
}

// ListFolders returns folders, optionally filtered by subject.
func (s *GuidelineService) ListFolders(ctx context.Context, subject string) ([]models.GuidelineFolder, error) {
	folders, err := s.repo.ListFolders(ctx, subject)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folders")
	}
	if folders == nil {
		folders = []models.GuidelineFolder{}
	}
	return folders, nil
}

// UpdateFolder renames or re-subjects a folder.
func (s *GuidelineService) UpdateFolder(ctx context.Context, id string, req dto.UpdateFolderRequest) (*models.GuidelineFolder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}
	folder, err := s.findFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	folder.Name = req.Name
	folder.Subject = req.Subject
	if err := s.repo.UpdateFolder(ctx, folder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update folder")
	}
	return folder, nil
}

// DeleteFolder removes a folder, its file metadata and the stored bytes.
func (s *GuidelineService) DeleteFolder(ctx context.Context, id string) error {
	if _, err := s.findFolder(ctx, id); err != nil {
		return err
	}

	files, err := s.repo.ListFiles(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder files")
	}

	if err := s.repo.DeleteFolder(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete folder")
	}

	for _, file := range files {
		if err := s.store.Remove(file.RelPath); err != nil {
			s.logger.Warn("failed to remove stored file", zap.String("file_id", file.ID), zap.Error(err))
		}
	}
	return nil
}

// UploadFile streams an uploaded document to disk and records its metadata.
func (s *GuidelineService) UploadFile(ctx context.Context, folderID, name, mimeType string, size int64, r io.Reader, uploadedBy string) (*models.GuidelineFile, error) {
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if size > s.maxSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxSize))
	}

	folder, err := s.findFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	relPath := filepath.Join(folder.ID, fileID+filepath.Ext(name))
	written, err := s.store.SaveStream(relPath, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if written > s.maxSize {
		if err := s.store.Remove(relPath); err != nil {
			s.logger.Warn("failed to clean up oversized upload", zap.String("path", relPath), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxSize))
	}

	file := &models.GuidelineFile{
		ID:         fileID,
		FolderID:   folder.ID,
		Name:       name,
		RelPath:    relPath,
		MimeType:   mimeType,
		SizeBytes:  written,
		UploadedBy: &uploadedBy,
	}
	if err := s.repo.CreateFile(ctx, file); err != nil {
		if rmErr := s.store.Remove(relPath); rmErr != nil {
			s.logger.Warn("failed to clean up orphaned upload", zap.String("path", relPath), zap.Error(rmErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record file")
	}
	return file, nil
}

// ListFiles returns the files inside a folder.
func (s *GuidelineService) ListFiles(ctx context.Context, folderID string) ([]models.GuidelineFile, error) {
	if _, err := s.findFolder(ctx, folderID); err != nil {
		return nil, err
	}
	files, err := s.repo.ListFiles(ctx, folderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
	}
	if files == nil {
		files = []models.GuidelineFile{}
	}
	return files, nil
}

// DownloadLink issues a short-lived signed token for a stored file.
func (s *GuidelineService) DownloadLink(ctx context.Context, fileID, baseURL string) (*dto.FileDownload, error) {
	file, err := s.findFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(file.ID, file.RelPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.FileDownload{
		FileID:    file.ID,
		URL:       baseURL + "?token=" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the underlying file.
func (s *GuidelineService) ResolveDownload(ctx context.Context, token string) (*models.GuidelineFile, *os.File, error) {
	fileID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.findFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.RelPath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match file")
	}
	handle, err := s.store.Open(file.RelPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return file, handle, nil
}

// DeleteFile removes a file's metadata and stored bytes.
func (s *GuidelineService) DeleteFile(ctx context.Context, fileID string) error {
	file, err := s.findFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteFile(ctx, file.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete file")
	}
	if err := s.store.Remove(file.RelPath); err != nil {
		s.logger.Warn("failed to remove stored file", zap.String("file_id", file.ID), zap.Error(err))
	}
	return nil
}

func (s *GuidelineService) findFolder(ctx context.Context, id string) (*models.GuidelineFolder, error) {
	folder, err := s.repo.FindFolderByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	return folder, nil
}

func (s *GuidelineService) findFile(ctx context.Context, id string) (*models.GuidelineFile, error) {
	file, err := s.repo.FindFileByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	return file, nil
}
