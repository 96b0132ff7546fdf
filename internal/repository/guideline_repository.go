package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bimbel-api/internal/models"
)

// GuidelineRepository handles persistence of guideline folders and files.
type GuidelineRepository struct {
	db *sqlx.DB
}

// NewGuidelineRepository constructs the repository.
func NewGuidelineRepository(db *sqlx.DB) *GuidelineRepository {
	return &GuidelineRepository{db: db}
}

// CreateFolder persists a new folder.
func (r *GuidelineRepository) CreateFolder(ctx context.Context, folder *models.GuidelineFolder) error {
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = now
	}
	folder.UpdatedAt = now
	const query = `INSERT INTO guideline_folders (id, name, subject, created_by, created_at, updated_at)
        VALUES (:id, :name, :subject, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, folder); err != nil {
		return fmt.Errorf("create guideline folder: %w", err)
	}
	return nil
}

// FindFolderByID returns a folder by identifier.
func (r *GuidelineRepository) FindFolderByID(ctx context.Context, id string) (*models.GuidelineFolder, error) {
	const query = `SELECT id, name, subject, created_by, created_at, updated_at FROM guideline_folders WHERE id = $1 LIMIT 1`
	var folder models.GuidelineFolder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		return nil, err
	}
	return &folder, nil
}

// ListFolders returns folders optionally filtered by subject.
func (r *GuidelineRepository) ListFolders(ctx context.Context, subject string) ([]models.GuidelineFolder, error) {
	query := `SELECT id, name, subject, created_by, created_at, updated_at FROM guideline_folders`
	var args []interface{}
	if subject != "" {
		query += ` WHERE LOWER(subject) = $1`
		args = append(args, strings.ToLower(subject))
	}
	query += ` ORDER BY subject ASC, name ASC`
	var folders []models.GuidelineFolder
	if err := r.db.SelectContext(ctx, &folders, query, args...); err != nil {
		return nil, fmt.Errorf("list guideline folders: %w", err)
	}
	return folders, nil
}

// UpdateFolder renames or re-subjects a folder.
func (r *GuidelineRepository) UpdateFolder(ctx context.Context, folder *models.GuidelineFolder) error {
	folder.UpdatedAt = time.Now().UTC()
	const query = `UPDATE guideline_folders SET name = :name, subject = :subject, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, folder)
	if err != nil {
		return fmt.Errorf("update guideline folder: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFolder removes a folder; files cascade at the database level.
func (r *GuidelineRepository) DeleteFolder(ctx context.Context, id string) error {
	const query = `DELETE FROM guideline_folders WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete guideline folder: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateFile persists file metadata.
func (r *GuidelineRepository) CreateFile(ctx context.Context, file *models.GuidelineFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO guideline_files (id, folder_id, name, rel_path, mime_type, size_bytes, uploaded_by, created_at)
        VALUES (:id, :folder_id, :name, :rel_path, :mime_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create guideline file: %w", err)
	}
	return nil
}

// FindFileByID returns file metadata by identifier.
func (r *GuidelineRepository) FindFileByID(ctx context.Context, id string) (*models.GuidelineFile, error) {
	const query = `SELECT id, folder_id, name, rel_path, mime_type, size_bytes, uploaded_by, created_at FROM guideline_files WHERE id = $1 LIMIT 1`
	var file models.GuidelineFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		return nil, err
	}
	return &file, nil
}

// ListFiles returns the files within a folder.
func (r *GuidelineRepository) ListFiles(ctx context.Context, folderID string) ([]models.GuidelineFile, error) {
	const query = `SELECT id, folder_id, name, rel_path, mime_type, size_bytes, uploaded_by, created_at FROM guideline_files WHERE folder_id = $1 ORDER BY name ASC`
	var files []models.GuidelineFile
	if err := r.db.SelectContext(ctx, &files, query, folderID); err != nil {
		return nil, fmt.Errorf("list guideline files: %w", err)
	}
	return files, nil
}

// DeleteFile removes file metadata.
func (r *GuidelineRepository) DeleteFile(ctx context.Context, id string) error {
	const query = `DELETE FROM guideline_files WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete guideline file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
