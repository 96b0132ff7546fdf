package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/dto"
	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/storage"
)

type mockGuidelineRepo struct {
	folders map[string]*models.GuidelineFolder
	files   map[string]*models.GuidelineFile
}

func newMockGuidelineRepo() *mockGuidelineRepo {
	return &mockGuidelineRepo{
		folders: map[string]*models.GuidelineFolder{},
		files:   map[string]*models.GuidelineFile{},
	}
}

func (m *mockGuidelineRepo) CreateFolder(ctx context.Context, folder *models.GuidelineFolder) error {
	if folder.ID == "" {
		folder.ID = "folder-" + folder.Name
	}
	m.folders[folder.ID] = folder
	return nil
}

func (m *mockGuidelineRepo) FindFolderByID(ctx context.Context, id string) (*models.GuidelineFolder, error) {
	f, ok := m.folders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return f, nil
}

func (m *mockGuidelineRepo) ListFolders(ctx context.Context, subject string) ([]models.GuidelineFolder, error) {
	var out []models.GuidelineFolder
	for _, f := range m.folders {
		if subject != "" && f.Subject != subject {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (m *mockGuidelineRepo) UpdateFolder(ctx context.Context, folder *models.GuidelineFolder) error {
	if _, ok := m.folders[folder.ID]; !ok {
		return sql.ErrNoRows
	}
	m.folders[folder.ID] = folder
	return nil
}

func (m *mockGuidelineRepo) DeleteFolder(ctx context.Context, id string) error {
	if _, ok := m.folders[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.folders, id)
	return nil
}

func (m *mockGuidelineRepo) CreateFile(ctx context.Context, file *models.GuidelineFile) error {
	m.files[file.ID] = file
	return nil
}

func (m *mockGuidelineRepo) FindFileByID(ctx context.Context, id string) (*models.GuidelineFile, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return f, nil
}

func (m *mockGuidelineRepo) ListFiles(ctx context.Context, folderID string) ([]models.GuidelineFile, error) {
	var out []models.GuidelineFile
	for _, f := range m.files {
		if f.FolderID == folderID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *mockGuidelineRepo) DeleteFile(ctx context.Context, id string) error {
	if _, ok := m.files[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.files, id)
	return nil
}

func newGuidelineService(t *testing.T, repo *mockGuidelineRepo, maxSize int64) *GuidelineService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewGuidelineService(repo, store, signer, maxSize, validator.New(), zap.NewNop())
}

func TestGuidelineServiceUploadAndDownload(t *testing.T) {
	repo := newMockGuidelineRepo()
	repo.folders["folder-1"] = &models.GuidelineFolder{ID: "folder-1", Name: "Algebra", Subject: "Math"}
	svc := newGuidelineService(t, repo, 1<<20)

	content := "chapter one: linear equations"
	file, err := svc.UploadFile(context.Background(), "folder-1", "algebra.pdf", "application/pdf", int64(len(content)), strings.NewReader(content), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "folder-1", file.FolderID)
	assert.Equal(t, int64(len(content)), file.SizeBytes)
	assert.Contains(t, file.RelPath, "folder-1")

	link, err := svc.DownloadLink(context.Background(), file.ID, "/api/v1/guidelines/download")
	require.NoError(t, err)
	assert.Contains(t, link.URL, "token=")

	token := strings.TrimPrefix(link.URL, "/api/v1/guidelines/download?token=")
	resolved, handle, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer handle.Close() //nolint:errcheck

	assert.Equal(t, file.ID, resolved.ID)
	stored, err := io.ReadAll(handle)
	require.NoError(t, err)
	assert.Equal(t, content, string(stored))
}

func TestGuidelineServiceUploadOversized(t *testing.T) {
	repo := newMockGuidelineRepo()
	repo.folders["folder-1"] = &models.GuidelineFolder{ID: "folder-1", Name: "Algebra", Subject: "Math"}
	svc := newGuidelineService(t, repo, 16)

	// Declared size lies; the stream itself is over the limit.
	content := strings.Repeat("a", 64)
	_, err := svc.UploadFile(context.Background(), "folder-1", "big.pdf", "application/pdf", 10, strings.NewReader(content), "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.files)
}

func TestGuidelineServiceUploadUnknownFolder(t *testing.T) {
	svc := newGuidelineService(t, newMockGuidelineRepo(), 1<<20)

	_, err := svc.UploadFile(context.Background(), "missing", "doc.pdf", "application/pdf", 4, strings.NewReader("body"), "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGuidelineServiceResolveDownloadBadToken(t *testing.T) {
	svc := newGuidelineService(t, newMockGuidelineRepo(), 1<<20)

	_, _, err := svc.ResolveDownload(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestGuidelineServiceDeleteFolderRemovesFiles(t *testing.T) {
	repo := newMockGuidelineRepo()
	repo.folders["folder-1"] = &models.GuidelineFolder{ID: "folder-1", Name: "Algebra", Subject: "Math"}
	svc := newGuidelineService(t, repo, 1<<20)

	_, err := svc.UploadFile(context.Background(), "folder-1", "doc.pdf", "application/pdf", 4, strings.NewReader("body"), "admin-1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFolder(context.Background(), "folder-1"))
	assert.Empty(t, repo.folders)

	_, err = svc.ListFiles(context.Background(), "folder-1")
	require.Error(t, err)
}

func TestGuidelineServiceFolderCRUD(t *testing.T) {
	repo := newMockGuidelineRepo()
	svc := newGuidelineService(t, repo, 1<<20)

	folder, err := svc.CreateFolder(context.Background(), dto.CreateFolderRequest{Name: "Algebra", Subject: "Math"}, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, folder.CreatedBy)
	assert.Equal(t, "admin-1", *folder.CreatedBy)

	updated, err := svc.UpdateFolder(context.Background(), folder.ID, dto.UpdateFolderRequest{Name: "Geometry", Subject: "Math"})
	require.NoError(t, err)
	assert.Equal(t, "Geometry", updated.Name)

	folders, err := svc.ListFolders(context.Background(), "Math")
	require.NoError(t, err)
	require.Len(t, folders, 1)
}
