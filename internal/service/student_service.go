package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bimbel-api/internal/dto"
	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type studentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	UpdateProfile(ctx context.Context, student *models.Student) error
	UpdateStatus(ctx context.Context, id string, status models.StudentStatus, reviewedBy, note string, reviewedAt time.Time) error
}

type studentUserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// StudentService manages student registration, admin review and profile
// maintenance. New registrations always start pending; only an admin review
// can flip them to approved or rejected.
type StudentService struct {
	repo      studentRepository
	users     studentUserStore
	notifier  notifier
	auditor   auditor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, users studentUserStore, notifier notifier, auditor auditor, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, notifier: notifier, auditor: auditor, validator: validate, logger: logger}
}

// Register creates the user account and its pending student profile.
func (s *StudentService) Register(ctx context.Context, req dto.RegisterStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleStudent,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	student := &models.Student{
		UserID:     user.ID,
		FullName:   req.FullName,
		Phone:      req.Phone,
		School:     req.School,
		GradeLevel: req.GradeLevel,
		Status:     models.StudentStatusPending,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student profile")
	}

	return student, nil
}

// Review records an admin decision on a pending registration and notifies
// the student.
func (s *StudentService) Review(ctx context.Context, id string, req dto.ReviewStudentRequest, actor *models.JWTClaims) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.StudentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "registration has already been reviewed")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, student.ID, req.Status, actor.UserID, req.Note, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration status")
	}
	student.Status = req.Status
	student.StatusNote = req.Note
	student.ReviewedBy = &actor.UserID
	student.ReviewedAt = &now

	if s.auditor != nil {
		values, _ := json.Marshal(map[string]string{"status": string(req.Status)})
		if err := s.auditor.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionStudentReview,
			Resource:   "student",
			ResourceID: &student.ID,
			NewValues:  values,
		}); err != nil {
			s.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}

	if s.notifier != nil {
		title := "Registration approved"
		message := "Your registration has been approved. You can now request class enrollment."
		if req.Status == models.StudentStatusRejected {
			title = "Registration rejected"
			message = "Your registration has been rejected."
		}
		data := map[string]string{"student_id": student.ID, "status": string(req.Status)}
		if err := s.notifier.Notify(ctx, student.UserID, models.NotificationTypeStudentReviewed, title, message, data); err != nil {
			s.logger.Warn("failed to dispatch notification", zap.String("student_id", student.ID), zap.Error(err))
		}
	}

	return student, nil
}

// Get returns a student profile by identifier.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetOwn returns the calling user's student profile.
func (s *StudentService) GetOwn(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// UpdateOwn edits the calling user's profile fields. Review status is not
// touched here.
func (s *StudentService) UpdateOwn(ctx context.Context, userID string, req dto.UpdateStudentProfileRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	student, err := s.GetOwn(ctx, userID)
	if err != nil {
		return nil, err
	}

	student.FullName = req.FullName
	student.Phone = req.Phone
	student.School = req.School
	student.GradeLevel = req.GradeLevel
	if err := s.repo.UpdateProfile(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return student, nil
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
