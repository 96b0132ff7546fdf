package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/mailer"
)

type mockAuthRepo struct {
	users         map[string]*models.User // by email
	byID          map[string]*models.User
	refreshTokens map[string]*models.RefreshToken

	revokedAll       []string
	revokedTokens    []string
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
	passwordUpdated  map[string]string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:           map[string]*models.User{},
		byID:            map[string]*models.User{},
		refreshTokens:   map[string]*models.RefreshToken{},
		passwordUpdated: map[string]string{},
	}
}

func (m *mockAuthRepo) addUser(u *models.User) {
	m.users[u.Email] = u
	m.byID[u.ID] = u
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordUpdated[id] = passwordHash
	if u, ok := m.byID[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	t, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revokedTokens = append(m.revokedTokens, id)
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockOTPStore struct {
	codes       map[string]string
	invalidated []string
}

func newMockOTPStore() *mockOTPStore {
	return &mockOTPStore{codes: map[string]string{}}
}

func (m *mockOTPStore) Store(ctx context.Context, email, code string) error {
	m.codes[email] = code
	return nil
}

func (m *mockOTPStore) Verify(ctx context.Context, email, code string) (bool, error) {
	stored, ok := m.codes[email]
	if !ok || stored != code {
		return false, nil
	}
	delete(m.codes, email)
	return true, nil
}

func (m *mockOTPStore) Invalidate(ctx context.Context, email string) error {
	m.invalidated = append(m.invalidated, email)
	delete(m.codes, email)
	return nil
}

type mockMailer struct {
	sent []mailer.Message
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthService(repo *mockAuthRepo, otp *mockOTPStore, mail *mockMailer) *AuthService {
	return NewAuthService(repo, otp, mail, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "bimbel-api",
		Audience:           []string{"bimbel-clients"},
		OTPDigits:          6,
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "dina@example.com",
		PasswordHash: hashPassword(t, "secret123"),
		FullName:     "Dina Putri",
		Role:         models.RoleStudent,
		Active:       true,
	})
	svc := newAuthService(repo, newMockOTPStore(), &mockMailer{})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "dina@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginInvalidPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "dina@example.com",
		PasswordHash: hashPassword(t, "secret123"),
		Active:       true,
	})
	svc := newAuthService(repo, newMockOTPStore(), &mockMailer{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dina@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "dina@example.com",
		PasswordHash: hashPassword(t, "secret123"),
		Active:       false,
	})
	svc := newAuthService(repo, newMockOTPStore(), &mockMailer{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dina@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenRotation(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "user-1", Email: "dina@example.com", Active: true})
	repo.refreshTokens["old-token"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "old-token",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := newAuthService(repo, newMockOTPStore(), &mockMailer{})

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.Contains(t, repo.revokedTokens, "rt-1")
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	repo := newMockAuthRepo()
	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	svc := newAuthService(repo, newMockOTPStore(), &mockMailer{})

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceForgotPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "user-1", Email: "dina@example.com", FullName: "Dina", Active: true})
	otp := newMockOTPStore()
	mail := &mockMailer{}
	svc := newAuthService(repo, otp, mail)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "dina@example.com"}))

	code, ok := otp.codes["dina@example.com"]
	require.True(t, ok)
	assert.Len(t, code, 6)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "dina@example.com", mail.sent[0].ToEmail)
	assert.Contains(t, mail.sent[0].Text, code)
}

func TestAuthServiceForgotPasswordUnknownEmail(t *testing.T) {
	otp := newMockOTPStore()
	mail := &mockMailer{}
	svc := newAuthService(newMockAuthRepo(), otp, mail)

	// Unknown accounts get the same silent success so the endpoint does not
	// reveal which emails exist.
	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ghost@example.com"}))
	assert.Empty(t, otp.codes)
	assert.Empty(t, mail.sent)
}

func TestAuthServiceResetPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "user-1", Email: "dina@example.com", PasswordHash: hashPassword(t, "old-pass"), Active: true})
	otp := newMockOTPStore()
	otp.codes["dina@example.com"] = "123456"
	svc := newAuthService(repo, otp, &mockMailer{})

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Email:       "dina@example.com",
		Code:        "123456",
		NewPassword: "fresh-pass",
	})
	require.NoError(t, err)

	hash := repo.passwordUpdated["user-1"]
	require.NotEmpty(t, hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("fresh-pass")))
	assert.Contains(t, repo.revokedAll, "user-1")

	// The code is single-use.
	err = svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Email:       "dina@example.com",
		Code:        "123456",
		NewPassword: "another-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOTP.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceResetPasswordWrongCode(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "user-1", Email: "dina@example.com", Active: true})
	otp := newMockOTPStore()
	otp.codes["dina@example.com"] = "123456"
	svc := newAuthService(repo, otp, &mockMailer{})

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Email:       "dina@example.com",
		Code:        "654321",
		NewPassword: "fresh-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOTP.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.passwordUpdated)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "user-1", Email: "dina@example.com", PasswordHash: hashPassword(t, "old-pass"), Active: true})
	svc := newAuthService(repo, newMockOTPStore(), &mockMailer{})

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "old-pass",
		NewPassword: "new-pass",
	})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedAll, "user-1")
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "user-1", Email: "dina@example.com", PasswordHash: hashPassword(t, "old-pass"), Active: true})
	svc := newAuthService(repo, newMockOTPStore(), &mockMailer{})

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "not-it",
		NewPassword: "new-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
