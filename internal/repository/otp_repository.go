package repository

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPRepository stores short-lived password reset codes in Redis. Codes
// expire on their own via TTL; a successful verification consumes the code.
type OTPRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOTPRepository constructs the repository.
func NewOTPRepository(client *redis.Client, ttl time.Duration) *OTPRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OTPRepository{client: client, ttl: ttl}
}

func otpKey(email string) string {
	return "otp:reset:" + strings.ToLower(strings.TrimSpace(email))
}

// Store saves the code for the email, replacing any previous one.
func (r *OTPRepository) Store(ctx context.Context, email, code string) error {
	if err := r.client.Set(ctx, otpKey(email), code, r.ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

// Verify reports whether the code matches the stored one. A match consumes
// the code so it cannot be replayed.
func (r *OTPRepository) Verify(ctx context.Context, email, code string) (bool, error) {
	stored, err := r.client.Get(ctx, otpKey(email)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("fetch otp: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}
	if err := r.client.Del(ctx, otpKey(email)).Err(); err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return true, nil
}

// Invalidate drops any outstanding code for the email.
func (r *OTPRepository) Invalidate(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, otpKey(email)).Err(); err != nil {
		return fmt.Errorf("invalidate otp: %w", err)
	}
	return nil
}
