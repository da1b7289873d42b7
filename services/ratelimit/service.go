// Package ratelimit throttles password logins per email address over a sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
)

// Config holds the throttle limits
type Config struct {
	MaxAttempts int           // failures allowed inside Window
	Window      time.Duration // sliding window length
}

// LoginCheckResult represents the result of a throttle check
type LoginCheckResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time // zero when allowed
}

// LoginThrottle counts failed logins per email. A successful login resets the count.
type LoginThrottle struct {
	attempts repositories.LoginAttemptRepository
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewLoginThrottle creates a new LoginThrottle instance
func NewLoginThrottle(attempts repositories.LoginAttemptRepository, config Config, logger *zap.Logger) *LoginThrottle {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &LoginThrottle{
		attempts: attempts,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Check reports whether email may attempt another login
func (t *LoginThrottle) Check(ctx context.Context, email string) (*LoginCheckResult, error) {
	now := t.now()
	windowStart := t.windowStart(now)

	count, oldest, err := t.attempts.FailuresSince(ctx, email, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to check login window: %w", err)
	}

	if count >= t.config.MaxAttempts {
		retryAt := oldest.Add(t.config.Window)
		if oldest.IsZero() || retryAt.Before(now) {
			retryAt = now.Add(t.config.Window)
		}
		return &LoginCheckResult{Allowed: false, Remaining: 0, RetryAt: retryAt}, nil
	}

	return &LoginCheckResult{Allowed: true, Remaining: t.config.MaxAttempts - count}, nil
}

// Record stores the outcome of a login attempt
func (t *LoginThrottle) Record(ctx context.Context, email, ip string, success bool) error {
	attempt := models.NewLoginAttempt(email, ip, success)
	attempt.CreatedAt = t.now()
	if err := t.attempts.Record(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// CleanupOldAttempts removes attempts older than retention to keep the table size manageable
func (t *LoginThrottle) CleanupOldAttempts(ctx context.Context, retention time.Duration) (int64, error) {
	cutoffTime := t.now().Add(-retention)

	rowsDeleted, err := t.attempts.DeleteBefore(ctx, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old login attempts: %w", err)
	}

	t.logger.Info("cleaned up old login attempts",
		zap.Int64("rows_deleted", rowsDeleted),
		zap.Time("cutoff_time", cutoffTime))

	return rowsDeleted, nil
}

func (t *LoginThrottle) windowStart(now time.Time) time.Time {
	return now.Add(-t.config.Window)
}
