package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
)

// LoginAttemptRepository implements the repositories.LoginAttemptRepository interface
type LoginAttemptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLoginAttemptRepository creates a new login attempt repository
func NewLoginAttemptRepository(db *DB, logger *zap.Logger) repositories.LoginAttemptRepository {
	return &LoginAttemptRepository{
		db:     db,
		logger: logger,
	}
}

// Record stores a login attempt
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (id, email, success, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.Success,
		attempt.IPAddress,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// FailuresSince counts failures for email after since that are not followed by a success
func (r *LoginAttemptRepository) FailuresSince(ctx context.Context, email string, since time.Time) (int, time.Time, error) {
	query := `
		SELECT COUNT(*), MIN(created_at)
		FROM login_attempts
		WHERE email = $1
		  AND NOT success
		  AND created_at >= GREATEST($2, COALESCE(
		      (SELECT MAX(created_at) FROM login_attempts WHERE email = $1 AND success), $2))
	`

	executor := GetExecutor(ctx, r.db)
	var count int
	var oldest sql.NullTime
	if err := executor.QueryRowContext(ctx, query, models.NormalizeEmail(email), since).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to count login failures: %w", err)
	}
	return count, oldest.Time, nil
}

// DeleteBefore removes attempts older than before
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM login_attempts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete login attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("old login attempts deleted", zap.Int64("count", n))
	return n, nil
}
