package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upb/imu-filing/services/checkout"
)

// PaymentReconciler verifies stale pending payments
type PaymentReconciler interface {
	ReconcilePending(ctx context.Context) (*checkout.ReconcileResult, error)
}

// AttemptCleaner removes old login attempts
type AttemptCleaner interface {
	CleanupOldAttempts(ctx context.Context, retention time.Duration) (int64, error)
}

// ReconcileJob checks pending payments against the gateway
type ReconcileJob struct {
	reconciler PaymentReconciler
}

// NewReconcileJob creates the payment reconciliation job
func NewReconcileJob(reconciler PaymentReconciler) *ReconcileJob {
	return &ReconcileJob{reconciler: reconciler}
}

// Name implements Job
func (j *ReconcileJob) Name() string {
	return "payment_reconcile"
}

// Run implements Job
func (j *ReconcileJob) Run(ctx context.Context) error {
	_, err := j.reconciler.ReconcilePending(ctx)
	return err
}

// LoginCleanupJob deletes login attempts older than the retention
type LoginCleanupJob struct {
	cleaner   AttemptCleaner
	retention time.Duration
	logger    *zap.Logger
}

// NewLoginCleanupJob creates the login attempt cleanup job
func NewLoginCleanupJob(cleaner AttemptCleaner, retention time.Duration, logger *zap.Logger) *LoginCleanupJob {
	return &LoginCleanupJob{cleaner: cleaner, retention: retention, logger: logger}
}

// Name implements Job
func (j *LoginCleanupJob) Name() string {
	return "login_attempt_cleanup"
}

// Run implements Job
func (j *LoginCleanupJob) Run(ctx context.Context) error {
	n, err := j.cleaner.CleanupOldAttempts(ctx, j.retention)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("old login attempts removed", zap.Int64("count", n))
	}
	return nil
}
