package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
)

// PaymentRepository implements the repositories.PaymentRepository interface
type PaymentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *DB, logger *zap.Logger) repositories.PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

const paymentColumns = `id, submission_id, stripe_session_id, amount_cents, currency, status,
	checkout_url, verified_at, verified_by, created_at, updated_at`

// Create creates a new payment
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		p.ID,
		p.SubmissionID,
		p.StripeSessionID,
		p.AmountCents,
		p.Currency,
		p.Status,
		p.CheckoutURL,
		p.VerifiedAt,
		p.VerifiedBy,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", translateError(err))
	}

	r.logger.Debug("payment created",
		zap.String("id", p.ID.String()),
		zap.String("submission_id", p.SubmissionID.String()),
		zap.String("session_id", p.StripeSessionID))
	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	executor := GetExecutor(ctx, r.db)
	p, err := scanPayment(executor.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", id, translateError(err))
	}
	return p, nil
}

// GetBySessionID retrieves a payment by its checkout session
func (r *PaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	executor := GetExecutor(ctx, r.db)
	p, err := scanPayment(executor.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE stripe_session_id = $1`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment for session %s: %w", sessionID, translateError(err))
	}
	return p, nil
}

// ListBySubmission retrieves all payments of a submission, newest first
func (r *PaymentRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE submission_id = $1 ORDER BY created_at DESC`
	return r.queryPayments(ctx, query, submissionID)
}

// List retrieves payments matching the filter, newest first
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, int, error) {
	var conds []string
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SubmissionID != nil {
		args = append(args, *filter.SubmissionID)
		conds = append(conds, fmt.Sprintf("submission_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	executor := GetExecutor(ctx, r.db)
	var total int
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	payments, err := r.queryPayments(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListPendingBefore returns pending payments created before the given instant, oldest first
func (r *PaymentRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	return r.queryPayments(ctx, query, models.PaymentPending, before, limitOrDefault(limit))
}

// Update persists status and verification fields
func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, verified_at = $3, verified_by = $4, updated_at = $5
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		p.ID,
		p.Status,
		p.VerifiedAt,
		p.VerifiedBy,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("failed to update payment %s: %w", p.ID, err)
	}

	r.logger.Debug("payment updated", zap.String("id", p.ID.String()), zap.String("status", string(p.Status)))
	return nil
}

func (r *PaymentRepository) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*models.Payment, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}
	return payments, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	var checkoutURL sql.NullString
	var verifiedAt sql.NullTime
	var verifiedBy uuid.NullUUID

	if err := row.Scan(&p.ID, &p.SubmissionID, &p.StripeSessionID, &p.AmountCents, &p.Currency, &p.Status,
		&checkoutURL, &verifiedAt, &verifiedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CheckoutURL = checkoutURL.String
	if verifiedAt.Valid {
		p.VerifiedAt = &verifiedAt.Time
	}
	if verifiedBy.Valid {
		p.VerifiedBy = &verifiedBy.UUID
	}
	return p, nil
}
