// Package checkout opens hosted payment sessions for submissions and
// reconciles their outcome.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
	"github.com/upb/imu-filing/services"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/gateway"
	"github.com/upb/imu-filing/services/notify"
)

// sessionReuseWindow is how long an open pending session is handed out again
// instead of opening a new one
const sessionReuseWindow = 30 * time.Minute

// Config holds checkout settings
type Config struct {
	SuccessURL     string
	CancelURL      string
	Description    string
	RequestTimeout time.Duration // bound on each gateway call
	PendingGrace   time.Duration // pending payments younger than this are left alone by ReconcilePending
	ReconcileBatch int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Description:    "IMU filing",
		RequestTimeout: 15 * time.Second,
		PendingGrace:   30 * time.Minute,
		ReconcileBatch: 100,
	}
}

// SessionResult is returned to the browser, which redirects to CheckoutURL
type SessionResult struct {
	PaymentID   uuid.UUID         `json:"payment_id"`
	SessionID   string            `json:"session_id"`
	CheckoutURL string            `json:"checkout_url"`
	Pricing     pricing.Breakdown `json:"pricing"`
}

// VerifyResult is the outcome of a verification
type VerifyResult struct {
	Payment          *models.Payment         `json:"payment"`
	SubmissionStatus models.SubmissionStatus `json:"submission_status"`
	Paid             bool                    `json:"paid"`
}

// ReconcileResult summarises one reconciliation run
type ReconcileResult struct {
	Checked int `json:"checked"`
	Paid    int `json:"paid"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Service handles checkout sessions and payment verification
type Service struct {
	submissions repositories.SubmissionRepository
	payments    repositories.PaymentRepository
	txManager   repositories.TransactionManager
	calculator  *pricing.Calculator
	gateway     gateway.Gateway
	sender      notify.Sender
	audit       audit.Recorder
	config      Config
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new checkout Service
func NewService(
	submissions repositories.SubmissionRepository,
	payments repositories.PaymentRepository,
	txManager repositories.TransactionManager,
	calculator *pricing.Calculator,
	gw gateway.Gateway,
	sender notify.Sender,
	recorder audit.Recorder,
	config Config,
	logger *zap.Logger,
) *Service {
	defaults := DefaultConfig()
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.PendingGrace <= 0 {
		config.PendingGrace = defaults.PendingGrace
	}
	if config.ReconcileBatch <= 0 {
		config.ReconcileBatch = defaults.ReconcileBatch
	}
	if config.Description == "" {
		config.Description = defaults.Description
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		submissions: submissions,
		payments:    payments,
		txManager:   txManager,
		calculator:  calculator,
		gateway:     gw,
		sender:      sender,
		audit:       recorder,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateSession prices the stored submission again and opens a checkout session for it
func (s *Service) CreateSession(ctx context.Context, submissionID uuid.UUID, meta audit.Meta) (*SessionResult, error) {
	sub, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionDraft && sub.Status != models.SubmissionPendingPayment {
		return nil, services.NewDomainError(services.ErrorTypeConflict, services.ErrSubmissionNotPayable.Message, nil).
			WithDetail("status", sub.Status)
	}

	breakdown := s.calculator.Quote(len(sub.Owners), len(sub.Properties), sub.HasDocumentRetrieval)
	if !breakdown.Equal(sub.Pricing) {
		s.logger.Warn("price changed since submission",
			zap.String("submission_id", sub.ID.String()),
			zap.String("stored_total", sub.Pricing.Total.StringFixed(2)),
			zap.String("current_total", breakdown.Total.StringFixed(2)),
			zap.String("tier", string(breakdown.Tier)))
	}
	amount := breakdown.AmountCents()

	if reused := s.reusableSession(ctx, sub.ID, amount); reused != nil {
		return &SessionResult{
			PaymentID:   reused.ID,
			SessionID:   reused.StripeSessionID,
			CheckoutURL: reused.CheckoutURL,
			Pricing:     breakdown,
		}, nil
	}

	paymentID := uuid.New()
	gwCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	session, err := s.gateway.CreateCheckoutSession(gwCtx, &gateway.SessionRequest{
		SubmissionID:   sub.ID,
		AmountCents:    amount,
		Currency:       breakdown.Currency,
		Description:    s.config.Description,
		CustomerEmail:  sub.Contact.Email,
		SuccessURL:     s.config.SuccessURL,
		CancelURL:      s.config.CancelURL,
		IdempotencyKey: paymentID.String(),
	})
	if err != nil {
		s.logger.Error("failed to create checkout session",
			zap.Error(err),
			zap.String("submission_id", sub.ID.String()),
			zap.String("request_id", meta.RequestID))
		return nil, mapGatewayError(err)
	}

	payment := models.NewPayment(sub.ID, session.ID, amount, breakdown.Currency, session.URL)
	payment.ID = paymentID
	payment.CreatedAt, payment.UpdatedAt = s.now(), s.now()

	err = services.WithTransaction(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.payments.Create(ctx, payment); err != nil {
			return err
		}
		sub.Pricing = breakdown
		sub.Status = models.SubmissionPendingPayment
		sub.StripeSessionID = &session.ID
		sub.UpdatedAt = s.now()
		return s.submissions.Update(ctx, sub)
	})
	if err != nil {
		return nil, services.WrapInternal("failed to store checkout session", err)
	}

	s.audit.Record(meta, models.AuditActionCheckoutStarted, models.ResourcePayment, &payment.ID,
		map[string]interface{}{
			"submission_id": sub.ID,
			"session_id":    session.ID,
			"amount_cents":  amount,
			"tier":          breakdown.Tier,
		})
	s.logger.Info("checkout session opened",
		zap.String("submission_id", sub.ID.String()),
		zap.String("session_id", session.ID),
		zap.Int64("amount_cents", amount),
		zap.String("request_id", meta.RequestID))

	return &SessionResult{
		PaymentID:   payment.ID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Pricing:     breakdown,
	}, nil
}

// reusableSession returns a recent pending payment for the same amount, if any
func (s *Service) reusableSession(ctx context.Context, submissionID uuid.UUID, amount int64) *models.Payment {
	existing, err := s.payments.ListBySubmission(ctx, submissionID)
	if err != nil {
		s.logger.Warn("failed to look up pending payments", zap.Error(err), zap.String("submission_id", submissionID.String()))
		return nil
	}
	cutoff := s.now().Add(-sessionReuseWindow)
	for _, p := range existing {
		if p.Status == models.PaymentPending && p.AmountCents == amount && p.CheckoutURL != "" && p.CreatedAt.After(cutoff) {
			return p
		}
	}
	return nil
}

// Verify asks the gateway for the state of a session and records the
// outcome. Verifying an already paid session changes nothing.
func (s *Service) Verify(ctx context.Context, sessionID string, meta audit.Meta) (*VerifyResult, error) {
	if sessionID == "" {
		return nil, services.InvalidField("session_id", "session_id is required")
	}

	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrPaymentNotFound, sessionID)
		}
		return nil, services.WrapInternal("failed to get payment", err)
	}
	return s.verifyPayment(ctx, payment, meta)
}

// VerifyPayment is Verify addressed by payment id, used from the back-office
func (s *Service) VerifyPayment(ctx context.Context, paymentID uuid.UUID, meta audit.Meta) (*VerifyResult, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrPaymentNotFound, paymentID)
		}
		return nil, services.WrapInternal("failed to get payment", err)
	}
	return s.verifyPayment(ctx, payment, meta)
}

func (s *Service) verifyPayment(ctx context.Context, payment *models.Payment, meta audit.Meta) (*VerifyResult, error) {
	if payment.Status.IsFinal() {
		return s.result(ctx, payment)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	session, err := s.gateway.GetCheckoutSession(gwCtx, payment.StripeSessionID)
	if err != nil {
		s.logger.Error("failed to retrieve checkout session",
			zap.Error(err),
			zap.String("session_id", payment.StripeSessionID),
			zap.String("request_id", meta.RequestID))
		return nil, mapGatewayError(err)
	}

	switch {
	case session.IsPaid():
		if err := s.checkAmount(payment, session, meta); err != nil {
			return nil, err
		}
		return s.markPaid(ctx, payment, meta)
	case session.IsExpired():
		return s.markExpired(ctx, payment, meta)
	}
	return s.result(ctx, payment)
}

// checkAmount refuses a paid session whose total or currency differs from
// the payment opened for it. The payment stays pending for manual review.
func (s *Service) checkAmount(payment *models.Payment, session *gateway.Session, meta audit.Meta) error {
	if session.AmountTotal == payment.AmountCents && strings.EqualFold(session.Currency, payment.Currency) {
		return nil
	}

	s.logger.Error("paid amount does not match payment",
		zap.String("payment_id", payment.ID.String()),
		zap.String("session_id", payment.StripeSessionID),
		zap.Int64("expected_cents", payment.AmountCents),
		zap.Int64("paid_cents", session.AmountTotal),
		zap.String("expected_currency", payment.Currency),
		zap.String("paid_currency", session.Currency),
		zap.String("request_id", meta.RequestID))
	s.audit.Record(meta, models.AuditActionPaymentMismatch, models.ResourcePayment, &payment.ID,
		map[string]interface{}{
			"submission_id":     payment.SubmissionID,
			"session_id":        payment.StripeSessionID,
			"expected_cents":    payment.AmountCents,
			"paid_cents":        session.AmountTotal,
			"expected_currency": payment.Currency,
			"paid_currency":     session.Currency,
		})

	return services.NewDomainError(services.ErrorTypeConflict, services.ErrPaymentAmountMismatch.Message, nil).
		WithDetail("expected_cents", payment.AmountCents).
		WithDetail("paid_cents", session.AmountTotal)
}

func (s *Service) markPaid(ctx context.Context, payment *models.Payment, meta audit.Meta) (*VerifyResult, error) {
	var sub *models.Submission
	var previous models.SubmissionStatus

	err := services.WithTransaction(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) error {
		now := s.now()
		payment.Status = models.PaymentPaid
		payment.VerifiedAt = &now
		payment.VerifiedBy = meta.UserID
		payment.UpdatedAt = now
		if err := s.payments.Update(ctx, payment); err != nil {
			return err
		}

		var err error
		sub, err = s.submissions.GetByID(ctx, payment.SubmissionID)
		if err != nil {
			return err
		}
		previous = sub.Status
		if sub.Status == models.SubmissionPaid {
			return nil
		}
		if !sub.Status.CanTransitionTo(models.SubmissionPaid) {
			s.logger.Error("payment received for a submission that cannot be paid",
				zap.String("submission_id", sub.ID.String()),
				zap.String("status", string(sub.Status)),
				zap.String("session_id", payment.StripeSessionID))
			return nil
		}
		sub.Status = models.SubmissionPaid
		sub.PaidAt = &now
		sub.UpdatedAt = now
		return s.submissions.Update(ctx, sub)
	})
	if err != nil {
		return nil, services.WrapInternal("failed to record payment", err)
	}

	s.audit.Record(meta, models.AuditActionPaymentVerified, models.ResourcePayment, &payment.ID,
		map[string]interface{}{
			"submission_id": payment.SubmissionID,
			"session_id":    payment.StripeSessionID,
			"amount_cents":  payment.AmountCents,
		})
	s.logger.Info("payment verified",
		zap.String("payment_id", payment.ID.String()),
		zap.String("submission_id", payment.SubmissionID.String()),
		zap.String("request_id", meta.RequestID))

	if previous != models.SubmissionPaid && sub.Status == models.SubmissionPaid {
		s.sendConfirmation(ctx, sub)
	}

	return &VerifyResult{Payment: payment, SubmissionStatus: sub.Status, Paid: true}, nil
}

func (s *Service) markExpired(ctx context.Context, payment *models.Payment, meta audit.Meta) (*VerifyResult, error) {
	var sub *models.Submission

	err := services.WithTransaction(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) error {
		now := s.now()
		payment.Status = models.PaymentExpired
		payment.UpdatedAt = now
		if err := s.payments.Update(ctx, payment); err != nil {
			return err
		}

		var err error
		sub, err = s.submissions.GetByID(ctx, payment.SubmissionID)
		if err != nil {
			return err
		}
		// back to draft only when this was the session the customer was sent to
		if sub.Status == models.SubmissionPendingPayment && sub.StripeSessionID != nil && *sub.StripeSessionID == payment.StripeSessionID {
			sub.Status = models.SubmissionDraft
			sub.UpdatedAt = now
			return s.submissions.Update(ctx, sub)
		}
		return nil
	})
	if err != nil {
		return nil, services.WrapInternal("failed to record expired payment", err)
	}

	s.audit.Record(meta, models.AuditActionPaymentExpired, models.ResourcePayment, &payment.ID,
		map[string]interface{}{"submission_id": payment.SubmissionID, "session_id": payment.StripeSessionID})

	return &VerifyResult{Payment: payment, SubmissionStatus: sub.Status}, nil
}

func (s *Service) result(ctx context.Context, payment *models.Payment) (*VerifyResult, error) {
	sub, err := s.submissions.GetByID(ctx, payment.SubmissionID)
	if err != nil {
		return nil, services.WrapInternal("failed to get submission", err)
	}
	return &VerifyResult{
		Payment:          payment,
		SubmissionStatus: sub.Status,
		Paid:             payment.Status == models.PaymentPaid,
	}, nil
}

func (s *Service) sendConfirmation(ctx context.Context, sub *models.Submission) {
	msg, err := notify.PaymentConfirmation(sub)
	if err != nil {
		s.logger.Error("failed to render confirmation email", zap.Error(err), zap.String("submission_id", sub.ID.String()))
		return
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send confirmation email", zap.Error(err), zap.String("submission_id", sub.ID.String()))
	}
}

// ReconcilePending verifies pending payments older than the grace period,
// catching customers who paid but never came back to the success page
func (s *Service) ReconcilePending(ctx context.Context) (*ReconcileResult, error) {
	before := s.now().Add(-s.config.PendingGrace)
	pending, err := s.payments.ListPendingBefore(ctx, before, s.config.ReconcileBatch)
	if err != nil {
		return nil, services.WrapInternal("failed to list pending payments", err)
	}

	result := &ReconcileResult{}
	meta := audit.Meta{RequestID: "reconcile"}
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		res, err := s.verifyPayment(ctx, p, meta)
		if err != nil {
			result.Failed++
			s.logger.Warn("reconcile: verification failed",
				zap.Error(err),
				zap.String("payment_id", p.ID.String()))
			continue
		}
		switch res.Payment.Status {
		case models.PaymentPaid:
			result.Paid++
		case models.PaymentExpired:
			result.Expired++
		}
	}

	if result.Checked > 0 {
		s.logger.Info("pending payments reconciled",
			zap.Int("checked", result.Checked),
			zap.Int("paid", result.Paid),
			zap.Int("expired", result.Expired),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// ListPayments returns payments for the back-office
func (s *Service) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, int, error) {
	if filter.Status != nil {
		switch *filter.Status {
		case models.PaymentPending, models.PaymentPaid, models.PaymentFailed, models.PaymentExpired:
		default:
			return nil, 0, services.ErrInvalidStatus
		}
	}
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, 0, services.WrapInternal("failed to list payments", err)
	}
	return payments, total, nil
}

// GetPayment returns one payment
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrPaymentNotFound, id)
		}
		return nil, services.WrapInternal("failed to get payment", err)
	}
	return payment, nil
}

func (s *Service) loadSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrSubmissionNotFound, id)
		}
		return nil, services.WrapInternal("failed to get submission", err)
	}
	return sub, nil
}

// mapGatewayError turns gateway failures into external domain errors
func mapGatewayError(err error) error {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.NewDomainError(services.ErrorTypeExternal, services.ErrPaymentGatewayTimeout.Message, err)
	case gateway.IsNotFound(err):
		return services.NewDomainError(services.ErrorTypeNotFound, services.ErrPaymentNotFound.Message, err)
	case gateway.IsRetryable(err):
		return services.NewDomainError(services.ErrorTypeExternal, services.ErrPaymentGatewayUnavailable.Message, err)
	case errors.As(err, &gwErr):
		return services.NewDomainError(services.ErrorTypeExternal, services.ErrPaymentGatewayError.Message, err).
			WithDetail("gateway_code", gwErr.Code)
	}
	return services.NewDomainError(services.ErrorTypeExternal, services.ErrPaymentGatewayError.Message, fmt.Errorf("unexpected gateway error: %w", err))
}
