// Package submissions prices, validates and stores IMU filings and drives
// their status through checkout.
package submissions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/filing"
	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/internal/redact"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
	"github.com/upb/imu-filing/services"
	"github.com/upb/imu-filing/services/audit"
)

// QuoteRequest is the form state the price depends on
type QuoteRequest struct {
	OwnersCount          int  `json:"owners_count" validate:"min=0,max=100"`
	PropertiesCount      int  `json:"properties_count" validate:"min=0,max=100"`
	HasDocumentRetrieval bool `json:"has_document_retrieval"`
}

// CreateSubmissionRequest is the complete filing posted by the form
type CreateSubmissionRequest struct {
	Contact              models.Contact      `json:"contact" validate:"required"`
	Owners               []models.Owner      `json:"owners" validate:"required,min=1,max=100"`
	Properties           []models.Property   `json:"properties" validate:"required,min=1,max=100"`
	Assignments          []models.Assignment `json:"assignments" validate:"required,min=1"`
	HasDocumentRetrieval bool                `json:"has_document_retrieval"`
	// QuotedTotal is the total the customer saw; the stored price is always recomputed
	QuotedTotal *decimal.Decimal `json:"quoted_total,omitempty"`
}

// StatusUpdate is an admin status change
type StatusUpdate struct {
	Status models.SubmissionStatus `json:"status" validate:"required"`
	Notes  *string                 `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Service handles submissions
type Service struct {
	submissions repositories.SubmissionRepository
	payments    repositories.PaymentRepository
	txManager   repositories.TransactionManager
	calculator  *pricing.Calculator
	audit       audit.Recorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new submissions Service
func NewService(
	submissions repositories.SubmissionRepository,
	payments repositories.PaymentRepository,
	txManager repositories.TransactionManager,
	calculator *pricing.Calculator,
	recorder audit.Recorder,
	logger *zap.Logger,
) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		submissions: submissions,
		payments:    payments,
		txManager:   txManager,
		calculator:  calculator,
		audit:       recorder,
		logger:      logger,
		now:         time.Now,
	}
}

// Quote prices the current form state
func (s *Service) Quote(ctx context.Context, req QuoteRequest) pricing.Breakdown {
	return s.calculator.Quote(req.OwnersCount, req.PropertiesCount, req.HasDocumentRetrieval)
}

// Create validates the filing, prices it and stores it with all of its
// owners, properties and assignments in one transaction
func (s *Service) Create(ctx context.Context, req CreateSubmissionRequest, meta audit.Meta) (*models.Submission, error) {
	contact := models.Contact{
		Name:  strings.TrimSpace(req.Contact.Name),
		Email: models.NormalizeEmail(req.Contact.Email),
		Phone: strings.TrimSpace(req.Contact.Phone),
	}
	sub := models.NewSubmission(contact, req.Owners, req.Properties, req.Assignments, req.HasDocumentRetrieval)

	if err := filing.ValidateSubmission(sub); err != nil {
		return nil, services.FromFilingErrors(err)
	}

	now := s.now()
	sub.CreatedAt, sub.UpdatedAt = now, now
	sub.Pricing = s.calculator.Calculate(len(sub.Owners), len(sub.Properties), sub.HasDocumentRetrieval, now)

	if req.QuotedTotal != nil && !req.QuotedTotal.Equal(sub.Pricing.Total) {
		s.logger.Warn("quoted total differs from computed price",
			zap.String("quoted", req.QuotedTotal.StringFixed(2)),
			zap.String("computed", sub.Pricing.Total.StringFixed(2)),
			zap.String("tier", string(sub.Pricing.Tier)),
			zap.String("request_id", meta.RequestID))
	}

	err := services.WithTransaction(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) error {
		return s.submissions.Create(ctx, sub)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.InvalidField("ids", "owner, property or assignment id already used")
		}
		return nil, services.WrapInternal("failed to create submission", err)
	}

	s.audit.Record(meta, models.AuditActionSubmissionCreated, models.ResourceSubmission, &sub.ID,
		map[string]interface{}{
			"owners":     len(sub.Owners),
			"properties": len(sub.Properties),
			"total":      sub.Pricing.Total.StringFixed(2),
			"tier":       sub.Pricing.Tier,
		})
	s.logger.Info("submission created",
		zap.String("submission_id", sub.ID.String()),
		zap.String("total", sub.Pricing.Total.StringFixed(2)),
		zap.String("request_id", meta.RequestID))

	return sub, nil
}

// Get returns a submission with its children
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrSubmissionNotFound, id)
		}
		return nil, services.WrapInternal("failed to get submission", err)
	}
	return sub, nil
}

// List returns submission headers matching filter
func (s *Service) List(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, services.ErrInvalidStatus
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, services.InvalidField("to", "must not be before from")
	}
	subs, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, 0, services.WrapInternal("failed to list submissions", err)
	}
	return subs, total, nil
}

// ListDetailed returns submissions matching filter with their children loaded
func (s *Service) ListDetailed(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, error) {
	subs, _, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.submissions.LoadDetails(ctx, subs); err != nil {
		return nil, services.WrapInternal("failed to load submission details", err)
	}
	return subs, nil
}

// Payments returns the checkout attempts of a submission
func (s *Service) Payments(ctx context.Context, id uuid.UUID) ([]*models.Payment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListBySubmission(ctx, id)
	if err != nil {
		return nil, services.WrapInternal("failed to list payments", err)
	}
	return payments, nil
}

// UpdateStatus moves a submission to a new status and optionally replaces its notes
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate, meta audit.Meta) (*models.Submission, error) {
	if !update.Status.IsValid() {
		return nil, services.ErrInvalidStatus
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := sub.Status
	if from != update.Status && !from.CanTransitionTo(update.Status) {
		return nil, services.NewDomainError(services.ErrorTypeConflict, services.ErrInvalidTransition.Message, nil).
			WithDetail("from", from).
			WithDetail("to", update.Status)
	}

	now := s.now()
	sub.Status = update.Status
	if update.Notes != nil {
		sub.Notes = strings.TrimSpace(*update.Notes)
	}
	if sub.Status == models.SubmissionPaid && sub.PaidAt == nil {
		sub.PaidAt = &now
	}
	sub.UpdatedAt = now

	if err := s.submissions.Update(ctx, sub); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrSubmissionNotFound, id)
		}
		return nil, services.WrapInternal("failed to update submission", err)
	}

	action := models.AuditActionSubmissionStatus
	if sub.Status == models.SubmissionCancelled {
		action = models.AuditActionSubmissionCancelled
	}
	details := map[string]interface{}{"from": from, "to": sub.Status}
	if update.Notes != nil {
		details["notes"] = redact.Text(sub.Notes)
	}
	s.audit.Record(meta, action, models.ResourceSubmission, &sub.ID, details)
	s.logger.Info("submission status changed",
		zap.String("submission_id", sub.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(sub.Status)),
		zap.String("request_id", meta.RequestID))

	return sub, nil
}

// Cancel marks a submission cancelled
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, meta audit.Meta) (*models.Submission, error) {
	update := StatusUpdate{Status: models.SubmissionCancelled}
	if reason = strings.TrimSpace(reason); reason != "" {
		update.Notes = &reason
	}
	return s.UpdateStatus(ctx, id, update, meta)
}
