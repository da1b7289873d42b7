package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/middleware"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/checkout"
	"github.com/upb/imu-filing/services/submissions"
	"github.com/upb/imu-filing/utils"
)

// SubmissionService defines the submission operations used by the HTTP layer
type SubmissionService interface {
	Quote(ctx context.Context, req submissions.QuoteRequest) pricing.Breakdown
	Create(ctx context.Context, req submissions.CreateSubmissionRequest, meta audit.Meta) (*models.Submission, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error)
	Payments(ctx context.Context, id uuid.UUID) ([]*models.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update submissions.StatusUpdate, meta audit.Meta) (*models.Submission, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, meta audit.Meta) (*models.Submission, error)
}

// CheckoutService defines the payment operations used by the HTTP layer
type CheckoutService interface {
	CreateSession(ctx context.Context, submissionID uuid.UUID, meta audit.Meta) (*checkout.SessionResult, error)
	Verify(ctx context.Context, sessionID string, meta audit.Meta) (*checkout.VerifyResult, error)
	VerifyPayment(ctx context.Context, paymentID uuid.UUID, meta audit.Meta) (*checkout.VerifyResult, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, int, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
}

// SubmissionReceipt is what a customer sees of a submission. Personal data
// of owners and properties stays in the back office.
type SubmissionReceipt struct {
	ID              uuid.UUID               `json:"id"`
	Status          models.SubmissionStatus `json:"status"`
	Pricing         pricing.Breakdown       `json:"pricing"`
	OwnersCount     int                     `json:"owners_count"`
	PropertiesCount int                     `json:"properties_count"`
	CreatedAt       time.Time               `json:"created_at"`
	PaidAt          *time.Time              `json:"paid_at,omitempty"`
}

func receiptOf(s *models.Submission) SubmissionReceipt {
	return SubmissionReceipt{
		ID:              s.ID,
		Status:          s.Status,
		Pricing:         s.Pricing,
		OwnersCount:     len(s.Owners),
		PropertiesCount: len(s.Properties),
		CreatedAt:       s.CreatedAt,
		PaidAt:          s.PaidAt,
	}
}

// VerifyCheckoutRequest is the body of POST /api/v1/checkout/verify
type VerifyCheckoutRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}

// SubmissionHandler serves the public filing flow
type SubmissionHandler struct {
	submissions SubmissionService
	checkout    CheckoutService
	logger      *zap.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler
func NewSubmissionHandler(submissions SubmissionService, checkout CheckoutService, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		checkout:    checkout,
		logger:      logger,
	}
}

// HandleQuote handles POST /api/v1/pricing/quote
func (h *SubmissionHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req submissions.QuoteRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	_ = utils.WriteOK(w, h.submissions.Quote(r.Context(), req))
}

// HandleCreate handles POST /api/v1/submissions
func (h *SubmissionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req submissions.CreateSubmissionRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	sub, err := h.submissions.Create(ctx, req, requestMeta(r))
	if err != nil {
		h.logger.Warn("submission rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("submission created",
		zap.String("request_id", requestID),
		zap.String("submission_id", sub.ID.String()),
		zap.String("total", sub.Pricing.Total.StringFixed(2)))

	_ = utils.WriteCreated(w, sub)
}

// HandleGet handles GET /api/v1/submissions/{id}
func (h *SubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.submissions.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, receiptOf(sub))
}

// HandleCheckout handles POST /api/v1/submissions/{id}/checkout
func (h *SubmissionHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	session, err := h.checkout.CreateSession(ctx, id, requestMeta(r))
	if err != nil {
		h.logger.Warn("checkout session failed",
			zap.String("request_id", requestID),
			zap.String("submission_id", id.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, session)
}

// HandleVerify handles POST /api/v1/checkout/verify
func (h *SubmissionHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyCheckoutRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	result, err := h.checkout.Verify(r.Context(), req.SessionID, requestMeta(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}
