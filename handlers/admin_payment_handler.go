package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/imu-filing/middleware"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/utils"
)

// AdminPaymentHandler serves the back-office payment views
type AdminPaymentHandler struct {
	checkout CheckoutService
	logger   *zap.Logger
}

// NewAdminPaymentHandler creates a new AdminPaymentHandler
func NewAdminPaymentHandler(checkout CheckoutService, logger *zap.Logger) *AdminPaymentHandler {
	return &AdminPaymentHandler{
		checkout: checkout,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/admin/payments
func (h *AdminPaymentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter models.PaymentFilter

	if status := q.Get("status"); status != "" {
		s := models.PaymentStatus(status)
		filter.Status = &s
	}
	if raw := q.Get("submission_id"); raw != "" {
		id, err := utils.ParseUUID(raw, "submission_id")
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		filter.SubmissionID = &id
	}
	filter.Limit, filter.Offset = utils.ParsePagination(r)

	payments, total, err := h.checkout.ListPayments(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = writeList(w, payments, total, filter.Limit, filter.Offset)
}

// HandleGet handles GET /api/v1/admin/payments/{id}
func (h *AdminPaymentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.checkout.GetPayment(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, payment)
}

// HandleVerify handles POST /api/v1/admin/payments/{id}/verify
func (h *AdminPaymentHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	meta := requestMeta(r)
	result, err := h.checkout.VerifyPayment(r.Context(), id, meta)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("payment verified manually",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("payment_id", id.String()),
		zap.String("status", string(result.Payment.Status)))

	_ = utils.WriteOK(w, result)
}
