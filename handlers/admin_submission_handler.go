package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/imu-filing/middleware"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/export"
	"github.com/upb/imu-filing/services/submissions"
	"github.com/upb/imu-filing/utils"
)

// Exporter renders submission spreadsheets
type Exporter interface {
	Submissions(ctx context.Context, filter models.SubmissionFilter, meta audit.Meta) (*export.File, error)
}

// CancelRequest is the optional body of the cancel endpoint
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// AdminSubmissionHandler serves the back-office submission views
type AdminSubmissionHandler struct {
	submissions SubmissionService
	exporter    Exporter
	logger      *zap.Logger
}

// NewAdminSubmissionHandler creates a new AdminSubmissionHandler
func NewAdminSubmissionHandler(submissions SubmissionService, exporter Exporter, logger *zap.Logger) *AdminSubmissionHandler {
	return &AdminSubmissionHandler{
		submissions: submissions,
		exporter:    exporter,
		logger:      logger,
	}
}

// submissionFilter reads status, email and the created_at range from the query
func submissionFilter(w http.ResponseWriter, r *http.Request) (models.SubmissionFilter, bool) {
	q := r.URL.Query()
	filter := models.SubmissionFilter{Email: q.Get("email")}

	if status := q.Get("status"); status != "" {
		s := models.SubmissionStatus(status)
		filter.Status = &s
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return filter, false
	}
	filter.From, filter.To = from, to
	return filter, true
}

// HandleList handles GET /api/v1/admin/submissions
func (h *AdminSubmissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, ok := submissionFilter(w, r)
	if !ok {
		return
	}
	filter.Limit, filter.Offset = utils.ParsePagination(r)

	subs, total, err := h.submissions.List(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = writeList(w, subs, total, filter.Limit, filter.Offset)
}

// HandleGet handles GET /api/v1/admin/submissions/{id}
func (h *AdminSubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.submissions.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, sub)
}

// HandleUpdateStatus handles PATCH /api/v1/admin/submissions/{id}/status
func (h *AdminSubmissionHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req submissions.StatusUpdate
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	sub, err := h.submissions.UpdateStatus(r.Context(), id, req, requestMeta(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, sub)
}

// HandleCancel handles POST /api/v1/admin/submissions/{id}/cancel
func (h *AdminSubmissionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	sub, err := h.submissions.Cancel(r.Context(), id, req.Reason, requestMeta(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, sub)
}

// HandlePayments handles GET /api/v1/admin/submissions/{id}/payments
func (h *AdminSubmissionHandler) HandlePayments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.submissions.Payments(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, payments)
}

// HandleExport handles GET /api/v1/admin/submissions/export
func (h *AdminSubmissionHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	filter, ok := submissionFilter(w, r)
	if !ok {
		return
	}

	file, err := h.exporter.Submissions(r.Context(), filter, requestMeta(r))
	if err != nil {
		h.logger.Error("export failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteAttachment(w, export.ContentType, file.Name, func(out io.Writer) error {
		_, err := io.Copy(out, bytes.NewReader(file.Content))
		return err
	}); err != nil {
		h.logger.Error("failed to write export", zap.Error(err))
	}
}
