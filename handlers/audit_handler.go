package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/utils"
)

// AuditQuerier reads the audit trail
type AuditQuerier interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)
	SecurityEvents(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error)
}

// AuditHandler serves the audit log views
type AuditHandler struct {
	service AuditQuerier
	logger  *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditQuerier, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger,
	}
}

// auditFilter reads action, user_id, from, to and pagination from the query.
// action accepts a comma separated list.
func auditFilter(w http.ResponseWriter, r *http.Request) (models.AuditLogFilter, bool) {
	q := r.URL.Query()
	var filter models.AuditLogFilter

	if raw := q.Get("action"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filter.Actions = append(filter.Actions, models.AuditAction(a))
			}
		}
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := utils.ParseUUID(raw, "user_id")
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return filter, false
		}
		filter.UserID = &id
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return filter, false
	}
	filter.From, filter.To = from, to
	filter.Limit, filter.Offset = utils.ParsePagination(r)
	return filter, true
}

// HandleList handles GET /api/v1/admin/audit/logs
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, ok := auditFilter(w, r)
	if !ok {
		return
	}

	logs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = writeList(w, logs, total, filter.Limit, filter.Offset)
}

// HandleGet handles GET /api/v1/admin/audit/logs/{id}
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, entry)
}

// HandleSecurityEvents handles GET /api/v1/admin/security/logins
func (h *AuditHandler) HandleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	filter, ok := auditFilter(w, r)
	if !ok {
		return
	}

	logs, total, err := h.service.SecurityEvents(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = writeList(w, logs, total, filter.Limit, filter.Offset)
}
