package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/middleware"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/utils"
)

// requestMeta describes the caller of r for audit entries
func requestMeta(r *http.Request) audit.Meta {
	ctx := r.Context()
	return audit.Meta{
		UserID:    middleware.GetUserIDFromContext(ctx),
		RequestID: middleware.GetRequestIDFromContext(ctx),
		IPAddress: utils.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// idParam parses the named UUID path parameter. It writes a 400 and returns
// false when the parameter is malformed.
func idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(chi.URLParam(r, name), name)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeAndValidate reads a JSON body into dst and runs struct validation,
// writing a 400 and returning false on failure
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	if err := utils.DecodeJSON(w, r, dst); err != nil {
		logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return false
	}

	if err := utils.ValidateStruct(dst); err != nil {
		logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}

// parseTimeParam reads an RFC 3339 timestamp or a YYYY-MM-DD date query parameter
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d.Time, nil
}

// parseRange reads the from and to query parameters, writing a 400 on failure
func parseRange(w http.ResponseWriter, r *http.Request) (from, to *time.Time, ok bool) {
	var err error
	if from, err = parseTimeParam(r, "from"); err != nil {
		_ = utils.WriteBadRequest(w, "from: "+err.Error(), nil)
		return nil, nil, false
	}
	if to, err = parseTimeParam(r, "to"); err != nil {
		_ = utils.WriteBadRequest(w, "to: "+err.Error(), nil)
		return nil, nil, false
	}
	return from, to, true
}

// writeList writes one page of a listing
func writeList(w http.ResponseWriter, items interface{}, total, limit, offset int) error {
	return utils.WriteOK(w, utils.ListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
