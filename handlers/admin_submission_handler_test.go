package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/auth"
	"github.com/upb/imu-filing/middleware"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/export"
	"github.com/upb/imu-filing/services/submissions"
)

func newAdminSubmissionHandler() (*AdminSubmissionHandler, *MockSubmissionService, *MockExporter) {
	subs := new(MockSubmissionService)
	exp := new(MockExporter)
	return NewAdminSubmissionHandler(subs, exp, zap.NewNop()), subs, exp
}

func withAdmin(r *http.Request, id uuid.UUID) *http.Request {
	claims := &auth.Claims{UserID: id, Email: "admin@example.com", Role: models.RoleAdmin}
	return r.WithContext(middleware.WithClaims(r.Context(), claims))
}

func TestAdminSubmissionHandler_HandleList(t *testing.T) {
	t.Run("passes filters and pagination", func(t *testing.T) {
		handler, subs, _ := newAdminSubmissionHandler()
		paid := models.SubmissionPaid
		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		subs.On("List", mock.Anything, mock.MatchedBy(func(f models.SubmissionFilter) bool {
			return f.Status != nil && *f.Status == paid &&
				f.Email == "giulia@example.com" &&
				f.From != nil && f.From.Equal(from) && f.To == nil &&
				f.Limit == 20 && f.Offset == 40
		})).Return([]*models.Submission{{ID: uuid.New(), Status: paid}}, 41, nil)

		req := newJSONRequest(t, http.MethodGet,
			"/api/v1/admin/submissions?status=paid&email=giulia@example.com&from=2026-01-01&limit=20&offset=40", nil, nil)
		w := httptest.NewRecorder()

		handler.HandleList(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.EqualValues(t, 41, data["total"])
		assert.EqualValues(t, 20, data["limit"])
		assert.Len(t, data["items"], 1)
		subs.AssertExpectations(t)
	})

	t.Run("invalid date", func(t *testing.T) {
		handler, subs, _ := newAdminSubmissionHandler()

		req := newJSONRequest(t, http.MethodGet, "/api/v1/admin/submissions?to=yesterday", nil, nil)
		w := httptest.NewRecorder()

		handler.HandleList(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		subs.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})

	t.Run("invalid status from service", func(t *testing.T) {
		handler, subs, _ := newAdminSubmissionHandler()
		subs.On("List", mock.Anything, mock.Anything).Return(nil, 0, services.ErrInvalidStatus)

		req := newJSONRequest(t, http.MethodGet, "/api/v1/admin/submissions?status=archived", nil, nil)
		w := httptest.NewRecorder()

		handler.HandleList(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminSubmissionHandler_HandleUpdateStatus(t *testing.T) {
	adminID := uuid.New()
	id := uuid.New()

	t.Run("updates status as the admin", func(t *testing.T) {
		handler, subs, _ := newAdminSubmissionHandler()
		notes := "paid by bank transfer"
		updated := &models.Submission{ID: id, Status: models.SubmissionPaid, Notes: notes}

		subs.On("UpdateStatus", mock.Anything, id, submissions.StatusUpdate{Status: models.SubmissionPaid, Notes: &notes},
			mock.MatchedBy(func(meta audit.Meta) bool {
				return meta.UserID != nil && *meta.UserID == adminID
			})).Return(updated, nil)

		req := newJSONRequest(t, http.MethodPatch, "/", map[string]interface{}{
			"status": "paid", "notes": notes,
		}, map[string]string{"id": id.String()})
		req = withAdmin(req, adminID)
		w := httptest.NewRecorder()

		handler.HandleUpdateStatus(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, "paid", data["status"])
		subs.AssertExpectations(t)
	})

	t.Run("terminal status conflict", func(t *testing.T) {
		handler, subs, _ := newAdminSubmissionHandler()
		conflict := services.NewDomainError(services.ErrorTypeConflict, services.ErrInvalidTransition.Message, nil).
			WithDetail("from", "cancelled").
			WithDetail("to", "paid")
		subs.On("UpdateStatus", mock.Anything, id, mock.Anything, mock.Anything).Return(nil, conflict)

		req := newJSONRequest(t, http.MethodPatch, "/", `{"status":"paid"}`, map[string]string{"id": id.String()})
		w := httptest.NewRecorder()

		handler.HandleUpdateStatus(w, req)

		require.Equal(t, http.StatusConflict, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "cancelled", body["details"].(map[string]interface{})["from"])
	})

	t.Run("status is required", func(t *testing.T) {
		handler, _, _ := newAdminSubmissionHandler()

		req := newJSONRequest(t, http.MethodPatch, "/", `{"notes":"x"}`, map[string]string{"id": id.String()})
		w := httptest.NewRecorder()

		handler.HandleUpdateStatus(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminSubmissionHandler_HandleCancel(t *testing.T) {
	id := uuid.New()

	t.Run("with reason", func(t *testing.T) {
		handler, subs, _ := newAdminSubmissionHandler()
		subs.On("Cancel", mock.Anything, id, "duplicate filing", mock.Anything).
			Return(&models.Submission{ID: id, Status: models.SubmissionCancelled}, nil)

		req := newJSONRequest(t, http.MethodPost, "/", CancelRequest{Reason: "duplicate filing"}, map[string]string{"id": id.String()})
		w := httptest.NewRecorder()

		handler.HandleCancel(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		subs.AssertExpectations(t)
	})

	t.Run("without body", func(t *testing.T) {
		handler, subs, _ := newAdminSubmissionHandler()
		subs.On("Cancel", mock.Anything, id, "", mock.Anything).
			Return(&models.Submission{ID: id, Status: models.SubmissionCancelled}, nil)

		req := newJSONRequest(t, http.MethodPost, "/", nil, map[string]string{"id": id.String()})
		w := httptest.NewRecorder()

		handler.HandleCancel(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		subs.AssertExpectations(t)
	})
}

func TestAdminSubmissionHandler_HandlePayments(t *testing.T) {
	handler, subs, _ := newAdminSubmissionHandler()
	id := uuid.New()
	subs.On("Payments", mock.Anything, id).Return([]*models.Payment{
		models.NewPayment(id, "cs_1", 29500, "EUR", ""),
		models.NewPayment(id, "cs_2", 29500, "EUR", ""),
	}, nil)

	req := newJSONRequest(t, http.MethodGet, "/", nil, map[string]string{"id": id.String()})
	w := httptest.NewRecorder()

	handler.HandlePayments(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cs_2")
}

func TestAdminSubmissionHandler_HandleExport(t *testing.T) {
	t.Run("streams the workbook", func(t *testing.T) {
		handler, _, exp := newAdminSubmissionHandler()
		exp.On("Submissions", mock.Anything, mock.MatchedBy(func(f models.SubmissionFilter) bool {
			return f.Status != nil && *f.Status == models.SubmissionPaid && f.Limit == 0
		}), mock.Anything).Return(&export.File{
			Name:    "imu-submissions-20260301-101500.xlsx",
			Content: []byte("PK\x03\x04workbook"),
			Rows:    3,
		}, nil)

		req := newJSONRequest(t, http.MethodGet, "/api/v1/admin/submissions/export?status=paid", nil, nil)
		w := httptest.NewRecorder()

		handler.HandleExport(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "imu-submissions-20260301-101500.xlsx")
		assert.Equal(t, "PK\x03\x04workbook", w.Body.String())
	})

	t.Run("render failure", func(t *testing.T) {
		handler, _, exp := newAdminSubmissionHandler()
		exp.On("Submissions", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, services.WrapInternal("failed to render export", assert.AnError))

		req := newJSONRequest(t, http.MethodGet, "/api/v1/admin/submissions/export", nil, nil)
		w := httptest.NewRecorder()

		handler.HandleExport(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
