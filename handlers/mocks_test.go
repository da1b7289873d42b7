package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/checkout"
	"github.com/upb/imu-filing/services/drafts"
	"github.com/upb/imu-filing/services/export"
	"github.com/upb/imu-filing/services/submissions"
	"github.com/upb/imu-filing/services/users"
)

// MockSubmissionService is a mock implementation of SubmissionService
type MockSubmissionService struct {
	mock.Mock
}

func (m *MockSubmissionService) Quote(ctx context.Context, req submissions.QuoteRequest) pricing.Breakdown {
	args := m.Called(ctx, req)
	return args.Get(0).(pricing.Breakdown)
}

func (m *MockSubmissionService) Create(ctx context.Context, req submissions.CreateSubmissionRequest, meta audit.Meta) (*models.Submission, error) {
	args := m.Called(ctx, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionService) Get(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionService) List(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Submission), args.Int(1), args.Error(2)
}

func (m *MockSubmissionService) Payments(ctx context.Context, id uuid.UUID) ([]*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockSubmissionService) UpdateStatus(ctx context.Context, id uuid.UUID, update submissions.StatusUpdate, meta audit.Meta) (*models.Submission, error) {
	args := m.Called(ctx, id, update, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionService) Cancel(ctx context.Context, id uuid.UUID, reason string, meta audit.Meta) (*models.Submission, error) {
	args := m.Called(ctx, id, reason, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

// MockCheckoutService is a mock implementation of CheckoutService
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) CreateSession(ctx context.Context, submissionID uuid.UUID, meta audit.Meta) (*checkout.SessionResult, error) {
	args := m.Called(ctx, submissionID, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.SessionResult), args.Error(1)
}

func (m *MockCheckoutService) Verify(ctx context.Context, sessionID string, meta audit.Meta) (*checkout.VerifyResult, error) {
	args := m.Called(ctx, sessionID, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.VerifyResult), args.Error(1)
}

func (m *MockCheckoutService) VerifyPayment(ctx context.Context, paymentID uuid.UUID, meta audit.Meta) (*checkout.VerifyResult, error) {
	args := m.Called(ctx, paymentID, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.VerifyResult), args.Error(1)
}

func (m *MockCheckoutService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Payment), args.Int(1), args.Error(2)
}

func (m *MockCheckoutService) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

// MockExporter is a mock implementation of Exporter
type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Submissions(ctx context.Context, filter models.SubmissionFilter, meta audit.Meta) (*export.File, error) {
	args := m.Called(ctx, filter, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.File), args.Error(1)
}

// MockDraftStore is a mock implementation of DraftStore
type MockDraftStore struct {
	mock.Mock
}

func (m *MockDraftStore) Create(ctx context.Context, data json.RawMessage) (*drafts.Draft, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drafts.Draft), args.Error(1)
}

func (m *MockDraftStore) Save(ctx context.Context, id uuid.UUID, data json.RawMessage) (*drafts.Draft, error) {
	args := m.Called(ctx, id, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drafts.Draft), args.Error(1)
}

func (m *MockDraftStore) Load(ctx context.Context, id uuid.UUID) (*drafts.Draft, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drafts.Draft), args.Error(1)
}

func (m *MockDraftStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, meta audit.Meta) (*users.LoginResult, error) {
	args := m.Called(ctx, email, password, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*users.LoginResult), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, meta audit.Meta) {
	m.Called(ctx, meta)
}

func (m *MockAuthService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockUserAdminService is a mock implementation of UserAdminService
type MockUserAdminService struct {
	mock.Mock
}

func (m *MockUserAdminService) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.User), args.Int(1), args.Error(2)
}

func (m *MockUserAdminService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserAdminService) Create(ctx context.Context, req users.CreateUserRequest, meta audit.Meta) (*models.User, error) {
	args := m.Called(ctx, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserAdminService) Update(ctx context.Context, id uuid.UUID, req users.UpdateUserRequest, meta audit.Meta) (*models.User, error) {
	args := m.Called(ctx, id, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserAdminService) Delete(ctx context.Context, id uuid.UUID, meta audit.Meta) error {
	return m.Called(ctx, id, meta).Error(0)
}

func (m *MockUserAdminService) ResetPassword(ctx context.Context, id uuid.UUID, password string, meta audit.Meta) error {
	return m.Called(ctx, id, password, meta).Error(0)
}

// MockAuditQuerier is a mock implementation of AuditQuerier
type MockAuditQuerier struct {
	mock.Mock
}

func (m *MockAuditQuerier) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.AuditLog), args.Int(1), args.Error(2)
}

func (m *MockAuditQuerier) Get(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditLog), args.Error(1)
}

func (m *MockAuditQuerier) SecurityEvents(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.AuditLog), args.Int(1), args.Error(2)
}

// newJSONRequest builds a request with a JSON body and the given chi URL params
func newJSONRequest(t *testing.T, method, target string, body interface{}, params map[string]string) *http.Request {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, target, nil)
	case string:
		req = httptest.NewRequest(method, target, bytes.NewBufferString(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, target, bytes.NewReader(raw))
	}
	req.Header.Set("Content-Type", "application/json")

	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

// decodeError decodes an error envelope
func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}
