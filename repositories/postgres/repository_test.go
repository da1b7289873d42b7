package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

func sampleSubmission() *models.Submission {
	ownerID, propertyID := uuid.New(), uuid.New()
	purchase := models.NewDate(2025, time.March, 10)
	price := decimal.RequireFromString("185000")
	s := models.NewSubmission(
		models.Contact{Name: "Anna Bianchi", Email: "anna@example.com"},
		[]models.Owner{{ID: ownerID, FirstName: "Anna", LastName: "Bianchi", Citizenship: "IT", IsResidentInItaly: true}},
		[]models.Property{{
			ID:            propertyID,
			Address:       models.Address{Street: "Via Roma", StreetNumber: "12", City: "Roma", Province: "rm", PostalCode: "00184"},
			ActivityType:  models.ActivityPurchased,
			PurchaseDate:  &purchase,
			PurchasePrice: &price,
			Occupancy:     []models.OccupancyPeriod{{Status: models.OccupancyPersonalUse, Months: 12}},
		}},
		[]models.Assignment{{OwnerID: ownerID, PropertyID: propertyID, OwnershipPercentage: decimal.NewFromInt(100)}},
		false,
	)
	s.Pricing = pricing.Calculate(1, 1, false, pricing.DefaultCutoff.Add(-time.Hour))
	return s
}

func TestSubmissionRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	s := sampleSubmission()

	mock.ExpectExec("INSERT INTO submissions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO owners").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO properties").
		WithArgs(s.Properties[0].ID, s.ID, 0, "Via Roma", "12", "Roma", "RM", "00184",
			nil, models.ActivityPurchased, sqlmock.AnyArg(), sqlmock.AnyArg(), nil, sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignments").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepository_CreateStopsOnChildFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO submissions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO owners").WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert owner")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	want := sampleSubmission()
	pricingJSON, err := json.Marshal(want.Pricing)
	require.NoError(t, err)
	occupancyJSON, err := json.Marshal(want.Properties[0].Occupancy)
	require.NoError(t, err)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM submissions WHERE id = \\$1").
		WithArgs(want.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "contact_name", "contact_email", "contact_phone", "has_document_retrieval",
			"pricing", "status", "stripe_session_id", "notes", "created_at", "updated_at", "paid_at"}).
			AddRow(want.ID.String(), "Anna Bianchi", "anna@example.com", nil, false,
				pricingJSON, "draft", nil, nil, now, now, nil))

	owner := want.Owners[0]
	mock.ExpectQuery("FROM owners").
		WillReturnRows(sqlmock.NewRows([]string{"id", "submission_id", "position", "first_name", "last_name", "tax_code",
			"date_of_birth", "citizenship", "country_of_residence", "is_resident_in_italy", "email", "phone"}).
			AddRow(owner.ID.String(), want.ID.String(), 0, "Anna", "Bianchi", nil, nil, "IT", nil, true, nil, nil))

	prop := want.Properties[0]
	mock.ExpectQuery("FROM properties").
		WillReturnRows(sqlmock.NewRows([]string{"id", "submission_id", "position", "street", "street_number", "city",
			"province", "postal_code", "cadastral", "activity_type", "purchase_date", "purchase_price", "sale_date",
			"sale_price", "occupancy", "rental_income"}).
			AddRow(prop.ID.String(), want.ID.String(), 0, "Via Roma", "12", "Roma", "RM", "00184", nil, "purchased",
				time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), "185000.00", nil, nil, occupancyJSON, nil))

	a := want.Assignments[0]
	mock.ExpectQuery("FROM assignments").
		WillReturnRows(sqlmock.NewRows([]string{"id", "submission_id", "owner_id", "property_id", "ownership_percentage", "resident_at_property"}).
			AddRow(a.ID.String(), want.ID.String(), owner.ID.String(), prop.ID.String(), "100.00", false))

	got, err := repo.GetByID(context.Background(), want.ID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, models.SubmissionDraft, got.Status)
	assert.Nil(t, got.StripeSessionID)
	assert.True(t, got.Pricing.Equal(want.Pricing))
	require.Len(t, got.Owners, 1)
	assert.Equal(t, "Anna", got.Owners[0].FirstName)
	require.Len(t, got.Properties, 1)
	assert.Equal(t, "2025-03-10", got.Properties[0].PurchaseDate.String())
	assert.True(t, decimal.RequireFromString("185000").Equal(*got.Properties[0].PurchasePrice))
	assert.Nil(t, got.Properties[0].SalePrice)
	assert.Nil(t, got.Properties[0].Cadastral)
	assert.Equal(t, 12, got.Properties[0].OccupiedMonths())
	require.Len(t, got.Assignments, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Assignments[0].OwnershipPercentage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())

	mock.ExpectQuery("FROM submissions").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSubmissionRepository_ListFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	status := models.SubmissionPaid

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM submissions WHERE status = \\$1 AND contact_email ILIKE \\$2").
		WithArgs("paid", "%anna%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM submissions WHERE status = \\$1 AND contact_email ILIKE \\$2 ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("paid", "%anna%", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	subs, total, err := repo.List(context.Background(), models.SubmissionFilter{Status: &status, Email: "anna"})
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepository_UpdateNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())

	mock.ExpectExec("UPDATE submissions").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), sampleSubmission())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSubmissionRepository_UpdateStoresPricing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	s := sampleSubmission()
	s.Pricing = pricing.Calculate(1, 1, false, pricing.DefaultCutoff.Add(time.Hour))
	pricingJSON, err := json.Marshal(s.Pricing)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE submissions SET (.+) pricing = \\$7, total_amount = \\$8 WHERE id = \\$1").
		WithArgs(s.ID, s.Status, s.StripeSessionID, s.Notes, s.PaidAt, s.UpdatedAt, pricingJSON, s.Pricing.Total).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_CreateDuplicateSession(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO payments").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "payments_stripe_session_id_key"})

	err := repo.Create(context.Background(), models.NewPayment(uuid.New(), "cs_test_1", 29500, "EUR", "https://checkout"))
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
}

func TestPaymentRepository_GetBySessionID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, zap.NewNop())
	id, submissionID, adminID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	columns := []string{"id", "submission_id", "stripe_session_id", "amount_cents", "currency", "status",
		"checkout_url", "verified_at", "verified_by", "created_at", "updated_at"}

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("FROM payments WHERE stripe_session_id = \\$1").
			WithArgs("cs_test_1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(id.String(), submissionID.String(), "cs_test_1", 29500, "EUR", "paid", nil, now, adminID.String(), now, now))

		p, err := repo.GetBySessionID(context.Background(), "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPaid, p.Status)
		assert.Equal(t, int64(29500), p.AmountCents)
		require.NotNil(t, p.VerifiedBy)
		assert.Equal(t, adminID, *p.VerifiedBy)
		assert.Empty(t, p.CheckoutURL)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("FROM payments WHERE stripe_session_id = \\$1").
			WithArgs("cs_missing").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := repo.GetBySessionID(context.Background(), "cs_missing")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_ListPendingBefore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, zap.NewNop())
	before := time.Now().Add(-30 * time.Minute)

	mock.ExpectQuery("WHERE status = \\$1 AND created_at < \\$2").
		WithArgs("pending", before, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	payments, err := repo.ListPendingBefore(context.Background(), before, 20)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	columns := []string{"id", "email", "password_hash", "role", "active", "last_login_at", "created_at", "updated_at"}

	t.Run("get by email normalizes", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery("FROM users WHERE email = \\$1").
			WithArgs("admin@example.com").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(id.String(), "admin@example.com", []byte("hash"), "admin", true, nil, time.Now(), time.Now()))

		user, err := repo.GetByEmail(context.Background(), "  Admin@Example.com ")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, models.RoleAdmin, user.Role)
		assert.Nil(t, user.LastLoginAt)
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: uniqueViolation})

		err := repo.Create(context.Background(), models.NewUser("admin@example.com", models.RoleAdmin))
		assert.ErrorIs(t, err, repositories.ErrDuplicate)
	})

	t.Run("list by role", func(t *testing.T) {
		role := models.RoleOperator
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE role = \\$1").
			WithArgs("operator").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("ORDER BY email LIMIT \\$2 OFFSET \\$3").
			WithArgs("operator", 10, 0).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(uuid.New().String(), "op@example.com", []byte("hash"), "operator", true, time.Now(), time.Now(), time.Now()))

		users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, users, 1)
		assert.NotNil(t, users[0].LastLoginAt)
	})

	t.Run("count active admins", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE role = \\$1 AND active").
			WithArgs("admin").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		n, err := repo.CountByRole(context.Background(), models.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("delete missing user", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), uuid.New())
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())

	t.Run("insert", func(t *testing.T) {
		log := models.NewAuditLog(models.AuditActionLoginFailed, models.ResourceSession).
			WithDetails(map[string]string{"email": "a@example.com"}).
			WithRequest("req-1", "10.0.0.1", "curl")

		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(log.ID, nil, "login_failed", "session", nil, sqlmock.AnyArg(), "10.0.0.1", "curl", "req-1", log.Timestamp).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), log))
	})

	t.Run("list security actions", func(t *testing.T) {
		userID := uuid.New()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs WHERE action = ANY\\(\\$1\\) AND user_id = \\$2").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("ORDER BY timestamp DESC LIMIT \\$3 OFFSET \\$4").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "resource_type", "resource_id", "details",
				"ip_address", "user_agent", "request_id", "timestamp"}).
				AddRow(uuid.New().String(), userID.String(), "login_succeeded", "session", nil, []byte(`{"email":"a@example.com"}`),
					"10.0.0.1", "curl", "req-2", time.Now()))

		logs, total, err := repo.List(context.Background(), models.AuditLogFilter{Actions: models.SecurityActions, UserID: &userID})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, logs, 1)
		assert.Equal(t, userID, *logs[0].UserID)
		assert.Nil(t, logs[0].ResourceID)
		assert.JSONEq(t, `{"email":"a@example.com"}`, string(logs[0].Details))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginAttemptRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginAttemptRepository(db, zap.NewNop())
	since := time.Now().Add(-15 * time.Minute)

	t.Run("failures since", func(t *testing.T) {
		oldest := since.Add(time.Minute)
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\)").
			WithArgs("user@example.com", since).
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(3, oldest))

		count, got, err := repo.FailuresSince(context.Background(), "User@example.com", since)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.True(t, oldest.Equal(got))
	})

	t.Run("no failures", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), MIN\\(created_at\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(0, nil))

		count, got, err := repo.FailuresSince(context.Background(), "user@example.com", since)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.True(t, got.IsZero())
	})

	t.Run("delete before", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM login_attempts WHERE created_at < \\$1").
			WillReturnResult(sqlmock.NewResult(0, 42))

		n, err := repo.DeleteBefore(context.Background(), since)
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransaction(t *testing.T) {
	t.Run("commits on success and routes queries through the transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		repo := NewLoginAttemptRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO login_attempts").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return repo.Record(ctx, models.NewLoginAttempt("a@example.com", "10.0.0.1", false))
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested call joins the outer transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, outer repositories.Transaction) error {
			return tm.InTransaction(ctx, func(ctx context.Context, inner repositories.Transaction) error {
				assert.Same(t, outer, inner)
				return nil
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
