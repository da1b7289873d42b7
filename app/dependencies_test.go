package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/imu-filing/config"
	"github.com/upb/imu-filing/repositories/postgres"
)

func TestNewDependencies(t *testing.T) {
	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig()
		cfg.Database.Host = "invalid-host-that-does-not-exist"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestWire(t *testing.T) {
	t.Run("wires every service", func(t *testing.T) {
		deps, mock := wireTest(t, testConfig())

		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Repos.Submissions)
		assert.NotNil(t, deps.Repos.Payments)
		assert.NotNil(t, deps.Repos.Users)
		assert.NotNil(t, deps.Repos.AuditLogs)
		assert.NotNil(t, deps.Repos.LoginAttempts)
		assert.NotNil(t, deps.TxManager)

		assert.NotNil(t, deps.Pricing)
		assert.NotNil(t, deps.Tokens)
		assert.NotNil(t, deps.Throttle)
		assert.NotNil(t, deps.Users)
		assert.NotNil(t, deps.Submissions)
		assert.NotNil(t, deps.Checkout)
		assert.NotNil(t, deps.Drafts)
		assert.NotNil(t, deps.Export)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.Equal(t, "stripe", deps.Gateway.Name())
		assert.NotNil(t, deps.Scheduler)
		assert.ElementsMatch(t, []string{"payment_reconcile", "login_attempt_cleanup"}, deps.Scheduler.Jobs())

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scheduler disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Scheduler.Enabled = false

		deps, _ := wireTest(t, cfg)
		assert.Nil(t, deps.Scheduler)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := testConfig()
		cfg.Scheduler.ReconcileSchedule = "every now and then"

		db, _, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		logger := zaptest.NewLogger(t)

		factory := postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(db, logger), logger)
		_, err = Wire(cfg, factory, redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()}), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid reconcile schedule")
	})

	t.Run("pricing uses configured cutoff", func(t *testing.T) {
		cfg := testConfig()
		cfg.Pricing.EarlyBirdCutoff = time.Date(2027, 3, 31, 22, 0, 0, 0, time.UTC)

		deps, _ := wireTest(t, cfg)
		assert.Equal(t, cfg.Pricing.EarlyBirdCutoff, deps.Pricing.Cutoff())
	})
}

func TestDependencies_StartAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Enabled = false
	deps, mock := wireTest(t, cfg)

	require.NoError(t, deps.Start(context.Background()))
	// Second start is a no-op
	require.NoError(t, deps.Start(context.Background()))

	mock.ExpectClose()
	require.NoError(t, deps.Close(context.Background()))
	// Second close is a no-op
	require.NoError(t, deps.Close(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDependencies_DraftsUseRedis(t *testing.T) {
	deps, _ := wireTest(t, testConfig())

	assert.NoError(t, deps.Drafts.Ping(context.Background()))
}

// Test helpers

func wireTest(t *testing.T, cfg *config.Config) (*Dependencies, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	factory := postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(db, logger), logger)
	deps, err := Wire(cfg, factory, rdb, logger)
	require.NoError(t, err)
	return deps, mock
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "imu",
			Password:        "imu",
			Database:        "imu_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: config.RedisConfig{
			DraftTTL:  time.Hour,
			KeyPrefix: "imu:draft:",
		},
		Auth: config.AuthConfig{
			JWTSecret:        "0123456789abcdef0123456789abcdef",
			TokenTTL:         time.Hour,
			Issuer:           "imu-filing-test",
			MaxLoginAttempts: 5,
			LoginWindow:      15 * time.Minute,
		},
		Stripe: config.StripeConfig{
			SecretKey:      "sk_test_xxx",
			BaseURL:        "http://127.0.0.1:0",
			SuccessURL:     "http://localhost/success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:      "http://localhost/cancel",
			RequestTimeout: time.Second,
		},
		Pricing: config.PricingConfig{
			EarlyBirdCutoff: time.Date(2026, 3, 31, 22, 0, 0, 0, time.UTC),
			Currency:        "EUR",
		},
		Email: config.EmailConfig{
			FromName:    "IMU Filing",
			FromAddress: "no-reply@example.com",
		},
		Scheduler: config.SchedulerConfig{
			Enabled:               true,
			ReconcileSchedule:     "@every 10m",
			LoginCleanupSchedule:  "@daily",
			LoginAttemptRetention: 720 * time.Hour,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "console",
		},
	}
}
