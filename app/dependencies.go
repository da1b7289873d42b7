package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/config"
	"github.com/upb/imu-filing/internal/auth"
	"github.com/upb/imu-filing/internal/pricing"
	"github.com/upb/imu-filing/middleware"
	"github.com/upb/imu-filing/repositories"
	"github.com/upb/imu-filing/repositories/postgres"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/checkout"
	"github.com/upb/imu-filing/services/drafts"
	"github.com/upb/imu-filing/services/export"
	"github.com/upb/imu-filing/services/gateway"
	"github.com/upb/imu-filing/services/gateway/stripe"
	"github.com/upb/imu-filing/services/notify"
	"github.com/upb/imu-filing/services/ratelimit"
	"github.com/upb/imu-filing/services/scheduler"
	"github.com/upb/imu-filing/services/submissions"
	"github.com/upb/imu-filing/services/users"
)

// ServiceName is reported by the status endpoint
const ServiceName = "imu-filing"

// Version is overridden at build time with -ldflags "-X github.com/upb/imu-filing/app.Version=..."
var Version = "dev"

const (
	auditStopTimeout = 5 * time.Second
	jobTimeout       = 5 * time.Minute
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *redis.Client
	Logger *zap.Logger

	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories
	TxManager   repositories.TransactionManager

	// Services
	Pricing     *pricing.Calculator
	Tokens      *auth.TokenManager
	Throttle    *ratelimit.LoginThrottle
	Audit       *audit.AuditService
	Users       *users.Service
	Submissions *submissions.Service
	Gateway     gateway.Gateway
	Mailer      notify.Sender
	Checkout    *checkout.Service
	Drafts      *drafts.Store
	Export      *export.Service
	Scheduler   *scheduler.Scheduler

	AuthMiddleware *middleware.AuthMiddleware

	started bool
	closed  bool
}

// NewDependencies connects to PostgreSQL and Redis and wires every service
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rdb := initCache(ctx, cfg.Redis, logger)

	deps, err := Wire(cfg, factory, rdb, logger)
	if err != nil {
		_ = rdb.Close()
		_ = factory.Close()
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens the pool and creates the schema
func initDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.RepositoryFactory, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.GetDB().InitSchema(ctx); err != nil {
		_ = factory.Close()
		return nil, err
	}
	return factory, nil
}

// initCache creates the Redis client backing the draft store. An unreachable
// Redis is not fatal: drafts fail with an internal error and /readyz reports it.
func initCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, drafts disabled until it recovers",
			zap.String("addr", cfg.Addr),
			zap.Error(err))
	} else {
		logger.Info("redis connection established", zap.String("addr", cfg.Addr))
	}
	return rdb
}

// Wire builds every service on top of an open database and Redis client
func Wire(cfg *config.Config, factory *postgres.RepositoryFactory, rdb *redis.Client, logger *zap.Logger) (*Dependencies, error) {
	d := &Dependencies{
		Config:      cfg,
		DB:          factory.GetDB(),
		Redis:       rdb,
		Logger:      logger,
		RepoFactory: factory,
		Repos:       factory.NewRepositories(),
		TxManager:   factory.GetTransactionManager(),
	}

	d.Pricing = pricing.NewCalculator(cfg.Pricing.EarlyBirdCutoff)
	d.Audit = audit.NewAuditService(d.Repos.AuditLogs, logger, audit.DefaultConfig())

	d.initAuth(cfg)

	d.Submissions = submissions.NewService(
		d.Repos.Submissions, d.Repos.Payments, d.TxManager, d.Pricing, d.Audit, logger)

	d.initCheckout(cfg)

	d.Drafts = drafts.NewStore(rdb, drafts.Config{
		TTL:       cfg.Redis.DraftTTL,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, logger)
	d.Export = export.NewService(d.Submissions, d.Audit, logger)

	if err := d.initScheduler(cfg.Scheduler); err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	return d, nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	d.Tokens = auth.NewTokenManager(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL,
	})
	d.Throttle = ratelimit.NewLoginThrottle(d.Repos.LoginAttempts, ratelimit.Config{
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
		Window:      cfg.Auth.LoginWindow,
	}, d.Logger)
	d.Users = users.NewService(d.Repos.Users, d.Throttle, d.Tokens, d.Audit, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, d.Logger)

	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT_SECRET not set, admin sessions are signed with an empty key")
	}
}

func (d *Dependencies) initCheckout(cfg *config.Config) {
	d.Gateway = stripe.NewAdapter(stripe.Config{
		SecretKey:  cfg.Stripe.SecretKey,
		BaseURL:    cfg.Stripe.BaseURL,
		Timeout:    cfg.Stripe.RequestTimeout,
		MaxRetries: cfg.Stripe.MaxRetries,
	}, d.Logger)
	d.Mailer = notify.NewSender(cfg.Email, d.Logger)

	d.Checkout = checkout.NewService(
		d.Repos.Submissions,
		d.Repos.Payments,
		d.TxManager,
		d.Pricing,
		d.Gateway,
		d.Mailer,
		d.Audit,
		checkout.Config{
			SuccessURL:     cfg.Stripe.SuccessURL,
			CancelURL:      cfg.Stripe.CancelURL,
			RequestTimeout: cfg.Stripe.RequestTimeout,
			PendingGrace:   cfg.Stripe.PendingGrace,
		},
		d.Logger,
	)

	if cfg.Stripe.SecretKey == "" {
		d.Logger.Warn("STRIPE_SECRET_KEY not set, checkout requests will fail")
	}
}

func (d *Dependencies) initScheduler(cfg config.SchedulerConfig) error {
	if !cfg.Enabled {
		d.Logger.Info("scheduler disabled")
		return nil
	}

	s := scheduler.New(d.Logger, jobTimeout)
	if err := s.AddJob(cfg.ReconcileSchedule, scheduler.NewReconcileJob(d.Checkout)); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", cfg.ReconcileSchedule, err)
	}
	if err := s.AddJob(cfg.LoginCleanupSchedule,
		scheduler.NewLoginCleanupJob(d.Throttle, cfg.LoginAttemptRetention, d.Logger)); err != nil {
		return fmt.Errorf("invalid login cleanup schedule %q: %w", cfg.LoginCleanupSchedule, err)
	}
	d.Scheduler = s
	return nil
}

// Start launches the background workers and bootstraps the first admin
func (d *Dependencies) Start(ctx context.Context) error {
	if d.started {
		return nil
	}

	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	d.started = true

	if d.Config.Auth.AdminEmail != "" && d.Config.Auth.AdminPassword != "" {
		created, err := d.Users.EnsureAdmin(ctx, d.Config.Auth.AdminEmail, d.Config.Auth.AdminPassword)
		if err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
		if created {
			d.Logger.Info("bootstrap admin created", zap.String("email", d.Config.Auth.AdminEmail))
		}
	}

	if d.Scheduler != nil {
		d.Scheduler.Start()
	}
	return nil
}

// Close gracefully shuts down all dependencies. Calling it twice is a no-op.
func (d *Dependencies) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Scheduler != nil && d.started {
		d.Scheduler.Stop()
	}

	if d.started {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
