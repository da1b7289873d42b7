package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/upb/imu-filing/config"
	"github.com/upb/imu-filing/repositories"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// WrapDB wraps an already opened pool, e.g. a sqlmock connection in tests
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// InitSchema creates the tables and indexes if they do not exist
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash BYTEA NOT NULL,
		role VARCHAR(20) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id UUID PRIMARY KEY,
		contact_name VARCHAR(255) NOT NULL,
		contact_email VARCHAR(255) NOT NULL,
		contact_phone VARCHAR(50),
		has_document_retrieval BOOLEAN NOT NULL DEFAULT false,
		pricing JSONB NOT NULL,
		total_amount NUMERIC(10, 2) NOT NULL,
		status VARCHAR(30) NOT NULL,
		stripe_session_id VARCHAR(255),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		paid_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS owners (
		id UUID PRIMARY KEY,
		submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL,
		tax_code VARCHAR(16),
		date_of_birth DATE,
		citizenship VARCHAR(100) NOT NULL,
		country_of_residence VARCHAR(100),
		is_resident_in_italy BOOLEAN NOT NULL DEFAULT false,
		email VARCHAR(255),
		phone VARCHAR(50)
	);

	CREATE TABLE IF NOT EXISTS properties (
		id UUID PRIMARY KEY,
		submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		street VARCHAR(255) NOT NULL,
		street_number VARCHAR(20),
		city VARCHAR(100) NOT NULL,
		province CHAR(2) NOT NULL,
		postal_code CHAR(5) NOT NULL,
		cadastral JSONB,
		activity_type VARCHAR(20) NOT NULL,
		purchase_date DATE,
		purchase_price NUMERIC(12, 2),
		sale_date DATE,
		sale_price NUMERIC(12, 2),
		occupancy JSONB NOT NULL,
		rental_income NUMERIC(12, 2)
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id UUID PRIMARY KEY,
		submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		owner_id UUID NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
		property_id UUID NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		ownership_percentage NUMERIC(5, 2) NOT NULL CHECK (ownership_percentage > 0 AND ownership_percentage <= 100),
		resident_at_property BOOLEAN NOT NULL DEFAULT false,
		UNIQUE (owner_id, property_id)
	);

	CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		stripe_session_id VARCHAR(255) NOT NULL UNIQUE,
		amount_cents BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		status VARCHAR(20) NOT NULL,
		checkout_url TEXT,
		verified_at TIMESTAMPTZ,
		verified_by UUID REFERENCES users(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		user_id UUID,
		action VARCHAR(100) NOT NULL,
		resource_type VARCHAR(100) NOT NULL,
		resource_id UUID,
		details JSONB,
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(255),
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS login_attempts (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		success BOOLEAN NOT NULL,
		ip_address VARCHAR(45),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
	CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
	CREATE INDEX IF NOT EXISTS idx_submissions_contact_email ON submissions(contact_email);
	CREATE INDEX IF NOT EXISTS idx_owners_submission_id ON owners(submission_id);
	CREATE INDEX IF NOT EXISTS idx_properties_submission_id ON properties(submission_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_submission_id ON assignments(submission_id);
	CREATE INDEX IF NOT EXISTS idx_payments_submission_id ON payments(submission_id);
	CREATE INDEX IF NOT EXISTS idx_payments_status_created ON payments(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_login_attempts_email_created ON login_attempts(email, created_at);
`

// translateError maps driver errors onto the repository sentinels
func translateError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repositories.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repositories.ErrDuplicate, pqErr.Constraint)
	}
	return err
}

// expectOneRow turns a zero row update or delete into ErrNotFound
func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
