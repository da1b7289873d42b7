package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/upb/imu-filing/models"
)

// Sentinel errors returned by every implementation. Services translate them
// into domain errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Repositories called with the ctx passed to fn use the transaction.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// SubmissionRepository handles submissions and their owners, properties and assignments
type SubmissionRepository interface {
	// Create inserts the submission and all of its children. Call it inside
	// a transaction so a partial filing is never visible.
	Create(ctx context.Context, s *models.Submission) error

	// GetByID retrieves a submission with its children
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)

	// List retrieves submission headers (no children) and the total matching count
	List(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error)

	// LoadDetails fills in owners, properties and assignments of the given submissions
	LoadDetails(ctx context.Context, subs []*models.Submission) error

	// Update persists status, checkout session, notes and paid timestamp
	Update(ctx context.Context, s *models.Submission) error
}

// PaymentRepository handles checkout payments
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, int, error)

	// ListPendingBefore returns pending payments created before the given instant, oldest first
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*models.Payment, error)

	// Update persists status and verification fields
	Update(ctx context.Context, p *models.Payment) error
}

// UserRepository handles user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error)
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// List retrieves audit logs newest first, with the total matching count
	List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error)
}

// LoginAttemptRepository stores password login attempts for throttling
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error

	// FailuresSince counts failed attempts for email after since and after the
	// last successful login, returning the oldest counted failure.
	FailuresSince(ctx context.Context, email string, since time.Time) (count int, oldest time.Time, err error)

	// DeleteBefore removes attempts older than before
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Submissions   SubmissionRepository
	Payments      PaymentRepository
	Users         UserRepository
	AuditLogs     AuditRepository
	LoginAttempts LoginAttemptRepository
}
