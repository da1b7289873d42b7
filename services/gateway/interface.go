// Package gateway defines the payment gateway abstraction used by checkout.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a hosted checkout session
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

// PaymentStatus is whether the money of a session has been collected
type PaymentStatus string

const (
	PaymentPaid              PaymentStatus = "paid"
	PaymentUnpaid            PaymentStatus = "unpaid"
	PaymentNoPaymentRequired PaymentStatus = "no_payment_required"
)

// SessionRequest describes the checkout session to open for a submission
type SessionRequest struct {
	SubmissionID   uuid.UUID
	AmountCents    int64
	Currency       string
	Description    string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// Session is a hosted checkout session
type Session struct {
	ID                string
	URL               string
	Status            SessionStatus
	PaymentStatus     PaymentStatus
	AmountTotal       int64
	Currency          string
	ClientReferenceID string
	ExpiresAt         time.Time
}

// IsPaid reports whether the customer completed the payment
func (s *Session) IsPaid() bool {
	return s.PaymentStatus == PaymentPaid || s.PaymentStatus == PaymentNoPaymentRequired
}

// IsExpired reports whether the session can no longer be paid
func (s *Session) IsExpired() bool {
	return s.Status == SessionExpired
}

// Gateway opens and inspects hosted checkout sessions
type Gateway interface {
	// Name returns the gateway name
	Name() string

	// CreateCheckoutSession opens a session and returns its hosted URL
	CreateCheckoutSession(ctx context.Context, req *SessionRequest) (*Session, error)

	// GetCheckoutSession retrieves the current state of a session
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)
}

// Error represents an error from a gateway
type Error struct {
	// Gateway that generated the error
	Gateway string

	// Code is the gateway error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new gateway error
func NewError(gateway, code, message string, statusCode int, retryable bool, cause error) *Error {
	return &Error{
		Gateway:    gateway,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return false
}

// IsNotFound reports whether the gateway does not know the requested session
func IsNotFound(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound
}
