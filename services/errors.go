package services

import (
	"errors"
	"fmt"

	"github.com/upb/imu-filing/internal/filing"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Message == "" || e.Message == t.Message)
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Compare with errors.Is; a sentinel matches any
// error of the same type and message, so wrapped copies still match.

var (
	// Not Found Errors
	ErrSubmissionNotFound = NewDomainError(ErrorTypeNotFound, "submission not found", nil)
	ErrPaymentNotFound    = NewDomainError(ErrorTypeNotFound, "payment not found", nil)
	ErrUserNotFound       = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrAuditLogNotFound   = NewDomainError(ErrorTypeNotFound, "audit log not found", nil)
	ErrDraftNotFound      = NewDomainError(ErrorTypeNotFound, "draft not found or expired", nil)

	// Validation Errors
	ErrInvalidInput      = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidSubmission = NewDomainError(ErrorTypeValidation, "submission is not valid", nil)
	ErrInvalidStatus     = NewDomainError(ErrorTypeValidation, "invalid status", nil)
	ErrInvalidRole       = NewDomainError(ErrorTypeValidation, "invalid role", nil)
	ErrInvalidEmail      = NewDomainError(ErrorTypeValidation, "invalid email format", nil)
	ErrWeakPassword      = NewDomainError(ErrorTypeValidation, "password must be at least 10 characters", nil)

	// Authorization Errors
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "invalid email or password", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired       = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
	ErrAccountDisabled    = NewDomainError(ErrorTypeUnauthorized, "account disabled", nil)

	// Permission Errors
	ErrSelfModification = NewDomainError(ErrorTypeForbidden, "admins cannot demote, disable or delete themselves", nil)

	// Rate Limit Errors
	ErrTooManyLogins = NewDomainError(ErrorTypeRateLimit, "too many failed login attempts, try again later", nil)

	// Conflict Errors
	ErrDuplicateEmail        = NewDomainError(ErrorTypeConflict, "email already exists", nil)
	ErrInvalidTransition     = NewDomainError(ErrorTypeConflict, "status change not allowed", nil)
	ErrSubmissionNotPayable  = NewDomainError(ErrorTypeConflict, "submission cannot be paid in its current status", nil)
	ErrPaymentAmountMismatch = NewDomainError(ErrorTypeConflict, "paid amount does not match the payment", nil)

	// Internal Errors
	ErrCacheFailed = NewDomainError(ErrorTypeInternal, "cache operation failed", nil)

	// External Errors
	ErrPaymentGatewayUnavailable = NewDomainError(ErrorTypeExternal, "payment gateway unavailable", nil)
	ErrPaymentGatewayTimeout     = NewDomainError(ErrorTypeExternal, "payment gateway timeout", nil)
	ErrPaymentGatewayError       = NewDomainError(ErrorTypeExternal, "payment gateway error", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrorTypeRateLimit
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error is a payment gateway or mail provider error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorMessage returns the client facing message of a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external service error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// NewNotFound returns a fresh copy of a not-found sentinel carrying the missing id
func NewNotFound(sentinel *DomainError, id interface{}) *DomainError {
	return NewDomainError(sentinel.Type, sentinel.Message, nil).WithDetail("id", id)
}

// InvalidField returns a fresh invalid input error describing one field
func InvalidField(field, message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, ErrInvalidInput.Message, nil).WithDetail(field, message)
}

// FromFilingErrors converts submission validation failures into a validation
// error whose details are keyed by path
func FromFilingErrors(err error) error {
	var errs filing.Errors
	if !errors.As(err, &errs) {
		return NewDomainError(ErrorTypeValidation, ErrInvalidSubmission.Message, err)
	}
	de := NewDomainError(ErrorTypeValidation, ErrInvalidSubmission.Message, nil)
	for path, msg := range errs {
		de.WithDetail(path, msg)
	}
	return de
}
