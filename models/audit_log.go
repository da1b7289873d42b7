package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionSubmissionCreated   AuditAction = "submission_created"
	AuditActionSubmissionStatus    AuditAction = "submission_status_changed"
	AuditActionSubmissionCancelled AuditAction = "submission_cancelled"
	AuditActionCheckoutStarted     AuditAction = "checkout_started"
	AuditActionPaymentVerified     AuditAction = "payment_verified"
	AuditActionPaymentExpired      AuditAction = "payment_expired"
	AuditActionPaymentMismatch     AuditAction = "payment_amount_mismatch"
	AuditActionLoginSucceeded      AuditAction = "login_succeeded"
	AuditActionLoginFailed         AuditAction = "login_failed"
	AuditActionLoginThrottled      AuditAction = "login_throttled"
	AuditActionLogout              AuditAction = "logout"
	AuditActionUserCreated         AuditAction = "user_created"
	AuditActionUserUpdated         AuditAction = "user_updated"
	AuditActionUserRoleChanged     AuditAction = "user_role_changed"
	AuditActionUserDeleted         AuditAction = "user_deleted"
	AuditActionPasswordReset       AuditAction = "password_reset"
	AuditActionExport              AuditAction = "submissions_exported"
)

// SecurityActions are the actions shown in the login security view
var SecurityActions = []AuditAction{
	AuditActionLoginSucceeded,
	AuditActionLoginFailed,
	AuditActionLoginThrottled,
	AuditActionLogout,
}

// Resource types
const (
	ResourceSubmission = "submission"
	ResourcePayment    = "payment"
	ResourceUser       = "user"
	ResourceSession    = "session"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // submission, payment, user, session
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now(),
	}
}

// WithUser sets the acting user ID
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID uuid.UUID) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// AuditLogFilter narrows admin listings
type AuditLogFilter struct {
	Actions []AuditAction
	UserID  *uuid.UUID
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}
