package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus mirrors the outcome of a checkout session
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
	PaymentExpired PaymentStatus = "expired"
)

// IsFinal reports whether the payment can no longer change
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentPaid || s == PaymentExpired || s == PaymentFailed
}

// Payment is one checkout attempt for a submission
type Payment struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	SubmissionID    uuid.UUID     `json:"submission_id" db:"submission_id"`
	StripeSessionID string        `json:"stripe_session_id" db:"stripe_session_id"`
	AmountCents     int64         `json:"amount_cents" db:"amount_cents"`
	Currency        string        `json:"currency" db:"currency"`
	Status          PaymentStatus `json:"status" db:"status"`
	CheckoutURL     string        `json:"checkout_url,omitempty" db:"checkout_url"`
	VerifiedAt      *time.Time    `json:"verified_at,omitempty" db:"verified_at"`
	VerifiedBy      *uuid.UUID    `json:"verified_by,omitempty" db:"verified_by"` // admin user on manual verification
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// NewPayment creates a pending payment for a checkout session
func NewPayment(submissionID uuid.UUID, sessionID string, amountCents int64, currency, checkoutURL string) *Payment {
	now := time.Now()
	return &Payment{
		ID:              uuid.New(),
		SubmissionID:    submissionID,
		StripeSessionID: sessionID,
		AmountCents:     amountCents,
		Currency:        currency,
		Status:          PaymentPending,
		CheckoutURL:     checkoutURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// PaymentFilter narrows admin listings
type PaymentFilter struct {
	Status       *PaymentStatus
	SubmissionID *uuid.UUID
	Limit        int
	Offset       int
}
