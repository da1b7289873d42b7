package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/upb/imu-filing/internal/pricing"
)

// SubmissionStatus tracks a filing through checkout
type SubmissionStatus string

const (
	SubmissionDraft          SubmissionStatus = "draft"
	SubmissionPendingPayment SubmissionStatus = "pending_payment"
	SubmissionPaid           SubmissionStatus = "paid"
	SubmissionCancelled      SubmissionStatus = "cancelled"
)

// IsValid reports whether the status is known
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionDraft, SubmissionPendingPayment, SubmissionPaid, SubmissionCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Paid and cancelled are terminal.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	switch s {
	case SubmissionDraft:
		return next == SubmissionPendingPayment || next == SubmissionCancelled || next == SubmissionPaid
	case SubmissionPendingPayment:
		return next == SubmissionPaid || next == SubmissionCancelled || next == SubmissionDraft
	}
	return false
}

// Contact is the person who fills in the form and receives the confirmation
type Contact struct {
	Name  string `json:"name" db:"contact_name"`
	Email string `json:"email" db:"contact_email"`
	Phone string `json:"phone,omitempty" db:"contact_phone"`
}

// Submission is one customer filing request
type Submission struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	Contact              Contact           `json:"contact"`
	Owners               []Owner           `json:"owners"`
	Properties           []Property        `json:"properties"`
	Assignments          []Assignment      `json:"assignments"`
	HasDocumentRetrieval bool              `json:"has_document_retrieval" db:"has_document_retrieval"`
	Pricing              pricing.Breakdown `json:"pricing" db:"pricing"` // snapshot at creation
	Status               SubmissionStatus  `json:"status" db:"status"`
	StripeSessionID      *string           `json:"stripe_session_id,omitempty" db:"stripe_session_id"`
	Notes                string            `json:"notes,omitempty" db:"notes"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
	PaidAt               *time.Time        `json:"paid_at,omitempty" db:"paid_at"`
}

// TableName returns the table name for the Submission model
func (Submission) TableName() string {
	return "submissions"
}

// NewSubmission creates a draft submission, stamping ids and positions on its children
func NewSubmission(contact Contact, owners []Owner, properties []Property, assignments []Assignment, hasDocumentRetrieval bool) *Submission {
	now := time.Now()
	s := &Submission{
		ID:                   uuid.New(),
		Contact:              contact,
		Owners:               owners,
		Properties:           properties,
		Assignments:          assignments,
		HasDocumentRetrieval: hasDocumentRetrieval,
		Status:               SubmissionDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for i := range s.Owners {
		s.Owners[i].SubmissionID = s.ID
		s.Owners[i].Position = i
	}
	for i := range s.Properties {
		s.Properties[i].SubmissionID = s.ID
		s.Properties[i].Position = i
	}
	for i := range s.Assignments {
		if s.Assignments[i].ID == uuid.Nil {
			s.Assignments[i].ID = uuid.New()
		}
		s.Assignments[i].SubmissionID = s.ID
	}
	return s
}

// OwnerByID returns the owner with the given id, or nil
func (s *Submission) OwnerByID(id uuid.UUID) *Owner {
	for i := range s.Owners {
		if s.Owners[i].ID == id {
			return &s.Owners[i]
		}
	}
	return nil
}

// PropertyByID returns the property with the given id, or nil
func (s *Submission) PropertyByID(id uuid.UUID) *Property {
	for i := range s.Properties {
		if s.Properties[i].ID == id {
			return &s.Properties[i]
		}
	}
	return nil
}

// SubmissionFilter narrows admin listings
type SubmissionFilter struct {
	Status *SubmissionStatus
	Email  string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
