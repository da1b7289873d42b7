package models

import (
	"github.com/google/uuid"
)

// Owner is a natural person holding a share of one or more properties.
// The ID is generated by the client so that assignments submitted in the same
// request can reference it.
type Owner struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	SubmissionID       uuid.UUID `json:"-" db:"submission_id"`
	FirstName          string    `json:"first_name" db:"first_name"`
	LastName           string    `json:"last_name" db:"last_name"`
	TaxCode            string    `json:"tax_code,omitempty" db:"tax_code"` // codice fiscale
	DateOfBirth        *Date     `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Citizenship        string    `json:"citizenship" db:"citizenship"`
	CountryOfResidence string    `json:"country_of_residence" db:"country_of_residence"`
	IsResidentInItaly  bool      `json:"is_resident_in_italy" db:"is_resident_in_italy"`
	Email              string    `json:"email,omitempty" db:"email"`
	Phone              string    `json:"phone,omitempty" db:"phone"`
	Position           int       `json:"-" db:"position"`
}

// TableName returns the table name for the Owner model
func (Owner) TableName() string {
	return "owners"
}

// FullName returns "First Last"
func (o *Owner) FullName() string {
	return o.FirstName + " " + o.LastName
}
