package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Assignment links one owner to one property with an ownership share
type Assignment struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	SubmissionID        uuid.UUID       `json:"-" db:"submission_id"`
	OwnerID             uuid.UUID       `json:"owner_id" db:"owner_id"`
	PropertyID          uuid.UUID       `json:"property_id" db:"property_id"`
	OwnershipPercentage decimal.Decimal `json:"ownership_percentage" db:"ownership_percentage"`
	ResidentAtProperty  bool            `json:"resident_at_property" db:"resident_at_property"`
}

// TableName returns the table name for the Assignment model
func (Assignment) TableName() string {
	return "assignments"
}
