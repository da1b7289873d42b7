package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityType describes what happened to a property during the tax year
type ActivityType string

const (
	ActivityPurchased    ActivityType = "purchased"
	ActivitySold         ActivityType = "sold"
	ActivityBoth         ActivityType = "both"
	ActivityOwnedAllYear ActivityType = "owned_all_year"
)

// IsValid reports whether the activity type is known
func (a ActivityType) IsValid() bool {
	switch a {
	case ActivityPurchased, ActivitySold, ActivityBoth, ActivityOwnedAllYear:
		return true
	}
	return false
}

// RequiresPurchase reports whether purchase date and price are mandatory
func (a ActivityType) RequiresPurchase() bool {
	return a == ActivityPurchased || a == ActivityBoth
}

// RequiresSale reports whether sale date and price are mandatory
func (a ActivityType) RequiresSale() bool {
	return a == ActivitySold || a == ActivityBoth
}

// OccupancyStatus is how a property was used during part of the year
type OccupancyStatus string

const (
	OccupancyPersonalUse     OccupancyStatus = "personal_use"
	OccupancyLongTermRental  OccupancyStatus = "long_term_rental"
	OccupancyShortTermRental OccupancyStatus = "short_term_rental"
	OccupancyVacant          OccupancyStatus = "vacant"
)

// IsValid reports whether the status is known
func (s OccupancyStatus) IsValid() bool {
	switch s {
	case OccupancyPersonalUse, OccupancyLongTermRental, OccupancyShortTermRental, OccupancyVacant:
		return true
	}
	return false
}

// IsRental reports whether the status produces rental income
func (s OccupancyStatus) IsRental() bool {
	return s == OccupancyLongTermRental || s == OccupancyShortTermRental
}

// MonthsInYear is the number of months an occupancy allocation must cover
const MonthsInYear = 12

// OccupancyPeriod allocates a number of months to one status
type OccupancyPeriod struct {
	Status OccupancyStatus `json:"status"`
	Months int             `json:"months"`
}

// Address is an Italian postal address
type Address struct {
	Street       string `json:"street" db:"street"`
	StreetNumber string `json:"street_number,omitempty" db:"street_number"`
	City         string `json:"city" db:"city"`
	Province     string `json:"province" db:"province"` // two-letter sigla, e.g. RM
	PostalCode   string `json:"postal_code" db:"postal_code"`
}

// String formats the address on one line
func (a Address) String() string {
	street := a.Street
	if a.StreetNumber != "" {
		street += " " + a.StreetNumber
	}
	return street + ", " + a.PostalCode + " " + a.City + " (" + a.Province + ")"
}

// CadastralData identifies the property in the land registry (catasto)
type CadastralData struct {
	Sheet       string `json:"sheet,omitempty"`       // foglio
	Parcel      string `json:"parcel,omitempty"`      // particella
	Subordinate string `json:"subordinate,omitempty"` // subalterno
	Category    string `json:"category,omitempty"`    // e.g. A/2
}

// Property is a real estate unit declared in a submission
type Property struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	SubmissionID  uuid.UUID         `json:"-" db:"submission_id"`
	Address       Address           `json:"address"`
	Cadastral     *CadastralData    `json:"cadastral,omitempty" db:"cadastral"`
	ActivityType  ActivityType      `json:"activity_type" db:"activity_type"`
	PurchaseDate  *Date             `json:"purchase_date,omitempty" db:"purchase_date"`
	PurchasePrice *decimal.Decimal  `json:"purchase_price,omitempty" db:"purchase_price"`
	SaleDate      *Date             `json:"sale_date,omitempty" db:"sale_date"`
	SalePrice     *decimal.Decimal  `json:"sale_price,omitempty" db:"sale_price"`
	Occupancy     []OccupancyPeriod `json:"occupancy" db:"occupancy"`
	RentalIncome  *decimal.Decimal  `json:"rental_income,omitempty" db:"rental_income"`
	Position      int               `json:"-" db:"position"`
}

// TableName returns the table name for the Property model
func (Property) TableName() string {
	return "properties"
}

// OccupiedMonths sums the months of every occupancy period
func (p *Property) OccupiedMonths() int {
	total := 0
	for _, o := range p.Occupancy {
		total += o.Months
	}
	return total
}

// RentalMonths sums the months allocated to rental statuses
func (p *Property) RentalMonths() int {
	total := 0
	for _, o := range p.Occupancy {
		if o.Status.IsRental() {
			total += o.Months
		}
	}
	return total
}

// HasRental reports whether any rental status has months allocated
func (p *Property) HasRental() bool {
	return p.RentalMonths() > 0
}
