// Package filing holds the guard-clause validators for the owners, properties
// and assignments of a submission. Every validator returns nil or an error
// whose message can be shown to the customer as is.
package filing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/upb/imu-filing/models"
)

var (
	validate = validator.New()

	postalCodeRegex = regexp.MustCompile(`^[0-9]{5}$`)
	provinceRegex   = regexp.MustCompile(`^[A-Za-z]{2}$`)

	hundred = decimal.NewFromInt(100)
)

// ValidateAddress checks that street, city, province and postal code are present
func ValidateAddress(a models.Address) error {
	switch {
	case strings.TrimSpace(a.Street) == "":
		return errors.New("street is required")
	case strings.TrimSpace(a.City) == "":
		return errors.New("city is required")
	case strings.TrimSpace(a.Province) == "":
		return errors.New("province is required")
	case strings.TrimSpace(a.PostalCode) == "":
		return errors.New("postal code is required")
	case !provinceRegex.MatchString(a.Province):
		return errors.New("province must be the two-letter code, e.g. RM")
	case !postalCodeRegex.MatchString(a.PostalCode):
		return errors.New("postal code must be 5 digits")
	}
	return nil
}

// ValidateActivityDetails checks that the dates and prices implied by the
// activity type are present
func ValidateActivityDetails(p *models.Property) error {
	if !p.ActivityType.IsValid() {
		return fmt.Errorf("activity type %q is not valid", p.ActivityType)
	}
	if p.ActivityType.RequiresPurchase() {
		if p.PurchaseDate == nil || p.PurchaseDate.IsZero() {
			return errors.New("purchase date is required")
		}
		if p.PurchasePrice == nil {
			return errors.New("purchase price is required")
		}
		if p.PurchasePrice.IsNegative() {
			return errors.New("purchase price cannot be negative")
		}
	}
	if p.ActivityType.RequiresSale() {
		if p.SaleDate == nil || p.SaleDate.IsZero() {
			return errors.New("sale date is required")
		}
		if p.SalePrice == nil {
			return errors.New("sale price is required")
		}
		if p.SalePrice.IsNegative() {
			return errors.New("sale price cannot be negative")
		}
	}
	return nil
}

// ValidateActivityDates checks that a property bought and sold in the same
// year was not sold before it was bought
func ValidateActivityDates(p *models.Property) error {
	if p.ActivityType != models.ActivityBoth || p.PurchaseDate == nil || p.SaleDate == nil {
		return nil
	}
	if p.PurchaseDate.After(p.SaleDate.Time) {
		return errors.New("purchase date cannot be after sale date")
	}
	return nil
}

// ValidateOccupancy checks that the occupancy allocation covers exactly 12 months
func ValidateOccupancy(occupancy []models.OccupancyPeriod) error {
	seen := make(map[models.OccupancyStatus]bool, len(occupancy))
	total := 0
	for _, o := range occupancy {
		if !o.Status.IsValid() {
			return fmt.Errorf("occupancy status %q is not valid", o.Status)
		}
		if seen[o.Status] {
			return fmt.Errorf("occupancy status %q is listed more than once", o.Status)
		}
		seen[o.Status] = true
		if o.Months < 0 || o.Months > models.MonthsInYear {
			return fmt.Errorf("months for %s must be between 0 and %d", o.Status, models.MonthsInYear)
		}
		total += o.Months
	}
	if total != models.MonthsInYear {
		return fmt.Errorf("occupancy months must total %d (currently %d)", models.MonthsInYear, total)
	}
	return nil
}

// ValidateRentalIncome checks that rental income is declared when the property
// was rented for at least one month
func ValidateRentalIncome(p *models.Property) error {
	if p.RentalIncome != nil && p.RentalIncome.IsNegative() {
		return errors.New("rental income cannot be negative")
	}
	if p.HasRental() && p.RentalIncome == nil {
		return errors.New("rental income is required when the property was rented")
	}
	return nil
}

// ValidateProperty runs every property check in order and returns the first failure
func ValidateProperty(p *models.Property) error {
	if err := ValidateAddress(p.Address); err != nil {
		return err
	}
	if err := ValidateActivityDetails(p); err != nil {
		return err
	}
	if err := ValidateActivityDates(p); err != nil {
		return err
	}
	if err := ValidateOccupancy(p.Occupancy); err != nil {
		return err
	}
	return ValidateRentalIncome(p)
}

// ValidateOwner checks identity fields and the optional contact details
func ValidateOwner(o *models.Owner) error {
	switch {
	case strings.TrimSpace(o.FirstName) == "":
		return errors.New("first name is required")
	case strings.TrimSpace(o.LastName) == "":
		return errors.New("last name is required")
	case strings.TrimSpace(o.Citizenship) == "":
		return errors.New("citizenship is required")
	}
	if o.Email != "" {
		if err := validate.Var(o.Email, "email"); err != nil {
			return errors.New("email is not valid")
		}
	}
	if o.TaxCode != "" {
		if err := validate.Var(o.TaxCode, "len=16,alphanum"); err != nil {
			return errors.New("tax code must be 16 letters and digits")
		}
	}
	return nil
}

// ValidateAssignment checks the ownership share and that both references
// point at an owner and a property of the same submission
func ValidateAssignment(a *models.Assignment, owners []models.Owner, properties []models.Property) error {
	if !a.OwnershipPercentage.IsPositive() || a.OwnershipPercentage.GreaterThan(hundred) {
		return errors.New("ownership percentage must be greater than 0 and at most 100")
	}
	if !containsOwner(owners, a.OwnerID) {
		return errors.New("assignment refers to an unknown owner")
	}
	if !containsProperty(properties, a.PropertyID) {
		return errors.New("assignment refers to an unknown property")
	}
	return nil
}

// ValidatePropertyShares checks the assignments of one property: at least one
// owner, no owner twice, and shares adding up to no more than 100 percent.
func ValidatePropertyShares(propertyID uuid.UUID, assignments []models.Assignment) error {
	total := decimal.Zero
	owners := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		if a.PropertyID != propertyID {
			continue
		}
		if owners[a.OwnerID] {
			return errors.New("an owner is assigned to this property more than once")
		}
		owners[a.OwnerID] = true
		total = total.Add(a.OwnershipPercentage)
	}
	if len(owners) == 0 {
		return errors.New("property must be assigned to at least one owner")
	}
	if total.GreaterThan(hundred) {
		return fmt.Errorf("ownership percentages total %s%%, more than 100%%", total.String())
	}
	return nil
}

// ValidateAssignments applies ValidatePropertyShares to every property and
// returns the first failure
func ValidateAssignments(assignments []models.Assignment, properties []models.Property) error {
	for i := range properties {
		if err := ValidatePropertyShares(properties[i].ID, assignments); err != nil {
			return err
		}
	}
	return nil
}

// ValidateContact checks the person who receives the confirmation
func ValidateContact(c models.Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("contact name is required")
	}
	if err := validate.Var(c.Email, "required,email"); err != nil {
		return errors.New("a valid contact email is required")
	}
	return nil
}

// ValidateSubmission runs every validator over the submission and collects all
// failures keyed by path. It returns nil or an Errors value.
func ValidateSubmission(s *models.Submission) error {
	errs := Errors{}

	errs.add("contact", ValidateContact(s.Contact))

	if len(s.Owners) == 0 {
		errs.add("owners", errors.New("at least one owner is required"))
	}
	if len(s.Properties) == 0 {
		errs.add("properties", errors.New("at least one property is required"))
	}

	ownerIDs := make(map[uuid.UUID]bool, len(s.Owners))
	for i := range s.Owners {
		path := fmt.Sprintf("owners[%d]", i)
		o := &s.Owners[i]
		if o.ID == uuid.Nil || ownerIDs[o.ID] {
			errs.add(path+".id", errors.New("owner id is missing or duplicated"))
		}
		ownerIDs[o.ID] = true
		errs.add(path, ValidateOwner(o))
		if len(s.Properties) > 0 && !ownerAssigned(o.ID, s.Assignments) {
			errs.add(path+".assignments", errors.New("owner is not assigned to any property"))
		}
	}

	propertyIDs := make(map[uuid.UUID]bool, len(s.Properties))
	for i := range s.Properties {
		path := fmt.Sprintf("properties[%d]", i)
		p := &s.Properties[i]
		if p.ID == uuid.Nil || propertyIDs[p.ID] {
			errs.add(path+".id", errors.New("property id is missing or duplicated"))
		}
		propertyIDs[p.ID] = true

		errs.add(path+".address", ValidateAddress(p.Address))
		if err := ValidateActivityDetails(p); err != nil {
			errs.add(path+".activity", err)
		} else {
			errs.add(path+".activity", ValidateActivityDates(p))
		}
		errs.add(path+".occupancy", ValidateOccupancy(p.Occupancy))
		errs.add(path+".rental_income", ValidateRentalIncome(p))
		errs.add(path+".assignments", ValidatePropertyShares(p.ID, s.Assignments))
	}

	for i := range s.Assignments {
		errs.add(fmt.Sprintf("assignments[%d]", i), ValidateAssignment(&s.Assignments[i], s.Owners, s.Properties))
	}

	return errs.orNil()
}

func containsOwner(owners []models.Owner, id uuid.UUID) bool {
	for i := range owners {
		if owners[i].ID == id {
			return true
		}
	}
	return false
}

func containsProperty(properties []models.Property, id uuid.UUID) bool {
	for i := range properties {
		if properties[i].ID == id {
			return true
		}
	}
	return false
}

func ownerAssigned(ownerID uuid.UUID, assignments []models.Assignment) bool {
	for _, a := range assignments {
		if a.OwnerID == ownerID {
			return true
		}
	}
	return false
}
