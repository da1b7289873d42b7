// Package pricing computes the price of an IMU filing from the number of owners,
// the number of properties and the optional document retrieval service.
//
// The base price covers the first owner and the first property. The second owner
// and the second property have their own increment, every further one a lower
// flat increment. Two rate tables exist: the discounted early-bird table applies
// strictly before the cutoff instant, the regular table from the cutoff onwards.
package pricing

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Tier identifies which rate table produced a breakdown
type Tier string

const (
	TierEarlyBird Tier = "earlyBird"
	TierRegular   Tier = "regular"
)

// Currency is the ISO 4217 code of every amount produced by this package
const Currency = "EUR"

// DefaultCutoff is 2026-04-01 00:00 Europe/Rome (CEST).
var DefaultCutoff = time.Date(2026, time.March, 31, 22, 0, 0, 0, time.UTC)

// Rates is one pricing table
type Rates struct {
	Base           decimal.Decimal
	SecondOwner    decimal.Decimal
	ExtraOwner     decimal.Decimal // each owner from the third onwards
	SecondProperty decimal.Decimal
	ExtraProperty  decimal.Decimal // each property from the third onwards
}

var (
	EarlyBirdRates = Rates{
		Base:           decimal.RequireFromString("295.00"),
		SecondOwner:    decimal.RequireFromString("147.50"),
		ExtraOwner:     decimal.RequireFromString("88.50"),
		SecondProperty: decimal.RequireFromString("80.00"),
		ExtraProperty:  decimal.RequireFromString("60.00"),
	}

	RegularRates = Rates{
		Base:           decimal.RequireFromString("400.00"),
		SecondOwner:    decimal.RequireFromString("200.00"),
		ExtraOwner:     decimal.RequireFromString("120.00"),
		SecondProperty: decimal.RequireFromString("120.00"),
		ExtraProperty:  decimal.RequireFromString("90.00"),
	}

	// DocumentRetrievalFee is the same in both tiers
	DocumentRetrievalFee = decimal.RequireFromString("28.00")
)

// Breakdown is the priced result shown to the customer and charged at checkout
type Breakdown struct {
	BasePrice                 decimal.Decimal  `json:"base_price"`
	AdditionalOwnersPrice     decimal.Decimal  `json:"additional_owners_price"`
	AdditionalPropertiesPrice decimal.Decimal  `json:"additional_properties_price"`
	DocumentRetrievalFee      *decimal.Decimal `json:"document_retrieval_fee"` // nil when not requested
	Total                     decimal.Decimal  `json:"total"`
	Tier                      Tier             `json:"tier"`
	Currency                  string           `json:"currency"`
	OwnersCount               int              `json:"owners_count"`
	PropertiesCount           int              `json:"properties_count"`
}

// AmountCents returns the total in the smallest currency unit
func (b Breakdown) AmountCents() int64 {
	return b.Total.Shift(2).Round(0).IntPart()
}

// MarshalJSON renders every amount with two decimals, "442.50" rather than "442.5"
func (b Breakdown) MarshalJSON() ([]byte, error) {
	type money struct {
		BasePrice                 string  `json:"base_price"`
		AdditionalOwnersPrice     string  `json:"additional_owners_price"`
		AdditionalPropertiesPrice string  `json:"additional_properties_price"`
		DocumentRetrievalFee      *string `json:"document_retrieval_fee"`
		Total                     string  `json:"total"`
		Tier                      Tier    `json:"tier"`
		Currency                  string  `json:"currency"`
		OwnersCount               int     `json:"owners_count"`
		PropertiesCount           int     `json:"properties_count"`
	}
	out := money{
		BasePrice:                 b.BasePrice.StringFixed(2),
		AdditionalOwnersPrice:     b.AdditionalOwnersPrice.StringFixed(2),
		AdditionalPropertiesPrice: b.AdditionalPropertiesPrice.StringFixed(2),
		Total:                     b.Total.StringFixed(2),
		Tier:                      b.Tier,
		Currency:                  b.Currency,
		OwnersCount:               b.OwnersCount,
		PropertiesCount:           b.PropertiesCount,
	}
	if b.DocumentRetrievalFee != nil {
		fee := b.DocumentRetrievalFee.StringFixed(2)
		out.DocumentRetrievalFee = &fee
	}
	return json.Marshal(out)
}

// Equal reports whether two breakdowns charge the same amounts under the same tier
func (b Breakdown) Equal(o Breakdown) bool {
	if (b.DocumentRetrievalFee == nil) != (o.DocumentRetrievalFee == nil) {
		return false
	}
	if b.DocumentRetrievalFee != nil && !b.DocumentRetrievalFee.Equal(*o.DocumentRetrievalFee) {
		return false
	}
	return b.Tier == o.Tier &&
		b.Currency == o.Currency &&
		b.BasePrice.Equal(o.BasePrice) &&
		b.AdditionalOwnersPrice.Equal(o.AdditionalOwnersPrice) &&
		b.AdditionalPropertiesPrice.Equal(o.AdditionalPropertiesPrice) &&
		b.Total.Equal(o.Total)
}

// Calculate prices a filing against DefaultCutoff at the given instant.
func Calculate(ownersCount, propertiesCount int, hasDocumentRetrieval bool, now time.Time) Breakdown {
	return calculate(DefaultCutoff, ownersCount, propertiesCount, hasDocumentRetrieval, now)
}

// TierAt returns the tier in force at now for the given cutoff
func TierAt(cutoff, now time.Time) Tier {
	if now.Before(cutoff) {
		return TierEarlyBird
	}
	return TierRegular
}

// RatesFor returns the rate table of a tier
func RatesFor(tier Tier) Rates {
	if tier == TierEarlyBird {
		return EarlyBirdRates
	}
	return RegularRates
}

func calculate(cutoff time.Time, ownersCount, propertiesCount int, hasDocumentRetrieval bool, now time.Time) Breakdown {
	if ownersCount < 1 {
		ownersCount = 1
	}
	if propertiesCount < 1 {
		propertiesCount = 1
	}

	tier := TierAt(cutoff, now)
	rates := RatesFor(tier)

	b := Breakdown{
		BasePrice:                 rates.Base,
		AdditionalOwnersPrice:     increments(ownersCount, rates.SecondOwner, rates.ExtraOwner),
		AdditionalPropertiesPrice: increments(propertiesCount, rates.SecondProperty, rates.ExtraProperty),
		Tier:                      tier,
		Currency:                  Currency,
		OwnersCount:               ownersCount,
		PropertiesCount:           propertiesCount,
	}

	b.Total = b.BasePrice.Add(b.AdditionalOwnersPrice).Add(b.AdditionalPropertiesPrice)
	if hasDocumentRetrieval {
		fee := DocumentRetrievalFee
		b.DocumentRetrievalFee = &fee
		b.Total = b.Total.Add(fee)
	}
	return b
}

// increments prices everything beyond the first unit
func increments(count int, second, extra decimal.Decimal) decimal.Decimal {
	if count < 2 {
		return decimal.Zero
	}
	return second.Add(extra.Mul(decimal.NewFromInt(int64(count - 2))))
}
