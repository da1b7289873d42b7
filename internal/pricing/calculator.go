package pricing

import "time"

// Calculator binds the pricing rules to a configured cutoff and clock, so the
// quote endpoint and the checkout service agree on the amount.
type Calculator struct {
	cutoff time.Time
	now    func() time.Time
}

// Option configures a Calculator
type Option func(*Calculator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

// NewCalculator creates a calculator. A zero cutoff falls back to DefaultCutoff.
func NewCalculator(cutoff time.Time, opts ...Option) *Calculator {
	if cutoff.IsZero() {
		cutoff = DefaultCutoff
	}
	c := &Calculator{cutoff: cutoff, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote prices a filing at the current instant
func (c *Calculator) Quote(ownersCount, propertiesCount int, hasDocumentRetrieval bool) Breakdown {
	return c.Calculate(ownersCount, propertiesCount, hasDocumentRetrieval, c.now())
}

// Calculate prices a filing at the given instant
func (c *Calculator) Calculate(ownersCount, propertiesCount int, hasDocumentRetrieval bool, now time.Time) Breakdown {
	return calculate(c.cutoff, ownersCount, propertiesCount, hasDocumentRetrieval, now)
}

// CurrentTier returns the tier in force right now
func (c *Calculator) CurrentTier() Tier {
	return TierAt(c.cutoff, c.now())
}

// Cutoff returns the instant the early-bird tier ends
func (c *Calculator) Cutoff() time.Time {
	return c.cutoff
}

// Now returns the calculator's clock reading
func (c *Calculator) Now() time.Time {
	return c.now()
}
