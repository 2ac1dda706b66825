package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Policy holds the volume, loyalty and promotion thresholds. Item thresholds
// are inclusive minimums, so "more than 20 items" is BulkMinItems = 21.
type Policy struct {
	BulkMinItems int
	BulkPercent  decimal.Decimal

	LoyaltyMinItems int
	LoyaltyPercent  decimal.Decimal

	NonMemberBulkMinItems int
	NonMemberBulkPercent  decimal.Decimal

	PromotionMinItems int
	PromotionPercent  decimal.Decimal
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		BulkMinItems:          21,
		BulkPercent:           decimal.NewFromInt(15),
		LoyaltyMinItems:       11,
		LoyaltyPercent:        decimal.NewFromInt(10),
		NonMemberBulkMinItems: 20,
		NonMemberBulkPercent:  decimal.NewFromInt(15),
		PromotionMinItems:     5,
		PromotionPercent:      decimal.NewFromInt(5),
	}
}

// Validate checks thresholds are non-negative and percents are in [0, 100].
func (p Policy) Validate() error {
	thresholds := []struct {
		name string
		v    int
	}{
		{"bulk min items", p.BulkMinItems},
		{"loyalty min items", p.LoyaltyMinItems},
		{"non-member bulk min items", p.NonMemberBulkMinItems},
		{"promotion min items", p.PromotionMinItems},
	}
	for _, th := range thresholds {
		if th.v < 0 {
			return errors.Errorf("policy: %s must not be negative, got %d", th.name, th.v)
		}
	}

	percents := []struct {
		name string
		v    decimal.Decimal
	}{
		{"bulk percent", p.BulkPercent},
		{"loyalty percent", p.LoyaltyPercent},
		{"non-member bulk percent", p.NonMemberBulkPercent},
		{"promotion percent", p.PromotionPercent},
	}
	for _, pc := range percents {
		if pc.v.IsNegative() || pc.v.GreaterThan(hundred) {
			return errors.Errorf("policy: %s must be within [0, 100], got %s", pc.name, pc.v)
		}
	}
	return nil
}
