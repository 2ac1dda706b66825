// Package discount decides which single discount applies to an order and
// computes the discounted total.
//
// Rules are evaluated in a fixed order and the first match wins:
//
//  1. a coupon code known to the coupon table;
//  2. bulk orders (more than 20 items);
//  3. loyalty members with more than 10 items;
//  4. non-members with 20 or more items;
//  5. non-members with 5 or more items while a promotion window is active.
//
// Orders matching no rule keep their total. Results are rounded half-even to
// two decimal places. Discounts compound if applied twice, so callers apply
// them exactly once per order.
package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-discount/internal/domain/coupon"
)

var hundred = decimal.NewFromInt(100)

// Rule identifies the rule that produced a Decision.
type Rule string

const (
	RuleNone          Rule = "none"
	RuleCoupon        Rule = "coupon"
	RuleBulk          Rule = "bulk"
	RuleLoyalty       Rule = "loyalty"
	RuleNonMemberBulk Rule = "non_member_bulk"
	RulePromotion     Rule = "promotion"
)

// Decision is the outcome of evaluating one order.
type Decision struct {
	Rule    Rule
	Percent decimal.Decimal
	// Amount is the money taken off the base total.
	Amount decimal.Decimal
	// Order is a copy of the input with Total replaced by the discounted total.
	Order Order
	// Coupon is set when Rule is RuleCoupon.
	Coupon *coupon.Rule
	// Window is set when Rule is RulePromotion.
	Window *PromotionWindow
}

// Calculator evaluates discount rules. It is immutable and safe for
// concurrent use.
type Calculator struct {
	coupons   coupon.Table
	calendar  PromotionCalendar
	policy    Policy
	now       func() time.Time
	precision int32
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithCoupons sets the coupon table consulted by the coupon rule.
func WithCoupons(t coupon.Table) Option {
	return func(c *Calculator) { c.coupons = t }
}

// WithCalendar sets the calendar that resolves the active promotion window.
func WithCalendar(cal PromotionCalendar) Option {
	return func(c *Calculator) { c.calendar = cal }
}

// WithPolicy replaces the default thresholds and percents.
func WithPolicy(p Policy) Option {
	return func(c *Calculator) { c.policy = p }
}

// WithClock sets the clock used by Apply.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator returns a Calculator using the default coupon registry, the
// December promotion and DefaultPolicy unless overridden by opts.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		coupons:   coupon.DefaultTable(),
		calendar:  December,
		policy:    DefaultPolicy(),
		now:       time.Now,
		precision: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply evaluates o against the calculator's current date and returns the
// order with its discounted total.
func (c *Calculator) Apply(o Order) (Order, error) {
	return c.ApplyOn(o, c.now())
}

// ApplyOn is Apply with an explicit evaluation date.
func (c *Calculator) ApplyOn(o Order, today time.Time) (Order, error) {
	d, err := c.Evaluate(o, today)
	if err != nil {
		return Order{}, err
	}
	return d.Order, nil
}

// Evaluate runs the full rule chain for o on the given day.
func (c *Calculator) Evaluate(o Order, today time.Time) (Decision, error) {
	if err := o.Validate(); err != nil {
		return Decision{}, err
	}
	p := c.policy

	if c.coupons != nil {
		if r, ok := c.coupons.Lookup(o.CouponCode); ok {
			d := c.decide(o, RuleCoupon, r.Percent)
			d.Coupon = &r
			return d, nil
		}
	}

	switch {
	case o.ItemCount >= p.BulkMinItems:
		return c.decide(o, RuleBulk, p.BulkPercent), nil
	case o.LoyaltyMember && o.ItemCount >= p.LoyaltyMinItems:
		return c.decide(o, RuleLoyalty, p.LoyaltyPercent), nil
	case !o.LoyaltyMember && o.ItemCount >= p.NonMemberBulkMinItems:
		return c.decide(o, RuleNonMemberBulk, p.NonMemberBulkPercent), nil
	}

	if c.calendar != nil && c.promotionEligible(o) {
		if w, ok := c.calendar.ActiveWindow(today); ok {
			d := c.decide(o, RulePromotion, p.PromotionPercent)
			d.Window = &w
			return d, nil
		}
	}

	return c.decide(o, RuleNone, decimal.Zero), nil
}

// ApplyDuringPromotionPeriod applies only the promotion rule, using the given
// window instead of the calculator's calendar. Coupon, bulk and loyalty rules
// are not consulted.
func (c *Calculator) ApplyDuringPromotionPeriod(o Order, today time.Time, w PromotionWindow) (Order, error) {
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	if c.promotionEligible(o) && w.Contains(today) {
		return c.decide(o, RulePromotion, c.policy.PromotionPercent).Order, nil
	}
	return c.decide(o, RuleNone, decimal.Zero).Order, nil
}

func (c *Calculator) promotionEligible(o Order) bool {
	return !o.LoyaltyMember && o.ItemCount >= c.policy.PromotionMinItems
}

func (c *Calculator) decide(o Order, rule Rule, percent decimal.Decimal) Decision {
	base := o.Total
	total := base
	if percent.IsPositive() {
		factor := hundred.Sub(percent).Div(hundred)
		total = base.Mul(factor).RoundBank(c.precision)
	}

	out := o
	out.Total = total
	return Decision{
		Rule:    rule,
		Percent: percent,
		Amount:  base.Sub(total),
		Order:   out,
	}
}
