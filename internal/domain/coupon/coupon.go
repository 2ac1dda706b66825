package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidRule is returned when a coupon rule has an empty code or a
// percent outside [0, 100].
var ErrInvalidRule = errors.New("invalid coupon rule")

var hundred = decimal.NewFromInt(100)

// Rule maps a coupon code to the percentage it takes off an order total.
type Rule struct {
	Code        string
	Percent     decimal.Decimal
	Description string
}

// Validate reports whether the rule can be placed in a Table.
func (r Rule) Validate() error {
	if r.Code == "" {
		return errors.Wrap(ErrInvalidRule, "empty code")
	}
	if r.Percent.IsNegative() || r.Percent.GreaterThan(hundred) {
		return errors.Wrapf(ErrInvalidRule, "code %q: percent %s out of range", r.Code, r.Percent)
	}
	return nil
}

// Table looks up coupon rules by code. Codes are case-sensitive.
type Table interface {
	Lookup(code string) (Rule, bool)
}

// StaticTable is an immutable in-memory Table.
type StaticTable struct {
	rules map[string]Rule
}

var _ Table = (*StaticTable)(nil)

// NewTable builds a StaticTable from rules. A later rule with the same code
// replaces an earlier one.
func NewTable(rules ...Rule) (*StaticTable, error) {
	t := &StaticTable{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		t.rules[r.Code] = r
	}
	return t, nil
}

// Lookup returns the rule for code. The empty code never matches.
func (t *StaticTable) Lookup(code string) (Rule, bool) {
	if t == nil || code == "" {
		return Rule{}, false
	}
	r, ok := t.rules[code]
	return r, ok
}

// Len returns the number of rules in the table.
func (t *StaticTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Rules returns a copy of all rules in the table, in no particular order.
func (t *StaticTable) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	return out
}

// DefaultRules is the built-in coupon registry.
func DefaultRules() []Rule {
	return []Rule{
		{Code: "BLACKFRIDAY", Percent: decimal.NewFromInt(20), Description: "Black Friday: 20% off"},
		{Code: "NEWYEAR", Percent: decimal.NewFromInt(10), Description: "New Year: 10% off"},
	}
}

// DefaultTable returns a StaticTable holding DefaultRules.
func DefaultTable() *StaticTable {
	t, err := NewTable(DefaultRules()...)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseRules converts a code→percent map (as read from configuration) into
// validated rules.
func ParseRules(raw map[string]string) ([]Rule, error) {
	rules := make([]Rule, 0, len(raw))
	for code, v := range raw {
		pct, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrapf(err, "parse percent for coupon %q", code)
		}
		r := Rule{Code: code, Percent: pct}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
