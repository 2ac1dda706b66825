package discount

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidOrder is matched by every *InvalidOrderError.
var ErrInvalidOrder = errors.New("invalid order")

// InvalidOrderError reports which order field was rejected.
type InvalidOrderError struct {
	Field  string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidOrder) hold for any InvalidOrderError.
func (e *InvalidOrderError) Is(target error) bool {
	return target == ErrInvalidOrder
}

// Order carries the attributes the discount rules look at.
type Order struct {
	// CustomerName is descriptive only.
	CustomerName  string
	LoyaltyMember bool
	ItemCount     int
	Total         decimal.Decimal
	// CouponCode is empty when the order has no coupon.
	CouponCode string
}

// Validate rejects orders with a negative item count or total.
func (o Order) Validate() error {
	if o.ItemCount < 0 {
		return &InvalidOrderError{Field: "item count", Reason: fmt.Sprintf("must not be negative, got %d", o.ItemCount)}
	}
	if o.Total.IsNegative() {
		return &InvalidOrderError{Field: "total", Reason: fmt.Sprintf("must not be negative, got %s", o.Total)}
	}
	return nil
}
