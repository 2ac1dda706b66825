// Package batch evaluates JSON-lines order files.
//
// Each input line is an object such as
//
//	{"customer":"Jane","loyalty":true,"items":12,"total":"100.00","coupon":"NEWYEAR"}
//
// and produces one output line with the decision or an "error" field.
package batch

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-discount/internal/domain/discount"
)

// DecodeOrder parses one JSON order object. Unknown fields are ignored.
// "total" may be a JSON number or a string; "coupon" may be null.
func DecodeOrder(data []byte) (discount.Order, error) {
	var o discount.Order
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "customer":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "customer")
			}
			o.CustomerName = v
		case "loyalty":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "loyalty")
			}
			o.LoyaltyMember = v
		case "items":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "items")
			}
			o.ItemCount = v
		case "total":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "total")
			}
			o.Total = v
		case "coupon":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "coupon")
			}
			o.CouponCode = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return discount.Order{}, err
	}
	return o, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = string(n)
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s", d.Next())
	}
	return decimal.NewFromString(raw)
}

// EncodeDecision writes the output object for an evaluated order.
func EncodeDecision(e *jx.Encoder, line int, in discount.Order, dec discount.Decision) {
	e.ObjStart()
	e.FieldStart("line")
	e.Int(line)
	encodeOrderFields(e, in)
	e.FieldStart("base_total")
	e.Str(in.Total.StringFixed(2))
	e.FieldStart("total")
	e.Str(dec.Order.Total.StringFixed(2))
	e.FieldStart("discount")
	e.Str(dec.Amount.StringFixed(2))
	e.FieldStart("percent")
	e.Str(dec.Percent.String())
	e.FieldStart("rule")
	e.Str(string(dec.Rule))
	if dec.Window != nil {
		e.FieldStart("promotion")
		e.Str(dec.Window.Name)
	}
	e.ObjEnd()
}

// EncodeError writes the output object for an order that was rejected.
func EncodeError(e *jx.Encoder, line int, in discount.Order, err error) {
	e.ObjStart()
	e.FieldStart("line")
	e.Int(line)
	encodeOrderFields(e, in)
	e.FieldStart("error")
	e.Str(err.Error())
	e.ObjEnd()
}

func encodeOrderFields(e *jx.Encoder, o discount.Order) {
	e.FieldStart("customer")
	e.Str(o.CustomerName)
	e.FieldStart("loyalty")
	e.Bool(o.LoyaltyMember)
	e.FieldStart("items")
	e.Int(o.ItemCount)
	e.FieldStart("coupon")
	if o.CouponCode == "" {
		e.Null()
	} else {
		e.Str(o.CouponCode)
	}
}
