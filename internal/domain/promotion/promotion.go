package promotion

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported promotion kinds. Each type is bound to
// exactly one Strategy in a Registry.
type Type string

const (
	// TypeFlatDiscount takes a fixed amount off the order, capped at the subtotal.
	TypeFlatDiscount Type = "flat_discount"
	// TypeCashback credits a fixed amount after delivery without touching prices.
	TypeCashback Type = "cashback"
	// TypePercentDiscount takes a percentage off the order, optionally capped.
	TypePercentDiscount Type = "percent_discount"
)

// Channel is the ordering context a cart, an order or a promotion belongs to.
type Channel string

const (
	ChannelApp Channel = "app"
	ChannelPOS Channel = "pos"
	ChannelAPI Channel = "api"
)

// ErrNotFound is returned by stores when a promotion id is unknown.
var ErrNotFound = errors.New("promotion not found")

// ErrInvalidChannel is returned by ParseChannel for unsupported channel names.
var ErrInvalidChannel = errors.New("invalid channel")

// ParseChannel converts a raw channel name into a Channel.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelApp, ChannelPOS, ChannelAPI:
		return c, nil
	default:
		return "", errors.Wrapf(ErrInvalidChannel, "%q", s)
	}
}

// Document is a promotion definition as loaded from the promotion store.
// It is treated as immutable for the duration of an evaluation.
type Document struct {
	ID              string
	Type            Type
	Description     string
	DiscountAmount  decimal.Decimal
	DiscountPercent decimal.Decimal
	// MaxDiscount caps percentage discounts when positive.
	MaxDiscount decimal.Decimal
	// MinOrderAmount is the smallest subtotal the promotion applies to.
	MinOrderAmount decimal.Decimal
	// Conditions are evaluated in order; the first failing one wins.
	Conditions []string
	// Channels restricts the promotion to the listed channels. Empty means all.
	Channels   []Channel
	ValidFrom  *time.Time
	ValidUntil *time.Time
	// Attributes holds document keys this service does not interpret.
	Attributes map[string]string
}

// AllowsChannel reports whether the promotion may be used on channel c.
func (d *Document) AllowsChannel(c Channel) bool {
	if len(d.Channels) == 0 {
		return true
	}
	for _, allowed := range d.Channels {
		if allowed == c {
			return true
		}
	}
	return false
}

// Item is one cart line. Strategies fill DiscountApplied and DiscountedPrice
// on copies; the caller's items are never modified.
type Item struct {
	SKU       string
	Quantity  int
	SalePrice decimal.Decimal
	// DiscountApplied is the share of the promotion discount assigned to the line.
	DiscountApplied decimal.Decimal
	// DiscountedPrice is the line total after DiscountApplied.
	DiscountedPrice decimal.Decimal
}

// LineTotal returns SalePrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.SalePrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CloneItems returns an undiscounted copy of items: DiscountApplied is zero
// and DiscountedPrice equals the line total.
func CloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		item.DiscountApplied = decimal.Zero
		item.DiscountedPrice = item.LineTotal()
		out[i] = item
	}
	return out
}

// Subtotal returns the sum of price * quantity across all items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}
