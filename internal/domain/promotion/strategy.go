package promotion

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// currencyPlaces is the number of decimal places of the smallest currency unit.
const currencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Strategy computes the discount for one promotion type.
type Strategy interface {
	// ComputeDiscount returns the discount for the given order amount. It
	// performs no I/O.
	ComputeDiscount(doc *Document, orderAmount decimal.Decimal) (decimal.Decimal, error)
	// ApplyToItems spreads discount across items and returns new items, or
	// nil when the strategy does not adjust individual lines.
	ApplyToItems(items []Item, discount decimal.Decimal) []Item
	// ReducesPrice reports whether the discount lowers the charged total.
	ReducesPrice() bool
}

// UnknownTypeError is returned when no strategy is registered for a type.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown promotion type %q", string(e.Type))
}

// Registry maps promotion types to strategies. Lookups are exact and
// case-sensitive; there is no fallback strategy.
type Registry struct {
	strategies map[Type]Strategy
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[Type]Strategy)}
}

// DefaultRegistry returns a Registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeFlatDiscount, FlatDiscount{})
	r.Register(TypeCashback, Cashback{})
	r.Register(TypePercentDiscount, PercentDiscount{})
	return r
}

// Register binds s to t, replacing any previous binding. It must be called
// before the registry is shared between goroutines.
func (r *Registry) Register(t Type, s Strategy) {
	r.strategies[t] = s
}

// Lookup returns the strategy bound to t or *UnknownTypeError.
func (r *Registry) Lookup(t Type) (Strategy, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, &UnknownTypeError{Type: t}
	}
	return s, nil
}

// Supports reports whether a strategy is registered for t.
func (r *Registry) Supports(t Type) bool {
	_, ok := r.strategies[t]
	return ok
}

// FlatDiscount takes DiscountAmount off the order, capped at the order amount.
type FlatDiscount struct{}

func (FlatDiscount) ComputeDiscount(doc *Document, orderAmount decimal.Decimal) (decimal.Decimal, error) {
	amount := decimal.Min(doc.DiscountAmount, orderAmount)
	return floorAtZero(amount).Round(currencyPlaces), nil
}

func (FlatDiscount) ApplyToItems(items []Item, discount decimal.Decimal) []Item {
	return distribute(items, discount)
}

func (FlatDiscount) ReducesPrice() bool { return true }

// PercentDiscount takes DiscountPercent percent off the order. A positive
// MaxDiscount caps the result.
type PercentDiscount struct{}

func (PercentDiscount) ComputeDiscount(doc *Document, orderAmount decimal.Decimal) (decimal.Decimal, error) {
	if doc.DiscountPercent.IsNegative() || doc.DiscountPercent.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("promotion %s: discount_percent %s out of range", doc.ID, doc.DiscountPercent)
	}
	amount := orderAmount.Mul(doc.DiscountPercent).Div(hundred)
	if doc.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, doc.MaxDiscount)
	}
	amount = decimal.Min(amount, orderAmount)
	return floorAtZero(amount).Round(currencyPlaces), nil
}

func (PercentDiscount) ApplyToItems(items []Item, discount decimal.Decimal) []Item {
	return distribute(items, discount)
}

func (PercentDiscount) ReducesPrice() bool { return true }

// Cashback credits DiscountAmount after delivery. It never changes prices.
type Cashback struct{}

func (Cashback) ComputeDiscount(doc *Document, _ decimal.Decimal) (decimal.Decimal, error) {
	return floorAtZero(doc.DiscountAmount), nil
}

func (Cashback) ApplyToItems(items []Item, _ decimal.Decimal) []Item {
	if len(items) == 0 {
		return nil
	}
	return CloneItems(items)
}

func (Cashback) ReducesPrice() bool { return false }

// distribute splits discount across items in proportion to each line total.
// Shares are rounded to currency precision. The rounding residual is added to
// the line with the largest total (the last such line on ties), so the shares
// always sum to discount exactly.
func distribute(items []Item, discount decimal.Decimal) []Item {
	if len(items) == 0 {
		return nil
	}
	out := CloneItems(items)

	subtotal := Subtotal(items)
	if !subtotal.IsPositive() {
		return out
	}
	discount = discount.Round(currencyPlaces)

	allocated := decimal.Zero
	largest := 0
	for i := range out {
		line := out[i].LineTotal()
		share := discount.Mul(line).Div(subtotal).Round(currencyPlaces)
		out[i].DiscountApplied = share
		allocated = allocated.Add(share)
		if line.GreaterThanOrEqual(out[largest].LineTotal()) {
			largest = i
		}
	}
	if residual := discount.Sub(allocated); !residual.IsZero() {
		out[largest].DiscountApplied = out[largest].DiscountApplied.Add(residual)
	}

	for i := range out {
		out[i].DiscountedPrice = out[i].LineTotal().Sub(out[i].DiscountApplied)
	}
	return out
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
