package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Result holds the outcome of a discount calculation.
type Result struct {
	// Amount is the total discount (or cashback credit) for the order.
	Amount decimal.Decimal
	// Items are fresh copies of the cart lines.
	Items []Item
	// Adjusted reports whether Items came from the strategy rather than
	// passing through unmodified.
	Adjusted bool
	// ReducesPrice is false for credits such as cashback.
	ReducesPrice bool
}

// Calculator selects the strategy for a promotion and applies it to a cart.
type Calculator struct {
	registry *Registry
}

// NewCalculator creates a Calculator backed by registry. A nil registry
// means DefaultRegistry.
func NewCalculator(registry *Registry) *Calculator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Calculator{registry: registry}
}

// Supports reports whether doc's type has a registered strategy.
func (c *Calculator) Supports(doc *Document) bool {
	return c.registry.Supports(doc.Type)
}

// Calculate computes the discount of doc for items. It returns
// *UnknownTypeError when doc.Type has no strategy; it never falls back to a
// zero discount.
func (c *Calculator) Calculate(doc *Document, items []Item) (Result, error) {
	strategy, err := c.registry.Lookup(doc.Type)
	if err != nil {
		return Result{}, err
	}

	subtotal := Subtotal(items)
	amount, err := strategy.ComputeDiscount(doc, subtotal)
	if err != nil {
		return Result{}, errors.Wrapf(err, "compute %s discount", doc.Type)
	}
	amount = floorAtZero(amount)
	if strategy.ReducesPrice() {
		amount = decimal.Min(amount, subtotal)
	}

	res := Result{
		Amount:       amount,
		ReducesPrice: strategy.ReducesPrice(),
	}
	if adjusted := strategy.ApplyToItems(items, amount); adjusted != nil {
		res.Items = adjusted
		res.Adjusted = true
	} else {
		res.Items = CloneItems(items)
	}
	return res, nil
}
