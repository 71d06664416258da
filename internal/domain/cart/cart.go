// Package cart evaluates promotions against a shopping cart.
//
// It ties together the promotion store, the eligibility evaluator and the
// discount calculator. Nothing in this package writes: listing and pricing a
// cart are read-only and repeatable.
package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-orders/internal/domain/eligibility"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// Sentinel errors for cart validation.
var (
	ErrEmptyItems  = errors.New("items required")
	ErrEmptyUserID = errors.New("user id required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Cart is a priced set of lines for one user on one channel.
type Cart struct {
	UserID  string
	Channel promotion.Channel
	Items   []promotion.Item
}

// Subtotal returns the undiscounted cart total.
func (c *Cart) Subtotal() decimal.Decimal {
	return promotion.Subtotal(c.Items)
}

// Line is a requested product and quantity, before pricing.
type Line struct {
	ProductID string
	Quantity  int
}

// PromotionStore provides read access to promotion documents.
type PromotionStore interface {
	// Get returns promotion.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*promotion.Document, error)
	// ListActive returns the promotions that may be offered on channel.
	ListActive(ctx context.Context, channel promotion.Channel) ([]promotion.Document, error)
}

// Availability reports whether one promotion can be used with a cart.
type Availability struct {
	PromotionID string
	Type        promotion.Type
	Description string
	Valid       bool
	Error       *eligibility.IneligibilityError
}

// Calculation is the priced outcome of applying one promotion to a cart.
type Calculation struct {
	PromotionID string
	Type        promotion.Type
	Eligibility eligibility.Result
	Subtotal    decimal.Decimal
	// DiscountAmount is the price reduction, or the credit when Cashback is set.
	DiscountAmount decimal.Decimal
	// Total is what the customer pays; cashback does not lower it.
	Total    decimal.Decimal
	Cashback bool
	Items    []promotion.Item
}

// Resolve prices lines against the product catalogue and returns the cart
// together with the products in line order. Products are fetched in a single
// batch.
func Resolve(
	ctx context.Context,
	products product.Repository,
	userID string,
	channel promotion.Channel,
	lines []Line,
) (*Cart, []product.Product, error) {
	if userID == "" {
		return nil, nil, ErrEmptyUserID
	}
	if len(lines) == 0 {
		return nil, nil, ErrEmptyItems
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	c := &Cart{
		UserID:  userID,
		Channel: channel,
		Items:   make([]promotion.Item, len(lines)),
	}
	ordered := make([]product.Product, len(lines))
	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		ordered[i] = p
		c.Items[i] = promotion.Item{
			SKU:       p.ID,
			Quantity:  line.Quantity,
			SalePrice: p.Price,
		}
	}
	c.Items = promotion.CloneItems(c.Items)

	return c, ordered, nil
}
