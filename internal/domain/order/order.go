package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// Order represents a placed customer order with pricing and discount details.
type Order struct {
	ID      string
	UserID  string
	Channel promotion.Channel
	// Items carry the per-line discount assigned by the promotion, if any.
	Items    []promotion.Item
	Subtotal decimal.Decimal
	// Discounts is the price reduction applied to Subtotal.
	Discounts decimal.Decimal
	// Cashback is credited after delivery and is not part of Total.
	Cashback    decimal.Decimal
	Total       decimal.Decimal
	PromotionID string
	CreatedAt   time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
}
