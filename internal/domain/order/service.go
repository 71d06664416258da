package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/cart"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// DiscountCalculator prices a cart with a single promotion.
type DiscountCalculator interface {
	CalculateCartDiscount(ctx context.Context, c *cart.Cart, promotionID string) (*cart.Calculation, error)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID      string
	Channel     promotion.Channel
	Items       []cart.Line
	PromotionID string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates order placement business logic.
type Service struct {
	products  product.Repository
	discounts DiscountCalculator
	orders    Repository
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	discounts DiscountCalculator,
	orders Repository,
) *Service {
	return &Service{
		products:  products,
		discounts: discounts,
		orders:    orders,
		now:       time.Now,
	}
}

// PlaceOrder resolves the cart, applies the requested promotion, persists the
// order and returns it.
//
// An ineligible promotion aborts the order with *eligibility.IneligibilityError.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	c, products, err := cart.Resolve(ctx, s.products, req.UserID, req.Channel, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := c.Subtotal().Round(2)
	o := &Order{
		ID:        uuid.New().String(),
		UserID:    c.UserID,
		Channel:   c.Channel,
		Items:     c.Items,
		Subtotal:  subtotal,
		Discounts: decimal.Zero,
		Cashback:  decimal.Zero,
		Total:     subtotal,
		CreatedAt: s.now().UTC(),
	}

	if req.PromotionID != "" {
		calc, err := s.discounts.CalculateCartDiscount(ctx, c, req.PromotionID)
		if err != nil {
			return nil, errors.Wrap(err, "calculate discount")
		}
		if !calc.Eligibility.Valid {
			return nil, calc.Eligibility.Error
		}

		o.PromotionID = calc.PromotionID
		o.Items = calc.Items
		o.Total = calc.Total
		if calc.Cashback {
			o.Cashback = calc.DiscountAmount
		} else {
			o.Discounts = calc.DiscountAmount
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("channel", string(o.Channel)),
		zap.String("promotion_id", o.PromotionID),
		zap.String("total", o.Total.StringFixed(2)),
	)

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}
