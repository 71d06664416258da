package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/retail-orders/internal/domain/cart"
	"github.com/xenking/retail-orders/internal/domain/eligibility"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockDiscounts struct {
	calc   func(c *cart.Cart) *cart.Calculation
	err    error
	called bool
}

func (m *mockDiscounts) CalculateCartDiscount(_ context.Context, c *cart.Cart, _ string) (*cart.Calculation, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	return m.calc(c), nil
}

type mockOrderRepo struct {
	lastOrder *Order
	err       error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

// --- Helpers ---

func newTestProduct(id, name string, price decimal.Decimal) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    price,
		Category: "test",
		Image: product.Image{
			Thumbnail: "thumb.jpg",
			Mobile:    "mobile.jpg",
			Tablet:    "tablet.jpg",
			Desktop:   "desktop.jpg",
		},
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func request(lines ...cart.Line) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID:  "u1",
		Channel: promotion.ChannelApp,
		Items:   lines,
	}
}

// --- Tests ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc := NewService(newProductRepo(), &mockDiscounts{}, &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), request())
	require.ErrorIs(t, err, cart.ErrEmptyItems)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", decimal.NewFromInt(10))
	svc := NewService(newProductRepo(p1), &mockDiscounts{}, &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), request(cart.Line{ProductID: "p1", Quantity: 0}))

	var iqErr *cart.InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	svc := NewService(newProductRepo(), &mockDiscounts{}, &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), request(cart.Line{ProductID: "missing", Quantity: 1}))

	var pnfErr *cart.ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestPlaceOrder_NoPromotion(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", decimal.RequireFromString("10.00"))
	p2 := newTestProduct("p2", "Gadget", decimal.RequireFromString("20.00"))
	discounts := &mockDiscounts{}
	repo := &mockOrderRepo{}
	svc := NewService(newProductRepo(p1, p2), discounts, repo)

	result, err := svc.PlaceOrder(context.Background(), request(
		cart.Line{ProductID: "p1", Quantity: 2},
		cart.Line{ProductID: "p2", Quantity: 1},
	))

	require.NoError(t, err)
	assert.False(t, discounts.called)
	assert.True(t, decimal.RequireFromString("40.00").Equal(result.Order.Total))
	assert.True(t, decimal.RequireFromString("40.00").Equal(result.Order.Subtotal))
	assert.True(t, decimal.Zero.Equal(result.Order.Discounts))
	assert.Equal(t, "u1", result.Order.UserID)
	assert.Equal(t, promotion.ChannelApp, result.Order.Channel)
	assert.NotEmpty(t, result.Order.ID)
	assert.False(t, result.Order.CreatedAt.IsZero())
	assert.Len(t, result.Products, 2)
	assert.Same(t, result.Order, repo.lastOrder)
}

func TestPlaceOrder_WithFlatPromotion(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", decimal.RequireFromString("100.00"))
	p2 := newTestProduct("p2", "Gadget", decimal.RequireFromString("50.00"))
	discounts := &mockDiscounts{calc: func(c *cart.Cart) *cart.Calculation {
		items := promotion.CloneItems(c.Items)
		items[0].DiscountApplied = decimal.RequireFromString("20.00")
		items[1].DiscountApplied = decimal.RequireFromString("10.00")
		return &cart.Calculation{
			PromotionID:    "WELCOME30",
			Type:           promotion.TypeFlatDiscount,
			Eligibility:    eligibility.Pass(),
			Subtotal:       c.Subtotal(),
			DiscountAmount: decimal.RequireFromString("30.00"),
			Total:          decimal.RequireFromString("120.00"),
			Items:          items,
		}
	}}
	svc := NewService(newProductRepo(p1, p2), discounts, &mockOrderRepo{})

	req := request(
		cart.Line{ProductID: "p1", Quantity: 1},
		cart.Line{ProductID: "p2", Quantity: 1},
	)
	req.PromotionID = "WELCOME30"
	result, err := svc.PlaceOrder(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "WELCOME30", result.Order.PromotionID)
	assert.True(t, decimal.RequireFromString("120.00").Equal(result.Order.Total))
	assert.True(t, decimal.RequireFromString("30.00").Equal(result.Order.Discounts))
	assert.True(t, decimal.Zero.Equal(result.Order.Cashback))
	assert.True(t, decimal.RequireFromString("20.00").Equal(result.Order.Items[0].DiscountApplied))
}

func TestPlaceOrder_WithCashback(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", decimal.RequireFromString("10.00"))
	discounts := &mockDiscounts{calc: func(c *cart.Cart) *cart.Calculation {
		return &cart.Calculation{
			PromotionID:    "BACK5",
			Type:           promotion.TypeCashback,
			Eligibility:    eligibility.Pass(),
			Subtotal:       c.Subtotal(),
			DiscountAmount: decimal.RequireFromString("5.00"),
			Total:          c.Subtotal(),
			Cashback:       true,
			Items:          promotion.CloneItems(c.Items),
		}
	}}
	svc := NewService(newProductRepo(p1), discounts, &mockOrderRepo{})

	req := request(cart.Line{ProductID: "p1", Quantity: 1})
	req.PromotionID = "BACK5"
	result, err := svc.PlaceOrder(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(result.Order.Total))
	assert.True(t, decimal.Zero.Equal(result.Order.Discounts))
	assert.True(t, decimal.RequireFromString("5.00").Equal(result.Order.Cashback))
}

func TestPlaceOrder_IneligiblePromotion(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", decimal.RequireFromString("10.00"))
	repo := &mockOrderRepo{}
	discounts := &mockDiscounts{calc: func(c *cart.Cart) *cart.Calculation {
		return &cart.Calculation{
			PromotionID: "WELCOME30",
			Eligibility: eligibility.Fail(&eligibility.IneligibilityError{
				Code:    eligibility.CodeNotFirstPurchase,
				Message: "promotion is only available on the first purchase",
			}),
		}
	}}
	svc := NewService(newProductRepo(p1), discounts, repo)

	req := request(cart.Line{ProductID: "p1", Quantity: 1})
	req.PromotionID = "WELCOME30"
	_, err := svc.PlaceOrder(context.Background(), req)

	var inErr *eligibility.IneligibilityError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, eligibility.CodeNotFirstPurchase, inErr.Code)
	assert.Nil(t, repo.lastOrder)
}

func TestPlaceOrder_UnknownPromotion(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", decimal.RequireFromString("10.00"))
	svc := NewService(newProductRepo(p1), &mockDiscounts{err: promotion.ErrNotFound}, &mockOrderRepo{})

	req := request(cart.Line{ProductID: "p1", Quantity: 1})
	req.PromotionID = "BOGUS"
	_, err := svc.PlaceOrder(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestPlaceOrder_OrderCreateError(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", decimal.NewFromInt(10))
	svc := NewService(
		newProductRepo(p1),
		&mockDiscounts{},
		&mockOrderRepo{err: errors.New("db write failed")},
	)

	_, err := svc.PlaceOrder(context.Background(), request(cart.Line{ProductID: "p1", Quantity: 1}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}
