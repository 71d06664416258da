package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/retail-orders/internal/domain/eligibility"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, user_id, channel, items, subtotal, discounts, cashback, total, promotion_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)`

	countOrdersSQL          = `SELECT count(*) FROM orders WHERE user_id = $1`
	countOrdersByChannelSQL = `SELECT count(*) FROM orders WHERE user_id = $1 AND channel = $2`
)

var (
	_ order.Repository         = (*OrderRepository)(nil)
	_ eligibility.OrderHistory = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. It also
// serves as the order history for promotion conditions.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, string(o.Channel), encodeItems(o.Items),
		o.Subtotal, o.Discounts, o.Cashback, o.Total, o.PromotionID, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// CountOrders returns the number of orders userID has placed on any channel.
func (r *OrderRepository) CountOrders(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, userID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count orders of %q", userID)
	}
	return n, nil
}

// CountOrdersByChannel returns the number of orders userID has placed on channel.
func (r *OrderRepository) CountOrdersByChannel(ctx context.Context, userID string, channel promotion.Channel) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countOrdersByChannelSQL, userID, string(channel)).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count %s orders of %q", channel, userID)
	}
	return n, nil
}

func encodeItems(items []promotion.Item) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, item := range items {
		e.ObjStart()
		e.FieldStart("sku")
		e.Str(item.SKU)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("sale_price")
		e.Str(item.SalePrice.StringFixed(2))
		e.FieldStart("discount_applied")
		e.Str(item.DiscountApplied.StringFixed(2))
		e.FieldStart("discounted_price")
		e.Str(item.DiscountedPrice.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}
