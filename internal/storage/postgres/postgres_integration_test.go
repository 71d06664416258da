//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/retail-orders/internal/domain/auth"
	"github.com/xenking/retail-orders/internal/domain/cart"
	"github.com/xenking/retail-orders/internal/domain/eligibility"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
	"github.com/xenking/retail-orders/internal/storage/postgres"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("retail"),
		testpostgres.WithUsername("test"),
		testpostgres.WithPassword("test"),
		testpostgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.RunMigrations(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, postgres.RunMigrations(ctx, pool))
	return pool
}

var seedPromotions = []string{
	`{"id":"WELCOME30","type":"flat_discount","description":"30 off","discount_amount":"30.00","conditions":["first_order_ever"]}`,
	`{"id":"APPFIRST10","type":"cashback","description":"10 back","discount_amount":"10.00","conditions":["first_order_app"],"channels":["app"]}`,
	`{"id":"POSFIRST5","type":"flat_discount","description":"5 off","discount_amount":"5.00","conditions":["first_order_pos"],"channels":["pos"]}`,
}

func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	products := postgres.NewProductRepository(pool)
	for _, p := range []product.Product{
		{ID: "p1", Name: "Waffle", Price: decimal.RequireFromString("100.00"), Category: "Waffle"},
		{ID: "p2", Name: "Brownie", Price: decimal.RequireFromString("50.00"), Category: "Brownie"},
	} {
		require.NoError(t, products.Upsert(ctx, p))
	}

	records := make([]postgres.PromotionRecord, 0, len(seedPromotions))
	for _, raw := range seedPromotions {
		doc, err := promotion.ParseDocument([]byte(raw))
		require.NoError(t, err)
		records = append(records, postgres.PromotionRecord{Document: doc, Raw: []byte(raw)})
	}
	require.NoError(t, postgres.NewPromotionRepository(pool).Upsert(ctx, records))
}

func TestProductRepository(t *testing.T) {
	pool := setupTestDB(t)
	seed(t, pool)
	repo := postgres.NewProductRepository(pool)
	ctx := context.Background()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	p, err := repo.GetByID(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "Brownie", p.Name)
	assert.True(t, decimal.RequireFromString("50").Equal(p.Price))

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, product.ErrNotFound)

	some, err := repo.GetByIDs(ctx, []string{"p1", "missing"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "p1", some[0].ID)
}

func TestPromotionRepository(t *testing.T) {
	pool := setupTestDB(t)
	seed(t, pool)
	repo := postgres.NewPromotionRepository(pool)
	ctx := context.Background()

	doc, err := repo.Get(ctx, "WELCOME30")
	require.NoError(t, err)
	assert.Equal(t, promotion.TypeFlatDiscount, doc.Type)
	assert.Equal(t, []string{"first_order_ever"}, doc.Conditions)

	_, err = repo.Get(ctx, "NOPE")
	assert.ErrorIs(t, err, promotion.ErrNotFound)

	ids := func(docs []promotion.Document) []string {
		out := make([]string, len(docs))
		for i, d := range docs {
			out[i] = d.ID
		}
		return out
	}

	app, err := repo.ListActive(ctx, promotion.ChannelApp)
	require.NoError(t, err)
	assert.Equal(t, []string{"APPFIRST10", "WELCOME30"}, ids(app))

	pos, err := repo.ListActive(ctx, promotion.ChannelPOS)
	require.NoError(t, err)
	assert.Equal(t, []string{"POSFIRST5", "WELCOME30"}, ids(pos))

	// Re-upserting replaces the document.
	raw := `{"id":"WELCOME30","type":"flat_discount","description":"new","discount_amount":"40.00"}`
	updated, err := promotion.ParseDocument([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, []postgres.PromotionRecord{{Document: updated, Raw: []byte(raw)}}))

	doc, err = repo.Get(ctx, "WELCOME30")
	require.NoError(t, err)
	assert.Equal(t, "new", doc.Description)
	assert.Empty(t, doc.Conditions)
}

func TestOrderRepository_History(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewOrderRepository(pool)
	ctx := context.Background()

	place := func(user string, channel promotion.Channel, promotionID string) {
		t.Helper()
		require.NoError(t, repo.Create(ctx, &order.Order{
			ID:      uuid.NewString(),
			UserID:  user,
			Channel: channel,
			Items: []promotion.Item{{
				SKU:             "p1",
				Quantity:        1,
				SalePrice:       decimal.RequireFromString("10"),
				DiscountedPrice: decimal.RequireFromString("10"),
			}},
			Subtotal:    decimal.RequireFromString("10"),
			Total:       decimal.RequireFromString("10"),
			PromotionID: promotionID,
			CreatedAt:   time.Now().UTC(),
		}))
	}
	place("u1", promotion.ChannelPOS, "")
	place("u1", promotion.ChannelPOS, "POSFIRST5")
	place("u2", promotion.ChannelApp, "")

	total, err := repo.CountOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	app, err := repo.CountOrdersByChannel(ctx, "u1", promotion.ChannelApp)
	require.NoError(t, err)
	assert.Zero(t, app)

	pos, err := repo.CountOrdersByChannel(ctx, "u1", promotion.ChannelPOS)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	none, err := repo.CountOrders(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestAPIKeyRepository(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewAPIKeyRepository(pool)
	ctx := context.Background()
	pepper := []byte("pepper")

	hash := auth.HashKey(pepper, "secret")
	require.NoError(t, repo.Upsert(ctx, &auth.APIKeyInfo{
		ID: "pos-terminal", KeyHash: hash, Name: "POS", Scopes: []string{"channel:pos"},
	}))

	authn := auth.NewAuthenticator(repo, pepper)
	info, err := authn.Authenticate(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, "pos-terminal", info.ID)
	assert.True(t, info.AllowsChannel(promotion.ChannelPOS))
	assert.False(t, info.AllowsChannel(promotion.ChannelApp))

	_, err = authn.Authenticate(ctx, "wrong")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

// TestFirstOrderFlow runs the promotion pipeline against real storage: a new
// user qualifies for the welcome and app promotions, and loses them once an
// order is placed.
func TestFirstOrderFlow(t *testing.T) {
	pool := setupTestDB(t)
	seed(t, pool)
	ctx := context.Background()

	products := postgres.NewProductRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	carts, err := cart.NewService(
		postgres.NewPromotionRepository(pool),
		eligibility.NewEvaluator(orders),
		promotion.NewCalculator(nil),
	)
	require.NoError(t, err)
	svc := order.NewService(products, carts, orders)

	lines := []cart.Line{{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 1}}
	c, _, err := cart.Resolve(ctx, products, "alice", promotion.ChannelApp, lines)
	require.NoError(t, err)

	avail, err := carts.GetAvailablePromotions(ctx, c)
	require.NoError(t, err)
	require.Len(t, avail, 2)
	for _, a := range avail {
		assert.True(t, a.Valid, a.PromotionID)
	}

	res, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:      "alice",
		Channel:     promotion.ChannelApp,
		Items:       lines,
		PromotionID: "WELCOME30",
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("120").Equal(res.Order.Total))
	assert.True(t, decimal.RequireFromString("30").Equal(res.Order.Discounts))

	calc, err := carts.CalculateCartDiscount(ctx, c, "WELCOME30")
	require.NoError(t, err)
	assert.False(t, calc.Eligibility.Valid)
	assert.Equal(t, eligibility.CodeNotFirstPurchase, calc.Eligibility.Error.Code)
	assert.True(t, calc.DiscountAmount.IsZero())

	_, err = svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:      "alice",
		Channel:     promotion.ChannelApp,
		Items:       lines,
		PromotionID: "APPFIRST10",
	})
	var inErr *eligibility.IneligibilityError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, eligibility.CodeNotFirstPurchase, inErr.Code)
}
