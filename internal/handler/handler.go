// Package handler exposes the catalogue, promotion and order operations over
// HTTP.
package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/retail-orders/internal/domain/auth"
	"github.com/xenking/retail-orders/internal/domain/cart"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

const maxBodySize = 1 << 20

// CartService lists and prices promotions for a cart.
type CartService interface {
	GetAvailablePromotions(ctx context.Context, c *cart.Cart) ([]cart.Availability, error)
	CalculateCartDiscount(ctx context.Context, c *cart.Cart, promotionID string) (*cart.Calculation, error)
}

// OrderService places orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the /api routes.
type Handler struct {
	products     product.Repository
	carts        CartService
	orders       OrderService
	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	carts CartService,
	orders OrderService,
) *Handler {
	return &Handler{
		products:     products,
		carts:        carts,
		orders:       orders,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Register adds the API routes to mux. Every route requires an API key.
func (h *Handler) Register(mux *http.ServeMux, authn *auth.Authenticator) {
	secured := RequireAPIKey(authn)

	mux.Handle("GET /api/product", secured(http.HandlerFunc(h.ListProducts)))
	mux.Handle("GET /api/product/{productId}", secured(http.HandlerFunc(h.GetProduct)))
	mux.Handle("POST /api/promotions/available", secured(http.HandlerFunc(h.AvailablePromotions)))
	mux.Handle("POST /api/promotions/{promotionId}/calculate", secured(http.HandlerFunc(h.CalculateDiscount)))
	mux.Handle("POST /api/order", secured(http.HandlerFunc(h.PlaceOrder)))
}

// ListProducts returns the whole catalogue.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, errors.Wrap(err, "list products"))
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ArrStart()
	for _, p := range products {
		h.encodeProduct(e, p)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("productId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	h.encodeProduct(e, *p)
	writeJSON(w, http.StatusOK, e)
}

// AvailablePromotions lists every active promotion with its eligibility for
// the posted cart.
func (h *Handler) AvailablePromotions(w http.ResponseWriter, r *http.Request) {
	c, _, err := h.resolveCart(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	list, err := h.carts.GetAvailablePromotions(r.Context(), c)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeAvailability(e, list)
	writeJSON(w, http.StatusOK, e)
}

// CalculateDiscount prices the posted cart with one promotion. An ineligible
// cart is a successful response with valid=false.
func (h *Handler) CalculateDiscount(w http.ResponseWriter, r *http.Request) {
	c, _, err := h.resolveCart(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	calc, err := h.carts.CalculateCartDiscount(r.Context(), c, r.PathValue("promotionId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeCalculation(e, calc)
	writeJSON(w, http.StatusOK, e)
}

// PlaceOrder creates an order, applying the optional promotion.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, channel, err := h.readCartRequest(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:      req.UserID,
		Channel:     channel,
		Items:       req.Items,
		PromotionID: req.PromotionID,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	h.encodeOrder(e, res)
	writeJSON(w, http.StatusCreated, e)
}

// readCartRequest decodes the body and checks that the caller's key may act
// on the requested channel.
func (h *Handler) readCartRequest(r *http.Request) (cartRequest, promotion.Channel, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		return cartRequest{}, "", &decodeError{err: err}
	}
	req, err := decodeCartRequest(data)
	if err != nil {
		return cartRequest{}, "", err
	}

	channel, err := promotion.ParseChannel(req.Channel)
	if err != nil {
		return cartRequest{}, "", err
	}
	if key := auth.KeyFrom(r.Context()); key == nil || !key.AllowsChannel(channel) {
		return cartRequest{}, "", &forbiddenChannelError{Channel: channel}
	}
	return req, channel, nil
}

func (h *Handler) resolveCart(r *http.Request) (*cart.Cart, []product.Product, error) {
	req, channel, err := h.readCartRequest(r)
	if err != nil {
		return nil, nil, err
	}
	return cart.Resolve(r.Context(), h.products, req.UserID, channel, req.Items)
}

// imageURL prepends the configured base URL to relative image paths.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
