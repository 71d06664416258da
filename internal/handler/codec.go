package handler

import (
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-orders/internal/domain/cart"
	"github.com/xenking/retail-orders/internal/domain/eligibility"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// decodeError marks a malformed request body.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "invalid request body: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// cartRequest is the body shared by the promotion and order endpoints.
type cartRequest struct {
	UserID      string
	Channel     string
	Items       []cart.Line
	PromotionID string
}

func decodeCartRequest(data []byte) (cartRequest, error) {
	var req cartRequest
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "userId":
			req.UserID, err = d.Str()
		case "channel":
			req.Channel, err = d.Str()
		case "promotionId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.PromotionID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var line cart.Line
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "productId":
						line.ProductID, err = d.Str()
					case "quantity":
						line.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return errors.Wrapf(err, "field %q", key)
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, line)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return cartRequest{}, &decodeError{err: err}
	}
	return req, nil
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	money(e, p.Price)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.ObjStart()
	e.FieldStart("thumbnail")
	e.Str(h.imageURL(p.Image.Thumbnail))
	e.FieldStart("mobile")
	e.Str(h.imageURL(p.Image.Mobile))
	e.FieldStart("tablet")
	e.Str(h.imageURL(p.Image.Tablet))
	e.FieldStart("desktop")
	e.Str(h.imageURL(p.Image.Desktop))
	e.ObjEnd()
	e.ObjEnd()
}

func encodeIneligibility(e *jx.Encoder, ie *eligibility.IneligibilityError) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(ie.Code)
	e.FieldStart("message")
	e.Str(ie.Message)
	if ie.Field != "" {
		e.FieldStart("field")
		e.Str(ie.Field)
	}
	if len(ie.Details) > 0 {
		e.FieldStart("details")
		encodeDetails(e, ie.Details)
	}
	e.ObjEnd()
}

func encodeDetails(e *jx.Encoder, details map[string]string) {
	e.ObjStart()
	for _, k := range slices.Sorted(maps.Keys(details)) {
		e.FieldStart(k)
		e.Str(details[k])
	}
	e.ObjEnd()
}

func encodeAvailability(e *jx.Encoder, list []cart.Availability) {
	e.ArrStart()
	for _, a := range list {
		e.ObjStart()
		e.FieldStart("promotionId")
		e.Str(a.PromotionID)
		e.FieldStart("type")
		e.Str(string(a.Type))
		e.FieldStart("description")
		e.Str(a.Description)
		e.FieldStart("valid")
		e.Bool(a.Valid)
		if a.Error != nil {
			e.FieldStart("error")
			encodeIneligibility(e, a.Error)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeItems(e *jx.Encoder, items []promotion.Item) {
	e.ArrStart()
	for _, item := range items {
		e.ObjStart()
		e.FieldStart("sku")
		e.Str(item.SKU)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("salePrice")
		money(e, item.SalePrice)
		e.FieldStart("discountApplied")
		money(e, item.DiscountApplied)
		e.FieldStart("discountedPrice")
		money(e, item.DiscountedPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeCalculation(e *jx.Encoder, c *cart.Calculation) {
	e.ObjStart()
	e.FieldStart("promotionId")
	e.Str(c.PromotionID)
	e.FieldStart("type")
	e.Str(string(c.Type))
	e.FieldStart("valid")
	e.Bool(c.Eligibility.Valid)
	if c.Eligibility.Error != nil {
		e.FieldStart("error")
		encodeIneligibility(e, c.Eligibility.Error)
	}
	e.FieldStart("subtotal")
	money(e, c.Subtotal)
	e.FieldStart("discountAmount")
	money(e, c.DiscountAmount)
	e.FieldStart("total")
	money(e, c.Total)
	e.FieldStart("cashback")
	e.Bool(c.Cashback)
	e.FieldStart("items")
	encodeItems(e, c.Items)
	e.ObjEnd()
}

func (h *Handler) encodeOrder(e *jx.Encoder, res *order.PlaceOrderResult) {
	o := res.Order
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("channel")
	e.Str(string(o.Channel))
	if o.PromotionID != "" {
		e.FieldStart("promotionId")
		e.Str(o.PromotionID)
	}
	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("discounts")
	money(e, o.Discounts)
	e.FieldStart("cashback")
	money(e, o.Cashback)
	e.FieldStart("total")
	money(e, o.Total)
	e.FieldStart("items")
	encodeItems(e, o.Items)
	e.FieldStart("products")
	e.ArrStart()
	for _, p := range res.Products {
		h.encodeProduct(e, p)
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.Format(time.RFC3339))
	e.ObjEnd()
}
