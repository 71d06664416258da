package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/auth"
	"github.com/xenking/retail-orders/internal/domain/cart"
	"github.com/xenking/retail-orders/internal/domain/eligibility"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// Error codes of non-eligibility failures.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidChannel    = "INVALID_CHANNEL"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeChannelForbidden  = "CHANNEL_FORBIDDEN"
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodePromotionNotFound = "PROMOTION_NOT_FOUND"
	CodeInternal          = "INTERNAL"
)

// forbiddenChannelError is returned when the API key may not act on a channel.
type forbiddenChannelError struct {
	Channel promotion.Channel
}

func (e *forbiddenChannelError) Error() string {
	return fmt.Sprintf("api key is not allowed to use channel %q", string(e.Channel))
}

// apiError is the body of every error response.
type apiError struct {
	Status  int
	Code    string
	Message string
	Field   string
	Details map[string]string
}

// mapError converts a domain error into an HTTP error response.
func mapError(err error) apiError {
	var (
		decErr    *decodeError
		forbidden *forbiddenChannelError
		qtyErr    *cart.InvalidQuantityError
		pnfErr    *cart.ProductNotFoundError
		inErr     *eligibility.IneligibilityError
		typeErr   *promotion.UnknownTypeError
	)

	switch {
	case errors.As(err, &decErr):
		return apiError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: decErr.Error()}
	case errors.Is(err, promotion.ErrInvalidChannel):
		return apiError{Status: http.StatusBadRequest, Code: CodeInvalidChannel, Message: err.Error(), Field: "channel"}
	case errors.Is(err, cart.ErrEmptyItems):
		return apiError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: err.Error(), Field: "items"}
	case errors.Is(err, cart.ErrEmptyUserID):
		return apiError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: err.Error(), Field: "userId"}
	case errors.Is(err, auth.ErrUnauthorized):
		return apiError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
	case errors.As(err, &forbidden):
		return apiError{Status: http.StatusForbidden, Code: CodeChannelForbidden, Message: forbidden.Error(), Field: "channel"}
	case errors.Is(err, product.ErrNotFound):
		return apiError{Status: http.StatusNotFound, Code: CodeProductNotFound, Message: err.Error()}
	case errors.As(err, &pnfErr):
		return apiError{
			Status:  http.StatusNotFound,
			Code:    CodeProductNotFound,
			Message: pnfErr.Error(),
			Field:   "items",
			Details: map[string]string{"productId": pnfErr.ProductID},
		}
	case errors.Is(err, promotion.ErrNotFound):
		return apiError{Status: http.StatusNotFound, Code: CodePromotionNotFound, Message: err.Error()}
	case errors.As(err, &qtyErr):
		return apiError{
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeInvalidQuantity,
			Message: qtyErr.Error(),
			Field:   "items",
			Details: map[string]string{"productId": qtyErr.ProductID},
		}
	case errors.As(err, &inErr):
		return apiError{
			Status:  http.StatusUnprocessableEntity,
			Code:    inErr.Code,
			Message: inErr.Message,
			Field:   inErr.Field,
			Details: inErr.Details,
		}
	case errors.As(err, &typeErr):
		return apiError{
			Status:  http.StatusUnprocessableEntity,
			Code:    eligibility.CodeUnknownPromotionType,
			Message: typeErr.Error(),
			Field:   "type",
			Details: map[string]string{"type": string(typeErr.Type)},
		}
	default:
		return apiError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error"}
	}
}

// writeError logs err and writes the mapped error response.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ae := mapError(err)
	if ae.Status >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	} else {
		zctx.From(ctx).Debug("Request rejected", zap.String("code", ae.Code), zap.Error(err))
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("code")
	e.Str(ae.Code)
	e.FieldStart("message")
	e.Str(ae.Message)
	if ae.Field != "" {
		e.FieldStart("field")
		e.Str(ae.Field)
	}
	if len(ae.Details) > 0 {
		e.FieldStart("details")
		encodeDetails(e, ae.Details)
	}
	e.ObjEnd()
	writeJSON(w, ae.Status, e)
}
