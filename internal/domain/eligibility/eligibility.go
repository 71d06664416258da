// Package eligibility decides whether a user may use a promotion.
//
// Ineligibility is an expected outcome and is reported as data (Result with
// Valid=false). Only failures of the underlying order-history lookup surface
// as errors.
package eligibility

import (
	"context"
	"fmt"

	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// Machine-readable ineligibility codes.
const (
	CodeNotFirstPurchase     = "NOT_FIRST_PURCHASE"
	CodeChannelNotAllowed    = "CHANNEL_NOT_ALLOWED"
	CodePromotionNotActive   = "PROMOTION_NOT_ACTIVE"
	CodePromotionExpired     = "PROMOTION_EXPIRED"
	CodeMinOrderNotMet       = "MIN_ORDER_NOT_MET"
	CodeUnknownCondition     = "UNKNOWN_CONDITION"
	CodeUnknownPromotionType = "UNKNOWN_PROMOTION_TYPE"
)

// IneligibilityError describes why a promotion cannot be used.
type IneligibilityError struct {
	Code    string
	Field   string
	Message string
	Details map[string]string
}

func (e *IneligibilityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is the outcome of a single condition or of a whole evaluation.
// Error is set only when Valid is false.
type Result struct {
	Valid bool
	Error *IneligibilityError
}

// Pass is the successful Result.
func Pass() Result {
	return Result{Valid: true}
}

// Fail returns an invalid Result carrying err.
func Fail(err *IneligibilityError) Result {
	return Result{Error: err}
}

// OrderHistory is the read-only view of a user's past orders.
type OrderHistory interface {
	CountOrders(ctx context.Context, userID string) (int, error)
	CountOrdersByChannel(ctx context.Context, userID string, channel promotion.Channel) (int, error)
}

// Validator checks a single named condition for a user.
type Validator interface {
	Validate(ctx context.Context, userID string) (Result, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, userID string) (Result, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, userID string) (Result, error) {
	return f(ctx, userID)
}
