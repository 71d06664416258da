package eligibility

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// Condition names as they appear in promotion documents.
const (
	ConditionFirstOrderEver = "first_order_ever"
	ConditionFirstOrderApp  = "first_order_app"
	ConditionFirstOrderPOS  = "first_order_pos"
)

// FirstOrderEver passes only for users without any previous order.
type FirstOrderEver struct {
	History OrderHistory
}

// Validate implements Validator.
func (v FirstOrderEver) Validate(ctx context.Context, userID string) (Result, error) {
	count, err := v.History.CountOrders(ctx, userID)
	if err != nil {
		return Result{}, errors.Wrap(err, "count orders")
	}
	return firstPurchase(ctx, ConditionFirstOrderEver, userID, count), nil
}

// FirstOrderOnChannel passes only for users without a previous order on
// Channel. Orders on other channels are ignored.
type FirstOrderOnChannel struct {
	History OrderHistory
	Channel promotion.Channel
}

// Validate implements Validator.
func (v FirstOrderOnChannel) Validate(ctx context.Context, userID string) (Result, error) {
	count, err := v.History.CountOrdersByChannel(ctx, userID, v.Channel)
	if err != nil {
		return Result{}, errors.Wrapf(err, "count %s orders", v.Channel)
	}
	return firstPurchase(ctx, "first_order_"+string(v.Channel), userID, count), nil
}

func firstPurchase(ctx context.Context, condition, userID string, count int) Result {
	if count < 1 {
		return Pass()
	}

	zctx.From(ctx).Warn("Promotion condition failed",
		zap.String("condition", condition),
		zap.String("user_id", userID),
		zap.Int("order_count", count),
	)
	return Fail(&IneligibilityError{
		Code:    CodeNotFirstPurchase,
		Field:   "user_id",
		Message: "promotion is only available on the first purchase",
		Details: map[string]string{
			"condition":   condition,
			"order_count": strconv.Itoa(count),
		},
	})
}
