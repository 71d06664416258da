package eligibility

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// Factory builds the Validator for a named condition from the evaluator's
// order history.
type Factory func(history OrderHistory) Validator

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCondition registers an additional condition, replacing a built-in one
// with the same name.
func WithCondition(name string, f Factory) Option {
	return func(e *Evaluator) {
		e.conditions[name] = f(e.history)
	}
}

// WithClock overrides the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// Evaluator runs the eligibility rules of a promotion for one user.
// It is safe for concurrent use once constructed.
type Evaluator struct {
	history    OrderHistory
	conditions map[string]Validator
	now        func() time.Time
}

// NewEvaluator creates an Evaluator whose conditions query history.
func NewEvaluator(history OrderHistory, opts ...Option) *Evaluator {
	e := &Evaluator{
		history: history,
		conditions: map[string]Validator{
			ConditionFirstOrderEver: FirstOrderEver{History: history},
			ConditionFirstOrderApp:  FirstOrderOnChannel{History: history, Channel: promotion.ChannelApp},
			ConditionFirstOrderPOS:  FirstOrderOnChannel{History: history, Channel: promotion.ChannelPOS},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks doc's validity window, channel restriction, minimum order
// amount and finally its conditions, in document order. The first failure is
// returned and the remaining checks are skipped.
//
// An error is returned only when a condition could not be evaluated.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	doc *promotion.Document,
	userID string,
	channel promotion.Channel,
	orderAmount decimal.Decimal,
) (Result, error) {
	if res := e.checkWindow(doc); !res.Valid {
		return res, nil
	}

	if !doc.AllowsChannel(channel) {
		return Fail(&IneligibilityError{
			Code:    CodeChannelNotAllowed,
			Field:   "channel",
			Message: "promotion is not available on this channel",
			Details: map[string]string{"channel": string(channel)},
		}), nil
	}

	if doc.MinOrderAmount.IsPositive() && orderAmount.LessThan(doc.MinOrderAmount) {
		return Fail(&IneligibilityError{
			Code:    CodeMinOrderNotMet,
			Field:   "items",
			Message: "order amount is below the promotion minimum",
			Details: map[string]string{
				"min_order_amount": doc.MinOrderAmount.StringFixed(2),
				"order_amount":     orderAmount.StringFixed(2),
			},
		}), nil
	}

	for _, name := range doc.Conditions {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		v, ok := e.conditions[name]
		if !ok {
			return Fail(&IneligibilityError{
				Code:    CodeUnknownCondition,
				Field:   "conditions",
				Message: "promotion uses an unsupported condition",
				Details: map[string]string{"condition": name},
			}), nil
		}

		res, err := v.Validate(ctx, userID)
		if err != nil {
			return Result{}, errors.Wrapf(err, "condition %s", name)
		}
		if !res.Valid {
			return res, nil
		}
	}

	return Pass(), nil
}

func (e *Evaluator) checkWindow(doc *promotion.Document) Result {
	now := e.now()
	if doc.ValidFrom != nil && now.Before(*doc.ValidFrom) {
		return Fail(&IneligibilityError{
			Code:    CodePromotionNotActive,
			Field:   "valid_from",
			Message: "promotion has not started yet",
			Details: map[string]string{"valid_from": doc.ValidFrom.Format(time.RFC3339)},
		})
	}
	if doc.ValidUntil != nil && now.After(*doc.ValidUntil) {
		return Fail(&IneligibilityError{
			Code:    CodePromotionExpired,
			Field:   "valid_until",
			Message: "promotion has expired",
			Details: map[string]string{"valid_until": doc.ValidUntil.Format(time.RFC3339)},
		})
	}
	return Pass()
}
