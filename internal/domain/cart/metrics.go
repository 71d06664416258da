package cart

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// Evaluation outcomes recorded by Metrics.
const (
	OutcomeEligible    = "eligible"
	OutcomeIneligible  = "ineligible"
	OutcomeUnknownType = "unknown_type"
	OutcomeError       = "error"
)

// Metrics holds the promotion evaluation instruments.
type Metrics struct {
	evaluationsTotal   metric.Int64Counter
	discountAmount     metric.Float64Histogram
	evaluationDuration metric.Float64Histogram
}

// NewMetrics registers the promotion instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.evaluationsTotal, err = meter.Int64Counter(
		"promotion_evaluations_total",
		metric.WithDescription("Total number of promotion eligibility evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create promotion_evaluations_total counter")
	}

	m.discountAmount, err = meter.Float64Histogram(
		"promotion_discount_amount",
		metric.WithDescription("Discount or cashback amount computed per calculation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create promotion_discount_amount histogram")
	}

	m.evaluationDuration, err = meter.Float64Histogram(
		"promotion_evaluation_duration_seconds",
		metric.WithDescription("Duration of a single promotion evaluation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create promotion_evaluation_duration_seconds histogram")
	}

	return m, nil
}

// RecordEvaluation counts one evaluation and its duration.
func (m *Metrics) RecordEvaluation(ctx context.Context, t promotion.Type, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("type", string(t)),
		attribute.String("outcome", outcome),
	)
	m.evaluationsTotal.Add(ctx, 1, attrs)
	m.evaluationDuration.Record(ctx, seconds, attrs)
}

// RecordDiscount records the amount of a successful calculation.
func (m *Metrics) RecordDiscount(ctx context.Context, t promotion.Type, amount float64) {
	m.discountAmount.Record(ctx, amount, metric.WithAttributes(
		attribute.String("type", string(t)),
	))
}
