package cart

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/retail-orders/internal/domain/eligibility"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

const instrumentationName = "github.com/xenking/retail-orders/internal/domain/cart"

// DefaultConcurrency bounds the number of promotions evaluated in parallel.
const DefaultConcurrency = 8

// Option configures a Service.
type Option func(*Service)

// WithConcurrency sets the maximum number of concurrent promotion evaluations.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithEvalTimeout bounds every service call. Zero disables the timeout.
func WithEvalTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithTracerProvider sets the tracer provider. Defaults to noop.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Defaults to noop.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.meterProvider = mp
	}
}

// Service lists and prices the promotions applicable to a cart.
type Service struct {
	store      PromotionStore
	evaluator  *eligibility.Evaluator
	calculator *promotion.Calculator

	concurrency    int
	timeout        time.Duration
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer  trace.Tracer
	metrics *Metrics
}

// NewService creates a cart Service.
func NewService(
	store PromotionStore,
	evaluator *eligibility.Evaluator,
	calculator *promotion.Calculator,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		store:          store,
		evaluator:      evaluator,
		calculator:     calculator,
		concurrency:    DefaultConcurrency,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := NewMetrics(s.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	s.metrics = m
	s.tracer = s.tracerProvider.Tracer(instrumentationName)

	return s, nil
}

// GetAvailablePromotions evaluates every active promotion of the cart's
// channel and reports each one as valid or not, sorted by promotion id.
//
// Promotions are evaluated concurrently; conditions of a single promotion
// run sequentially. A lookup failure cancels the remaining evaluations and is
// returned.
func (s *Service) GetAvailablePromotions(ctx context.Context, c *Cart) (_ []Availability, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.GetAvailablePromotions", trace.WithAttributes(
		attribute.String("user.id", c.UserID),
		attribute.String("cart.channel", string(c.Channel)),
	))
	defer func() { endSpan(span, rerr) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	docs, err := s.store.ListActive(ctx, c.Channel)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	span.SetAttributes(attribute.Int("promotion.count", len(docs)))

	subtotal := c.Subtotal()
	out := make([]Availability, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range docs {
		doc := &docs[i]
		g.Go(func() error {
			a, err := s.availability(gctx, doc, c, subtotal)
			if err != nil {
				return errors.Wrapf(err, "evaluate promotion %s", doc.ID)
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b Availability) int {
		return strings.Compare(a.PromotionID, b.PromotionID)
	})

	zctx.From(ctx).Debug("Evaluated promotions",
		zap.String("user_id", c.UserID),
		zap.String("channel", string(c.Channel)),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func (s *Service) availability(ctx context.Context, doc *promotion.Document, c *Cart, subtotal decimal.Decimal) (Availability, error) {
	start := time.Now()
	a := Availability{
		PromotionID: doc.ID,
		Type:        doc.Type,
		Description: doc.Description,
	}

	if !s.calculator.Supports(doc) {
		a.Error = &eligibility.IneligibilityError{
			Code:    eligibility.CodeUnknownPromotionType,
			Field:   "type",
			Message: "promotion type is not supported",
			Details: map[string]string{"type": string(doc.Type)},
		}
		s.metrics.RecordEvaluation(ctx, doc.Type, OutcomeUnknownType, time.Since(start).Seconds())
		return a, nil
	}

	res, err := s.evaluator.Evaluate(ctx, doc, c.UserID, c.Channel, subtotal)
	if err != nil {
		s.metrics.RecordEvaluation(ctx, doc.Type, OutcomeError, time.Since(start).Seconds())
		return Availability{}, err
	}
	a.Valid = res.Valid
	a.Error = res.Error
	s.metrics.RecordEvaluation(ctx, doc.Type, outcome(res), time.Since(start).Seconds())

	return a, nil
}

// CalculateCartDiscount prices c with the promotion promotionID.
//
// An ineligible cart yields a Calculation with Eligibility.Valid false and no
// discount. It returns promotion.ErrNotFound for unknown ids and
// *promotion.UnknownTypeError when the promotion type has no strategy.
func (s *Service) CalculateCartDiscount(ctx context.Context, c *Cart, promotionID string) (_ *Calculation, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.CalculateCartDiscount", trace.WithAttributes(
		attribute.String("user.id", c.UserID),
		attribute.String("cart.channel", string(c.Channel)),
		attribute.String("promotion.id", promotionID),
	))
	defer func() { endSpan(span, rerr) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc, err := s.store.Get(ctx, promotionID)
	if err != nil {
		return nil, errors.Wrap(err, "get promotion")
	}
	span.SetAttributes(attribute.String("promotion.type", string(doc.Type)))

	start := time.Now()
	if !s.calculator.Supports(doc) {
		s.metrics.RecordEvaluation(ctx, doc.Type, OutcomeUnknownType, time.Since(start).Seconds())
		return nil, &promotion.UnknownTypeError{Type: doc.Type}
	}

	subtotal := c.Subtotal()
	calc := &Calculation{
		PromotionID: doc.ID,
		Type:        doc.Type,
		Subtotal:    subtotal,
	}

	res, err := s.evaluator.Evaluate(ctx, doc, c.UserID, c.Channel, subtotal)
	if err != nil {
		s.metrics.RecordEvaluation(ctx, doc.Type, OutcomeError, time.Since(start).Seconds())
		return nil, errors.Wrap(err, "evaluate eligibility")
	}
	s.metrics.RecordEvaluation(ctx, doc.Type, outcome(res), time.Since(start).Seconds())
	calc.Eligibility = res

	if !res.Valid {
		calc.DiscountAmount = decimal.Zero
		calc.Total = subtotal.Round(2)
		calc.Items = promotion.CloneItems(c.Items)
		return calc, nil
	}

	r, err := s.calculator.Calculate(doc, c.Items)
	if err != nil {
		return nil, errors.Wrap(err, "calculate discount")
	}

	calc.DiscountAmount = r.Amount
	calc.Cashback = !r.ReducesPrice
	calc.Items = r.Items
	calc.Total = subtotal
	if r.ReducesPrice {
		calc.Total = subtotal.Sub(r.Amount)
	}
	calc.Total = calc.Total.Round(2)

	s.metrics.RecordDiscount(ctx, doc.Type, r.Amount.InexactFloat64())
	return calc, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func outcome(res eligibility.Result) string {
	if res.Valid {
		return OutcomeEligible
	}
	return OutcomeIneligible
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
