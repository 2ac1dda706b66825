package app

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-discount/internal/batch"
	"github.com/xenking/order-discount/internal/domain/discount"
	"github.com/xenking/order-discount/internal/storage/postgres"
)

const instrumentationName = "github.com/xenking/order-discount"

// rejectedRule labels decisions for orders that failed validation.
const rejectedRule = "rejected"

// Run builds the calculator, evaluates the configured batch and reports
// telemetry. It is the single wiring point for the evaluator.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg = lg.With(zap.String("run_id", uuid.New().String()))
	ctx = zctx.Base(ctx, lg)

	today, err := cfg.EvaluationDate(time.Now())
	if err != nil {
		return err
	}
	lg.Info("Initializing",
		zap.String("today", today.Format(dateLayout)),
		zap.Bool("database", cfg.DatabaseURL != ""),
	)

	calc, err := NewCalculator(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "build calculator")
	}

	in, err := batch.OpenInput(cfg.Input)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := batch.OpenOutput(cfg.Output)
	if err != nil {
		return err
	}

	e := &Evaluator{
		Calculator:     calc,
		Today:          today,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	}
	stats, err := e.Evaluate(ctx, in, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close output")
	}
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int("orders", stats.Orders),
		zap.Int("rejected", stats.Rejected),
	}
	for rule, n := range stats.ByRule {
		fields = append(fields, zap.Int("rule_"+string(rule), n))
	}
	lg.Info("Batch evaluated", fields...)
	return nil
}

// NewCalculator builds a calculator from PostgreSQL when DatabaseURL is set,
// and from the static coupon and promotion config otherwise.
func NewCalculator(ctx context.Context, cfg *Config) (*discount.Calculator, error) {
	policy, err := cfg.Policy.Build()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return staticCalculator(cfg, policy)
	}

	lg := zctx.From(ctx)
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	table, err := postgres.NewCouponRepository(pool).LoadTable(ctx)
	if err != nil {
		return nil, err
	}
	schedule, err := postgres.NewPromotionRepository(pool).LoadSchedule(ctx)
	if err != nil {
		return nil, err
	}
	lg.Info("Loaded discount data",
		zap.Int("coupons", table.Len()),
		zap.Int("promotions", len(schedule)),
	)

	return discount.NewCalculator(
		discount.WithCoupons(table),
		discount.WithCalendar(schedule),
		discount.WithPolicy(policy),
	), nil
}

func staticCalculator(cfg *Config, policy discount.Policy) (*discount.Calculator, error) {
	table, err := cfg.CouponTable()
	if err != nil {
		return nil, err
	}
	season, err := cfg.Promotion.Build()
	if err != nil {
		return nil, err
	}
	return discount.NewCalculator(
		discount.WithCoupons(table),
		discount.WithCalendar(season),
		discount.WithPolicy(policy),
	), nil
}

// Evaluator runs a batch inside a span and counts decisions per rule.
type Evaluator struct {
	Calculator     *discount.Calculator
	Today          time.Time
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Evaluate streams orders from r to w.
func (e *Evaluator) Evaluate(ctx context.Context, r io.Reader, w io.Writer) (batch.Stats, error) {
	decisions, err := e.MeterProvider.Meter(instrumentationName).Int64Counter("discount.decisions",
		metric.WithDescription("Evaluated orders by the rule that decided them"),
	)
	if err != nil {
		return batch.Stats{}, errors.Wrap(err, "create decisions counter")
	}

	ctx, span := e.TracerProvider.Tracer(instrumentationName).Start(ctx, "discount.EvaluateBatch",
		trace.WithAttributes(attribute.String("discount.today", e.Today.Format(dateLayout))),
	)
	defer span.End()

	p := &batch.Processor{
		Evaluator: e.Calculator,
		Today:     e.Today,
		Observe: func(res batch.Result) {
			rule := rejectedRule
			if res.Err == nil {
				rule = string(res.Decision.Rule)
			}
			decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
		},
	}

	stats, err := p.Run(ctx, r, w)
	span.SetAttributes(
		attribute.Int("discount.orders", stats.Orders),
		attribute.Int("discount.rejected", stats.Rejected),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		return stats, errors.Wrap(err, "evaluate batch")
	}
	return stats, nil
}
