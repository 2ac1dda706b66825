//go:build integration

package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/order-discount/internal/domain/coupon"
	"github.com/xenking/order-discount/internal/domain/discount"
	"github.com/xenking/order-discount/internal/storage/postgres"
)

func TestNewCalculator_Database(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("discount"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	require.NoError(t, postgres.NewCouponRepository(pool).Upsert(ctx, coupon.DefaultRules()...))
	require.NoError(t, postgres.NewPromotionRepository(pool).Upsert(ctx, discount.PromotionWindow{
		Name:  "summer-2025",
		Start: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC),
	}))

	t.Setenv("DATABASE_URL", dsn)
	cfg, err := testLoad(t)
	require.NoError(t, err)
	require.Equal(t, dsn, cfg.DatabaseURL)

	calc, err := NewCalculator(ctx, cfg)
	require.NoError(t, err)

	tm := newTelemetry()
	e := &Evaluator{
		Calculator:     calc,
		Today:          time.Date(2025, time.July, 4, 0, 0, 0, 0, time.UTC),
		MeterProvider:  tm.meter,
		TracerProvider: tm.tracer,
	}
	input := strings.Join([]string{
		`{"customer":"A","items":6,"total":"100"}`,
		`{"customer":"B","items":1,"total":"100","coupon":"NEWYEAR"}`,
	}, "\n")

	var out bytes.Buffer
	stats, err := e.Evaluate(ctx, strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByRule[discount.RulePromotion])
	assert.Equal(t, 1, stats.ByRule[discount.RuleCoupon])
	assert.Contains(t, out.String(), `"promotion":"summer-2025"`)
}
