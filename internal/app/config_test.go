package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-discount/internal/domain/discount"
)

func testLoad(t *testing.T) (*Config, error) {
	t.Helper()
	return loadConfig(aconfig.Config{
		EnvPrefix: "DISCOUNT",
		SkipFiles: true,
		SkipFlags: true,
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := testLoad(t)
	require.NoError(t, err)

	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "-", cfg.Input)
	assert.Equal(t, "-", cfg.Output)
	assert.Equal(t, map[string]string{"BLACKFRIDAY": "20", "NEWYEAR": "10"}, cfg.Coupons)

	policy, err := cfg.Policy.Build()
	require.NoError(t, err)
	want := discount.DefaultPolicy()
	assert.Equal(t, want.BulkMinItems, policy.BulkMinItems)
	assert.Equal(t, want.LoyaltyMinItems, policy.LoyaltyMinItems)
	assert.Equal(t, want.NonMemberBulkMinItems, policy.NonMemberBulkMinItems)
	assert.Equal(t, want.PromotionMinItems, policy.PromotionMinItems)
	assert.True(t, want.BulkPercent.Equal(policy.BulkPercent))
	assert.True(t, want.LoyaltyPercent.Equal(policy.LoyaltyPercent))
	assert.True(t, want.NonMemberBulkPercent.Equal(policy.NonMemberBulkPercent))
	assert.True(t, want.PromotionPercent.Equal(policy.PromotionPercent))

	season, err := cfg.Promotion.Build()
	require.NoError(t, err)
	assert.Equal(t, discount.December, season)

	table, err := cfg.CouponTable()
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DISCOUNT_TODAY", "2025-11-28")
	t.Setenv("DISCOUNT_POLICY_BULK_PERCENT", "12.5")
	t.Setenv("DISCOUNT_PROMOTION_START_MONTH", "11")
	t.Setenv("DISCOUNT_PROMOTION_NAME", "black-week")

	cfg, err := testLoad(t)
	require.NoError(t, err)

	today, err := cfg.EvaluationDate(time.Now())
	require.NoError(t, err)
	y, m, d := today.Date()
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.November, m)
	assert.Equal(t, 28, d)

	policy, err := cfg.Policy.Build()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(policy.BulkPercent))

	season, err := cfg.Promotion.Build()
	require.NoError(t, err)
	assert.Equal(t, "black-week", season.Name)
	_, ok := season.ActiveWindow(today)
	assert.True(t, ok)
}

func TestLoadConfig_PlatformDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")

	cfg, err := testLoad(t)
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)

	t.Setenv("DISCOUNT_DATABASE_URL", "postgres://explicit/db")
	cfg, err = testLoad(t)
	require.NoError(t, err)
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	for _, tt := range []struct {
		name, key, value string
	}{
		{"bad date", "DISCOUNT_TODAY", "28/11/2025"},
		{"percent not a number", "DISCOUNT_POLICY_LOYALTY_PERCENT", "ten"},
		{"percent above 100", "DISCOUNT_POLICY_PROMOTION_PERCENT", "101"},
		{"negative threshold", "DISCOUNT_POLICY_BULK_MIN_ITEMS", "-1"},
		{"invalid promotion day", "DISCOUNT_PROMOTION_END_DAY", "32"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(tt.key, tt.value)

			_, err := testLoad(t)
			require.Error(t, err)
		})
	}
}

func TestConfig_EvaluationDate_DefaultsToNow(t *testing.T) {
	now := time.Date(2025, time.June, 1, 8, 30, 0, 0, time.UTC)
	got, err := (&Config{}).EvaluationDate(now)
	require.NoError(t, err)
	assert.Equal(t, now, got)
}

func TestConfig_CouponTable_Invalid(t *testing.T) {
	_, err := (&Config{Coupons: map[string]string{"BAD": "150"}}).CouponTable()
	require.Error(t, err)

	_, err = (&Config{Coupons: map[string]string{"BAD": "x"}}).CouponTable()
	require.Error(t, err)
}
