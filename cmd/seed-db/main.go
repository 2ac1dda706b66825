// Command seed-db installs the default coupon registry and the yearly
// promotion into PostgreSQL.
package main

import (
	"context"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appkg "github.com/xenking/order-discount/internal/app"
	"github.com/xenking/order-discount/internal/domain/coupon"
	"github.com/xenking/order-discount/internal/storage/postgres"
)

// Config holds the seed configuration (DISCOUNT_SEED_ prefix).
type Config struct {
	DatabaseURL string `usage:"PostgreSQL connection URL (DISCOUNT_SEED_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Years       []int  `usage:"Years to seed the promotion for (defaults to the current and next year)" flag:"years"`
	Promotion   appkg.PromotionConfig
}

func loadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "DISCOUNT_SEED",
		AllowUnknownEnvs: true,
		Files:            []string{"seed-db.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DISCOUNT_SEED_DATABASE_URL or DATABASE_URL")
	}
	if len(cfg.Years) == 0 {
		year := time.Now().Year()
		cfg.Years = []int{year, year + 1}
	}
	return &cfg, nil
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg = lg.With(zap.String("run_id", uuid.New().String()))
		return run(zctx.Base(ctx, lg), cfg)
	})
}

func run(ctx context.Context, cfg *Config) error {
	lg := zctx.From(ctx)

	season, err := cfg.Promotion.Build()
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	rules := coupon.DefaultRules()
	if err := postgres.NewCouponRepository(pool).Upsert(ctx, rules...); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	for _, r := range rules {
		lg.Info("Upserted coupon",
			zap.String("code", r.Code),
			zap.String("percent", r.Percent.String()),
		)
	}

	promotions := postgres.NewPromotionRepository(pool)
	for _, year := range cfg.Years {
		w := season.Window(year)
		// Names are unique, so each year gets its own row.
		w.Name = season.Name + "-" + w.Start.Format("2006")
		if err := promotions.Upsert(ctx, w); err != nil {
			return errors.Wrap(err, "seed promotion")
		}
		lg.Info("Upserted promotion",
			zap.String("name", w.Name),
			zap.Time("start", w.Start),
			zap.Time("end", w.End),
		)
	}
	return nil
}
