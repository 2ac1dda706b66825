// Command coupon-ingest loads coupon codes that appear in enough gzip feeds
// into the coupons table.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/order-discount/internal/couponfeed"
	"github.com/xenking/order-discount/internal/domain/coupon"
	"github.com/xenking/order-discount/internal/storage/postgres"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		lg = lg.With(zap.String("run_id", uuid.New().String()))
		return run(zctx.Base(ctx, lg), cfg)
	})
}

func run(ctx context.Context, cfg *Config) error {
	lg := zctx.From(ctx)

	src, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}

	codes, err := couponfeed.FindCommonCodes(ctx, src, cfg.Feeds, cfg.Match.Options())
	if err != nil {
		return errors.Wrap(err, "find common codes")
	}
	if len(codes) == 0 {
		lg.Info("No valid codes to insert")
		return nil
	}

	rules := make([]coupon.Rule, 0, len(codes))
	for _, code := range codes {
		r, err := cfg.Rule(code)
		if err != nil {
			return err
		}
		rules = append(rules, r)
	}

	if cfg.DryRun {
		lg.Info("Dry run, skipping database write", zap.Strings("codes", codes))
		return nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, postgres.NewCouponRepository(pool), rules, cfg.BatchSize)
}

func newSource(ctx context.Context, cfg *Config) (couponfeed.Source, error) {
	local := couponfeed.DirSource{Dir: cfg.DataDir}
	if cfg.S3.Bucket == "" {
		return local, nil
	}
	remote, err := couponfeed.NewS3Source(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region)
	if err != nil {
		return nil, errors.Wrap(err, "create s3 source")
	}
	zctx.From(ctx).Info("Reading feeds from S3",
		zap.String("bucket", cfg.S3.Bucket),
		zap.String("prefix", cfg.S3.Prefix),
		zap.String("fallback_dir", cfg.DataDir),
	)
	return couponfeed.FallbackSource{Primary: remote, Secondary: local}, nil
}

// writeCoupons upserts rules in transactions of at most batchSize coupons.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, rules []coupon.Rule, batchSize int) error {
	lg := zctx.From(ctx)
	lg.Info("Writing coupons to database", zap.Int("count", len(rules)))

	for start := 0; start < len(rules); start += batchSize {
		end := min(start+batchSize, len(rules))
		if err := repo.Upsert(ctx, rules[start:end]...); err != nil {
			return errors.Wrapf(err, "upsert coupons %d-%d", start, end)
		}
		lg.Info("Write progress", zap.Int("written", end), zap.Int("total", len(rules)))
	}
	return nil
}
