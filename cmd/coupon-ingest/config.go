package main

import (
	"fmt"
	"os"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-discount/internal/couponfeed"
	"github.com/xenking/order-discount/internal/domain/coupon"
)

// Config holds the ingest configuration, loadable from environment variables
// (DISCOUNT_INGEST_ prefix), flags, or YAML config files.
type Config struct {
	DatabaseURL string   `usage:"PostgreSQL connection URL (DISCOUNT_INGEST_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DataDir     string   `default:"data" usage:"Directory containing the feeds" flag:"data-dir"`
	Feeds       []string `default:"couponbase1.gz,couponbase2.gz,couponbase3.gz" usage:"Gzip feed names"`
	S3          S3Config
	Match       MatchConfig
	Percent     string            `default:"10" usage:"Percent off for accepted codes without an override"`
	Description string            `usage:"Description stored with accepted codes; empty derives it from the percent"`
	Overrides   map[string]string `usage:"Per-code percent overrides as CODE:PERCENT pairs"`
	BatchSize   int               `default:"1000" usage:"Coupons upserted per transaction"`
	DryRun      bool              `default:"false" usage:"Log accepted codes without writing them" flag:"dry-run"`
}

// S3Config selects an S3 bucket as the primary feed source. The data
// directory is used when an object cannot be fetched.
type S3Config struct {
	Bucket string `usage:"S3 bucket holding the feeds; empty reads only from the data directory"`
	Prefix string `usage:"Key prefix prepended to every feed name"`
	Region string `usage:"AWS region; defaults to the SDK credential chain"`
}

// MatchConfig controls how codes are matched across feeds.
type MatchConfig struct {
	MinFeeds          int     `default:"2" usage:"Feeds a code must appear in"`
	MinCodeLen        int     `default:"8" usage:"Shortest accepted code"`
	MaxCodeLen        int     `default:"10" usage:"Longest accepted code"`
	BloomCapacity     uint    `default:"120000000" usage:"Expected codes per feed"`
	FalsePositiveRate float64 `default:"0.001" usage:"Bloom filter false positive rate"`
	ProgressEvery     uint64  `default:"10000000" usage:"Log progress every N codes"`
}

// LoadConfig loads and validates the ingest configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "DISCOUNT_INGEST",
		AllowUnknownEnvs: true,
		Files:            []string{"coupon-ingest.yaml", "/etc/discount/coupon-ingest.yaml"},
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
	if cfg.DatabaseURL == "" && !cfg.DryRun {
		return nil, errors.New("database URL is required: set DISCOUNT_INGEST_DATABASE_URL or DATABASE_URL")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options converts MatchConfig into couponfeed options.
func (c MatchConfig) Options() couponfeed.Options {
	return couponfeed.Options{
		MinFeeds:          c.MinFeeds,
		MinLen:            c.MinCodeLen,
		MaxLen:            c.MaxCodeLen,
		Capacity:          c.BloomCapacity,
		FalsePositiveRate: c.FalsePositiveRate,
		ProgressEvery:     c.ProgressEvery,
	}
}

func (c *Config) validate() error {
	if c.BatchSize <= 0 {
		return errors.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	pct, err := decimal.NewFromString(c.Percent)
	if err != nil {
		return errors.Wrap(err, "parse default percent")
	}
	if err := (coupon.Rule{Code: "default", Percent: pct}).Validate(); err != nil {
		return err
	}
	if _, err := coupon.ParseRules(c.Overrides); err != nil {
		return errors.Wrap(err, "overrides")
	}
	return nil
}

// Rule returns the coupon rule stored for an accepted code. Overridden codes
// and configs without a Description get one naming the code's percent.
func (c *Config) Rule(code string) (coupon.Rule, error) {
	raw, description := c.Percent, c.Description
	if v, ok := c.Overrides[code]; ok {
		raw, description = v, ""
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return coupon.Rule{}, errors.Wrapf(err, "parse percent for coupon %q", code)
	}
	if description == "" {
		description = fmt.Sprintf("Valid promo code: %s%% off", pct.String())
	}
	return coupon.Rule{Code: code, Percent: pct, Description: description}, nil
}
