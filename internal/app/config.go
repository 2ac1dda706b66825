package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-discount/internal/domain/coupon"
	"github.com/xenking/order-discount/internal/domain/discount"
)

const dateLayout = "2006-01-02"

// Config holds the discount evaluator configuration, loadable from
// environment variables (DISCOUNT_ prefix), flags, or YAML config files.
type Config struct {
	DatabaseURL string            `usage:"PostgreSQL connection URL; when empty coupons and promotions come from this config" flag:"database-url"`
	Input       string            `default:"-" usage:"Orders JSON-lines file, .gz supported, - for stdin" flag:"input"`
	Output      string            `default:"-" usage:"Decisions JSON-lines file, .gz supported, - for stdout" flag:"output"`
	Today       string            `usage:"Evaluation date as YYYY-MM-DD (defaults to the current date)" flag:"today"`
	Coupons     map[string]string `default:"BLACKFRIDAY:20,NEWYEAR:10" usage:"Coupon registry as CODE:PERCENT pairs, ignored when a database is set"`
	Policy      PolicyConfig
	Promotion   PromotionConfig
}

// PolicyConfig mirrors discount.Policy with percents as decimal strings.
type PolicyConfig struct {
	BulkMinItems          int    `default:"21" usage:"Minimum items for the bulk discount"`
	BulkPercent           string `default:"15" usage:"Bulk discount percent"`
	LoyaltyMinItems       int    `default:"11" usage:"Minimum items for the loyalty discount"`
	LoyaltyPercent        string `default:"10" usage:"Loyalty discount percent"`
	NonMemberBulkMinItems int    `default:"20" usage:"Minimum items for the non-member bulk discount"`
	NonMemberBulkPercent  string `default:"15" usage:"Non-member bulk discount percent"`
	PromotionMinItems     int    `default:"5"  usage:"Minimum items for the promotion discount"`
	PromotionPercent      string `default:"5"  usage:"Promotion discount percent"`
}

// PromotionConfig describes the yearly promotion used without a database.
type PromotionConfig struct {
	Name       string `default:"december" usage:"Promotion name"`
	StartMonth int    `default:"12" usage:"First month of the promotion"`
	StartDay   int    `default:"1"  usage:"First day of the promotion"`
	EndMonth   int    `default:"12" usage:"Last month of the promotion"`
	EndDay     int    `default:"31" usage:"Last day of the promotion"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix:        "DISCOUNT",
		AllowUnknownEnvs: true,
		Files:            []string{"discount.yaml", "/etc/discount/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if _, err := cfg.Policy.Build(); err != nil {
		return nil, err
	}
	if _, err := cfg.Promotion.Build(); err != nil {
		return nil, err
	}
	if _, err := cfg.EvaluationDate(time.Now()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL variable to the
// DISCOUNT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
}

// EvaluationDate returns the configured date, or now when Today is empty.
func (c *Config) EvaluationDate(now time.Time) (time.Time, error) {
	if c.Today == "" {
		return now, nil
	}
	t, err := time.ParseInLocation(dateLayout, c.Today, time.Local)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse evaluation date")
	}
	return t, nil
}

// CouponTable builds the static coupon table from Coupons.
func (c *Config) CouponTable() (*coupon.StaticTable, error) {
	rules, err := coupon.ParseRules(c.Coupons)
	if err != nil {
		return nil, errors.Wrap(err, "coupons")
	}
	return coupon.NewTable(rules...)
}

// Build converts the config into a validated discount.Policy.
func (c PolicyConfig) Build() (discount.Policy, error) {
	p := discount.Policy{
		BulkMinItems:          c.BulkMinItems,
		LoyaltyMinItems:       c.LoyaltyMinItems,
		NonMemberBulkMinItems: c.NonMemberBulkMinItems,
		PromotionMinItems:     c.PromotionMinItems,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"bulk percent", c.BulkPercent, &p.BulkPercent},
		{"loyalty percent", c.LoyaltyPercent, &p.LoyaltyPercent},
		{"non-member bulk percent", c.NonMemberBulkPercent, &p.NonMemberBulkPercent},
		{"promotion percent", c.PromotionPercent, &p.PromotionPercent},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return discount.Policy{}, errors.Wrapf(err, "policy: parse %s", f.name)
		}
		*f.dst = v
	}
	if err := p.Validate(); err != nil {
		return discount.Policy{}, err
	}
	return p, nil
}

// Build converts the config into a validated discount.Seasonal.
func (c PromotionConfig) Build() (discount.Seasonal, error) {
	s := discount.Seasonal{
		Name:       c.Name,
		StartMonth: time.Month(c.StartMonth),
		StartDay:   c.StartDay,
		EndMonth:   time.Month(c.EndMonth),
		EndDay:     c.EndDay,
	}
	if err := s.Validate(); err != nil {
		return discount.Seasonal{}, err
	}
	return s, nil
}
