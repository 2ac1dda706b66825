package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-discount/internal/domain/coupon"
)

const (
	listActiveCouponsSQL = `SELECT code, percent, description
		FROM coupons WHERE active = TRUE ORDER BY code`

	upsertCouponSQL = `INSERT INTO coupons (code, percent, description, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (code) DO UPDATE
		SET percent = EXCLUDED.percent,
			description = EXCLUDED.description,
			active = TRUE,
			updated_at = now()`

	deactivateCouponSQL = `UPDATE coupons SET active = FALSE, updated_at = now() WHERE code = $1`
)

// CouponRepository stores coupon rules in PostgreSQL. Codes are stored and
// matched exactly, without case folding.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// LoadTable reads all active coupons into an immutable table snapshot.
func (r *CouponRepository) LoadTable(ctx context.Context) (*coupon.StaticTable, error) {
	rows, err := r.pool.Query(ctx, listActiveCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	rules, err := pgx.CollectRows(rows, scanCouponRule)
	if err != nil {
		return nil, errors.Wrap(err, "scan coupons")
	}

	table, err := coupon.NewTable(rules...)
	if err != nil {
		return nil, errors.Wrap(err, "build coupon table")
	}
	return table, nil
}

// Upsert inserts or reactivates the given rules in a single transaction.
func (r *CouponRepository) Upsert(ctx context.Context, rules ...coupon.Rule) error {
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return err
		}
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rule := range rules {
			batch.Queue(upsertCouponSQL, rule.Code, rule.Percent, rule.Description)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "upsert coupons")
		}
		return nil
	})
}

// Deactivate hides a coupon from future LoadTable snapshots.
func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, deactivateCouponSQL, code); err != nil {
		return errors.Wrapf(err, "deactivate coupon %q", code)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule    coupon.Rule
		percent decimal.Decimal
	)
	err := row.Scan(&rule.Code, &percent, &rule.Description)
	rule.Percent = percent
	return rule, err
}
