package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-discount/internal/domain/discount"
)

const (
	listActivePromotionsSQL = `SELECT name, starts_on, ends_on
		FROM promotions WHERE active = TRUE ORDER BY starts_on, name`

	upsertPromotionSQL = `INSERT INTO promotions (name, starts_on, ends_on, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (name) DO UPDATE
		SET starts_on = EXCLUDED.starts_on,
			ends_on = EXCLUDED.ends_on,
			active = TRUE`
)

// ErrInvalidPromotion is returned when a promotion has no name or ends
// before it starts.
var ErrInvalidPromotion = errors.New("invalid promotion")

// PromotionRepository stores promotion windows in PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// LoadSchedule reads all active promotions ordered by start date.
func (r *PromotionRepository) LoadSchedule(ctx context.Context) (discount.Schedule, error) {
	rows, err := r.pool.Query(ctx, listActivePromotionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}

	windows, err := pgx.CollectRows(rows, scanPromotionWindow)
	if err != nil {
		return nil, errors.Wrap(err, "scan promotions")
	}
	return discount.Schedule(windows), nil
}

// Upsert inserts or replaces a named promotion window.
func (r *PromotionRepository) Upsert(ctx context.Context, w discount.PromotionWindow) error {
	if w.Name == "" {
		return errors.Wrap(ErrInvalidPromotion, "empty name")
	}
	if w.EndsBeforeStart() {
		return errors.Wrapf(ErrInvalidPromotion, "promotion %q ends before it starts", w.Name)
	}

	if _, err := r.pool.Exec(ctx, upsertPromotionSQL, w.Name, w.Start, w.End); err != nil {
		return errors.Wrapf(err, "upsert promotion %q", w.Name)
	}
	return nil
}

func scanPromotionWindow(row pgx.CollectableRow) (discount.PromotionWindow, error) {
	var (
		w        discount.PromotionWindow
		startsOn time.Time
		endsOn   time.Time
	)
	err := row.Scan(&w.Name, &startsOn, &endsOn)
	w.Start = startsOn
	w.End = endsOn
	return w, err
}
