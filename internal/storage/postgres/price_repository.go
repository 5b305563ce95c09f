package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// PriceRepository implements contracts.PriceStore on the price_points table.
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new PriceRepository.
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

var _ contracts.PriceStore = (*PriceRepository)(nil)

// Append upserts points in one batch; a repeated (asset, ts) replaces the price.
func (r *PriceRepository) Append(ctx context.Context, points ...contracts.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO price_points (asset_symbol, ts, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_symbol, ts) DO UPDATE SET price = EXCLUDED.price
	`

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query, p.Asset, p.Timestamp.UTC(), p.Price)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return unavailable("append price points", err)
	}
	return nil
}

// NearestAtOrBefore returns the latest point in [t - tolerance, t].
func (r *PriceRepository) NearestAtOrBefore(ctx context.Context, asset string, t time.Time, tolerance time.Duration) (contracts.PricePoint, bool, error) {
	query := `
		SELECT ts, price
		FROM price_points
		WHERE asset_symbol = $1 AND ts <= $2 AND ts >= $3
		ORDER BY ts DESC
		LIMIT 1
	`

	p := contracts.PricePoint{Asset: asset}
	err := r.pool.QueryRow(ctx, query, asset, t.UTC(), t.Add(-tolerance).UTC()).Scan(&p.Timestamp, &p.Price)
	if err != nil {
		if isNotFoundError(err) {
			return contracts.PricePoint{}, false, nil
		}
		return contracts.PricePoint{}, false, unavailable("lookup price", err)
	}

	p.Timestamp = p.Timestamp.UTC()
	return p, true, nil
}
