package postgres

import (
	"context"
	"iter"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

const defaultPageSize = 500

// SignalRepository implements contracts.SignalStore on the signals table.
type SignalRepository struct {
	pool     *pgxpool.Pool
	pageSize int
}

// NewSignalRepository creates a new SignalRepository.
func NewSignalRepository(pool *pgxpool.Pool) *SignalRepository {
	return &SignalRepository{pool: pool, pageSize: defaultPageSize}
}

var _ contracts.SignalStore = (*SignalRepository)(nil)

// Append inserts s; a duplicate id is ignored.
func (r *SignalRepository) Append(ctx context.Context, s contracts.Signal) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT INTO signals (id, account_id, asset_symbol, ts, direction, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, s.ID, s.AccountID, s.Asset, s.Timestamp.UTC(), string(s.Direction), s.Confidence)
	if err != nil {
		return false, unavailable("append signal", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Head returns the highest stored id.
func (r *SignalRepository) Head(ctx context.Context) (int64, error) {
	var head int64
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM signals`).Scan(&head); err != nil {
		return 0, unavailable("signal head", err)
	}
	return head, nil
}

// StreamSince pages through signals with id in (cursor, head] where head is read once
// when iteration begins. Each page is fully read before yielding so no connection is
// held while the consumer works.
func (r *SignalRepository) StreamSince(ctx context.Context, cursor int64) iter.Seq2[contracts.Signal, error] {
	return func(yield func(contracts.Signal, error) bool) {
		head, err := r.Head(ctx)
		if err != nil {
			yield(contracts.Signal{}, err)
			return
		}

		next := cursor
		for next < head {
			page, err := r.page(ctx, next, head)
			if err != nil {
				yield(contracts.Signal{}, err)
				return
			}
			if len(page) == 0 {
				return
			}

			for _, s := range page {
				if !yield(s, nil) {
					return
				}
			}
			next = page[len(page)-1].ID
		}
	}
}

func (r *SignalRepository) page(ctx context.Context, after, head int64) ([]contracts.Signal, error) {
	query := `
		SELECT id, account_id, asset_symbol, ts, direction, confidence
		FROM signals
		WHERE id > $1 AND id <= $2
		ORDER BY id
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, after, head, r.pageSize)
	if err != nil {
		return nil, unavailable("stream signals", err)
	}
	defer rows.Close()

	out := make([]contracts.Signal, 0, r.pageSize)
	for rows.Next() {
		var (
			s         contracts.Signal
			direction string
		)
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Asset, &s.Timestamp, &direction, &s.Confidence); err != nil {
			return nil, unavailable("scan signal", err)
		}
		s.Direction = contracts.Direction(direction)
		s.Timestamp = s.Timestamp.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("stream signals", err)
	}

	return out, nil
}
