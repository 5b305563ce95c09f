package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// SnapshotRepository persists the latest snapshot per key in leaderboard_snapshots.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

var _ contracts.SnapshotStore = (*SnapshotRepository)(nil)

// Save upserts snap, never replacing a newer generation.
func (r *SnapshotRepository) Save(ctx context.Context, snap *contracts.LeaderboardSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.Key, err)
	}

	query := `
		INSERT INTO leaderboard_snapshots (window_seconds, horizon, generation, as_of, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (window_seconds, horizon) DO UPDATE
		SET generation = EXCLUDED.generation, as_of = EXCLUDED.as_of, payload = EXCLUDED.payload
		WHERE leaderboard_snapshots.generation < EXCLUDED.generation
	`

	_, err = r.pool.Exec(ctx, query,
		int64(snap.Key.Window/time.Second), snap.Key.Horizon, int64(snap.Generation), snap.AsOf.UTC(), payload,
	)
	if err != nil {
		return unavailable("save snapshot", err)
	}
	return nil
}

// LoadAll returns every persisted snapshot.
func (r *SnapshotRepository) LoadAll(ctx context.Context) ([]*contracts.LeaderboardSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT payload FROM leaderboard_snapshots ORDER BY window_seconds, horizon`)
	if err != nil {
		return nil, unavailable("load snapshots", err)
	}
	defer rows.Close()

	var out []*contracts.LeaderboardSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, unavailable("scan snapshot", err)
		}

		snap := &contracts.LeaderboardSnapshot{}
		if err := json.Unmarshal(payload, snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load snapshots", err)
	}

	return out, nil
}
