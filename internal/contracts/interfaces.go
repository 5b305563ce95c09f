package contracts

import (
	"context"
	"iter"
	"time"
)

// PriceIndex answers point-in-time price lookups.
// ok is false when no point lies within tolerance at or before t.
type PriceIndex interface {
	NearestAtOrBefore(ctx context.Context, asset string, t time.Time, tolerance time.Duration) (p PricePoint, ok bool, err error)
}

// PriceStore is a PriceIndex that ingestion can append to.
type PriceStore interface {
	PriceIndex
	Append(ctx context.Context, points ...PricePoint) error
}

// SignalStore is the append-only signal log.
type SignalStore interface {
	// Append stores s; a second append of the same id is a no-op and reports false.
	Append(ctx context.Context, s Signal) (inserted bool, err error)

	// StreamSince yields signals with id > cursor in ascending id order.
	// The sequence is bounded by the head at call time and may be resumed
	// from the last id seen.
	StreamSince(ctx context.Context, cursor int64) iter.Seq2[Signal, error]

	// Head returns the highest stored id, or 0 when empty.
	Head(ctx context.Context) (int64, error)
}

// SnapshotStore persists published snapshots for warm restarts.
type SnapshotStore interface {
	Save(ctx context.Context, snap *LeaderboardSnapshot) error
	LoadAll(ctx context.Context) ([]*LeaderboardSnapshot, error)
}
