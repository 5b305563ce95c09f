// Package redisstore persists leaderboard snapshots in Redis so a restarted
// process can serve the last published rankings before its first refresh.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/redis"
)

const (
	keyPrefix = "leaderboard"
	indexKey  = "snapshots"
)

// SnapshotStore implements contracts.SnapshotStore on the typed redis cache.
type SnapshotStore struct {
	cache *redis.Cache
	ttl   time.Duration
}

// New creates a store; ttl of zero keeps snapshots until overwritten.
func New(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{cache: redis.NewCache(client, keyPrefix), ttl: ttl}
}

var _ contracts.SnapshotStore = (*SnapshotStore)(nil)

func snapshotKey(k contracts.LeaderboardKey) string {
	return fmt.Sprintf("snapshot:%d:%s", int64(k.Window/time.Second), k.Horizon)
}

// Save writes snap unless a newer generation is already stored.
func (s *SnapshotStore) Save(ctx context.Context, snap *contracts.LeaderboardSnapshot) error {
	key := snapshotKey(snap.Key)

	var cur contracts.LeaderboardSnapshot
	found, err := s.cache.Get(ctx, key, &cur)
	if err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrStoreUnavailable, err)
	}
	if found && cur.Generation >= snap.Generation {
		return nil
	}

	if err := s.cache.SetIndexed(ctx, indexKey, key, snap, s.ttl); err != nil {
		return fmt.Errorf("%w: save snapshot %s: %w", contracts.ErrStoreUnavailable, snap.Key, err)
	}
	return nil
}

// LoadAll reads every indexed snapshot; expired entries are skipped.
func (s *SnapshotStore) LoadAll(ctx context.Context) ([]*contracts.LeaderboardSnapshot, error) {
	keys, err := s.cache.IndexMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: list snapshots: %w", contracts.ErrStoreUnavailable, err)
	}
	sort.Strings(keys)

	out := make([]*contracts.LeaderboardSnapshot, 0, len(keys))
	for _, key := range keys {
		snap := &contracts.LeaderboardSnapshot{}
		found, err := s.cache.Get(ctx, key, snap)
		if err != nil {
			return nil, fmt.Errorf("%w: load snapshot %s: %w", contracts.ErrStoreUnavailable, key, err)
		}
		if found {
			out = append(out, snap)
		}
	}

	return out, nil
}
