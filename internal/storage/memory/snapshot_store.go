package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// SnapshotStore keeps the latest snapshot per key. It lets tests exercise warm restarts.
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps map[contracts.LeaderboardKey]*contracts.LeaderboardSnapshot
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[contracts.LeaderboardKey]*contracts.LeaderboardSnapshot)}
}

// Save keeps snap unless a newer generation is already stored.
func (s *SnapshotStore) Save(_ context.Context, snap *contracts.LeaderboardSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.snaps[snap.Key]; ok && cur.Generation >= snap.Generation {
		return nil
	}
	s.snaps[snap.Key] = snap
	return nil
}

// LoadAll returns every stored snapshot ordered by key.
func (s *SnapshotStore) LoadAll(_ context.Context) ([]*contracts.LeaderboardSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*contracts.LeaderboardSnapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

var _ contracts.SnapshotStore = (*SnapshotStore)(nil)
