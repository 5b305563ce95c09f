package memory

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// streamPageSize bounds how many signals are copied out per lock acquisition.
const streamPageSize = 256

// SignalStore is an in-memory contracts.SignalStore kept sorted by id.
type SignalStore struct {
	mu      sync.RWMutex
	signals []contracts.Signal
	ids     map[int64]struct{}
}

// NewSignalStore creates an empty store.
func NewSignalStore() *SignalStore {
	return &SignalStore{ids: make(map[int64]struct{})}
}

// Append stores s. Appending an id that is already present is a no-op.
func (s *SignalStore) Append(_ context.Context, sig contracts.Signal) (bool, error) {
	if err := sig.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[sig.ID]; exists {
		return false, nil
	}
	s.ids[sig.ID] = struct{}{}
	sig.Timestamp = sig.Timestamp.UTC()

	if n := len(s.signals); n == 0 || s.signals[n-1].ID < sig.ID {
		s.signals = append(s.signals, sig)
		return true, nil
	}

	i := sort.Search(len(s.signals), func(i int) bool { return s.signals[i].ID > sig.ID })
	s.signals = append(s.signals, contracts.Signal{})
	copy(s.signals[i+1:], s.signals[i:])
	s.signals[i] = sig

	return true, nil
}

// StreamSince yields signals with id > cursor up to the head observed when iteration starts.
// Pages are copied under the read lock so appends are never blocked for the whole scan.
func (s *SignalStore) StreamSince(ctx context.Context, cursor int64) iter.Seq2[contracts.Signal, error] {
	return func(yield func(contracts.Signal, error) bool) {
		head, _ := s.Head(ctx)
		next := cursor

		for next < head {
			if err := ctx.Err(); err != nil {
				yield(contracts.Signal{}, err)
				return
			}

			page := s.page(next, head)
			if len(page) == 0 {
				return
			}

			for _, sig := range page {
				if !yield(sig, nil) {
					return
				}
			}
			next = page[len(page)-1].ID
		}
	}
}

func (s *SignalStore) page(after, head int64) []contracts.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.signals), func(i int) bool { return s.signals[i].ID > after })

	out := make([]contracts.Signal, 0, streamPageSize)
	for ; i < len(s.signals) && len(out) < streamPageSize; i++ {
		if s.signals[i].ID > head {
			break
		}
		out = append(out, s.signals[i])
	}
	return out
}

// Head returns the highest stored id.
func (s *SignalStore) Head(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.signals) == 0 {
		return 0, nil
	}
	return s.signals[len(s.signals)-1].ID, nil
}

var _ contracts.SignalStore = (*SignalStore)(nil)
