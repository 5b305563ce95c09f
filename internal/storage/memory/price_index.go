package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// PriceIndex is an in-memory contracts.PriceStore.
// Each asset keeps its points sorted by timestamp so a lookup is a binary search.
// Out-of-order appends are inserted at their sorted position.
type PriceIndex struct {
	mu     sync.RWMutex
	series map[string][]contracts.PricePoint
}

// NewPriceIndex creates an empty index.
func NewPriceIndex() *PriceIndex {
	return &PriceIndex{series: make(map[string][]contracts.PricePoint)}
}

// Append adds points. A point with the same asset and timestamp as an existing one replaces it.
func (x *PriceIndex) Append(_ context.Context, points ...contracts.PricePoint) error {
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, p := range points {
		p.Timestamp = p.Timestamp.UTC()
		pts := x.series[p.Asset]

		// Fast path: in-order append
		if n := len(pts); n == 0 || pts[n-1].Timestamp.Before(p.Timestamp) {
			x.series[p.Asset] = append(pts, p)
			continue
		}

		i := sort.Search(len(pts), func(i int) bool {
			return !pts[i].Timestamp.Before(p.Timestamp)
		})
		if i < len(pts) && pts[i].Timestamp.Equal(p.Timestamp) {
			pts[i] = p
			continue
		}

		pts = append(pts, contracts.PricePoint{})
		copy(pts[i+1:], pts[i:])
		pts[i] = p
		x.series[p.Asset] = pts
	}

	return nil
}

// NearestAtOrBefore returns the latest point with timestamp <= t, provided it is
// no older than t - tolerance.
func (x *PriceIndex) NearestAtOrBefore(_ context.Context, asset string, t time.Time, tolerance time.Duration) (contracts.PricePoint, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	pts := x.series[asset]

	// First index strictly after t; its predecessor is the candidate.
	i := sort.Search(len(pts), func(i int) bool {
		return pts[i].Timestamp.After(t)
	})
	if i == 0 {
		return contracts.PricePoint{}, false, nil
	}

	p := pts[i-1]
	if t.Sub(p.Timestamp) > tolerance {
		return contracts.PricePoint{}, false, nil
	}

	return p, true, nil
}

// size returns the number of points stored for asset.
func (x *PriceIndex) size(asset string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return len(x.series[asset])
}

var _ contracts.PriceStore = (*PriceIndex)(nil)
