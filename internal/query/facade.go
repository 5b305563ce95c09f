// Package query is the read-only accessor the HTTP layer uses. It never
// recomputes anything itself; the cache decides when a refresh runs.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/leaderboard"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Account summary statuses beyond contracts.StatsStatus.
const (
	StatusNoData       = "NO_DATA"
	StatusNotAvailable = "NOT_YET_AVAILABLE"
)

// SnapshotSource is the slice of *leaderboard.Cache the facade reads.
type SnapshotSource interface {
	Get(ctx context.Context, window time.Duration, horizon string) (*contracts.LeaderboardSnapshot, error)
	Records(ctx context.Context, window time.Duration, horizon, account string) (*contracts.LeaderboardSnapshot, []contracts.ReturnRecord, error)
	Health() leaderboard.Health
}

// HorizonSource lists the configured horizons. *aggregation.Engine implements it.
type HorizonSource interface {
	Horizons() *contracts.HorizonSet
}

// Facade answers leaderboard and account queries from published snapshots.
type Facade struct {
	snapshots     SnapshotSource
	horizons      HorizonSource
	defaultWindow time.Duration
	maxWindow     time.Duration
}

// NewFacade creates a facade. defaultWindow is used by the account queries.
func NewFacade(snapshots SnapshotSource, horizons HorizonSource, defaultWindow, maxWindow time.Duration) *Facade {
	return &Facade{
		snapshots:     snapshots,
		horizons:      horizons,
		defaultWindow: defaultWindow,
		maxWindow:     maxWindow,
	}
}

// Page is one slice of a ranked snapshot.
type Page struct {
	Window     string                       `json:"window"`
	Horizon    string                       `json:"horizon"`
	AsOf       time.Time                    `json:"as_of"`
	Generation uint64                       `json:"generation"`
	Total      int                          `json:"total"`
	Limit      int                          `json:"limit"`
	Offset     int                          `json:"offset"`
	Entries    []contracts.LeaderboardEntry `json:"entries"`
}

// Leaderboard returns entries [offset, offset+limit) of the ranking for the key.
// limit <= 0 means DefaultLimit and is capped at MaxLimit; an offset past the end
// yields an empty page.
func (f *Facade) Leaderboard(ctx context.Context, windowHours int, horizon string, limit, offset int) (*Page, error) {
	window, err := f.window(windowHours)
	if err != nil {
		return nil, err
	}

	snap, err := f.snapshots.Get(ctx, window, horizon)
	if err != nil {
		return nil, err
	}

	return NewPage(snap, limit, offset), nil
}

// NewPage slices snap into a page. limit <= 0 means DefaultLimit and is capped at
// MaxLimit; a negative offset is treated as 0.
func NewPage(snap *contracts.LeaderboardSnapshot, limit, offset int) *Page {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	offset = max(offset, 0)

	total := len(snap.Entries)
	start := min(offset, total)
	end := min(start+limit, total)

	entries := make([]contracts.LeaderboardEntry, end-start)
	copy(entries, snap.Entries[start:end])

	return &Page{
		Window:     windowString(snap.Key.Window),
		Horizon:    snap.Key.Horizon,
		AsOf:       snap.AsOf,
		Generation: snap.Generation,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		Entries:    entries,
	}
}

// Key validates a window and horizon without touching the cache.
func (f *Facade) Key(windowHours int, horizon string) (contracts.LeaderboardKey, error) {
	window, err := f.window(windowHours)
	if err != nil {
		return contracts.LeaderboardKey{}, err
	}
	if _, err := f.horizons.Horizons().Lookup(horizon); err != nil {
		return contracts.LeaderboardKey{}, err
	}
	return contracts.LeaderboardKey{Window: window, Horizon: horizon}, nil
}

// HorizonSummary is an account's standing for one horizon.
type HorizonSummary struct {
	Horizon    string                  `json:"horizon"`
	Status     string                  `json:"status"`
	Rank       int                     `json:"rank,omitempty"`
	Generation uint64                  `json:"generation,omitempty"`
	AsOf       *time.Time              `json:"as_of,omitempty"`
	Stats      *contracts.AccountStats `json:"stats,omitempty"`
}

// AccountSummary is an account's standing across every configured horizon.
type AccountSummary struct {
	AccountID string           `json:"account_id"`
	Window    string           `json:"window"`
	Horizons  []HorizonSummary `json:"horizons"`
}

// AccountSummary reads the account's stats from the default-window snapshot of each
// horizon. A horizon that cannot be served is marked NOT_YET_AVAILABLE; the call fails
// only when no horizon could be served.
func (f *Facade) AccountSummary(ctx context.Context, account string) (*AccountSummary, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("%w: account is required", contracts.ErrInvalidInput)
	}

	horizons := f.horizons.Horizons().All()
	out := &AccountSummary{
		AccountID: account,
		Window:    windowString(f.defaultWindow),
		Horizons:  make([]HorizonSummary, 0, len(horizons)),
	}

	var firstErr error
	served := 0
	for _, h := range horizons {
		hs := HorizonSummary{Horizon: h.Name}

		snap, err := f.snapshots.Get(ctx, f.defaultWindow, h.Name)
		if err != nil {
			if !errors.Is(err, contracts.ErrNotYetAvailable) {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			hs.Status = StatusNotAvailable
			out.Horizons = append(out.Horizons, hs)
			continue
		}

		served++
		asOf := snap.AsOf
		hs.Generation = snap.Generation
		hs.AsOf = &asOf

		if stats, ok := snap.Stats[account]; ok {
			hs.Stats = &stats
			hs.Status = string(stats.Status)
			hs.Rank = snap.RankOf(account)
		} else {
			hs.Status = StatusNoData
		}
		out.Horizons = append(out.Horizons, hs)
	}

	if served == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// AccountSignals lists an account's resolved and unresolved records for a horizon
// over the default window.
type AccountSignals struct {
	AccountID  string                   `json:"account_id"`
	Horizon    string                   `json:"horizon"`
	Window     string                   `json:"window"`
	AsOf       time.Time                `json:"as_of"`
	Generation uint64                   `json:"generation"`
	Resolved   int                      `json:"resolved"`
	Unresolved int                      `json:"unresolved"`
	Records    []contracts.ReturnRecord `json:"records"`
}

// AccountSignals returns the records behind the account's stats, newest first.
// They come from the same refresh as the snapshot AccountSummary reads.
func (f *Facade) AccountSignals(ctx context.Context, account, horizon string) (*AccountSignals, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("%w: account is required", contracts.ErrInvalidInput)
	}

	snap, recs, err := f.snapshots.Records(ctx, f.defaultWindow, horizon, account)
	if err != nil {
		return nil, err
	}

	out := &AccountSignals{
		AccountID:  account,
		Horizon:    horizon,
		Window:     windowString(f.defaultWindow),
		AsOf:       snap.AsOf,
		Generation: snap.Generation,
		Records:    recs,
	}
	for _, r := range recs {
		if r.Resolved() {
			out.Resolved++
		} else {
			out.Unresolved++
		}
	}
	return out, nil
}

// Health reports cache freshness.
func (f *Facade) Health(_ context.Context) leaderboard.Health {
	return f.snapshots.Health()
}

func (f *Facade) window(hours int) (time.Duration, error) {
	if hours <= 0 {
		return 0, fmt.Errorf("%w: window_hours must be positive, got %d", contracts.ErrInvalidWindow, hours)
	}
	limit := int64(math.MaxInt64 / int64(time.Hour))
	if f.maxWindow > 0 {
		limit = int64(f.maxWindow / time.Hour)
	}
	if int64(hours) > limit {
		return 0, fmt.Errorf("%w: %dh exceeds maximum %dh", contracts.ErrInvalidWindow, hours, limit)
	}
	return time.Duration(hours) * time.Hour, nil
}

func windowString(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return d.String()
}
