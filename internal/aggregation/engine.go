package aggregation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/returns"
)

// Result is the outcome of one refresh of a (window, horizon) key.
// Cursor is the last signal id folded into the key; Stats holds every account
// with at least one resolved record. Records holds every account's records in
// the window, newest first, and must not be modified.
type Result struct {
	Key         contracts.LeaderboardKey
	AsOf        time.Time
	WindowStart time.Time
	Cursor      int64
	Stats       map[string]contracts.AccountStats
	Records     map[string][]contracts.ReturnRecord
}

// AccountRecords returns a copy of account's records, or nil when it has none.
func (r *Result) AccountRecords(account string) []contracts.ReturnRecord {
	recs, ok := r.Records[account]
	if !ok {
		return nil
	}
	out := make([]contracts.ReturnRecord, len(recs))
	copy(out, recs)
	return out
}

// rollingSet is the per-key working state. Only the holder of sem mutates it.
type rollingSet struct {
	key     contracts.LeaderboardKey
	horizon contracts.Horizon

	sem     chan struct{}
	cursor  int64
	records map[int64]contracts.ReturnRecord
}

// lock waits for the set or for ctx, whichever comes first.
func (rs *rollingSet) lock(ctx context.Context) error {
	select {
	case rs.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rs *rollingSet) tryLock() bool {
	select {
	case rs.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (rs *rollingSet) unlock() {
	<-rs.sem
}

// Engine folds signal outcomes into per-account statistics for each (window, horizon) key.
type Engine struct {
	signals   contracts.SignalStore
	computer  *returns.Computer
	horizons  *contracts.HorizonSet
	minSample int
	now       func() time.Time
	log       zerolog.Logger

	mu   sync.Mutex
	sets map[contracts.LeaderboardKey]*rollingSet
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinSample overrides DefaultMinSample.
func WithMinSample(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minSample = n
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine reading signals from store and resolving them with computer.
func NewEngine(store contracts.SignalStore, computer *returns.Computer, horizons *contracts.HorizonSet, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		signals:   store,
		computer:  computer,
		horizons:  horizons,
		minSample: DefaultMinSample,
		now:       time.Now,
		log:       log.With().Str("component", "aggregation.engine").Logger(),
		sets:      make(map[contracts.LeaderboardKey]*rollingSet),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinSample returns the ranking threshold in use.
func (e *Engine) MinSample() int {
	return e.minSample
}

// Horizons returns the configured horizon set.
func (e *Engine) Horizons() *contracts.HorizonSet {
	return e.horizons
}

// Key validates window and horizon and returns the cache key for them.
func (e *Engine) Key(window time.Duration, horizon string) (contracts.LeaderboardKey, error) {
	if window <= 0 {
		return contracts.LeaderboardKey{}, fmt.Errorf("%w: %s", contracts.ErrInvalidWindow, window)
	}
	if _, err := e.horizons.Lookup(horizon); err != nil {
		return contracts.LeaderboardKey{}, err
	}
	return contracts.LeaderboardKey{Window: window, Horizon: horizon}, nil
}

func (e *Engine) set(key contracts.LeaderboardKey) *rollingSet {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.sets[key]
	if !ok {
		h, _ := e.horizons.Lookup(key.Horizon)
		rs = &rollingSet{
			key:     key,
			horizon: h,
			sem:     make(chan struct{}, 1),
			records: make(map[int64]contracts.ReturnRecord),
		}
		e.sets[key] = rs
	}
	return rs
}

func (e *Engine) trackedSets() []*rollingSet {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*rollingSet, 0, len(e.sets))
	for _, rs := range e.sets {
		out = append(out, rs)
	}
	return out
}

// Refresh ingests signals appended since the key's cursor, evicts records older than
// the window, retries unresolved records and rebuilds every account's statistics.
// Running it twice with no new data yields identical stats. Waiting for another
// refresh of the same key gives up when ctx ends.
func (e *Engine) Refresh(ctx context.Context, window time.Duration, horizon string) (*Result, error) {
	key, err := e.Key(window, horizon)
	if err != nil {
		return nil, err
	}

	rs := e.set(key)
	if err := rs.lock(ctx); err != nil {
		return nil, fmt.Errorf("refresh %s: %w", key, err)
	}
	defer rs.unlock()

	now := e.now()
	windowStart := now.Add(-window)

	ingested, err := e.ingest(ctx, rs, windowStart)
	if err != nil {
		return nil, err
	}

	evicted := 0
	for id, rec := range rs.records {
		if rec.SignalTime.Before(windowStart) {
			delete(rs.records, id)
			evicted++
		}
	}

	resolved := 0
	for id, rec := range rs.records {
		if rec.Resolved() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := e.computer.ResolveAsOf(ctx, signalOf(rec), rs.horizon, now)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}
		if next.Resolved() {
			resolved++
		}
		rs.records[id] = next
	}

	byAccount := make(map[string][]contracts.ReturnRecord)
	for _, rec := range rs.records {
		byAccount[rec.AccountID] = append(byAccount[rec.AccountID], rec)
	}
	for account := range byAccount {
		recs := byAccount[account]
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].SignalTime.Equal(recs[j].SignalTime) {
				return recs[i].SignalTime.After(recs[j].SignalTime)
			}
			return recs[i].SignalID > recs[j].SignalID
		})
	}

	stats := make(map[string]contracts.AccountStats, len(byAccount))
	for account, recs := range byAccount {
		if s, ok := buildStats(account, key.Horizon, recs, e.minSample); ok {
			s.WindowStart = windowStart
			s.WindowEnd = now
			stats[account] = s
		}
	}

	e.log.Debug().
		Str("key", key.String()).
		Int("ingested", ingested).
		Int("evicted", evicted).
		Int("resolved", resolved).
		Int("records", len(rs.records)).
		Int("accounts", len(stats)).
		Int64("cursor", rs.cursor).
		Msg("refresh completed")

	return &Result{
		Key:         key,
		AsOf:        now,
		WindowStart: windowStart,
		Cursor:      rs.cursor,
		Stats:       stats,
		Records:     byAccount,
	}, nil
}

// ingest streams signals past the set's cursor into pending records.
// Signals already older than the window only advance the cursor.
func (e *Engine) ingest(ctx context.Context, rs *rollingSet, windowStart time.Time) (int, error) {
	n := 0
	for s, err := range e.signals.StreamSince(ctx, rs.cursor) {
		if err != nil {
			return n, fmt.Errorf("stream signals for %s: %w", rs.key, err)
		}
		rs.cursor = s.ID
		if s.Timestamp.Before(windowStart) {
			continue
		}
		rs.records[s.ID] = pendingRecord(s, rs.horizon)
		n++
	}
	return n, nil
}

// IncrementalRefresh reads signals after cursor once and hands them to every tracked
// key that is idle and already caught up to cursor. Keys behind cursor or mid-refresh
// read the signals themselves on their next Refresh. Statistics are left for the
// next Refresh. It returns the last id read, or cursor when nothing new arrived.
func (e *Engine) IncrementalRefresh(ctx context.Context, cursor int64) (int64, error) {
	var batch []contracts.Signal
	next := cursor
	for s, err := range e.signals.StreamSince(ctx, cursor) {
		if err != nil {
			return cursor, fmt.Errorf("incremental stream: %w", err)
		}
		batch = append(batch, s)
		next = s.ID
	}
	if len(batch) == 0 {
		return cursor, nil
	}

	now := e.now()
	busy, lagging := 0, 0
	for _, rs := range e.trackedSets() {
		if !rs.tryLock() {
			busy++
			continue
		}
		if rs.cursor < cursor {
			rs.unlock()
			lagging++
			continue
		}

		windowStart := now.Add(-rs.key.Window)
		for _, s := range batch {
			if s.ID <= rs.cursor {
				continue
			}
			rs.cursor = s.ID
			if s.Timestamp.Before(windowStart) {
				continue
			}
			rs.records[s.ID] = pendingRecord(s, rs.horizon)
		}
		rs.unlock()
	}

	e.log.Debug().
		Int64("from", cursor).
		Int64("to", next).
		Int("signals", len(batch)).
		Int("busy_keys", busy).
		Int("lagging_keys", lagging).
		Msg("incremental ingest")

	return next, nil
}

func pendingRecord(s contracts.Signal, h contracts.Horizon) contracts.ReturnRecord {
	return contracts.ReturnRecord{
		SignalID:   s.ID,
		AccountID:  s.AccountID,
		Asset:      s.Asset,
		Direction:  s.Direction,
		SignalTime: s.Timestamp,
		Horizon:    h.Name,
		Label:      contracts.LabelUnresolved,
		Reason:     contracts.ReasonPending,
	}
}

func signalOf(r contracts.ReturnRecord) contracts.Signal {
	return contracts.Signal{
		ID:        r.SignalID,
		AccountID: r.AccountID,
		Asset:     r.Asset,
		Timestamp: r.SignalTime,
		Direction: r.Direction,
	}
}
