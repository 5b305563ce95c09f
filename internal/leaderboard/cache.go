package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/aggregation"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/observability"
)

// State is the refresh state of one cached key.
type State string

const (
	StateStale      State = "STALE"
	StateRefreshing State = "REFRESHING"
	StateFresh      State = "FRESH"
)

// Trigger reasons, also used as metric labels.
const (
	reasonCold       = "cold"
	reasonExpired    = "expired"
	reasonInvalidate = "invalidate"
	reasonCursor     = "cursor"
	reasonWarm       = "warm"
)

// Refresher computes the statistics behind one leaderboard key.
// *aggregation.Engine implements it.
type Refresher interface {
	Key(window time.Duration, horizon string) (contracts.LeaderboardKey, error)
	Refresh(ctx context.Context, window time.Duration, horizon string) (*aggregation.Result, error)
}

// Config is the cache policy.
type Config struct {
	TTL              time.Duration
	RefreshTimeout   time.Duration
	ColdStartTimeout time.Duration

	// BatchSize is how many new signals behind the head a key may fall before
	// OnCursorAdvance refreshes it early.
	BatchSize int64

	// TriggerRate caps cursor-driven refreshes per second; <= 0 disables the cap.
	TriggerRate float64
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TTL:              60 * time.Second,
		RefreshTimeout:   30 * time.Second,
		ColdStartTimeout: 10 * time.Second,
		BatchSize:        100,
		TriggerRate:      2,
	}
}

// published pairs a snapshot with the records it was built from. records is nil
// for a snapshot restored from storage.
type published struct {
	snap    *contracts.LeaderboardSnapshot
	records map[string][]contracts.ReturnRecord
}

type entry struct {
	key contracts.LeaderboardKey
	cur atomic.Pointer[published]

	// guarded by Cache.mu
	state       State
	running     chan struct{}
	invalidated bool
	lastErr     error
	lastRefresh time.Time
}

func (e *entry) snapshot() *contracts.LeaderboardSnapshot {
	if p := e.cur.Load(); p != nil {
		return p.snap
	}
	return nil
}

// Cache serves the latest snapshot per key and refreshes it in the background.
// Readers never wait on a refresh once a key has a snapshot.
type Cache struct {
	engine  Refresher
	cfg     Config
	now     func() time.Time
	log     zerolog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[contracts.LeaderboardKey]*entry

	onPublish func(*contracts.LeaderboardSnapshot)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides time.Now for age and TTL checks.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithPublishHook calls fn with every newly published snapshot. fn runs on the
// refresh goroutine and must not block.
func WithPublishHook(fn func(*contracts.LeaderboardSnapshot)) CacheOption {
	return func(c *Cache) { c.onPublish = fn }
}

// NewCache creates a cache over engine. Call Close to stop background refreshes.
func NewCache(engine Refresher, cfg Config, log zerolog.Logger, opts ...CacheOption) *Cache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}
	if cfg.ColdStartTimeout <= 0 {
		cfg.ColdStartTimeout = def.ColdStartTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	limit, burst := rate.Inf, 1
	if cfg.TriggerRate > 0 {
		limit = rate.Limit(cfg.TriggerRate)
		burst = max(1, int(cfg.TriggerRate))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		engine:  engine,
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("component", "leaderboard.cache").Logger(),
		limiter: rate.NewLimiter(limit, burst),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[contracts.LeaderboardKey]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close cancels in-flight refreshes and waits for them to return.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// Get returns the current snapshot for (window, horizon).
// A snapshot past its TTL is returned as is while a refresh runs in the background.
// A key with no snapshot yet waits up to ColdStartTimeout for its first refresh and
// fails with ErrNotYetAvailable if that does not succeed.
func (c *Cache) Get(ctx context.Context, window time.Duration, horizon string) (*contracts.LeaderboardSnapshot, error) {
	key, err := c.engine.Key(window, horizon)
	if err != nil {
		return nil, err
	}

	e := c.entry(key)
	if snap := e.snapshot(); snap != nil {
		c.serve(e, snap)
		return snap, nil
	}

	p, err := c.await(ctx, e, func(p *published) bool { return p.snap != nil })
	if err != nil {
		return nil, err
	}
	return p.snap, nil
}

// Records returns an account's records, newest first, with the snapshot built from
// the same refresh. A snapshot restored from storage carries no records, so until
// the key's first refresh Records waits like a cold Get and fails with
// ErrNotYetAvailable if that refresh does not succeed in time.
func (c *Cache) Records(ctx context.Context, window time.Duration, horizon, account string) (*contracts.LeaderboardSnapshot, []contracts.ReturnRecord, error) {
	key, err := c.engine.Key(window, horizon)
	if err != nil {
		return nil, nil, err
	}

	e := c.entry(key)
	p := e.cur.Load()
	if p != nil && p.records != nil {
		c.serve(e, p.snap)
	} else {
		p, err = c.await(ctx, e, func(p *published) bool { return p.records != nil })
		if err != nil {
			return nil, nil, err
		}
	}

	recs := make([]contracts.ReturnRecord, len(p.records[account]))
	copy(recs, p.records[account])
	return p.snap, recs, nil
}

// serve records a read of a held snapshot and schedules a refresh when it is stale.
func (c *Cache) serve(e *entry, snap *contracts.LeaderboardSnapshot) {
	c.mu.Lock()
	stale := e.state == StateStale || snap.Age(c.now()) > c.cfg.TTL
	if stale {
		c.triggerLocked(e, reasonExpired)
	}
	c.mu.Unlock()

	if stale {
		observability.RecordCacheRequest("stale")
	} else {
		observability.RecordCacheRequest("hit")
	}
}

// await triggers a refresh of e and waits up to ColdStartTimeout for it. It
// returns what the refresh published when ready accepts it, ErrNotYetAvailable
// otherwise.
func (c *Cache) await(ctx context.Context, e *entry, ready func(*published) bool) (*published, error) {
	observability.RecordCacheRequest("cold")
	done := c.trigger(e, reasonCold)

	timer := time.NewTimer(c.cfg.ColdStartTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		observability.RecordCacheRequest("unavailable")
		return nil, fmt.Errorf("%w: %s not computed within %s", contracts.ErrNotYetAvailable, e.key, c.cfg.ColdStartTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", contracts.ErrNotYetAvailable, ctx.Err())
	}

	if p := e.cur.Load(); p != nil && ready(p) {
		return p, nil
	}

	c.mu.Lock()
	cause := e.lastErr
	c.mu.Unlock()

	observability.RecordCacheRequest("unavailable")
	if cause == nil {
		return nil, fmt.Errorf("%w: %s", contracts.ErrNotYetAvailable, e.key)
	}
	return nil, fmt.Errorf("%w: %w", contracts.ErrNotYetAvailable, cause)
}

// peek returns the snapshot held for key without triggering anything.
func (c *Cache) peek(key contracts.LeaderboardKey) (*contracts.LeaderboardSnapshot, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	snap := e.snapshot()
	return snap, snap != nil
}

// Invalidate marks the key stale and schedules a refresh. It does not block.
// An invalidation that lands during a refresh schedules one more run after it.
func (c *Cache) Invalidate(window time.Duration, horizon string) error {
	key, err := c.engine.Key(window, horizon)
	if err != nil {
		return err
	}

	e := c.entry(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e.running != nil {
		e.invalidated = true
		return nil
	}
	e.state = StateStale
	c.triggerLocked(e, reasonInvalidate)
	return nil
}

// RefreshExpired schedules a refresh for every key that is stale or past its TTL
// and reports how many were scheduled.
func (c *Cache) RefreshExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := c.now()
	triggered, fresh := 0, 0

	c.mu.Lock()
	for _, e := range c.entries {
		snap := e.snapshot()
		if snap == nil || e.running != nil {
			continue
		}
		if e.state == StateStale || snap.Age(now) > c.cfg.TTL {
			c.triggerLocked(e, reasonExpired)
			triggered++
			continue
		}
		fresh++
	}
	c.mu.Unlock()

	observability.UpdateFreshKeys(fresh)
	return triggered, nil
}

// OnCursorAdvance refreshes keys that have fallen at least BatchSize signals behind
// head, subject to the trigger rate limit. It reports how many were scheduled.
func (c *Cache) OnCursorAdvance(head int64) int {
	triggered, throttled := 0, 0

	c.mu.Lock()
	for _, e := range c.entries {
		snap := e.snapshot()
		if snap == nil || e.running != nil {
			continue
		}
		if head-snap.Cursor < c.cfg.BatchSize {
			continue
		}
		if !c.limiter.Allow() {
			throttled++
			continue
		}
		c.triggerLocked(e, reasonCursor)
		triggered++
	}
	c.mu.Unlock()

	if triggered > 0 || throttled > 0 {
		c.log.Debug().
			Int64("head", head).
			Int("triggered", triggered).
			Int("throttled", throttled).
			Msg("cursor advance")
	}
	return triggered
}

// Warm computes the given keys in parallel and waits for all of them.
func (c *Cache) Warm(ctx context.Context, keys []contracts.LeaderboardKey) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, key := range keys {
		g.Go(func() error {
			if _, err := c.engine.Key(key.Window, key.Horizon); err != nil {
				return err
			}

			e := c.entry(key)
			select {
			case <-c.trigger(e, reasonWarm):
			case <-ctx.Done():
				return ctx.Err()
			}

			if e.snapshot() != nil {
				return nil
			}
			c.mu.Lock()
			cause := e.lastErr
			c.mu.Unlock()
			return fmt.Errorf("warm %s: %w", key, cause)
		})
	}

	return g.Wait()
}

// Restore seeds the cache with persisted snapshots. Restored keys start STALE so
// the first read refreshes them, and their generation continues from the stored one.
func (c *Cache) Restore(ctx context.Context, store contracts.SnapshotStore) (int, error) {
	snaps, err := store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}

	restored := 0
	for _, snap := range snaps {
		if _, err := c.engine.Key(snap.Key.Window, snap.Key.Horizon); err != nil {
			c.log.Warn().Err(err).Str("key", snap.Key.String()).Msg("skipping persisted snapshot")
			continue
		}

		e := c.entry(snap.Key)

		c.mu.Lock()
		if cur := e.snapshot(); cur == nil || snap.Generation > cur.Generation {
			e.cur.Store(&published{snap: snap})
			if e.running == nil {
				e.state = StateStale
			}
			restored++
		}
		c.mu.Unlock()
	}

	c.log.Info().Int("restored", restored).Int("loaded", len(snaps)).Msg("snapshots restored")
	return restored, nil
}

// Persist saves every held snapshot to store.
func (c *Cache) Persist(ctx context.Context, store contracts.SnapshotStore) (int, error) {
	var errs []error
	saved := 0
	for _, snap := range c.snapshots() {
		if err := store.Save(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", snap.Key, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Keys returns every tracked key, ordered by horizon then window.
func (c *Cache) Keys() []contracts.LeaderboardKey {
	c.mu.Lock()
	keys := make([]contracts.LeaderboardKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Horizon != keys[j].Horizon {
			return keys[i].Horizon < keys[j].Horizon
		}
		return keys[i].Window < keys[j].Window
	})
	return keys
}

func (c *Cache) snapshots() []*contracts.LeaderboardSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*contracts.LeaderboardSnapshot, 0, len(c.entries))
	for _, e := range c.entries {
		if snap := e.snapshot(); snap != nil {
			out = append(out, snap)
		}
	}
	return out
}

func (c *Cache) entry(key contracts.LeaderboardKey) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, state: StateStale}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) trigger(e *entry, reason string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggerLocked(e, reason)
}

// triggerLocked starts a refresh for e unless one is already running, and returns
// the channel closed when the running refresh finishes. Caller holds c.mu.
func (c *Cache) triggerLocked(e *entry, reason string) <-chan struct{} {
	if e.running != nil {
		return e.running
	}

	done := make(chan struct{})
	e.running = done
	e.state = StateRefreshing
	observability.RecordTrigger(reason)

	c.wg.Add(1)
	go c.run(e, done)
	return done
}

func (c *Cache) run(e *entry, done chan struct{}) {
	defer c.wg.Done()

	start := time.Now()
	res, err := c.refresh(e.key)
	elapsed := time.Since(start)

	c.mu.Lock()
	e.running = nil
	again := e.invalidated
	e.invalidated = false

	var snap *contracts.LeaderboardSnapshot
	if err != nil {
		e.state = StateStale
		e.lastErr = err
	} else {
		var gen uint64 = 1
		if prev := e.snapshot(); prev != nil {
			gen = prev.Generation + 1
		}
		snap = buildSnapshot(res, gen)
		records := res.Records
		if records == nil {
			records = map[string][]contracts.ReturnRecord{}
		}
		e.cur.Store(&published{snap: snap, records: records})
		e.lastErr = nil
		e.lastRefresh = c.now()
		e.state = StateFresh
		if again {
			e.state = StateStale
		}
	}
	c.mu.Unlock()
	close(done)

	key := e.key.String()
	switch {
	case err == nil:
		observability.RecordRefresh(key, observability.OutcomeSuccess, elapsed)
		observability.RecordSnapshot(key, snap.Generation, len(snap.Entries))
		c.log.Debug().
			Str("key", key).
			Uint64("generation", snap.Generation).
			Int("ranked", len(snap.Entries)).
			Int64("cursor", snap.Cursor).
			Dur("took", elapsed).
			Msg("snapshot published")
		if c.onPublish != nil {
			c.onPublish(snap)
		}
	case errors.Is(err, contracts.ErrRefreshTimeout):
		observability.RecordRefresh(key, observability.OutcomeTimeout, elapsed)
		c.log.Warn().Err(err).Str("key", key).Msg("refresh timed out, serving previous snapshot")
	default:
		observability.RecordRefresh(key, observability.OutcomeError, elapsed)
		c.log.Error().Err(err).Str("key", key).Msg("refresh failed")
	}

	if again && c.ctx.Err() == nil {
		c.trigger(e, reasonInvalidate)
	}
}

// refresh runs one engine refresh bounded by RefreshTimeout. A refresh that
// overruns is abandoned; its result is discarded when it eventually returns.
func (c *Cache) refresh(key contracts.LeaderboardKey) (*aggregation.Result, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RefreshTimeout)
	defer cancel()

	type outcome struct {
		res *aggregation.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := c.engine.Refresh(ctx, key.Window, key.Horizon)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", contracts.ErrRefreshTimeout, key, c.cfg.RefreshTimeout)
		}
		return o.res, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", contracts.ErrRefreshTimeout, key, c.cfg.RefreshTimeout)
		}
		return nil, ctx.Err()
	}
}
