package aggregation

import (
	"context"
	"iter"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/returns"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/storage/memory"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

const week = 168 * time.Hour

type fixture struct {
	t       *testing.T
	prices  *memory.PriceIndex
	signals *memory.SignalStore
	engine  *Engine

	mu  sync.Mutex
	now time.Time
	id  int64
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		t:       t,
		prices:  memory.NewPriceIndex(),
		signals: memory.NewSignalStore(),
		now:     t0.Add(48 * time.Hour),
	}

	horizons, err := contracts.NewHorizonSet(contracts.DefaultHorizons()...)
	require.NoError(t, err)

	computer := returns.NewComputer(f.prices, 15*time.Minute, zerolog.Nop())
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.engine = NewEngine(f.signals, computer, horizons, zerolog.Nop(), opts...)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) price(asset string, at time.Time, p float64) {
	f.t.Helper()
	require.NoError(f.t, f.prices.Append(context.Background(), contracts.PricePoint{Asset: asset, Timestamp: at, Price: p}))
}

// call appends a signal with entry and 1h-exit prices already in the index.
func (f *fixture) call(account, asset string, at time.Time, d contracts.Direction, entry, exit float64) int64 {
	f.t.Helper()
	f.price(asset, at, entry)
	f.price(asset, at.Add(time.Hour), exit)
	return f.signal(account, asset, at, d)
}

func (f *fixture) signal(account, asset string, at time.Time, d contracts.Direction) int64 {
	f.t.Helper()
	f.id++
	_, err := f.signals.Append(context.Background(), contracts.Signal{
		ID: f.id, AccountID: account, Asset: asset, Timestamp: at, Direction: d,
	})
	require.NoError(f.t, err)
	return f.id
}

func TestRefresh_RanksAccountWithEnoughSample(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 6; i++ {
		asset := []string{"BTC", "ETH", "SOL", "ARB", "OP", "DOGE"}[i]
		f.call("alice", asset, t0.Add(time.Duration(2*i)*time.Hour), contracts.DirectionLong, 100, 102)
	}

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)

	s, ok := res.Stats["alice"]
	require.True(t, ok)
	assert.Equal(t, 6, s.NResolved)
	assert.Equal(t, 6, s.Wins)
	assert.InDelta(t, 1.0, s.WinRate, 1e-9)
	assert.InDelta(t, 2.0, s.MeanReturn, 1e-9)
	assert.InDelta(t, 2.0, s.MedianReturn, 1e-9)
	assert.InDelta(t, 2.0*math.Sqrt(6), s.Score, 1e-9)
	assert.Equal(t, contracts.StatusRanked, s.Status)
	assert.Equal(t, 6, s.Streak)
	assert.Equal(t, "C", s.Grade)
	assert.Equal(t, int64(6), res.Cursor)

	assert.True(t, s.WindowEnd.Equal(f.now))
	assert.True(t, s.WindowStart.Equal(f.now.Add(-week)))
	assert.True(t, res.WindowStart.Equal(s.WindowStart))
}

func TestRefresh_InsufficientSample(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 4; i++ {
		f.call("bob", "BTC", t0.Add(time.Duration(3*i)*time.Hour), contracts.DirectionShort, 100, 95)
	}

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)

	s := res.Stats["bob"]
	assert.Equal(t, 4, s.NResolved)
	assert.Equal(t, contracts.StatusInsufficientSample, s.Status)
	assert.True(t, math.IsInf(s.Score, -1))
	assert.False(t, s.Ranked())
}

func TestRefresh_ConfigurableMinSample(t *testing.T) {
	f := newFixture(t, WithMinSample(2))

	f.call("bob", "BTC", t0, contracts.DirectionLong, 100, 101)
	f.call("bob", "ETH", t0, contracts.DirectionLong, 100, 103)

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)
	assert.True(t, res.Stats["bob"].Ranked())
	assert.InDelta(t, 2.0*math.Sqrt(2), res.Stats["bob"].Score, 1e-9)
}

func TestRefresh_ExcludesAccountsWithoutResolvedRecords(t *testing.T) {
	f := newFixture(t)

	// No prices at all
	f.signal("carol", "BTC", t0, contracts.DirectionLong)
	// Neutral calls carry no directional claim
	f.call("dave", "ETH", t0, contracts.DirectionNeutral, 100, 110)

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)
	assert.NotContains(t, res.Stats, "carol")
	assert.NotContains(t, res.Stats, "dave")

	recs := res.AccountRecords("dave")
	require.Len(t, recs, 1)
	assert.Equal(t, contracts.LabelNeutral, recs[0].Label)
}

func TestRefresh_EvictsByWindow(t *testing.T) {
	f := newFixture(t)
	window := 24 * time.Hour

	old := f.call("alice", "BTC", f.now.Add(-30*time.Hour), contracts.DirectionLong, 100, 150)
	f.call("alice", "ETH", f.now.Add(-10*time.Hour), contracts.DirectionLong, 100, 90)

	res, err := f.engine.Refresh(context.Background(), window, "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats["alice"].NResolved)
	assert.InDelta(t, -10.0, res.Stats["alice"].MeanReturn, 1e-9)

	// Advance so the second record also leaves the window
	f.advance(20 * time.Hour)
	res, err = f.engine.Refresh(context.Background(), window, "1h")
	require.NoError(t, err)
	assert.NotContains(t, res.Stats, "alice")

	for _, r := range res.AccountRecords("alice") {
		assert.NotEqual(t, old, r.SignalID)
	}
}

func TestRefresh_EvictionOnlyAffectsItsOwnKey(t *testing.T) {
	f := newFixture(t)
	f.call("alice", "BTC", f.now.Add(-30*time.Hour), contracts.DirectionLong, 100, 110)

	day, err := f.engine.Refresh(context.Background(), 24*time.Hour, "1h")
	require.NoError(t, err)
	weekRes, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)

	assert.NotContains(t, day.Stats, "alice")
	assert.Equal(t, 1, weekRes.Stats["alice"].NResolved)
}

func TestRefresh_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.call("alice", "BTC", t0, contracts.DirectionLong, 100, 104)
	f.call("alice", "ETH", t0.Add(time.Hour), contracts.DirectionShort, 100, 104)
	f.call("bob", "SOL", t0, contracts.DirectionLong, 50, 49)

	first, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)
	second, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)

	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Cursor, second.Cursor)
}

func TestRefresh_PendingResolvesLater(t *testing.T) {
	f := newFixture(t)

	at := f.now.Add(-2 * time.Hour)
	f.price("BTC", at, 100)
	f.signal("alice", "BTC", at, contracts.DirectionLong)

	res, err := f.engine.Refresh(context.Background(), week, "24h")
	require.NoError(t, err)
	assert.NotContains(t, res.Stats, "alice")

	recs := res.AccountRecords("alice")
	require.Len(t, recs, 1)
	assert.Equal(t, contracts.ReasonPending, recs[0].Reason)

	f.price("BTC", at.Add(24*time.Hour), 120)
	f.advance(23 * time.Hour)

	res, err = f.engine.Refresh(context.Background(), week, "24h")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats["alice"].NResolved)
	assert.InDelta(t, 20.0, res.Stats["alice"].MeanReturn, 1e-9)
}

func TestRefresh_UnresolvedCounted(t *testing.T) {
	f := newFixture(t)
	f.call("alice", "BTC", t0, contracts.DirectionLong, 100, 101)
	f.price("ETH", t0, 100) // exit missing
	f.signal("alice", "ETH", t0, contracts.DirectionLong)

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats["alice"].NResolved)
	assert.Equal(t, 1, res.Stats["alice"].NUnresolved)
	assert.InDelta(t, 50.0, res.Stats["alice"].SignalToNoise, 1e-9)
}

func TestRefresh_InvalidArguments(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Refresh(context.Background(), week, "2h")
	assert.ErrorIs(t, err, contracts.ErrInvalidHorizon)

	_, err = f.engine.Refresh(context.Background(), -time.Hour, "1h")
	assert.ErrorIs(t, err, contracts.ErrInvalidWindow)

	_, err = f.engine.Refresh(context.Background(), 0, "1h")
	assert.ErrorIs(t, err, contracts.ErrInvalidWindow)
}

type brokenStore struct{ *memory.SignalStore }

func (brokenStore) StreamSince(context.Context, int64) iter.Seq2[contracts.Signal, error] {
	return func(yield func(contracts.Signal, error) bool) {
		yield(contracts.Signal{}, contracts.ErrStoreUnavailable)
	}
}

func TestRefresh_StoreUnavailablePropagates(t *testing.T) {
	horizons, err := contracts.NewHorizonSet(contracts.DefaultHorizons()...)
	require.NoError(t, err)

	computer := returns.NewComputer(memory.NewPriceIndex(), time.Minute, zerolog.Nop())
	engine := NewEngine(brokenStore{memory.NewSignalStore()}, computer, horizons, zerolog.Nop())

	_, err = engine.Refresh(context.Background(), week, "1h")
	assert.ErrorIs(t, err, contracts.ErrStoreUnavailable)

	_, err = engine.IncrementalRefresh(context.Background(), 0)
	assert.ErrorIs(t, err, contracts.ErrStoreUnavailable)
}

func TestIncrementalRefresh(t *testing.T) {
	f := newFixture(t)
	f.call("alice", "BTC", t0, contracts.DirectionLong, 100, 101)

	_, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)

	f.call("alice", "ETH", t0.Add(time.Hour), contracts.DirectionLong, 100, 103)
	f.call("bob", "SOL", t0.Add(time.Hour), contracts.DirectionShort, 100, 97)

	next, err := f.engine.IncrementalRefresh(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)

	// Nothing new
	again, err := f.engine.IncrementalRefresh(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, next, again)

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats["alice"].NResolved)
	assert.Equal(t, 1, res.Stats["bob"].NResolved)
	assert.Equal(t, int64(3), res.Cursor)
}

// flakyStore streams failAfter signals on its first call and then fails.
type flakyStore struct {
	*memory.SignalStore

	mu        sync.Mutex
	failAfter int
}

func (s *flakyStore) StreamSince(ctx context.Context, cursor int64) iter.Seq2[contracts.Signal, error] {
	s.mu.Lock()
	limit := s.failAfter
	s.failAfter = 0
	s.mu.Unlock()

	inner := s.SignalStore.StreamSince(ctx, cursor)
	if limit == 0 {
		return inner
	}
	return func(yield func(contracts.Signal, error) bool) {
		n := 0
		for sig, err := range inner {
			if n == limit {
				yield(contracts.Signal{}, contracts.ErrStoreUnavailable)
				return
			}
			if !yield(sig, err) || err != nil {
				return
			}
			n++
		}
	}
}

func TestIncrementalRefresh_LaggingKeyCatchesUpOnRefresh(t *testing.T) {
	store := &flakyStore{SignalStore: memory.NewSignalStore(), failAfter: 2}
	f := newFixture(t)
	f.signals = store.SignalStore

	horizons, err := contracts.NewHorizonSet(contracts.DefaultHorizons()...)
	require.NoError(t, err)
	computer := returns.NewComputer(f.prices, 15*time.Minute, zerolog.Nop())
	f.engine = NewEngine(store, computer, horizons, zerolog.Nop(), WithClock(f.clock))

	assets := []string{"BTC", "ETH", "SOL", "ARB", "OP", "DOGE"}
	for i, asset := range assets[:5] {
		f.call("alice", asset, t0.Add(time.Duration(i)*time.Hour), contracts.DirectionLong, 100, 101)
	}

	// First refresh stops after two signals
	_, err = f.engine.Refresh(context.Background(), week, "1h")
	require.ErrorIs(t, err, contracts.ErrStoreUnavailable)

	// The watcher started at head 5 and now sees id 6 only
	f.call("alice", assets[5], t0.Add(5*time.Hour), contracts.DirectionLong, 100, 101)
	next, err := f.engine.IncrementalRefresh(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), next)

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Stats["alice"].NResolved)
	assert.Equal(t, int64(6), res.Cursor)
}

func TestRefresh_GivesUpWaitingWhenContextEnds(t *testing.T) {
	f := newFixture(t)
	f.call("alice", "BTC", t0, contracts.DirectionLong, 100, 101)

	key, err := f.engine.Key(week, "1h")
	require.NoError(t, err)
	rs := f.engine.set(key)
	require.NoError(t, rs.lock(context.Background()))
	defer rs.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.engine.Refresh(ctx, week, "1h")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResult_AccountRecordsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.call("alice", "BTC", t0, contracts.DirectionLong, 100, 101)
	f.call("alice", "ETH", t0.Add(5*time.Hour), contracts.DirectionLong, 100, 99)

	res, err := f.engine.Refresh(context.Background(), week, "1h")
	require.NoError(t, err)

	recs := res.AccountRecords("alice")
	require.Len(t, recs, 2)
	assert.Equal(t, "ETH", recs[0].Asset)
	assert.Equal(t, contracts.LabelLoss, recs[0].Label)
	assert.Equal(t, "BTC", recs[1].Asset)

	// Copies do not alias the result
	recs[0].Asset = "changed"
	assert.Equal(t, "ETH", res.AccountRecords("alice")[0].Asset)
	assert.Nil(t, res.AccountRecords("nobody"))
}
