package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/observability"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/logger"
)

// ExpiryRefresher is implemented by *leaderboard.Cache.
type ExpiryRefresher interface {
	RefreshExpired(ctx context.Context) (int, error)
}

// CursorTrigger is implemented by *leaderboard.Cache.
type CursorTrigger interface {
	OnCursorAdvance(head int64) int
}

// IncrementalIngester is implemented by *aggregation.Engine.
type IncrementalIngester interface {
	IncrementalRefresh(ctx context.Context, cursor int64) (int64, error)
}

// SnapshotPersister is implemented by *leaderboard.Cache.
type SnapshotPersister interface {
	Persist(ctx context.Context, store contracts.SnapshotStore) (int, error)
}

// TTLSweepJob applies the time-based refresh policy
type TTLSweepJob struct {
	cache  ExpiryRefresher
	logger *logger.Logger
}

// NewTTLSweepJob creates a new TTL sweep job
func NewTTLSweepJob(cache ExpiryRefresher, log *logger.Logger) *TTLSweepJob {
	return &TTLSweepJob{cache: cache, logger: log}
}

// Name returns the job name
func (j *TTLSweepJob) Name() string {
	return "leaderboard_ttl_sweep"
}

// Schedule returns the cron schedule (every 15 seconds)
func (j *TTLSweepJob) Schedule() string {
	return "*/15 * * * * *"
}

// Run schedules refreshes for expired keys
func (j *TTLSweepJob) Run(ctx context.Context) error {
	n, err := j.cache.RefreshExpired(ctx)
	if err != nil {
		return fmt.Errorf("refresh expired: %w", err)
	}

	if n > 0 {
		j.logger.WithField("keys", n).Debug("Expired leaderboards scheduled for refresh")
	}
	return nil
}

// CursorWatchJob applies the event-based refresh policy: it feeds new signals to
// the engine and lets the cache refresh keys that fell a batch behind.
type CursorWatchJob struct {
	engine IncrementalIngester
	cache  CursorTrigger
	cursor atomic.Int64
	logger *logger.Logger
}

// NewCursorWatchJob creates a job that starts reading after cursor
func NewCursorWatchJob(engine IncrementalIngester, cache CursorTrigger, cursor int64, log *logger.Logger) *CursorWatchJob {
	j := &CursorWatchJob{engine: engine, cache: cache, logger: log}
	j.cursor.Store(cursor)
	return j
}

// Name returns the job name
func (j *CursorWatchJob) Name() string {
	return "signal_cursor_watch"
}

// Schedule returns the cron schedule (every 5 seconds)
func (j *CursorWatchJob) Schedule() string {
	return "*/5 * * * * *"
}

// Cursor returns the last signal id handed to the engine
func (j *CursorWatchJob) Cursor() int64 {
	return j.cursor.Load()
}

// Run ingests new signals and triggers refreshes
func (j *CursorWatchJob) Run(ctx context.Context) error {
	from := j.cursor.Load()

	next, err := j.engine.IncrementalRefresh(ctx, from)
	if err != nil {
		return fmt.Errorf("incremental refresh from %d: %w", from, err)
	}
	if next == from {
		return nil
	}

	j.cursor.Store(next)
	observability.UpdateSignalCursor(next)

	triggered := j.cache.OnCursorAdvance(next)
	j.logger.WithFields(map[string]interface{}{
		"from":      from,
		"to":        next,
		"triggered": triggered,
	}).Debug("Signal cursor advanced")

	return nil
}

// SnapshotPersistJob saves published snapshots for warm restarts
type SnapshotPersistJob struct {
	cache  SnapshotPersister
	store  contracts.SnapshotStore
	logger *logger.Logger
}

// NewSnapshotPersistJob creates a new snapshot persist job
func NewSnapshotPersistJob(cache SnapshotPersister, store contracts.SnapshotStore, log *logger.Logger) *SnapshotPersistJob {
	return &SnapshotPersistJob{cache: cache, store: store, logger: log}
}

// Name returns the job name
func (j *SnapshotPersistJob) Name() string {
	return "snapshot_persist"
}

// Schedule returns the cron schedule (every minute)
func (j *SnapshotPersistJob) Schedule() string {
	return "0 * * * * *"
}

// Run persists every held snapshot
func (j *SnapshotPersistJob) Run(ctx context.Context) error {
	n, err := j.cache.Persist(ctx, j.store)
	if err != nil {
		return fmt.Errorf("persist snapshots (%d saved): %w", n, err)
	}

	j.logger.WithField("saved", n).Debug("Snapshots persisted")
	return nil
}
