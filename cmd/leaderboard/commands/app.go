package commands

import (
	"context"
	"fmt"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/aggregation"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/leaderboard"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/query"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/returns"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/storage/memory"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/storage/postgres"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/storage/redisstore"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/stream"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/config"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/database"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/logger"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/redis"
)

// app is the fully wired engine shared by serve, refresh and scheduler commands.
type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *database.DB  // nil unless postgres backs something
	redis *redis.Client // disabled client when REDIS_ENABLED=false

	prices    contracts.PriceStore
	signals   contracts.SignalStore
	snapshots contracts.SnapshotStore // nil when SNAPSHOT_BACKEND=none

	engine *aggregation.Engine
	cache  *leaderboard.Cache
	hub    *stream.Hub
	facade *query.Facade

	// keys are the pre-registered (window, horizon) pairs warmed at start
	keys []contracts.LeaderboardKey
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// newApp connects the configured backends and builds the engine stack.
func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	lb := a.cfg.Leaderboard

	if lb.StorageBackend == config.BackendPostgres || lb.SnapshotBackend == config.BackendPostgres {
		db, err := database.New(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		a.log.Info("Connected to database")
	}

	rc, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rc
	if rc.Enabled() {
		a.log.Info("Connected to redis")
	}

	switch lb.StorageBackend {
	case config.BackendPostgres:
		a.prices = postgres.NewPriceRepository(a.db.Pool)
		a.signals = postgres.NewSignalRepository(a.db.Pool)
	default:
		a.prices = memory.NewPriceIndex()
		a.signals = memory.NewSignalStore()
	}

	switch lb.SnapshotBackend {
	case config.BackendRedis:
		a.snapshots = redisstore.New(a.redis, 0)
	case config.BackendPostgres:
		a.snapshots = postgres.NewSnapshotRepository(a.db.Pool)
	}

	a.log.WithFields(map[string]interface{}{
		"storage":  lb.StorageBackend,
		"snapshot": lb.SnapshotBackend,
	}).Info("Backends ready")

	return nil
}

func (a *app) build() error {
	lb := a.cfg.Leaderboard

	hs := make([]contracts.Horizon, 0, len(lb.Horizons))
	for _, h := range lb.Horizons {
		hs = append(hs, contracts.Horizon{Name: h.Name, Duration: h.Duration})
	}
	horizons, err := contracts.NewHorizonSet(hs...)
	if err != nil {
		return fmt.Errorf("build horizons: %w", err)
	}

	zl := a.log.Zerolog()
	computer := returns.NewComputer(a.prices, lb.PriceTolerance, zl)
	a.engine = aggregation.NewEngine(a.signals, computer, horizons, zl,
		aggregation.WithMinSample(lb.MinSample))

	a.hub = stream.NewHub(zl)
	a.cache = leaderboard.NewCache(a.engine, leaderboard.Config{
		TTL:              lb.CacheTTL,
		RefreshTimeout:   lb.RefreshTimeout,
		ColdStartTimeout: lb.ColdStartTimeout,
		BatchSize:        lb.RefreshBatchSize,
		TriggerRate:      lb.TriggerRate,
	}, zl, leaderboard.WithPublishHook(a.hub.Publish))

	a.facade = query.NewFacade(a.cache, a.engine, lb.DefaultWindow, lb.MaxWindow)

	for _, w := range lb.Windows {
		for _, h := range horizons.All() {
			a.keys = append(a.keys, contracts.LeaderboardKey{Window: w, Horizon: h.Name})
		}
	}

	return nil
}

// defaultHorizon is the first configured horizon.
func (a *app) defaultHorizon() string {
	return a.cfg.Leaderboard.Horizons[0].Name
}

// Close releases the cache and every connection opened by connect.
func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
