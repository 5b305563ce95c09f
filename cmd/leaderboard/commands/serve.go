package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/api"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/api/handlers"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/scheduler"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/scheduler/jobs"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and refresh scheduler",
	Long: `Starts the leaderboard service.

This command:
- restores persisted snapshots (SNAPSHOT_BACKEND)
- warms every configured (window, horizon) key
- schedules the TTL sweep, cursor watch and snapshot persist jobs
- serves the read-only HTTP API

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/leaderboard?window_hours=&horizon=&limit=&offset=
  GET  /api/accounts/{account}/summary
  GET  /api/accounts/{account}/signals?horizon=
  GET  /ws/leaderboard?window_hours=&horizon=&limit=   (websocket)

Example:
  go run ./cmd/leaderboard serve
  go run ./cmd/leaderboard serve --port 9090`,
	RunE: runServe,
}

var (
	servePort string
	skipWarm  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (overrides PORT)")
	serveCmd.Flags().BoolVar(&skipWarm, "skip-warm", false, "serve without refreshing keys up front")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.Port = servePort
	}
	log := a.log

	// 1. Restore persisted snapshots
	if a.snapshots != nil {
		n, err := a.cache.Restore(ctx, a.snapshots)
		if err != nil {
			log.WithError(err).Warn("Snapshot restore failed, starting cold")
		} else {
			log.WithField("snapshots", n).Info("Snapshots restored")
		}
	}

	// 2. Remember the head before warming so the cursor watch misses nothing
	head, err := a.signals.Head(ctx)
	if err != nil {
		return fmt.Errorf("read signal head: %w", err)
	}

	// 3. Warm configured keys
	if !skipWarm {
		start := time.Now()
		if err := a.cache.Warm(ctx, a.keys); err != nil {
			log.WithError(err).Warn("Warm-up incomplete, remaining keys load on first read")
		} else {
			log.WithFields(map[string]interface{}{
				"keys":     len(a.keys),
				"duration": time.Since(start),
			}).Info("Leaderboards warmed")
		}
	}

	// 4. Scheduler
	sched := scheduler.New(log)
	if err := registerJobs(sched, a, head); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	sched.Start()

	// 5. HTTP server
	h := handlers.NewLeaderboardHandler(a.facade, a.cfg.Leaderboard.DefaultWindow, a.defaultHorizon(), log)
	router := api.NewRouter(h, log, api.RouterConfig{
		Metrics:   a.cfg.MetricsEnabled,
		Limiter:   redis.NewRateLimiter(a.redis, "leaderboard"),
		RateLimit: a.cfg.APIRateLimit,
		Stream:    handlers.NewStreamHandler(a.facade, a.hub, a.cfg.Leaderboard.DefaultWindow, a.defaultHorizon(), log),
	})
	server := api.New(a.cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", a.cfg.Port))
	PrintKeyValue("Storage", a.cfg.Leaderboard.StorageBackend, 10)
	PrintKeyValue("Snapshots", a.cfg.Leaderboard.SnapshotBackend, 10)
	PrintKeyValue("Keys", fmt.Sprintf("%d", len(a.keys)), 10)
	PrintKeyValue("Jobs", fmt.Sprintf("%v", sched.GetAllJobs()), 10)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			sched.Stop()
			return err
		}
	}

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	sched.Stop()

	// Final persist so the next start is warm
	if a.snapshots != nil {
		n, err := a.cache.Persist(shutdownCtx, a.snapshots)
		if err != nil {
			log.WithError(err).Warn("Final snapshot persist incomplete")
		}
		log.WithField("snapshots", n).Info("Snapshots persisted")
	}

	log.Info("Server stopped")
	return nil
}

// registerJobs adds the refresh jobs; cursor is where the cursor watch starts reading.
func registerJobs(sched *scheduler.Scheduler, a *app, cursor int64) error {
	list := []scheduler.Job{
		jobs.NewTTLSweepJob(a.cache, a.log),
		jobs.NewCursorWatchJob(a.engine, a.cache, cursor, a.log),
	}
	if a.snapshots != nil {
		list = append(list, jobs.NewSnapshotPersistJob(a.cache, a.snapshots, a.log))
	}

	for _, j := range list {
		if err := sched.AddJob(j); err != nil {
			return err
		}
	}
	return nil
}
