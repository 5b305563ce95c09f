package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/leaderboard"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Compute one leaderboard and print it",
	Long: `Runs a single refresh for one (window, horizon) and prints the ranking.

With --persist every configured key is warmed and the snapshots are written
to SNAPSHOT_BACKEND, so a later serve starts warm.

Example:
  go run ./cmd/leaderboard refresh
  go run ./cmd/leaderboard refresh --window 24h --horizon 1h --top 20
  go run ./cmd/leaderboard refresh --persist`,
	RunE: runRefresh,
}

var (
	refreshWindow  time.Duration
	refreshHorizon string
	refreshTop     int
	refreshPersist bool
)

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().DurationVar(&refreshWindow, "window", 0, "lookback window (default LEADERBOARD_DEFAULT_WINDOW)")
	refreshCmd.Flags().StringVar(&refreshHorizon, "horizon", "", "horizon name (default first configured)")
	refreshCmd.Flags().IntVar(&refreshTop, "top", 25, "rows to print")
	refreshCmd.Flags().BoolVar(&refreshPersist, "persist", false, "warm all keys and persist snapshots")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if refreshPersist {
		return warmAndPersist(ctx, a)
	}

	window := refreshWindow
	if window == 0 {
		window = a.cfg.Leaderboard.DefaultWindow
	}
	horizon := refreshHorizon
	if horizon == "" {
		horizon = a.defaultHorizon()
	}

	start := time.Now()
	res, err := a.engine.Refresh(ctx, window, horizon)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	entries := leaderboard.Rank(res.Stats)

	PrintHeader(fmt.Sprintf("Leaderboard %s", res.Key))
	PrintKeyValue("As of", res.AsOf.Format(time.RFC3339), 9)
	PrintKeyValue("Cursor", strconv.FormatInt(res.Cursor, 10), 9)
	PrintKeyValue("Accounts", strconv.Itoa(len(res.Stats)), 9)
	PrintKeyValue("Ranked", strconv.Itoa(len(entries)), 9)
	PrintSeparator()

	if len(entries) == 0 {
		PrintWarning(fmt.Sprintf("No account has %d resolved signals yet", a.engine.MinSample()))
		return nil
	}

	widths := []int{5, 24, 9, 6, 8, 9, 9, 7, 5}
	PrintTableHeader([]string{"RANK", "ACCOUNT", "SCORE", "N", "WIN", "MEAN", "MEDIAN", "STREAK", "GRADE"}, widths)
	for i, e := range entries {
		if i >= refreshTop {
			break
		}
		PrintTableRow([]string{
			strconv.Itoa(e.Rank),
			e.AccountID,
			formatScore(e.Score),
			strconv.Itoa(e.NResolved),
			fmt.Sprintf("%.0f%%", e.WinRate*100),
			formatPct(e.MeanReturn),
			formatPct(e.MedianReturn),
			fmt.Sprintf("%+d", e.Streak),
			e.Grade,
		}, widths)
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("Refreshed in %s", time.Since(start).Round(time.Millisecond)))
	return nil
}

func warmAndPersist(ctx context.Context, a *app) error {
	if a.snapshots == nil {
		return fmt.Errorf("--persist needs SNAPSHOT_BACKEND=redis or postgres")
	}

	if err := a.cache.Warm(ctx, a.keys); err != nil {
		return fmt.Errorf("warm: %w", err)
	}
	n, err := a.cache.Persist(ctx, a.snapshots)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Persisted %d snapshots to %s", n, a.cfg.Leaderboard.SnapshotBackend))
	return nil
}
