package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/storage/migrations"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	Long: `Applies the embedded migrations (signals, price_points,
leaderboard_snapshots) to DATABASE_URL. Every statement is idempotent.

Example:
  go run ./cmd/leaderboard migrate
  go run ./cmd/leaderboard migrate --dry-run`,
	RunE: runMigrate,
}

var migrateDryRun bool

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "list migrations without applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateDryRun {
		files, err := migrations.Files()
		if err != nil {
			return err
		}
		fmt.Println("Pending migrations:")
		PrintList(files)
		return nil
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Run(ctx, db.Pool)
	if err != nil {
		return fmt.Errorf("migrate (%d applied): %w", len(applied), err)
	}

	log.WithField("files", len(applied)).Info("Migrations applied")
	PrintSuccess(fmt.Sprintf("Applied %d migrations", len(applied)))
	PrintList(applied)
	return nil
}
