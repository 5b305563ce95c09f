package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/database"
)

// dbCmd groups database utilities
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database utilities",
}

// dbCheckCmd represents the db check command
var dbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the PostgreSQL connection",
	Long: `Connects to DATABASE_URL, pings it and prints pool statistics.

Example:
  go run ./cmd/leaderboard db check`,
	RunE: runDBCheck,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbCheckCmd)
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	PrintKeyValue("Env", cfg.Env, 12)
	PrintKeyValue("Database", maskPassword(cfg.Database.URL), 12)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	PrintSuccess("Database reachable")
	PrintKeyValue("Healthy", fmt.Sprintf("%v", status.Healthy), 12)
	PrintKeyValue("Response", status.ResponseTime.String(), 12)
	PrintKeyValue("Max conns", fmt.Sprintf("%d", status.Stats.MaxConns), 12)
	PrintKeyValue("Total conns", fmt.Sprintf("%d", status.Stats.TotalConns), 12)
	PrintKeyValue("Idle conns", fmt.Sprintf("%d", status.Stats.IdleConns), 12)
	return nil
}

// maskPassword hides the password in a connection URL.
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
