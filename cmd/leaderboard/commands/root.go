package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Signal leaderboard engine",
	Long: `Signal leaderboard engine

Scores accounts by the realized returns of the directional calls they post
and serves cached rankings per (window, horizon).

Usage:
  go run ./cmd/leaderboard [command]

Examples:
  go run ./cmd/leaderboard serve
  go run ./cmd/leaderboard refresh --window 168h --horizon 24h
  go run ./cmd/leaderboard migrate
  go run ./cmd/leaderboard scheduler list`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (forces debug logging)")
}
