package main

import (
	"os"

	"github.com/sty1228/hyperliquid-sentiment-trader/cmd/leaderboard/commands"
)

// main is the entry point for the leaderboard CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
