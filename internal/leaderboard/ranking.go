package leaderboard

import (
	"sort"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/aggregation"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// Rank orders ranked accounts by score desc, then n_resolved desc, then account id asc.
// Accounts below the sample threshold are left out. Ranks are 1-based.
func Rank(stats map[string]contracts.AccountStats) []contracts.LeaderboardEntry {
	ranked := make([]contracts.AccountStats, 0, len(stats))
	for _, s := range stats {
		if s.Ranked() {
			ranked = append(ranked, s)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.NResolved != b.NResolved {
			return a.NResolved > b.NResolved
		}
		return a.AccountID < b.AccountID
	})

	entries := make([]contracts.LeaderboardEntry, len(ranked))
	for i, s := range ranked {
		entries[i] = contracts.LeaderboardEntry{
			Rank:          i + 1,
			AccountID:     s.AccountID,
			Score:         s.Score,
			NResolved:     s.NResolved,
			WinRate:       s.WinRate,
			MeanReturn:    s.MeanReturn,
			MedianReturn:  s.MedianReturn,
			Streak:        s.Streak,
			Grade:         s.Grade,
			Points:        s.Points,
			SignalToNoise: s.SignalToNoise,
		}
	}
	return entries
}

func buildSnapshot(res *aggregation.Result, generation uint64) *contracts.LeaderboardSnapshot {
	return &contracts.LeaderboardSnapshot{
		Key:        res.Key,
		Generation: generation,
		AsOf:       res.AsOf,
		Cursor:     res.Cursor,
		Entries:    Rank(res.Stats),
		Stats:      res.Stats,
	}
}
