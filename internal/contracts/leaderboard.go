package contracts

import (
	"fmt"
	"time"
)

// LeaderboardKey identifies one cached ranking.
type LeaderboardKey struct {
	Window  time.Duration `json:"window"`
	Horizon string        `json:"horizon"`
}

// String renders the key as "168h/24h".
func (k LeaderboardKey) String() string {
	return fmt.Sprintf("%s/%s", formatWindow(k.Window), k.Horizon)
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return d.String()
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	AccountID     string  `json:"account_id"`
	Score         float64 `json:"score"`
	NResolved     int     `json:"n_resolved"`
	WinRate       float64 `json:"win_rate"`
	MeanReturn    float64 `json:"mean_return"`
	MedianReturn  float64 `json:"median_return"`
	Streak        int     `json:"streak"`
	Grade         string  `json:"grade"`
	Points        float64 `json:"points"`
	SignalToNoise float64 `json:"signal_to_noise"`
}

// LeaderboardSnapshot is an immutable ranked result for a key.
// Entries hold only ranked accounts; Stats holds every account with at least one resolved record.
type LeaderboardSnapshot struct {
	Key        LeaderboardKey          `json:"key"`
	Generation uint64                  `json:"generation"`
	AsOf       time.Time               `json:"as_of"`
	Cursor     int64                   `json:"cursor"`
	Entries    []LeaderboardEntry      `json:"entries"`
	Stats      map[string]AccountStats `json:"stats"`
}

// Age returns how old the snapshot is at now.
func (s *LeaderboardSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.AsOf)
}

// RankOf returns the 1-based rank of account, or 0 when unranked.
func (s *LeaderboardSnapshot) RankOf(account string) int {
	for _, e := range s.Entries {
		if e.AccountID == account {
			return e.Rank
		}
	}
	return 0
}
