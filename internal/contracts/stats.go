package contracts

import (
	"encoding/json"
	"math"
	"time"
)

// StatsStatus marks whether an account qualifies for ranking.
type StatsStatus string

const (
	StatusRanked             StatsStatus = "RANKED"
	StatusInsufficientSample StatsStatus = "INSUFFICIENT_SAMPLE"
)

// AccountStats is the per-account, per-horizon fold of resolved records within a window.
// Return figures are in percent. Score is -Inf when the account is below the minimum sample.
type AccountStats struct {
	AccountID string `json:"account_id"`
	Horizon   string `json:"horizon"`

	NResolved   int `json:"n_resolved"`
	NUnresolved int `json:"n_unresolved"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Neutrals    int `json:"neutrals"`

	WinRate      float64 `json:"win_rate"`
	MeanReturn   float64 `json:"mean_return"`
	MedianReturn float64 `json:"median_return"`
	StdDevReturn float64 `json:"stddev_return"`
	BestReturn   float64 `json:"best_return"`
	WorstReturn  float64 `json:"worst_return"`

	// Streak is signed: +n consecutive wins or -n consecutive losses, most recent first.
	Streak int    `json:"streak"`
	Grade  string `json:"grade"`

	Score  float64     `json:"score"`
	Status StatsStatus `json:"status"`

	// Points is a display figure rewarding activity and consistency; ranking uses Score.
	Points float64 `json:"points"`
	// SignalToNoise is the share of the account's signals that resolved, in percent.
	SignalToNoise float64 `json:"signal_to_noise"`

	LastSignalAt time.Time `json:"last_signal_at"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// Ranked reports whether the account met the minimum sample.
func (s AccountStats) Ranked() bool {
	return s.Status == StatusRanked
}

// MarshalJSON encodes a non-finite score as null.
func (s AccountStats) MarshalJSON() ([]byte, error) {
	type alias AccountStats
	out := struct {
		alias
		Score *float64 `json:"score"`
	}{alias: alias(s)}

	if !math.IsInf(s.Score, 0) && !math.IsNaN(s.Score) {
		score := s.Score
		out.Score = &score
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes a null score back to -Inf.
func (s *AccountStats) UnmarshalJSON(data []byte) error {
	type alias AccountStats
	aux := struct {
		*alias
		Score *float64 `json:"score"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Score == nil {
		s.Score = math.Inf(-1)
	} else {
		s.Score = *aux.Score
	}

	return nil
}
