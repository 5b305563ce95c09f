package aggregation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

func rec(id int64, pct float64, label contracts.Label) contracts.ReturnRecord {
	return contracts.ReturnRecord{
		SignalID:   id,
		AccountID:  "alice",
		Direction:  contracts.DirectionLong,
		SignalTime: t0.Add(time.Duration(id) * time.Hour),
		ReturnPct:  pct,
		Label:      label,
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		mean float64
		want string
	}{
		{75, "S+"},
		{50, "S+"},
		{30, "S"},
		{15.5, "A"},
		{5, "B"},
		{0, "C"},
		{-0.1, "D"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Grade(tt.mean), "mean %v", tt.mean)
	}
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 3*math.Sqrt(9), Score(3, 9, 5), 1e-9)
	assert.InDelta(t, -2*math.Sqrt(5), Score(-2, 5, 5), 1e-9)
	assert.True(t, math.IsInf(Score(10, 4, 5), -1))
	assert.True(t, math.IsInf(Score(10, 0, 0), -1))
}

func TestComputeStreak(t *testing.T) {
	W, L, N := contracts.LabelWin, contracts.LabelLoss, contracts.LabelNeutral

	tests := []struct {
		name   string
		labels []contracts.Label
		want   int
	}{
		{"empty", nil, 0},
		{"three wins", []contracts.Label{L, W, W, W}, 3},
		{"two losses", []contracts.Label{W, W, L, L}, -2},
		{"ends neutral", []contracts.Label{W, W, N}, 0},
		{"neutral breaks run", []contracts.Label{W, N, W}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, computeStreak(tt.labels))
		})
	}
}

func TestPoints(t *testing.T) {
	tests := []struct {
		name  string
		stats contracts.AccountStats
		want  float64
	}{
		{"empty", contracts.AccountStats{}, 0},
		{
			"winning streak",
			contracts.AccountStats{NResolved: 4, Wins: 4, MeanReturn: 2.5, Streak: 4, SignalToNoise: 100},
			40 + 200 + 12.5 + 60 + 50,
		},
		{
			"losing account earns activity only",
			contracts.AccountStats{NResolved: 2, NUnresolved: 2, Losses: 2, MeanReturn: -3, Streak: -2, SignalToNoise: 50},
			40 + 0 + 0 + 0 + 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Points(tt.stats))
		})
	}
}

func TestSignalToNoise(t *testing.T) {
	assert.InDelta(t, 75.0, signalToNoise(3, 1), 1e-9)
	assert.Zero(t, signalToNoise(0, 0))
}

func TestComputePercentile(t *testing.T) {
	assert.Equal(t, 0.0, computePercentile(nil, 0.5))
	assert.Equal(t, 4.0, computePercentile([]float64{4}, 0.5))
	assert.InDelta(t, 2.5, computePercentile([]float64{1, 2, 3, 4}, 0.5), 1e-9)
	assert.InDelta(t, 3.0, computePercentile([]float64{1, 3, 9}, 0.5), 1e-9)
}

func TestBuildStats(t *testing.T) {
	recs := []contracts.ReturnRecord{
		rec(3, -4, contracts.LabelLoss),
		rec(1, 10, contracts.LabelWin),
		rec(2, 6, contracts.LabelWin),
		rec(4, 0, contracts.LabelNeutral),
		{SignalID: 5, AccountID: "alice", Direction: contracts.DirectionLong, SignalTime: t0.Add(5 * time.Hour), Label: contracts.LabelUnresolved},
	}

	s, ok := buildStats("alice", "24h", recs, 3)
	require.True(t, ok)

	assert.Equal(t, 4, s.NResolved)
	assert.Equal(t, 1, s.NUnresolved)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.Neutrals)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 3.0, s.MeanReturn, 1e-9)
	assert.InDelta(t, 3.0, s.MedianReturn, 1e-9)
	assert.Equal(t, 10.0, s.BestReturn)
	assert.Equal(t, -4.0, s.WorstReturn)
	assert.Equal(t, 0, s.Streak)
	assert.Equal(t, "C", s.Grade)
	assert.InDelta(t, 3*math.Sqrt(4), s.Score, 1e-9)
	assert.Equal(t, contracts.StatusRanked, s.Status)
	assert.True(t, s.LastSignalAt.Equal(t0.Add(5*time.Hour)))
	assert.InDelta(t, 80.0, s.SignalToNoise, 1e-9)
	// 5*10 + (2/3*100)*2 + 3*5 + 0 + 80*0.5
	assert.Equal(t, 238.3, s.Points)
}

func TestBuildStats_NothingResolved(t *testing.T) {
	_, ok := buildStats("alice", "1h", []contracts.ReturnRecord{
		{SignalID: 1, Direction: contracts.DirectionLong, Label: contracts.LabelUnresolved},
	}, 5)
	assert.False(t, ok)
}
