package aggregation

import (
	"math"
	"sort"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// DefaultMinSample is the fewest resolved records an account needs to be ranked.
const DefaultMinSample = 5

// Profit grade thresholds on mean return (percent), best first.
var gradeThresholds = []struct {
	min   float64
	grade string
}{
	{50, "S+"},
	{30, "S"},
	{15, "A"},
	{5, "B"},
	{0, "C"},
}

// Grade maps a mean return in percent to a profit grade.
func Grade(meanReturn float64) string {
	for _, t := range gradeThresholds {
		if meanReturn >= t.min {
			return t.grade
		}
	}
	return "D"
}

// Score is mean_return * sqrt(n) once n reaches minSample, -Inf otherwise.
func Score(meanReturn float64, n, minSample int) float64 {
	if n < minSample || n == 0 {
		return math.Inf(-1)
	}
	return meanReturn * math.Sqrt(float64(n))
}

// Points is a display figure for the trader board, rounded to one decimal:
// 10 per signal, 2 per win-rate point, 5 per positive mean-return point,
// 15 per call in a winning streak, plus half the signal-to-noise ratio.
func Points(s contracts.AccountStats) float64 {
	total := s.NResolved + s.NUnresolved
	winRate := 0.0
	if decided := s.Wins + s.Losses; decided > 0 {
		winRate = float64(s.Wins) / float64(decided) * 100
	}

	p := float64(total)*10 +
		winRate*2 +
		math.Max(s.MeanReturn, 0)*5 +
		float64(max(s.Streak, 0))*15 +
		s.SignalToNoise*0.5
	return math.Round(p*10) / 10
}

// signalToNoise is the resolved share of signals in percent.
func signalToNoise(resolved, unresolved int) float64 {
	total := resolved + unresolved
	if total == 0 {
		return 0
	}
	return float64(resolved) / float64(total) * 100
}

// buildStats folds one account's records into AccountStats.
// Neutral-direction calls carry no claim and are skipped. ok is false when
// nothing resolved.
func buildStats(account, horizon string, recs []contracts.ReturnRecord, minSample int) (contracts.AccountStats, bool) {
	sorted := make([]contracts.ReturnRecord, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].SignalTime.Equal(sorted[j].SignalTime) {
			return sorted[i].SignalTime.Before(sorted[j].SignalTime)
		}
		return sorted[i].SignalID < sorted[j].SignalID
	})

	s := contracts.AccountStats{AccountID: account, Horizon: horizon}

	var (
		outcomes []float64
		labels   []contracts.Label
	)
	for _, r := range sorted {
		if r.Direction == contracts.DirectionNeutral {
			continue
		}
		if r.SignalTime.After(s.LastSignalAt) {
			s.LastSignalAt = r.SignalTime
		}
		if !r.Resolved() {
			s.NUnresolved++
			continue
		}

		outcomes = append(outcomes, r.ReturnPct)
		labels = append(labels, r.Label)
		switch r.Label {
		case contracts.LabelWin:
			s.Wins++
		case contracts.LabelLoss:
			s.Losses++
		default:
			s.Neutrals++
		}
	}

	n := len(outcomes)
	if n == 0 {
		return contracts.AccountStats{}, false
	}

	ordered := make([]float64, n)
	copy(ordered, outcomes)
	sort.Float64s(ordered)

	s.NResolved = n
	s.WinRate = float64(s.Wins) / float64(n)
	s.MeanReturn = computeMean(outcomes)
	s.MedianReturn = computePercentile(ordered, 0.50)
	s.StdDevReturn = computeStddev(outcomes, s.MeanReturn)
	s.WorstReturn = ordered[0]
	s.BestReturn = ordered[n-1]
	s.Streak = computeStreak(labels)
	s.Grade = Grade(s.MeanReturn)
	s.Score = Score(s.MeanReturn, n, minSample)
	s.SignalToNoise = signalToNoise(n, s.NUnresolved)
	s.Points = Points(s)

	if n >= minSample {
		s.Status = contracts.StatusRanked
	} else {
		s.Status = contracts.StatusInsufficientSample
	}

	return s, true
}

// computeStreak counts the run of identical outcomes ending at the most recent record.
// Wins count up, losses count down, a neutral outcome ends the run.
func computeStreak(labels []contracts.Label) int {
	if len(labels) == 0 {
		return 0
	}

	last := labels[len(labels)-1]
	if last != contracts.LabelWin && last != contracts.LabelLoss {
		return 0
	}

	run := 0
	for i := len(labels) - 1; i >= 0 && labels[i] == last; i-- {
		run++
	}

	if last == contracts.LabelLoss {
		return -run
	}
	return run
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev uses the sample (n-1) formula.
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation over a sorted slice; p is in [0, 1].
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
