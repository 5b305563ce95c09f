package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// Computer resolves a signal at a horizon into a labelled ReturnRecord.
// It holds no mutable state; the result depends only on the signal, the
// horizon and the price index contents.
type Computer struct {
	prices    contracts.PriceIndex
	tolerance time.Duration
	log       zerolog.Logger
}

// NewComputer creates a computer that accepts prices up to tolerance before the lookup instant.
func NewComputer(prices contracts.PriceIndex, tolerance time.Duration, log zerolog.Logger) *Computer {
	return &Computer{
		prices:    prices,
		tolerance: tolerance,
		log:       log.With().Str("component", "returns.computer").Logger(),
	}
}

// Resolve looks up the entry price at the signal time and the exit price at
// signal time + horizon. A missing price yields an unresolved record, not an error;
// only a failing price index returns an error.
func (c *Computer) Resolve(ctx context.Context, s contracts.Signal, h contracts.Horizon) (contracts.ReturnRecord, error) {
	rec := contracts.ReturnRecord{
		SignalID:   s.ID,
		AccountID:  s.AccountID,
		Asset:      s.Asset,
		Direction:  s.Direction,
		SignalTime: s.Timestamp,
		Horizon:    h.Name,
		Label:      contracts.LabelUnresolved,
	}

	entry, ok, err := c.prices.NearestAtOrBefore(ctx, s.Asset, s.Timestamp, c.tolerance)
	if err != nil {
		return rec, fmt.Errorf("entry price for signal %d: %w", s.ID, err)
	}
	if !ok {
		rec.Reason = contracts.ReasonEntryMissing
		return rec, nil
	}
	rec.EntryPrice = entry.Price
	rec.EntryTime = entry.Timestamp

	exitAt := s.Timestamp.Add(h.Duration)
	exit, ok, err := c.prices.NearestAtOrBefore(ctx, s.Asset, exitAt, c.tolerance)
	if err != nil {
		return rec, fmt.Errorf("exit price for signal %d: %w", s.ID, err)
	}
	if !ok {
		rec.Reason = contracts.ReasonExitMissing
		return rec, nil
	}
	rec.ExitPrice = exit.Price
	rec.ExitTime = exit.Timestamp

	rec.ReturnPct = AdjustedReturnPct(entry.Price, exit.Price, s.Direction)
	rec.Label = LabelFor(rec.ReturnPct)

	return rec, nil
}

// ResolveAsOf is Resolve for a caller whose clock reads now: a signal whose exit
// instant lies after now is reported pending without touching the price index.
func (c *Computer) ResolveAsOf(ctx context.Context, s contracts.Signal, h contracts.Horizon, now time.Time) (contracts.ReturnRecord, error) {
	if s.Timestamp.Add(h.Duration).After(now) {
		return contracts.ReturnRecord{
			SignalID:   s.ID,
			AccountID:  s.AccountID,
			Asset:      s.Asset,
			Direction:  s.Direction,
			SignalTime: s.Timestamp,
			Horizon:    h.Name,
			Label:      contracts.LabelUnresolved,
			Reason:     contracts.ReasonPending,
		}, nil
	}

	rec, err := c.Resolve(ctx, s, h)
	if err == nil && !rec.Resolved() {
		c.log.Debug().
			Int64("signal_id", s.ID).
			Str("asset", s.Asset).
			Str("horizon", h.Name).
			Str("reason", string(rec.Reason)).
			Msg("signal unresolved")
	}
	return rec, err
}

// AdjustedReturnPct is the percent move from entry to exit, sign-flipped for
// short calls and zeroed for neutral ones.
func AdjustedReturnPct(entry, exit float64, d contracts.Direction) float64 {
	raw := (exit - entry) / entry * 100
	adjusted := raw * d.Multiplier()
	if adjusted == 0 {
		// normalise -0
		return 0
	}
	return adjusted
}

// LabelFor maps an adjusted return to win, loss or neutral.
func LabelFor(adjusted float64) contracts.Label {
	switch {
	case adjusted > 0:
		return contracts.LabelWin
	case adjusted < 0:
		return contracts.LabelLoss
	default:
		return contracts.LabelNeutral
	}
}
