package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the directional claim of a signal.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// ParseDirection accepts the canonical names plus the sentiment aliases
// used by upstream classifiers (bullish, bearish).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "bullish", "buy":
		return DirectionLong, nil
	case "short", "bearish", "sell":
		return DirectionShort, nil
	case "neutral", "":
		return DirectionNeutral, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, s)
	}
}

// Multiplier returns +1 for long, -1 for short and 0 for neutral.
func (d Direction) Multiplier() float64 {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort || d == DirectionNeutral
}

// Signal is an immutable directional call posted by an account about an asset.
// IDs are assigned monotonically by ingestion.
type Signal struct {
	ID         int64     `json:"id"`
	AccountID  string    `json:"account_id"`
	Asset      string    `json:"asset"`
	Timestamp  time.Time `json:"timestamp"`
	Direction  Direction `json:"direction"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Validate checks the fields ingestion must always provide.
func (s Signal) Validate() error {
	switch {
	case s.ID <= 0:
		return fmt.Errorf("%w: signal id must be positive", ErrInvalidInput)
	case s.AccountID == "":
		return fmt.Errorf("%w: signal %d has no account", ErrInvalidInput, s.ID)
	case s.Asset == "":
		return fmt.Errorf("%w: signal %d has no asset", ErrInvalidInput, s.ID)
	case s.Timestamp.IsZero():
		return fmt.Errorf("%w: signal %d has no timestamp", ErrInvalidInput, s.ID)
	case !s.Direction.Valid():
		return fmt.Errorf("%w: signal %d has direction %q", ErrInvalidInput, s.ID, s.Direction)
	}
	return nil
}

// PricePoint is one observed price of an asset.
type PricePoint struct {
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Validate rejects points that can never serve a lookup.
func (p PricePoint) Validate() error {
	switch {
	case p.Asset == "":
		return fmt.Errorf("%w: price point has no asset", ErrInvalidInput)
	case p.Timestamp.IsZero():
		return fmt.Errorf("%w: price point for %s has no timestamp", ErrInvalidInput, p.Asset)
	case p.Price <= 0:
		return fmt.Errorf("%w: price point for %s has non-positive price", ErrInvalidInput, p.Asset)
	}
	return nil
}
