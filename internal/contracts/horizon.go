package contracts

import (
	"fmt"
	"time"
)

// Horizon is a named forward offset used to measure the outcome of a signal.
type Horizon struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// DefaultHorizons returns the 1h, 24h and 7d horizons.
func DefaultHorizons() []Horizon {
	return []Horizon{
		{Name: "1h", Duration: time.Hour},
		{Name: "24h", Duration: 24 * time.Hour},
		{Name: "7d", Duration: 7 * 24 * time.Hour},
	}
}

// HorizonSet is the fixed, ordered set of horizons configured at startup.
// It is read-only after construction.
type HorizonSet struct {
	ordered []Horizon
	byName  map[string]Horizon
}

// NewHorizonSet builds a set, rejecting empty names, duplicates and non-positive durations.
func NewHorizonSet(horizons ...Horizon) (*HorizonSet, error) {
	if len(horizons) == 0 {
		return nil, fmt.Errorf("%w: no horizons configured", ErrInvalidHorizon)
	}

	set := &HorizonSet{byName: make(map[string]Horizon, len(horizons))}
	for _, h := range horizons {
		if h.Name == "" || h.Duration <= 0 {
			return nil, fmt.Errorf("%w: %q=%s", ErrInvalidHorizon, h.Name, h.Duration)
		}
		if _, dup := set.byName[h.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate %q", ErrInvalidHorizon, h.Name)
		}
		set.byName[h.Name] = h
		set.ordered = append(set.ordered, h)
	}

	return set, nil
}

// Lookup resolves a horizon by name.
func (s *HorizonSet) Lookup(name string) (Horizon, error) {
	h, ok := s.byName[name]
	if !ok {
		return Horizon{}, fmt.Errorf("%w: %q", ErrInvalidHorizon, name)
	}
	return h, nil
}

// All returns the horizons in configuration order.
func (s *HorizonSet) All() []Horizon {
	out := make([]Horizon, len(s.ordered))
	copy(out, s.ordered)
	return out
}
