package leaderboard

import (
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/observability"
)

// KeyHealth describes one cached key.
type KeyHealth struct {
	Key        string  `json:"key"`
	State      State   `json:"state"`
	Generation uint64  `json:"generation"`
	AgeSeconds float64 `json:"age_seconds"`
	LastError  string  `json:"last_error,omitempty"`
}

// Health summarises cache freshness.
type Health struct {
	FreshKeys            int         `json:"fresh_keys"`
	TotalKeys            int         `json:"total_keys"`
	StalestKeyAgeSeconds float64     `json:"stalest_key_age_seconds"`
	Keys                 []KeyHealth `json:"keys"`
}

// Health reports per-key state. A key counts as fresh when its last refresh
// succeeded and its snapshot is within TTL.
func (c *Cache) Health() Health {
	now := c.now()
	var h Health

	for _, key := range c.Keys() {
		c.mu.Lock()
		e := c.entries[key]
		state, lastErr := e.state, e.lastErr
		c.mu.Unlock()

		kh := KeyHealth{Key: key.String(), State: state}
		if lastErr != nil {
			kh.LastError = lastErr.Error()
		}

		h.TotalKeys++
		if snap := e.snapshot(); snap != nil {
			age := snap.Age(now)
			kh.Generation = snap.Generation
			kh.AgeSeconds = age.Seconds()
			if kh.AgeSeconds > h.StalestKeyAgeSeconds {
				h.StalestKeyAgeSeconds = kh.AgeSeconds
			}
			if state == StateFresh && age <= c.cfg.TTL {
				h.FreshKeys++
			}
		}
		h.Keys = append(h.Keys, kh)
	}

	observability.UpdateFreshKeys(h.FreshKeys)
	return h
}
