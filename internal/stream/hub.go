// Package stream fans published leaderboard snapshots out to live subscribers.
package stream

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// Hub delivers each published snapshot to the subscribers of its key.
// A slow subscriber only ever holds the latest snapshot; older ones are dropped.
type Hub struct {
	mu   sync.RWMutex
	subs map[contracts.LeaderboardKey]map[*subscriber]struct{}
	log  zerolog.Logger
}

type subscriber struct {
	ch chan *contracts.LeaderboardSnapshot
}

// NewHub creates an empty hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[contracts.LeaderboardKey]map[*subscriber]struct{}),
		log:  log.With().Str("component", "stream.hub").Logger(),
	}
}

// Subscribe registers for snapshots of key. The returned cancel func must be
// called once; it closes the channel.
func (h *Hub) Subscribe(key contracts.LeaderboardKey) (<-chan *contracts.LeaderboardSnapshot, func()) {
	sub := &subscriber{ch: make(chan *contracts.LeaderboardSnapshot, 1)}

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().Str("key", key.String()).Msg("subscriber added")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], sub)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			close(sub.ch)
			h.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish hands snap to every subscriber of its key without blocking.
func (h *Hub) Publish(snap *contracts.LeaderboardSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[snap.Key] {
		select {
		case sub.ch <- snap:
			continue
		default:
		}

		// Replace the undelivered snapshot with the newer one
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions across all keys
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
