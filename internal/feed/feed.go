// Package feed fans out committed state transitions to live subscribers.
// The HTTP layer turns these updates into server-sent events.
package feed

import (
	"sync"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/state"
)

// Update is the live-feed payload emitted on every committed transition and
// on each heartbeat.
type Update struct {
	NAV          int64      `json:"nav"`
	LiquidityPct int        `json:"liquidity_pct"`
	Mode         state.Mode `json:"mode"`
	Timestamp    time.Time  `json:"timestamp"`
}

// FromState builds an Update from a committed state.
func FromState(s state.SystemState) Update {
	return Update{
		NAV:          s.NAV,
		LiquidityPct: s.LiquidityPct,
		Mode:         s.Mode,
		Timestamp:    s.Timestamp,
	}
}

// Broadcaster delivers updates to all current subscribers. Slow subscribers
// drop updates rather than block publishers; the heartbeat re-delivers the
// current state every second anyway.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Update]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Update]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the subscriber disconnects.
func (b *Broadcaster) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers u to every subscriber without blocking.
func (b *Broadcaster) Publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- u:
		default: // subscriber is behind; drop
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
