// Package scan implements the deduplication guard and the scan event store
package scan

import (
	"sync"
	"time"
)

// DefaultDedupWindow is the cooldown during which an identical decode is suppressed
const DefaultDedupWindow = 2 * time.Second

// Deduplicator suppresses repeats of the last accepted code within a cooldown window.
// A decode is accepted when its code differs from the last accepted code or when at
// least the window has elapsed since the last acceptance; the boundary is inclusive.
type Deduplicator struct {
	mu             sync.Mutex
	window         time.Duration
	lastCode       string
	lastAcceptedAt time.Time
}

// NewDeduplicator creates a deduplicator; a non-positive window uses DefaultDedupWindow
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{window: window}
}

// Accept decides whether code observed at observedAt is a new logical scan and,
// if so, records it as the last accepted decode.
func (d *Deduplicator) Accept(code string, observedAt time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastCode != "" && code == d.lastCode && observedAt.Sub(d.lastAcceptedAt) < d.window {
		return false
	}

	d.lastCode = code
	d.lastAcceptedAt = observedAt
	return true
}

// Reset forgets the last accepted decode
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastCode = ""
	d.lastAcceptedAt = time.Time{}
}

// Window returns the configured cooldown
func (d *Deduplicator) Window() time.Duration {
	return d.window
}
