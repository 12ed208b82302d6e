package main

import (
	"sync"
	"time"
)

// detentTracker remembers recent encoder detents so the daemon can detect
// "fast spinning" and scale the volume step accordingly. A detent only counts
// toward the velocity threshold if it went in the same direction within the
// window; direction reversals start over naturally because opposite-direction
// entries don't match.
//
// Thread-safe: the daemon loop and tests may call record concurrently.
type detentTracker struct {
	mu     sync.Mutex
	recent []detent
}

type detent struct {
	at        time.Time
	direction int // +1 clockwise, -1 counter-clockwise
}

func newDetentTracker() *detentTracker {
	return &detentTracker{
		recent: make([]detent, 0, 16),
	}
}

// record notes a new detent and returns how many detents in the same
// direction landed within the window, the new one included. The caller
// compares that count against its velocity threshold.
func (t *detentTracker) record(direction int, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	// Drop entries that fell out of the window, reusing the backing array.
	kept := t.recent[:0]
	for _, d := range t.recent {
		if d.at.After(cutoff) {
			kept = append(kept, d)
		}
	}
	kept = append(kept, detent{at: now, direction: direction})
	t.recent = kept

	sameDir := 0
	for _, d := range kept {
		if d.direction == direction {
			sameDir++
		}
	}
	return sameDir
}
