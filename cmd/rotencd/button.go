package main

import (
	"sync"
	"time"
)

// debouncer turns the bouncy raw level of a push button into a stable one.
// A raw reading becomes the debounced level only once it has held steady for
// the configured delay; every flip inside the delay window restarts the clock.
//
// Writes come from the edge dispatch goroutine (observe), reads from the
// consumer (level), hence the mutex. With delay 0 every observation is
// accepted immediately.
type debouncer struct {
	mu    sync.Mutex
	delay time.Duration

	raw    bool      // last raw reading
	rawAt  time.Time // when the raw reading last changed
	stable bool      // debounced output
}

func newDebouncer(delay time.Duration, initial bool, now time.Time) *debouncer {
	return &debouncer{
		delay:  delay,
		raw:    initial,
		rawAt:  now,
		stable: initial,
	}
}

// observe records one raw reading. Called on every edge of the button pin,
// including bounce edges.
func (d *debouncer) observe(raw bool, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if raw != d.raw {
		d.raw = raw
		d.rawAt = now
		if d.delay <= 0 {
			d.stable = raw
		}
		return
	}
	// Same level re-observed: it may have aged past the delay by now.
	d.settleLocked(now)
}

// level reports the debounced level as of now, promoting a pending raw
// reading that has been stable long enough.
func (d *debouncer) level(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked(now)
	return d.stable
}

func (d *debouncer) settleLocked(now time.Time) {
	if d.raw != d.stable && now.Sub(d.rawAt) >= d.delay {
		d.stable = d.raw
	}
}
