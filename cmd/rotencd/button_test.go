package main

import (
	"testing"
	"time"
)

// Debouncer tests use explicit timestamps rather than sleeping: the debouncer
// only ever compares the times it is handed.

func TestDebouncerRejectsRapidFlips(t *testing.T) {
	base := time.Now()
	d := newDebouncer(20*time.Millisecond, false, base)

	// Contact bounce: flips every millisecond, well inside the delay.
	d.observe(true, base.Add(1*time.Millisecond))
	d.observe(false, base.Add(2*time.Millisecond))
	d.observe(true, base.Add(3*time.Millisecond))
	d.observe(false, base.Add(4*time.Millisecond))
	d.observe(true, base.Add(5*time.Millisecond))

	if got := d.level(base.Add(10 * time.Millisecond)); got != false {
		t.Errorf("level = %v during bounce, want false (no accepted change)", got)
	}
}

func TestDebouncerAcceptsStableLevel(t *testing.T) {
	base := time.Now()
	d := newDebouncer(20*time.Millisecond, false, base)

	d.observe(true, base.Add(1*time.Millisecond))

	// Not yet stable for the full delay.
	if got := d.level(base.Add(15 * time.Millisecond)); got != false {
		t.Errorf("level = %v before delay elapsed, want false", got)
	}

	// Held stable for >= delay: exactly one accepted change.
	if got := d.level(base.Add(25 * time.Millisecond)); got != true {
		t.Errorf("level = %v after stable delay, want true", got)
	}
	if got := d.level(base.Add(60 * time.Millisecond)); got != true {
		t.Errorf("level = %v on a later read, want the change to persist", got)
	}
}

func TestDebouncerBounceRestartsClock(t *testing.T) {
	base := time.Now()
	d := newDebouncer(20*time.Millisecond, false, base)

	d.observe(true, base)
	d.observe(false, base.Add(5*time.Millisecond))
	d.observe(true, base.Add(10*time.Millisecond))

	// 15ms after the last flip: the earlier partial press must not count.
	if got := d.level(base.Add(25 * time.Millisecond)); got != false {
		t.Errorf("level = %v with only 15ms of stability, want false", got)
	}
	if got := d.level(base.Add(30 * time.Millisecond)); got != true {
		t.Errorf("level = %v after 20ms of stability, want true", got)
	}
}

func TestDebouncerZeroDelay(t *testing.T) {
	base := time.Now()
	d := newDebouncer(0, false, base)

	d.observe(true, base.Add(time.Millisecond))
	if got := d.level(base.Add(time.Millisecond)); got != true {
		t.Errorf("level = %v with zero delay, want immediate accept", got)
	}
}

func TestDebouncerReleaseDebouncesToo(t *testing.T) {
	base := time.Now()
	d := newDebouncer(20*time.Millisecond, true, base)

	d.observe(false, base.Add(1*time.Millisecond))
	d.observe(true, base.Add(2*time.Millisecond)) // release bounce
	d.observe(false, base.Add(3*time.Millisecond))

	if got := d.level(base.Add(10 * time.Millisecond)); got != true {
		t.Errorf("level = %v during release bounce, want true", got)
	}
	if got := d.level(base.Add(30 * time.Millisecond)); got != false {
		t.Errorf("level = %v after stable release, want false", got)
	}
}
