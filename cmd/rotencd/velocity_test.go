package main

import (
	"testing"
	"time"
)

func TestDetentTrackerSameDirection(t *testing.T) {
	tr := newDetentTracker()

	window := 200 * time.Millisecond
	for i := 1; i <= 3; i++ {
		if count := tr.record(1, window); count != i {
			t.Errorf("detent %d: count = %d, want %d", i, count, i)
		}
	}
}

func TestDetentTrackerDirectionChange(t *testing.T) {
	tr := newDetentTracker()
	window := 200 * time.Millisecond

	tr.record(1, window)
	tr.record(1, window)

	// A reversal only counts detents going its own way.
	if count := tr.record(-1, window); count != 1 {
		t.Errorf("count = %d after reversal, want 1", count)
	}
	if count := tr.record(-1, window); count != 2 {
		t.Errorf("count = %d on second reversed detent, want 2", count)
	}

	// The earlier clockwise detents are still inside the window.
	if count := tr.record(1, window); count != 3 {
		t.Errorf("count = %d back in the original direction, want 3", count)
	}
}

func TestDetentTrackerWindowExpiry(t *testing.T) {
	tr := newDetentTracker()
	window := 50 * time.Millisecond

	tr.record(1, window)
	tr.record(1, window)

	time.Sleep(80 * time.Millisecond)

	if count := tr.record(1, window); count != 1 {
		t.Errorf("count = %d after window expiry, want 1", count)
	}
}

func TestDetentTrackerZeroWindow(t *testing.T) {
	tr := newDetentTracker()

	if count := tr.record(1, 0); count != 1 {
		t.Errorf("count = %d with zero window, want 1", count)
	}
	if count := tr.record(1, 0); count != 1 {
		t.Errorf("count = %d with zero window (previous expired), want 1", count)
	}
}

func TestDetentTrackerConcurrent(t *testing.T) {
	tr := newDetentTracker()
	done := make(chan bool)

	for i := 0; i < 8; i++ {
		go func(dir int) {
			for j := 0; j < 100; j++ {
				tr.record(dir, time.Second)
			}
			done <- true
		}(i%2*2 - 1)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if count := tr.record(1, time.Second); count < 1 {
		t.Errorf("count = %d after concurrent recording, want >= 1", count)
	}
}
