package main

import (
	"errors"
	"testing"
	"time"
)

// fakeEdgeSource is an in-memory sample source: tests set pin levels and fire
// synthetic edges, which invoke handlers synchronously on the test goroutine
// (mirroring production, where one dispatch goroutine does all invocations).
type fakeEdgeSource struct {
	levels  map[int]bool
	watches map[int]*fakeWatch
	refuse  map[int]bool // pins whose OnEdge fails
}

type fakeWatch struct {
	src       *fakeEdgeSource
	pin       int
	kind      EdgeKind
	fn        EdgeHandler
	cancelled bool
}

func newFakeEdgeSource() *fakeEdgeSource {
	return &fakeEdgeSource{
		levels:  make(map[int]bool),
		watches: make(map[int]*fakeWatch),
		refuse:  make(map[int]bool),
	}
}

func (s *fakeEdgeSource) ReadLevel(pin int) bool {
	return s.levels[pin]
}

func (s *fakeEdgeSource) OnEdge(pin int, kind EdgeKind, fn EdgeHandler) (Registration, error) {
	if s.refuse[pin] {
		return nil, errors.New("pin busy")
	}
	w := &fakeWatch{src: s, pin: pin, kind: kind, fn: fn}
	s.watches[pin] = w
	return w, nil
}

func (w *fakeWatch) Cancel() {
	w.cancelled = true
	delete(w.src.watches, w.pin)
}

// fire sets a pin's level and delivers the edge to a matching live handler.
func (s *fakeEdgeSource) fire(pin int, level bool, at time.Time) {
	s.levels[pin] = level
	w := s.watches[pin]
	if w == nil || w.cancelled {
		return
	}
	switch w.kind {
	case EdgeRising:
		if !level {
			return
		}
	case EdgeFalling:
		if level {
			return
		}
	}
	w.fn(pin, level, at)
}

// turnFullStep walks the fake pins through one clockwise (+1) or
// counter-clockwise (-1) detent for the full-step decoder, firing an edge per
// changed pin. Pins start and end at the detent position (both high).
func turnFullStep(s *fakeEdgeSource, pinA, pinB, dir int, at time.Time) {
	type step struct{ a, b bool }
	cw := []step{{false, true}, {false, false}, {true, false}, {true, true}}
	ccw := []step{{true, false}, {false, false}, {false, true}, {true, true}}

	seq := cw
	if dir < 0 {
		seq = ccw
	}
	prevA, prevB := s.levels[pinA], s.levels[pinB]
	for _, st := range seq {
		if st.a != prevA {
			s.fire(pinA, st.a, at)
		}
		if st.b != prevB {
			s.fire(pinB, st.b, at)
		}
		prevA, prevB = st.a, st.b
	}
}

func fullStepOptions() EncoderOptions {
	return EncoderOptions{
		PinA:      23,
		PinB:      24,
		Mode:      ModeFullStep,
		ButtonPin: PinNone,
	}
}

func TestNewEncoderPinCollision(t *testing.T) {
	src := newFakeEdgeSource()

	opts := fullStepOptions()
	opts.PinB = opts.PinA
	if _, err := NewEncoder(opts, src); !errors.Is(err, ErrBadConfig) {
		t.Errorf("identical encoder pins: err = %v, want ErrBadConfig", err)
	}

	opts = fullStepOptions()
	opts.ButtonPin = opts.PinA
	if _, err := NewEncoder(opts, src); !errors.Is(err, ErrBadConfig) {
		t.Errorf("button on encoder pin: err = %v, want ErrBadConfig", err)
	}
}

func TestNewEncoderUnknownMode(t *testing.T) {
	opts := fullStepOptions()
	opts.Mode = "fibonacci"
	if _, err := NewEncoder(opts, newFakeEdgeSource()); !errors.Is(err, ErrBadConfig) {
		t.Errorf("unknown mode: err = %v, want ErrBadConfig", err)
	}
}

func TestNewEncoderRegistrationRefused(t *testing.T) {
	src := newFakeEdgeSource()
	src.refuse[24] = true

	_, err := NewEncoder(fullStepOptions(), src)
	if !errors.Is(err, ErrRegistration) {
		t.Fatalf("refused pin: err = %v, want ErrRegistration", err)
	}
	// The handler that did install must have been rolled back.
	if len(src.watches) != 0 {
		t.Errorf("%d handlers left installed after failed setup, want 0", len(src.watches))
	}
}

func TestRegistrationsPerMode(t *testing.T) {
	src := newFakeEdgeSource()
	opts := fullStepOptions()
	opts.Mode = ModeSingleEdge
	enc, err := NewEncoder(opts, src)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if w := src.watches[opts.PinA]; w == nil || w.kind != EdgeRising {
		t.Errorf("single-edge mode: pin A watch = %+v, want rising-edge only", w)
	}
	if src.watches[opts.PinB] != nil {
		t.Error("single-edge mode must not watch pin B")
	}

	src = newFakeEdgeSource()
	enc2, err := NewEncoder(fullStepOptions(), src)
	if err != nil {
		t.Fatal(err)
	}
	defer enc2.Close()

	for _, pin := range []int{23, 24} {
		if w := src.watches[pin]; w == nil || w.kind != EdgeBoth {
			t.Errorf("full-step mode: pin %d watch = %+v, want both edges", pin, w)
		}
	}
}

func TestReadDirectionAtMostOnce(t *testing.T) {
	src := newFakeEdgeSource()
	src.levels[23], src.levels[24] = true, true // rest at the detent

	enc, err := NewEncoder(fullStepOptions(), src)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	turnFullStep(src, 23, 24, +1, time.Now())

	if got := enc.ReadDirection(); got != 1 {
		t.Fatalf("ReadDirection = %d after clockwise detent, want +1", got)
	}
	if got := enc.ReadDirection(); got != 0 {
		t.Errorf("second ReadDirection = %d with no intervening edge, want 0", got)
	}

	turnFullStep(src, 23, 24, -1, time.Now())
	if got := enc.ReadDirection(); got != -1 {
		t.Errorf("ReadDirection = %d after counter-clockwise detent, want -1", got)
	}
}

func TestSingleEdgeDirectionFromB(t *testing.T) {
	src := newFakeEdgeSource()
	opts := fullStepOptions()
	opts.Mode = ModeSingleEdge

	enc, err := NewEncoder(opts, src)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	src.levels[24] = false
	src.fire(23, true, time.Now())
	if got := enc.ReadDirection(); got != dirOnBLow {
		t.Errorf("B low at rising A: ReadDirection = %d, want %d", got, dirOnBLow)
	}

	src.fire(23, false, time.Now()) // falling edge, not subscribed
	src.levels[24] = true
	src.fire(23, true, time.Now())
	if got := enc.ReadDirection(); got != dirOnBHigh {
		t.Errorf("B high at rising A: ReadDirection = %d, want %d", got, dirOnBHigh)
	}
}

func TestSingleEdgeSensitivityWindow(t *testing.T) {
	src := newFakeEdgeSource()
	opts := fullStepOptions()
	opts.Mode = ModeSingleEdge
	opts.Sensitivity = 5 * time.Millisecond

	enc, err := NewEncoder(opts, src)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	base := time.Now()
	src.levels[24] = false
	src.fire(23, true, base)
	if got := enc.ReadDirection(); got != dirOnBLow {
		t.Fatalf("first edge: ReadDirection = %d, want %d", got, dirOnBLow)
	}

	// Re-trigger inside the sensitivity window is bounce, not rotation.
	src.fire(23, false, base.Add(time.Millisecond))
	src.fire(23, true, base.Add(2*time.Millisecond))
	if got := enc.ReadDirection(); got != 0 {
		t.Errorf("bounced edge inside window: ReadDirection = %d, want 0", got)
	}

	src.fire(23, false, base.Add(3*time.Millisecond))
	src.fire(23, true, base.Add(10*time.Millisecond))
	if got := enc.ReadDirection(); got != dirOnBLow {
		t.Errorf("edge after window: ReadDirection = %d, want %d", got, dirOnBLow)
	}
}

func TestButtonThroughSession(t *testing.T) {
	src := newFakeEdgeSource()
	opts := fullStepOptions()
	opts.ButtonPin = 25
	opts.ButtonDebounce = 20 * time.Millisecond

	enc, err := NewEncoder(opts, src)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if enc.ReadButton() {
		t.Fatal("button reads pressed before any edge")
	}

	// Timestamps in the past let the delay elapse without sleeping.
	src.fire(25, true, time.Now().Add(-50*time.Millisecond))
	if !enc.ReadButton() {
		t.Error("button not pressed after stable press")
	}
	if !enc.ReadButton() {
		t.Error("ReadButton must not reset the debounced level")
	}
}

func TestNoButtonReadsInactive(t *testing.T) {
	src := newFakeEdgeSource()
	enc, err := NewEncoder(fullStepOptions(), src)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if enc.ReadButton() {
		t.Error("ReadButton = true with no button attached, want false")
	}
	if src.watches[PinNone] != nil {
		t.Error("a handler was installed for the no-button sentinel")
	}
}

func TestCloseCancelsAndIsIdempotent(t *testing.T) {
	src := newFakeEdgeSource()
	src.levels[23], src.levels[24] = true, true

	enc, err := NewEncoder(fullStepOptions(), src)
	if err != nil {
		t.Fatal(err)
	}

	enc.Close()
	enc.Close() // second close is a no-op

	if len(src.watches) != 0 {
		t.Fatalf("%d handlers still installed after Close, want 0", len(src.watches))
	}

	// Edges after teardown must not reach the decoder.
	turnFullStep(src, 23, 24, +1, time.Now())
	if got := enc.ReadDirection(); got != 0 {
		t.Errorf("ReadDirection = %d after Close, want 0", got)
	}
}
