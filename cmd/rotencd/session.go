package main

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PinNone marks an unassigned pin (no button attached).
const PinNone = -1

var (
	// ErrBadConfig wraps every configuration problem that is fatal to
	// session creation: colliding pins, unknown decode mode.
	ErrBadConfig = errors.New("invalid encoder configuration")

	// ErrRegistration wraps failures to install an edge handler with the
	// sample source (pin busy, not exported, permissions).
	ErrRegistration = errors.New("edge handler registration failed")
)

// EncoderOptions is the immutable configuration of one encoder session.
type EncoderOptions struct {
	PinA int
	PinB int
	Mode DecodeMode

	// Sensitivity is the minimum spacing between accepted A edges in
	// single-edge mode. The other modes get their noise rejection from the
	// decode tables and ignore it.
	Sensitivity time.Duration

	// ButtonPin is the push button input, or PinNone.
	ButtonPin      int
	ButtonDebounce time.Duration
}

// Encoder owns one decoder instance, the debounced button state and the
// shared direction result. The edge dispatch goroutine is the only writer of
// decoder and direction state; consumers read through ReadDirection and
// ReadButton.
type Encoder struct {
	opts EncoderOptions
	src  EdgeSource
	dec  decoder

	// dir is the shared result. The handler stores the last determined
	// direction, ReadDirection swaps it out atomically so every detent is
	// delivered at most once.
	dir atomic.Int32

	btn *debouncer // nil when no button is attached

	lastA time.Time // single-edge sensitivity gate, handler-goroutine only

	mu   sync.Mutex
	regs []Registration
}

// NewEncoder validates the options, installs the edge handlers appropriate
// for the decode mode (rising edge of A only for single-edge, both edges of
// A and B otherwise, plus the button pin if present) and returns the session.
func NewEncoder(opts EncoderOptions, src EdgeSource) (*Encoder, error) {
	if opts.PinA < 0 || opts.PinB < 0 {
		return nil, fmt.Errorf("%w: encoder pins must be assigned (a=%d b=%d)", ErrBadConfig, opts.PinA, opts.PinB)
	}
	if opts.PinA == opts.PinB {
		return nil, fmt.Errorf("%w: pin A and pin B are both %d", ErrBadConfig, opts.PinA)
	}
	if opts.ButtonPin != PinNone && (opts.ButtonPin == opts.PinA || opts.ButtonPin == opts.PinB) {
		return nil, fmt.Errorf("%w: button pin %d collides with an encoder pin", ErrBadConfig, opts.ButtonPin)
	}
	dec, err := newDecoder(opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	e := &Encoder{
		opts: opts,
		src:  src,
		dec:  dec,
	}

	type sub struct {
		pin  int
		kind EdgeKind
		fn   EdgeHandler
	}
	var subs []sub
	if opts.Mode == ModeSingleEdge {
		subs = append(subs, sub{opts.PinA, EdgeRising, e.handleEdge})
	} else {
		subs = append(subs,
			sub{opts.PinA, EdgeBoth, e.handleEdge},
			sub{opts.PinB, EdgeBoth, e.handleEdge})
	}
	if opts.ButtonPin != PinNone {
		e.btn = newDebouncer(opts.ButtonDebounce, src.ReadLevel(opts.ButtonPin), time.Now())
		subs = append(subs, sub{opts.ButtonPin, EdgeBoth, e.handleButton})
	}

	for _, s := range subs {
		reg, err := src.OnEdge(s.pin, s.kind, s.fn)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("%w: pin %d (%s): %v", ErrRegistration, s.pin, s.kind, err)
		}
		e.mu.Lock()
		e.regs = append(e.regs, reg)
		e.mu.Unlock()
	}

	return e, nil
}

// handleEdge services one encoder edge. Runs on the dispatch goroutine.
func (e *Encoder) handleEdge(pin int, level bool, when time.Time) {
	if e.opts.Mode == ModeSingleEdge && e.opts.Sensitivity > 0 {
		if when.Sub(e.lastA) < e.opts.Sensitivity {
			return // re-trigger inside the sensitivity window: bounce
		}
		e.lastA = when
	}

	// The fired pin's level came with the notification; the other pin is
	// sampled now.
	a, b := level, e.src.ReadLevel(e.opts.PinB)
	if pin == e.opts.PinB {
		a, b = e.src.ReadLevel(e.opts.PinA), level
	}

	if d := e.dec.decode(a, b); d != 0 {
		e.dir.Store(int32(d))
	}
}

// handleButton services one button edge. Runs on the dispatch goroutine.
func (e *Encoder) handleButton(_ int, level bool, when time.Time) {
	e.btn.observe(level, when)
}

// ReadDirection returns the last determined direction (-1, 0 or +1) and
// clears it. The swap makes read-and-clear a single indivisible operation, so
// a detent is never reported twice and never lost to a racing handler write.
func (e *Encoder) ReadDirection() int {
	return int(e.dir.Swap(0))
}

// ReadButton returns the debounced button level. Non-resetting. Reports false
// when no button is attached.
func (e *Encoder) ReadButton() bool {
	if e.btn == nil {
		return false
	}
	return e.btn.level(time.Now())
}

// Close cancels all edge registrations. Registration.Cancel does not return
// while a handler invocation is in flight, so once Close returns nothing
// touches the decoder state anymore. Idempotent.
func (e *Encoder) Close() {
	e.mu.Lock()
	regs := e.regs
	e.regs = nil
	e.mu.Unlock()

	for _, r := range regs {
		r.Cancel()
	}
}
