package main

import "time"

// ============================================================================
// Sample Source abstraction
// ============================================================================
// The decode engine only needs two things from the outside world: the current
// level of a pin, and a callback when a pin sees an edge. Modelling that as a
// small interface keeps the decoder testable without hardware: tests feed it
// synthetic (pin, level, timestamp) events, production wires it to sysfs GPIO
// (see gpio.go / gpio_watch.go).
// ============================================================================

// EdgeKind selects which transitions of a pin fire the handler.
type EdgeKind int

const (
	EdgeNone EdgeKind = iota - 1
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return "none"
}

// EdgeHandler is invoked for each detected edge with the pin's level as read
// after the edge and the time the edge was observed.
//
// Handlers for all pins of one source are invoked from a single dispatch
// goroutine, one at a time. They must not block.
type EdgeHandler func(pin int, level bool, when time.Time)

// Registration is a live edge subscription. Cancel removes the handler and
// does not return while an invocation is still in flight, so after Cancel
// returns the handler's state may be torn down safely. Cancel is idempotent.
type Registration interface {
	Cancel()
}

// EdgeSource delivers level reads and edge notifications for digital inputs.
type EdgeSource interface {
	// ReadLevel reports the current level of a pin. Sources must coerce
	// unreadable or malformed values to the nearest valid boolean rather
	// than fail: level reads happen inside edge handlers, which have no
	// error path by design.
	ReadLevel(pin int) bool

	// OnEdge installs a handler for edges of the given pin. It fails if the
	// pin cannot be watched (busy, not exported, permissions).
	OnEdge(pin int, kind EdgeKind, fn EdgeHandler) (Registration, error)
}
