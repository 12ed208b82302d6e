package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Event Types
// ============================================================================
// Events are what the daemon loop derives from the encoder session and fans
// out to consumers (IPC subscribers, volume sink). They are intent, not raw
// edges: bounce never makes it this far.
// ============================================================================

// Event is a marker interface for everything the daemon publishes.
type Event interface {
	eventMarker()
}

// RotaryTurn is one or more decoded detents. Steps is signed: positive for
// clockwise, negative for counter-clockwise.
type RotaryTurn struct {
	Steps int `json:"steps"`
}

func (RotaryTurn) eventMarker() {}

// ButtonChange is a debounced button transition.
type ButtonChange struct {
	Pressed bool `json:"pressed"`
}

func (ButtonChange) eventMarker() {}

// EventEnvelope is the wire form of an event on the IPC socket:
// line-delimited JSON with a type tag.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// marshalEvent wraps an event in its envelope.
func marshalEvent(ev Event) ([]byte, error) {
	var typ string
	switch ev.(type) {
	case RotaryTurn:
		typ = "rotary_turn"
	case ButtonChange:
		typ = "button_change"
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return json.Marshal(EventEnvelope{Type: typ, Data: data})
}
