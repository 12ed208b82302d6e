package main

import "fmt"

// ============================================================================
// Quadrature Decode Engine
// ============================================================================
// Four interchangeable algorithms that turn raw A/B contact readings into a
// rotation direction (-1, 0, +1). All of them run inside the edge dispatch
// goroutine: no allocation, no blocking, bounded work per call.
//
// The transition tables come from Michael Kellet's state table method
// (www.mkesc.co.uk/ise.pdf) and Ben Buxton's transition table method
// (buxtronix.net). The table values are load-bearing: they encode which
// transitions are valid and which are contact bounce, so they must not be
// "cleaned up" or re-derived.
// ============================================================================

// DecodeMode selects which decoding algorithm drives the encoder.
type DecodeMode string

const (
	// ModeSingleEdge samples B on the rising edge of A. Coarsest resolution
	// (one decision per detent group), cheapest to service.
	ModeSingleEdge DecodeMode = "single-edge"

	// ModeLookupTable indexes a 16-entry table with the abAB nibble on every
	// edge of A or B. Finer resolution, but every bounce produces a lookup.
	ModeLookupTable DecodeMode = "lookup-table"

	// ModeHalfStep runs the 6-state transition machine, emitting a direction
	// at each half and full mechanical step.
	ModeHalfStep DecodeMode = "half-step"

	// ModeFullStep runs the 7-state transition machine, emitting a direction
	// only at full detents.
	ModeFullStep DecodeMode = "full-step"
)

// parseDecodeMode validates a user-supplied mode string.
func parseDecodeMode(s string) (DecodeMode, error) {
	switch DecodeMode(s) {
	case ModeSingleEdge, ModeLookupTable, ModeHalfStep, ModeFullStep:
		return DecodeMode(s), nil
	}
	return "", fmt.Errorf("unknown decode mode: %q (must be single-edge, lookup-table, half-step or full-step)", s)
}

// Single-edge sign convention: on a rising edge of A, the level of B alone
// determines the direction. With the conventional wiring (B leads A for
// counter-clockwise rotation) B high at A's rising edge means the shaft moved
// counter-clockwise. If an encoder is wired the other way around, swap the
// pin assignments in the config rather than touching these.
const (
	dirOnBHigh = -1
	dirOnBLow  = +1
)

// quadTable maps the abAB nibble (prevA<<3 | prevB<<2 | curA<<1 | curB) to a
// direction. Zero entries are transitions that carry no direction information
// (no movement, or an ambiguous two-bit jump).
var quadTable = [16]int{0, -1, +1, 0, +1, 0, 0, -1, -1, 0, 0, +1, 0, +1, -1, 0}

// Transition table cells hold the next state in the low nibble. A high nibble
// of 0x1 or 0x2 marks a completed clockwise / counter-clockwise step; the
// decoder strips it before the next lookup. Invalid transitions route back to
// a stable row instead of emitting, which is what makes these modes immune to
// contact bounce.
const (
	stepCW  = 0x10
	stepCCW = 0x20
)

// halfStepTable: rows are states (0 = start, 3 = halfway), columns are indexed
// by the current two-bit AB reading.
var halfStepTable = [6][4]uint8{
	{0x03, 0x02, 0x01, 0x00},
	{0x23, 0x00, 0x01, 0x00},
	{0x13, 0x02, 0x00, 0x00},
	{0x03, 0x05, 0x04, 0x00},
	{0x03, 0x03, 0x04, 0x10},
	{0x03, 0x05, 0x03, 0x20},
}

// fullStepTable: same mechanics as halfStepTable, but a direction is only
// emitted once per full detent (on the transition back to AB=11).
var fullStepTable = [7][4]uint8{
	{0x00, 0x02, 0x04, 0x00},
	{0x03, 0x00, 0x01, 0x10},
	{0x03, 0x02, 0x00, 0x00},
	{0x03, 0x02, 0x01, 0x00},
	{0x06, 0x00, 0x04, 0x00},
	{0x06, 0x05, 0x00, 0x20},
	{0x06, 0x05, 0x04, 0x00},
}

// decoder consumes one edge notification plus the current pin levels and
// reports the direction determined from it. Implementations keep whatever
// transition state they need between calls; they are not safe for concurrent
// use and are only ever called from the edge dispatch goroutine.
type decoder interface {
	decode(a, b bool) int
}

// newDecoder returns the decoder for a mode. The mode string is assumed to
// have passed parseDecodeMode already; an unknown mode is still rejected so a
// session can never run with a nil decoder.
func newDecoder(mode DecodeMode) (decoder, error) {
	switch mode {
	case ModeSingleEdge:
		return &singleEdgeDecoder{}, nil
	case ModeLookupTable:
		return &lookupDecoder{}, nil
	case ModeHalfStep:
		return &tableDecoder{table: halfStepTable[:]}, nil
	case ModeFullStep:
		return &tableDecoder{table: fullStepTable[:]}, nil
	}
	return nil, fmt.Errorf("unknown decode mode: %q", mode)
}

// singleEdgeDecoder is stateless: it is only ever triggered on the rising
// edge of A, so the level of B is the whole story.
type singleEdgeDecoder struct{}

func (singleEdgeDecoder) decode(_, b bool) int {
	if b {
		return dirOnBHigh
	}
	return dirOnBLow
}

// lookupDecoder keeps the previous A/B pair and indexes quadTable with the
// combined abAB nibble on every edge. A zero lookup means "no determination"
// and is reported as 0; the caller leaves the shared result untouched in that
// case so a valid reading is never clobbered by an ambiguous one.
type lookupDecoder struct {
	prev uint8 // previous two-bit AB reading
}

func (d *lookupDecoder) decode(a, b bool) int {
	cur := abBits(a, b)
	idx := d.prev<<2 | cur
	d.prev = cur
	return quadTable[idx]
}

// tableDecoder runs either transition table. The current row lives in the low
// nibble of state; the high nibble of a freshly looked-up cell carries the
// completed-step marker.
type tableDecoder struct {
	table [][4]uint8
	state uint8
}

func (d *tableDecoder) decode(a, b bool) int {
	next := d.table[d.state&0x0f][abBits(a, b)]
	d.state = next & 0x0f
	switch next & 0xf0 {
	case stepCW:
		return +1
	case stepCCW:
		return -1
	}
	return 0
}

// abBits packs two pin levels into the two-bit AB reading, A in the high bit.
// This matches the abAB nibble layout used by quadTable.
func abBits(a, b bool) uint8 {
	var v uint8
	if a {
		v |= 0x2
	}
	if b {
		v |= 0x1
	}
	return v
}
