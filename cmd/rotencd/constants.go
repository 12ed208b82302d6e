package main

// Default pin assignments (BCM numbering, the usual wiring for a KY-040 style
// encoder board on a Raspberry Pi header).
const (
	defaultPinA      = 23
	defaultPinB      = 24
	defaultButtonPin = PinNone
)

// Decoder and debounce defaults.
const (
	defaultDecodeMode       = ModeFullStep
	defaultSensitivityMS    = 1  // single-edge re-trigger filter
	defaultButtonDebounceMS = 20 // mechanical switch settle time
)

// Daemon loop defaults.
const (
	defaultUpdateHz      = 100 // encoder poll frequency (Hz)
	defaultIPCSocketPath = "/tmp/rotencd.sock"
)

// CamillaDSP sink defaults.
const (
	defaultWsURL         = "ws://127.0.0.1:1234"
	defaultReadTimeoutMS = 500
	defaultMinDB         = -65.0
	defaultMaxDB         = 0.0

	defaultDbPerStep          = 0.5 // dB change per detent
	defaultVelocityWindowMS   = 200 // window for fast-spin detection
	defaultVelocityThreshold  = 3   // detents in window to trigger fast mode
	defaultVelocityMultiplier = 2.0 // step multiplier when spinning fast
)
