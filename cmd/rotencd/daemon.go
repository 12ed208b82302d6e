package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Daemon loop
// ============================================================================
// The loop is the single consumer of the encoder session: on a fixed cadence
// it performs the read-and-clear of the direction result, tracks debounced
// button transitions, and fans both out as events. All policy (velocity
// scaling, volume stepping) lives here, never in the edge handlers.
// ============================================================================

// encoderReader is the slice of the session the daemon polls. Extracted so
// tests can script readings without GPIO.
type encoderReader interface {
	ReadDirection() int
	ReadButton() bool
}

// sinkTuning controls how detents translate into volume steps.
type sinkTuning struct {
	dbPerStep          float64
	velocityWindow     time.Duration
	velocityThreshold  int     // detents within window to trigger fast mode, 0 disables
	velocityMultiplier float64 // step multiplier in fast mode
}

// runDaemon polls the encoder at updateHz and publishes what it finds.
// Returns when ctx is canceled.
func runDaemon(ctx context.Context, enc encoderReader, hub *eventHub, sink volumeSink, tuning sinkTuning, updateHz int, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second / time.Duration(updateHz))
	defer ticker.Stop()

	tracker := newDetentTracker()
	lastButton := enc.ReadButton()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case <-ticker.C:
			if d := enc.ReadDirection(); d != 0 {
				hub.broadcast(RotaryTurn{Steps: d})
				logger.Debug("detent", "direction", d)

				if sink != nil {
					step := tuning.dbPerStep
					if tuning.velocityThreshold > 0 &&
						tracker.record(d, tuning.velocityWindow) >= tuning.velocityThreshold {
						step *= tuning.velocityMultiplier
					}
					if _, err := sink.StepVolume(float64(d) * step); err != nil {
						logger.Warn("volume step failed", "error", err)
					}
				}
			}

			if b := enc.ReadButton(); b != lastButton {
				lastButton = b
				hub.broadcast(ButtonChange{Pressed: b})
				logger.Debug("button", "pressed", b)
			}
		}
	}
}
