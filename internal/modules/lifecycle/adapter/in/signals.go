package in

import (
	"context"
	"os"
	"time"

	lifecyclein "recvault/internal/modules/lifecycle/port/in"
	"recvault/internal/platform/logging"
)

const DefaultConfirmWindow = 3 * time.Second

type Outcome string

const (
	OutcomeUnload    Outcome = "unload"
	OutcomeForced    Outcome = "forced"
	OutcomeCancelled Outcome = "cancelled"
)

// SignalHandler turns OS signals into guard notifications. A vetoed unload
// repeated within the confirmation window forces shutdown.
type SignalHandler struct {
	guard  lifecyclein.Guard
	window time.Duration
	log    logging.Logger
	now    func() time.Time
}

func NewSignalHandler(guard lifecyclein.Guard, window time.Duration, logger logging.Logger) *SignalHandler {
	if window <= 0 {
		window = DefaultConfirmWindow
	}
	return &SignalHandler{guard: guard, window: window, log: logger, now: time.Now}
}

// Signals lists what Run understands on this platform.
func Signals() []os.Signal {
	return append(hideSignals(), unloadSignals()...)
}

// Run blocks until the host should shut down or ctx ends.
func (h *SignalHandler) Run(ctx context.Context, signals <-chan os.Signal) Outcome {
	var vetoedAt time.Time
	for {
		select {
		case <-ctx.Done():
			return OutcomeCancelled
		case sig := <-signals:
			switch {
			case contains(hideSignals(), sig):
				h.log.Debugw("hide signal", "signal", sig.String())
				_ = h.guard.Hide(ctx)
			case contains(unloadSignals(), sig):
				if h.guard.OnUnloadAttempt(ctx) {
					return OutcomeUnload
				}
				now := h.now()
				if !vetoedAt.IsZero() && now.Sub(vetoedAt) <= h.window {
					h.log.Warnw("shutdown forced while recording", "signal", sig.String())
					return OutcomeForced
				}
				vetoedAt = now
				h.log.Warnw("recording in progress, send the signal again to force shutdown", "signal", sig.String(), "window", h.window)
			}
		}
	}
}

func contains(signals []os.Signal, sig os.Signal) bool {
	for _, s := range signals {
		if s == sig {
			return true
		}
	}
	return false
}
