package domain

import "time"

const (
	DefaultBaseDelay       = time.Second
	DefaultCapDelay        = 30 * time.Second
	DefaultTransferTimeout = 5 * time.Minute
	DefaultGateRetry       = 5 * time.Second
)

// Policy bounds retries of one task. MaxAttempts counts every transfer
// attempt, the first one included.
type Policy struct {
	Name            string
	MaxAttempts     int
	BaseDelay       time.Duration
	CapDelay        time.Duration
	TransferTimeout time.Duration
	GateRetry       time.Duration
}

// BackgroundPolicy suits resumed and whole-session uploads.
func BackgroundPolicy() Policy {
	return Policy{
		Name:            "background",
		MaxAttempts:     5,
		BaseDelay:       DefaultBaseDelay,
		CapDelay:        DefaultCapDelay,
		TransferTimeout: DefaultTransferTimeout,
		GateRetry:       DefaultGateRetry,
	}
}

// InlinePolicy suits time-critical per-chunk uploads.
func InlinePolicy() Policy {
	p := BackgroundPolicy()
	p.Name = "inline"
	p.MaxAttempts = 3
	return p
}

func PolicyByName(name string) (Policy, bool) {
	switch name {
	case "background", "":
		return BackgroundPolicy(), true
	case "inline":
		return InlinePolicy(), true
	default:
		return Policy{}, false
	}
}

// Delay is min(BaseDelay * 2^attempt, CapDelay) for a zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= p.CapDelay/2 {
			return p.CapDelay
		}
		d *= 2
	}
	if d > p.CapDelay {
		return p.CapDelay
	}
	return d
}
