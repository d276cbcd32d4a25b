package clock

import "time"

// Clock abstracts time to keep usecases deterministic in tests.
type Clock interface {
	Now() time.Time
}

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports false when the callback already ran
	// or was stopped before.
	Stop() bool
}

// Scheduler runs callbacks after a delay. Retry timers go through it so they
// can be cancelled per task and replaced in tests.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
