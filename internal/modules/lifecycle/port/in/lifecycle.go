package in

import "context"

// Guard receives host lifecycle notifications.
type Guard interface {
	OnHide(callback func(ctx context.Context))
	// Hide flushes metadata unconditionally, then runs the hide callbacks.
	Hide(ctx context.Context) error
	// OnUnloadAttempt flushes and reports whether the host may go away now.
	OnUnloadAttempt(ctx context.Context) bool
}
