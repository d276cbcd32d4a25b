package out

import (
	"context"

	capturein "recvault/internal/modules/capture/port/in"
	lifecycleout "recvault/internal/modules/lifecycle/port/out"
)

type CaptureFlusher struct {
	capture capturein.Usecase
}

func NewCaptureFlusher(capture capturein.Usecase) lifecycleout.Flusher {
	return CaptureFlusher{capture: capture}
}

func (f CaptureFlusher) Flush(ctx context.Context) error {
	return f.capture.Flush(ctx)
}

func (f CaptureFlusher) Recording(ctx context.Context) bool {
	_, ok := f.capture.Active(ctx)
	return ok
}
