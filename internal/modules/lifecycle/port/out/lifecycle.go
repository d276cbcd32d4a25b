package out

import "context"

type Flusher interface {
	Flush(ctx context.Context) error
	Recording(ctx context.Context) bool
}
