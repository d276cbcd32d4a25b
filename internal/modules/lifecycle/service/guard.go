package service

import (
	"context"
	"sync"

	lifecyclein "recvault/internal/modules/lifecycle/port/in"
	lifecycleout "recvault/internal/modules/lifecycle/port/out"
	"recvault/internal/platform/logging"
)

type Guard struct {
	flusher lifecycleout.Flusher
	log     logging.Logger
	mu      sync.Mutex
	hooks   []func(ctx context.Context)
}

var _ lifecyclein.Guard = (*Guard)(nil)

func NewGuard(flusher lifecycleout.Flusher, logger logging.Logger) *Guard {
	return &Guard{flusher: flusher, log: logger}
}

func (g *Guard) OnHide(callback func(ctx context.Context)) {
	if callback == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, callback)
}

func (g *Guard) Hide(ctx context.Context) error {
	err := g.flusher.Flush(ctx)
	if err != nil {
		g.log.Warnw("flush on hide failed", "error", err)
	}
	g.mu.Lock()
	hooks := append([]func(context.Context){}, g.hooks...)
	g.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx)
	}
	return err
}

// OnUnloadAttempt vetoes the unload while a session is recording. The flush
// happens either way.
func (g *Guard) OnUnloadAttempt(ctx context.Context) bool {
	if err := g.flusher.Flush(ctx); err != nil {
		g.log.Warnw("flush on unload failed", "error", err)
	}
	if g.flusher.Recording(ctx) {
		g.log.Warnw("unload vetoed while a session is recording")
		return false
	}
	return true
}
