package out

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"recvault/internal/platform/logging"
)

// HealthGate polls the endpoint's health route and opens the delivery gate
// while it answers 2xx.
type HealthGate struct {
	client   *resty.Client
	path     string
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger
	up       atomic.Bool
	checked  atomic.Bool
}

func NewHealthGate(baseURL, path string, interval, timeout time.Duration, logger logging.Logger) *HealthGate {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Cache-Control", "no-cache")
	return &HealthGate{client: client, path: path, interval: interval, timeout: timeout, log: logger}
}

func (g *HealthGate) Deliverable() bool {
	return g.up.Load()
}

// Run checks immediately and then every interval until ctx ends.
func (g *HealthGate) Run(ctx context.Context) error {
	g.Check(ctx)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Check(ctx)
		}
	}
}

// Check probes once and returns the new state.
func (g *HealthGate) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.R().SetContext(probeCtx).Get(g.path)
	ok := err == nil && resp.IsSuccess()

	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	case !ok:
		reason = resp.Status()
	}
	g.set(ok, reason)
	return ok
}

func (g *HealthGate) set(ok bool, reason string) {
	was := g.up.Swap(ok)
	first := !g.checked.Swap(true)
	switch {
	case first && ok:
		g.log.Infow("delivery endpoint reachable")
	case first:
		g.log.Warnw("delivery endpoint unreachable", "reason", reason)
	case !was && ok:
		g.log.Infow("delivery endpoint reachable again")
	case was && !ok:
		g.log.Warnw("delivery endpoint went away", "reason", reason)
	}
}

// StaticGate is a fixed gate for hosts without a health route.
type StaticGate bool

func (g StaticGate) Deliverable() bool { return bool(g) }
