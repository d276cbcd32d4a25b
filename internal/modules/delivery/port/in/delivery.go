package in

import (
	"context"

	catalogdomain "recvault/internal/modules/catalog/domain"
	"recvault/internal/modules/delivery/domain"
	"recvault/internal/modules/delivery/dto"
)

// Queue is the single-worker upload pipeline.
type Queue interface {
	// Start launches the worker once; later calls are no-ops.
	Start(ctx context.Context)
	Accept(ctx context.Context, chunk domain.Chunk) error
	Seal(ctx context.Context, session catalogdomain.Session) error
	Resume(ctx context.Context, input dto.ResumeInput) error
	Spill(ctx context.Context, sessionID string) (dto.SpillOutput, error)
	// Shelve persists whatever is still undelivered and empties the queue.
	Shelve(ctx context.Context, reason string) []string
	Cancel(sessionID string)
	Stats() dto.QueueStats
	WaitIdle(ctx context.Context) error
}
