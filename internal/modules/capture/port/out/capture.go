package out

import (
	"context"

	"recvault/internal/modules/capture/domain"
	catalogdomain "recvault/internal/modules/catalog/domain"
)

// Sink receives chunks in sequence order, then the stopped session.
type Sink interface {
	Accept(ctx context.Context, chunk domain.Chunk) error
	Seal(ctx context.Context, session catalogdomain.Session) error
	// Spill writes what the sink still holds for a session to an artifact and
	// returns its path.
	Spill(ctx context.Context, sessionID string) (string, error)
}

type RecoveryGate interface {
	Scanned() bool
}
