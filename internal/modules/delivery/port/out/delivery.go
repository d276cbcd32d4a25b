package out

import (
	"context"

	"recvault/internal/modules/delivery/domain"
)

type Transport interface {
	SubmitSession(ctx context.Context, submission domain.Submission) (domain.Ack, error)
	StageChunk(ctx context.Context, upload domain.ChunkUpload) (domain.Ack, error)
}

// Gate reports whether the delivery endpoint is currently worth trying.
type Gate interface {
	Deliverable() bool
}

// Exporter writes a payload to a user-reachable artifact and returns where.
type Exporter interface {
	Export(ctx context.Context, meta domain.SessionMeta, data []byte, reason string) (string, error)
}
