package out

import (
	"context"

	"recvault/internal/modules/capture/domain"
	captureout "recvault/internal/modules/capture/port/out"
	catalogdomain "recvault/internal/modules/catalog/domain"
	deliverydomain "recvault/internal/modules/delivery/domain"
	deliveryin "recvault/internal/modules/delivery/port/in"
)

// QueueSink hands captured chunks to the upload queue.
type QueueSink struct {
	queue deliveryin.Queue
}

func NewQueueSink(queue deliveryin.Queue) captureout.Sink {
	return &QueueSink{queue: queue}
}

func (s *QueueSink) Accept(ctx context.Context, chunk domain.Chunk) error {
	return s.queue.Accept(ctx, deliverydomain.Chunk{SessionID: chunk.SessionID, Sequence: chunk.Sequence, Data: chunk.Data})
}

func (s *QueueSink) Seal(ctx context.Context, session catalogdomain.Session) error {
	return s.queue.Seal(ctx, session)
}

func (s *QueueSink) Spill(ctx context.Context, sessionID string) (string, error) {
	out, err := s.queue.Spill(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return out.Path, nil
}
