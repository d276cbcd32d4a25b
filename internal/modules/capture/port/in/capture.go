package in

import (
	"context"

	"recvault/internal/modules/capture/dto"
)

type Usecase interface {
	StartSession(ctx context.Context, input dto.StartInput) (dto.StartOutput, error)
	// AppendChunk never waits on delivery.
	AppendChunk(ctx context.Context, data []byte) (dto.AppendOutput, error)
	StopSession(ctx context.Context) (dto.SessionOutput, error)
	// Flush writes a metadata snapshot of the active session, if any.
	Flush(ctx context.Context) error
	Active(ctx context.Context) (dto.SessionOutput, bool)
	// Drain waits until every handed-off chunk reached the delivery sink.
	Drain(ctx context.Context) error
}
