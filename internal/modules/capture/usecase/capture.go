package usecase

import (
	"context"
	"strings"

	"recvault/internal/modules/capture/domain"
	"recvault/internal/modules/capture/dto"
	capturein "recvault/internal/modules/capture/port/in"
	captureout "recvault/internal/modules/capture/port/out"
	"recvault/internal/modules/capture/service"
	catalogdomain "recvault/internal/modules/catalog/domain"
	apperrors "recvault/internal/platform/errors"
)

type Interactor struct {
	buffer *service.Buffer
	gate   captureout.RecoveryGate
}

func NewInteractor(buffer *service.Buffer, gate captureout.RecoveryGate) capturein.Usecase {
	return &Interactor{buffer: buffer, gate: gate}
}

// StartSession refuses to start before the recovery scan so a crashed
// session is never mistaken for the new one.
func (i *Interactor) StartSession(ctx context.Context, input dto.StartInput) (dto.StartOutput, error) {
	if i.gate != nil && !i.gate.Scanned() {
		return dto.StartOutput{}, apperrors.ErrRecoveryPending
	}
	active, err := i.buffer.Begin(ctx, strings.TrimSpace(input.Label))
	if err != nil {
		return dto.StartOutput{}, err
	}
	return dto.StartOutput{SessionID: active.ID, StartTime: active.StartTime}, nil
}

func (i *Interactor) AppendChunk(_ context.Context, data []byte) (dto.AppendOutput, error) {
	chunk, active, err := i.buffer.Append(data)
	if err != nil {
		return dto.AppendOutput{}, err
	}
	return dto.AppendOutput{SessionID: chunk.SessionID, Sequence: chunk.Sequence, ChunkCount: active.ChunkCount, TotalBytes: active.TotalBytes}, nil
}

func (i *Interactor) StopSession(ctx context.Context) (dto.SessionOutput, error) {
	session, err := i.buffer.Stop(ctx)
	if err != nil {
		return dto.SessionOutput{}, err
	}
	return toOutput(session), nil
}

func (i *Interactor) Flush(ctx context.Context) error {
	return i.buffer.Flush(ctx)
}

func (i *Interactor) Active(_ context.Context) (dto.SessionOutput, bool) {
	active, ok := i.buffer.Active()
	if !ok {
		return dto.SessionOutput{}, false
	}
	return activeOutput(active), true
}

func (i *Interactor) Drain(ctx context.Context) error {
	return i.buffer.Drain(ctx)
}

func activeOutput(active domain.ActiveSession) dto.SessionOutput {
	return toOutput(active.Snapshot())
}

func toOutput(session catalogdomain.Session) dto.SessionOutput {
	return dto.SessionOutput{
		ID:         session.ID,
		Label:      session.Label,
		StartTime:  session.StartTime,
		EndTime:    session.EndTime,
		ChunkCount: session.ChunkCount,
		TotalBytes: session.TotalBytes,
		Status:     string(session.Status),
	}
}
