package in

import (
	"context"
	"errors"
	"fmt"
	"io"

	"recvault/internal/modules/capture/dto"
	capturein "recvault/internal/modules/capture/port/in"
	apperrors "recvault/internal/platform/errors"
)

type CLIHandler struct {
	usecase capturein.Usecase
}

func NewCLIHandler(usecase capturein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

// Record starts a session, appends r in chunks of chunkSize until EOF or ctx
// ends, and stops the session either way.
func (h CLIHandler) Record(ctx context.Context, label string, r io.Reader, chunkSize int, progress func(dto.AppendOutput)) (dto.SessionOutput, error) {
	if chunkSize <= 0 {
		return dto.SessionOutput{}, fmt.Errorf("chunk size must be positive: %w", apperrors.ErrInvalidInput)
	}
	if _, err := h.usecase.StartSession(ctx, dto.StartInput{Label: label}); err != nil {
		return dto.SessionOutput{}, err
	}

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, chunkSize)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				readErr <- fmt.Errorf("read audio: %v: %w", err, apperrors.ErrCapture)
				return
			}
		}
	}()

	var appendErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case data, ok := <-chunks:
			if !ok {
				break loop
			}
			out, err := h.usecase.AppendChunk(ctx, data)
			if err != nil {
				appendErr = err
				break loop
			}
			if progress != nil {
				progress(out)
			}
		}
	}

	session, err := h.usecase.StopSession(context.WithoutCancel(ctx))
	if err != nil {
		return dto.SessionOutput{}, err
	}
	if appendErr != nil {
		return session, appendErr
	}
	select {
	case err := <-readErr:
		return session, err
	default:
	}
	return session, nil
}

func (h CLIHandler) Active(ctx context.Context) (dto.SessionOutput, bool) {
	return h.usecase.Active(ctx)
}

func (h CLIHandler) Drain(ctx context.Context) error {
	return h.usecase.Drain(ctx)
}

// Stop ends the active session, if there is one.
func (h CLIHandler) Stop(ctx context.Context) (dto.SessionOutput, bool, error) {
	session, err := h.usecase.StopSession(ctx)
	if errors.Is(err, apperrors.ErrNoActiveSession) {
		return dto.SessionOutput{}, false, nil
	}
	if err != nil {
		return dto.SessionOutput{}, false, err
	}
	return session, true, nil
}
