package in

import (
	"context"

	"recvault/internal/modules/recovery/dto"
)

type Usecase interface {
	// Scan runs the startup pass once and returns every undelivered session.
	Scan(ctx context.Context) ([]dto.RecoverableOutput, error)
	Scanned() bool
	ListRecoverable(ctx context.Context) ([]dto.RecoverableOutput, error)
	Resume(ctx context.Context, sessionID string) (dto.ResumeOutput, error)
	Export(ctx context.Context, input dto.ExportInput) (dto.ArtifactOutput, error)
	Discard(ctx context.Context, sessionID string) (dto.DiscardOutput, error)
}
