package in

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"recvault/internal/modules/recovery/dto"
	recoveryin "recvault/internal/modules/recovery/port/in"
)

type CLIHandler struct {
	usecase recoveryin.Usecase
}

func NewCLIHandler(usecase recoveryin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) List(ctx context.Context) ([]dto.RecoverableOutput, error) {
	return h.usecase.ListRecoverable(ctx)
}

func (h CLIHandler) Resume(ctx context.Context, sessionID string) (dto.ResumeOutput, error) {
	return h.usecase.Resume(ctx, sessionID)
}

func (h CLIHandler) Discard(ctx context.Context, sessionID string) (dto.DiscardOutput, error) {
	return h.usecase.Discard(ctx, sessionID)
}

// ExportTo writes the artifact and its manifest into dir and returns the
// artifact path.
func (h CLIHandler) ExportTo(ctx context.Context, sessionID, format, dir string) (string, error) {
	out, err := h.usecase.Export(ctx, dto.ExportInput{SessionID: sessionID, Format: format})
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, out.Filename)
	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.WriteFile(path+".yaml", out.Manifest, 0o644); err != nil {
		return "", fmt.Errorf("write artifact manifest: %w", err)
	}
	return path, nil
}
