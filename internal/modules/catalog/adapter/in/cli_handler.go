package in

import (
	"context"

	"recvault/internal/modules/catalog/dto"
	catalogin "recvault/internal/modules/catalog/port/in"
)

type CLIHandler struct {
	store catalogin.Store
}

func NewCLIHandler(store catalogin.Store) CLIHandler {
	return CLIHandler{store: store}
}

// Sessions lists every catalog entry, newest touched first.
func (h CLIHandler) Sessions(ctx context.Context) ([]dto.SessionOutput, error) {
	sessions, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SessionOutput, 0, len(sessions))
	for _, s := range sessions {
		item := dto.SessionOutput{
			ID:           s.ID,
			Label:        s.Label,
			StartTime:    s.StartTime,
			EndTime:      s.EndTime,
			ChunkCount:   s.ChunkCount,
			TotalBytes:   s.TotalBytes,
			Status:       string(s.Status),
			Exported:     s.Exported,
			ArtifactPath: s.ArtifactPath,
			TouchedAt:    s.TouchedAt,
		}
		if s.HasPayload() {
			item.PayloadBytes = len(s.Payload.Data)
		}
		out = append(out, item)
	}
	return out, nil
}

// Purge drops all local backups and the emergency slot.
func (h CLIHandler) Purge(ctx context.Context) error {
	return h.store.Purge(ctx)
}
