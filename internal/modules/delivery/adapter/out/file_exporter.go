package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"recvault/internal/modules/delivery/domain"
	deliveryout "recvault/internal/modules/delivery/port/out"
	"recvault/internal/platform/artifact"
	"recvault/internal/platform/clock"
)

// FileExporter writes payloads it is handed into dir, each with a YAML
// manifest next to it.
type FileExporter struct {
	dir   string
	clock clock.Clock
}

func NewFileExporter(dir string, clk clock.Clock) deliveryout.Exporter {
	return &FileExporter{dir: dir, clock: clk}
}

func (f *FileExporter) Export(_ context.Context, meta domain.SessionMeta, data []byte, reason string) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	name := artifact.Filename(meta.ID, meta.Label, meta.StartTime, "webm")
	if meta.Partial {
		name = fmt.Sprintf("%s.part%d-%d.webm", name[:len(name)-len(".webm")], meta.FirstSequence, meta.LastSequence)
	}
	path := filepath.Join(f.dir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}

	m := artifact.Manifest{
		SessionID:     meta.ID,
		Label:         meta.Label,
		StartTime:     meta.StartTime,
		EndTime:       meta.EndTime,
		ChunkCount:    meta.ChunkCount,
		TotalBytes:    meta.TotalBytes,
		PayloadBytes:  len(data),
		FirstSequence: meta.FirstSequence,
		LastSequence:  meta.LastSequence,
		ContentType:   artifact.ContentTypeWebM,
		Reason:        reason,
		ExportedAt:    f.clock.Now(),
	}
	raw, err := m.Render()
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path+".yaml", raw); err != nil {
		return "", err
	}
	return path, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}
