package out

import (
	"context"
	"fmt"
	"os"

	"recvault/internal/modules/recovery/domain"
	recoveryout "recvault/internal/modules/recovery/port/out"
	"recvault/internal/platform/artifact"
	"recvault/internal/platform/manifest"
)

// FileArtifactStore reads an exported payload and the sequence range from
// its YAML sidecar.
type FileArtifactStore struct{}

func NewFileArtifactStore() recoveryout.ArtifactStore {
	return FileArtifactStore{}
}

func (FileArtifactStore) Load(_ context.Context, path string) (domain.Recovered, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Recovered{}, fmt.Errorf("read artifact: %w", err)
	}
	raw, err := os.ReadFile(path + ".yaml")
	if err != nil {
		return domain.Recovered{}, fmt.Errorf("read artifact manifest: %w", err)
	}
	m := artifact.Manifest{}
	if err := manifest.Parse(raw, &m); err != nil {
		return domain.Recovered{}, err
	}
	return domain.Recovered{FirstSequence: m.FirstSequence, LastSequence: m.LastSequence, Data: data}, nil
}
