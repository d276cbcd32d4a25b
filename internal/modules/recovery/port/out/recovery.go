package out

import (
	"context"

	"recvault/internal/modules/recovery/domain"
)

// ArtifactStore reads back payloads that were exported instead of kept in
// the catalog.
type ArtifactStore interface {
	Load(ctx context.Context, path string) (domain.Recovered, error)
}
