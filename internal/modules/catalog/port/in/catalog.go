package in

import (
	"context"

	"recvault/internal/modules/catalog/domain"
)

// Store is the durable session catalog.
type Store interface {
	Put(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	List(ctx context.Context) ([]domain.Session, error)
	MarkDelivered(ctx context.Context, id string) error
	EvictOldest(ctx context.Context, n int) ([]string, error)
	Remove(ctx context.Context, id string) error
	SaveEmergency(ctx context.Context, slot domain.EmergencySlot) error
	LoadEmergency(ctx context.Context) (domain.EmergencySlot, error)
	ClearEmergency(ctx context.Context) error
	Purge(ctx context.Context) error
}
