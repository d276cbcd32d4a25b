package tx

import (
	"context"
	"sync"
)

// Manager wraps a read-modify-write boundary. Everything inside fn observes
// and replaces one consistent snapshot.
type Manager interface {
	Within(ctx context.Context, fn func(context.Context) error) error
}

// MutexManager serializes all boundaries of one process on a mutex.
type MutexManager struct {
	mu sync.Mutex
}

func NewMutexManager() *MutexManager {
	return &MutexManager{}
}

func (m *MutexManager) Within(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}
