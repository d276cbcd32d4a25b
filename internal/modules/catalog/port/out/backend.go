package out

import "context"

// Backend is a small key/value store with a byte quota. Set must fail with
// apperrors.ErrQuotaExceeded when the write would push the total over quota,
// leaving the previous value in place. Get returns apperrors.ErrNotFound for
// missing keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
