package out

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	catalogout "recvault/internal/modules/catalog/port/out"
	apperrors "recvault/internal/platform/errors"
)

const fileSuffix = ".kv"

// FileBackend keeps one file per key under dir. Writes go to a temp file that
// is renamed into place.
type FileBackend struct {
	mu    sync.RWMutex
	dir   string
	quota int
}

func NewFileBackend(dir string, quota int) (catalogout.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	return &FileBackend{dir: dir, quota: quota}, nil
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileSuffix)
}

func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (f *FileBackend) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.path(key)
	if f.quota > 0 {
		others, err := f.usageExcluding(target)
		if err != nil {
			return err
		}
		if others+int64(len(value)) > int64(f.quota) {
			return fmt.Errorf("set %s (%d bytes, %d in use of %d): %w", key, len(value), others, f.quota, apperrors.ErrQuotaExceeded)
		}
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (f *FileBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) usageExcluding(target string) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("scan catalog dir: %w", err)
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		if filepath.Join(f.dir, entry.Name()) == target {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}
