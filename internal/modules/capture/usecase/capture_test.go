package usecase_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recvault/internal/modules/capture/domain"
	"recvault/internal/modules/capture/dto"
	capturein "recvault/internal/modules/capture/port/in"
	"recvault/internal/modules/capture/service"
	"recvault/internal/modules/capture/usecase"
	catalogoutadapter "recvault/internal/modules/catalog/adapter/out"
	catalogdomain "recvault/internal/modules/catalog/domain"
	catalogin "recvault/internal/modules/catalog/port/in"
	catalogservice "recvault/internal/modules/catalog/service"
	"recvault/internal/platform/clock"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
	"recvault/internal/platform/tx"
)

type fixedID string

func (f fixedID) New() string { return string(f) }

type gate struct{ scanned atomic.Bool }

func (g *gate) Scanned() bool { return g.scanned.Load() }

type sink struct {
	mu     sync.Mutex
	chunks []domain.Chunk
	sealed []catalogdomain.Session
}

func (s *sink) Accept(_ context.Context, chunk domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *sink) Seal(_ context.Context, session catalogdomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = append(s.sealed, session)
	return nil
}

func (s *sink) Spill(context.Context, string) (string, error) { return "", nil }

func newCapture(t *testing.T) (capturein.Usecase, catalogin.Store, *sink, *gate) {
	t.Helper()
	backend, err := catalogoutadapter.NewFileBackend(filepath.Join(t.TempDir(), "catalog"), 0)
	require.NoError(t, err)
	store := catalogservice.NewCatalogService(backend, tx.NewMutexManager(), clock.SystemClock{}, logging.Nop(), catalogservice.Options{})
	out := &sink{}
	g := &gate{}
	buffer := service.NewBuffer(store, out, clock.SystemClock{}, fixedID("S1"), logging.Nop(), service.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	buffer.Start(ctx)
	return usecase.NewInteractor(buffer, g), store, out, g
}

func TestStartWaitsForRecoveryScan(t *testing.T) {
	t.Parallel()
	uc, _, _, g := newCapture(t)
	_, err := uc.StartSession(context.Background(), dto.StartInput{})
	assert.True(t, errors.Is(err, apperrors.ErrRecoveryPending))

	g.scanned.Store(true)
	out, err := uc.StartSession(context.Background(), dto.StartInput{Label: "  Weekly sync "})
	require.NoError(t, err)
	assert.Equal(t, "S1", out.SessionID)
	active, ok := uc.Active(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Weekly sync", active.Label)
	assert.Equal(t, string(catalogdomain.StatusActive), active.Status)
}

func TestOnlyOneActiveSession(t *testing.T) {
	t.Parallel()
	uc, _, _, g := newCapture(t)
	g.scanned.Store(true)
	_, err := uc.StartSession(context.Background(), dto.StartInput{})
	require.NoError(t, err)
	_, err = uc.StartSession(context.Background(), dto.StartInput{})
	assert.True(t, errors.Is(err, apperrors.ErrActiveSessionExists))
}

func TestAppendWithoutSessionOrData(t *testing.T) {
	t.Parallel()
	uc, _, _, g := newCapture(t)
	g.scanned.Store(true)
	_, err := uc.AppendChunk(context.Background(), []byte("x"))
	assert.True(t, errors.Is(err, apperrors.ErrNoActiveSession))
	_, err = uc.StopSession(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrNoActiveSession))

	_, err = uc.StartSession(context.Background(), dto.StartInput{})
	require.NoError(t, err)
	_, err = uc.AppendChunk(context.Background(), nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestRecordingLifecycle(t *testing.T) {
	t.Parallel()
	uc, store, out, g := newCapture(t)
	g.scanned.Store(true)
	ctx := context.Background()
	_, err := uc.StartSession(ctx, dto.StartInput{})
	require.NoError(t, err)

	var total int64
	for i, size := range []int{10, 20, 30} {
		appended, err := uc.AppendChunk(ctx, make([]byte, size))
		require.NoError(t, err)
		total += int64(size)
		assert.Equal(t, i, appended.Sequence)
		assert.Equal(t, i+1, appended.ChunkCount)
		assert.Equal(t, total, appended.TotalBytes)

		require.NoError(t, uc.Flush(ctx))
		stored, err := store.Get(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, i+1, stored.ChunkCount)
		assert.Equal(t, total, stored.TotalBytes)
	}

	session, err := uc.StopSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(catalogdomain.StatusStopped), session.Status)
	require.NotNil(t, session.EndTime)

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, uc.Drain(drainCtx))
	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.chunks, 3)
	require.Len(t, out.sealed, 1)
	assert.Equal(t, int64(60), out.sealed[0].TotalBytes)
}
