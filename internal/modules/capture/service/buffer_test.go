package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recvault/internal/modules/capture/domain"
	"recvault/internal/modules/capture/service"
	catalogoutadapter "recvault/internal/modules/catalog/adapter/out"
	catalogdomain "recvault/internal/modules/catalog/domain"
	catalogin "recvault/internal/modules/catalog/port/in"
	catalogservice "recvault/internal/modules/catalog/service"
	"recvault/internal/platform/clock"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
	"recvault/internal/platform/tx"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("S%d", s.n)
}

type recordingSink struct {
	mu      sync.Mutex
	release chan struct{}
	chunks  []domain.Chunk
	sealed  []catalogdomain.Session
	spilled []string
}

func (s *recordingSink) Accept(_ context.Context, chunk domain.Chunk) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *recordingSink) Seal(_ context.Context, session catalogdomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = append(s.sealed, session)
	return nil
}

func (s *recordingSink) Spill(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spilled = append(s.spilled, sessionID)
	return "/exports/" + sessionID, nil
}

func (s *recordingSink) snapshot() ([]domain.Chunk, []catalogdomain.Session, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Chunk(nil), s.chunks...), append([]catalogdomain.Session(nil), s.sealed...), append([]string(nil), s.spilled...)
}

type exhaustedStore struct {
	catalogin.Store
}

func (exhaustedStore) Put(context.Context, catalogdomain.Session) error {
	return fmt.Errorf("put: %w", apperrors.ErrStoreExhausted)
}

func newStore(t *testing.T) catalogin.Store {
	t.Helper()
	backend, err := catalogoutadapter.NewFileBackend(filepath.Join(t.TempDir(), "catalog"), 0)
	require.NoError(t, err)
	return catalogservice.NewCatalogService(backend, tx.NewMutexManager(), clock.SystemClock{}, logging.Nop(), catalogservice.Options{})
}

func startBuffer(t *testing.T, store catalogin.Store, sink *recordingSink, opts service.Options) *service.Buffer {
	t.Helper()
	buffer := service.NewBuffer(store, sink, clock.SystemClock{}, &seqIDs{}, logging.Nop(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	buffer.Start(ctx)
	return buffer
}

func drain(t *testing.T, buffer *service.Buffer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, buffer.Drain(ctx))
}

func TestAutosaveWritesCounters(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	buffer := startBuffer(t, store, &recordingSink{}, service.Options{AutosaveInterval: 10 * time.Millisecond})

	active, err := buffer.Begin(context.Background(), "")
	require.NoError(t, err)
	for _, size := range []int{10, 20, 30} {
		_, _, err := buffer.Append(make([]byte, size))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), active.ID)
		return err == nil && got.ChunkCount == 3 && got.TotalBytes == 60
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAppendDoesNotWaitForSink(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{release: make(chan struct{})}
	buffer := startBuffer(t, newStore(t), sink, service.Options{})
	_, err := buffer.Begin(context.Background(), "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _, err := buffer.Append([]byte{byte(i)})
			assert.NoError(t, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("append blocked on a stalled sink")
	}

	close(sink.release)
	drain(t, buffer)
	chunks, _, _ := sink.snapshot()
	require.Len(t, chunks, 50)
	for i, c := range chunks {
		assert.Equal(t, i, c.Sequence)
	}
}

func TestStoreExhaustionSpillsInsteadOfFailing(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	buffer := startBuffer(t, exhaustedStore{Store: newStore(t)}, sink, service.Options{})

	active, err := buffer.Begin(context.Background(), "")
	require.NoError(t, err)
	_, _, err = buffer.Append([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, buffer.Flush(context.Background()))
	session, err := buffer.Stop(context.Background())
	require.NoError(t, err)
	drain(t, buffer)

	chunks, sealed, spilled := sink.snapshot()
	assert.Len(t, chunks, 1)
	require.Len(t, sealed, 1)
	assert.Equal(t, session.ID, sealed[0].ID)
	assert.Contains(t, spilled, active.ID)
}

func TestStopSealsAfterChunks(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	sink := &recordingSink{}
	buffer := startBuffer(t, store, sink, service.Options{})

	_, err := buffer.Begin(context.Background(), "standup")
	require.NoError(t, err)
	_, _, err = buffer.Append([]byte("a"))
	require.NoError(t, err)
	_, _, err = buffer.Append([]byte("bc"))
	require.NoError(t, err)
	session, err := buffer.Stop(context.Background())
	require.NoError(t, err)
	drain(t, buffer)

	chunks, sealed, _ := sink.snapshot()
	require.Len(t, chunks, 2)
	require.Len(t, sealed, 1)
	assert.Equal(t, catalogdomain.StatusStopped, sealed[0].Status)
	assert.NotNil(t, sealed[0].EndTime)

	stored, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusStopped, stored.Status)
	assert.Equal(t, 2, stored.ChunkCount)
	assert.Equal(t, int64(3), stored.TotalBytes)
	assert.Equal(t, "standup", stored.Label)

	_, active := buffer.Active()
	assert.False(t, active)
	require.NoError(t, buffer.Flush(context.Background()))
}
