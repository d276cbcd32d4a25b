package service_test

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

	catalogoutadapter "recvault/internal/modules/catalog/adapter/out"
	catalogdomain "recvault/internal/modules/catalog/domain"
	catalogin "recvault/internal/modules/catalog/port/in"
	catalogservice "recvault/internal/modules/catalog/service"
	"recvault/internal/modules/delivery/domain"
	"recvault/internal/modules/delivery/dto"
	"recvault/internal/modules/delivery/service"
	"recvault/internal/platform/clock"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
	"recvault/internal/platform/tx"
)

type call struct {
	kind      domain.Kind
	sessionID string
	sequence  int
	bytes     int
}

type step struct {
	err error
	ack *domain.Ack
	// hang blocks the transfer until its context ends.
	hang bool
}

type fakeTransport struct {
	mu       sync.Mutex
	steps    []step
	calls    []call
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	hold     time.Duration
	// entered and release hold a transfer open until the test lets go.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeTransport) enter() {
	n := f.inFlight.Add(1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
}

func (f *fakeTransport) nextStep() step {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return step{}
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s
}

func (f *fakeTransport) SubmitSession(ctx context.Context, sub domain.Submission) (domain.Ack, error) {
	f.enter()
	defer f.inFlight.Add(-1)
	kind := domain.KindSession
	if len(sub.Audio) == 0 {
		kind = domain.KindFinalize
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{kind: kind, sessionID: sub.Meta.ID, sequence: -1, bytes: len(sub.Audio)})
	f.mu.Unlock()
	s := f.nextStep()
	if s.hang {
		<-ctx.Done()
		return domain.Ack{}, &apperrors.TransferError{Kind: apperrors.ErrTransferTransient, Err: ctx.Err()}
	}
	if s.err != nil {
		return domain.Ack{}, s.err
	}
	if s.ack != nil {
		return *s.ack, nil
	}
	return domain.Ack{SessionID: sub.Meta.ID, Status: "accepted"}, nil
}

func (f *fakeTransport) StageChunk(ctx context.Context, up domain.ChunkUpload) (domain.Ack, error) {
	f.enter()
	defer f.inFlight.Add(-1)
	f.mu.Lock()
	f.calls = append(f.calls, call{kind: domain.KindChunk, sessionID: up.SessionID, sequence: up.Sequence, bytes: len(up.Audio)})
	f.mu.Unlock()
	s := f.nextStep()
	if s.hang {
		<-ctx.Done()
		return domain.Ack{}, &apperrors.TransferError{Kind: apperrors.ErrTransferTransient, Err: ctx.Err()}
	}
	if s.err != nil {
		return domain.Ack{}, s.err
	}
	if s.ack != nil {
		return *s.ack, nil
	}
	seq := up.Sequence
	return domain.Ack{SessionID: up.SessionID, Sequence: &seq}, nil
}

func (f *fakeTransport) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeGate struct {
	closedFor atomic.Int32
}

func (g *fakeGate) Deliverable() bool {
	return g.closedFor.Add(-1) < 0
}

type fakeExporter struct {
	mu      sync.Mutex
	exports []domain.SessionMeta
	sizes   []int
}

func (f *fakeExporter) Export(_ context.Context, meta domain.SessionMeta, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, meta)
	f.sizes = append(f.sizes, len(data))
	return filepath.Join("/exports", meta.ID), nil
}

func (f *fakeExporter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exports)
}

type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.fn()
}

// fakeScheduler records requested delays. In auto mode timers fire right
// away on their own goroutine; otherwise they wait for fireAll.
type fakeScheduler struct {
	mu     sync.Mutex
	auto   bool
	delays []time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) clock.Timer {
	t := &fakeTimer{fn: fn}
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.timers = append(s.timers, t)
	auto := s.auto
	s.mu.Unlock()
	if auto {
		go t.fire()
	}
	return t
}

func (s *fakeScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *fakeScheduler) fireAll() {
	s.mu.Lock()
	timers := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()
	for _, t := range timers {
		t.fire()
	}
}

type harness struct {
	queue     *service.Queue
	store     catalogin.Store
	transport *fakeTransport
	gate      *fakeGate
	exporter  *fakeExporter
	scheduler *fakeScheduler
}

func newHarness(t *testing.T, opts service.Options, steps ...step) *harness {
	t.Helper()
	backend, err := catalogoutadapter.NewFileBackend(filepath.Join(t.TempDir(), "catalog"), 0)
	require.NoError(t, err)
	store := catalogservice.NewCatalogService(backend, tx.NewMutexManager(), clock.SystemClock{}, logging.Nop(), catalogservice.Options{})
	h := &harness{
		store:     store,
		transport: &fakeTransport{steps: steps},
		gate:      &fakeGate{},
		exporter:  &fakeExporter{},
		scheduler: &fakeScheduler{auto: true},
	}
	h.queue = service.NewQueue(store, h.transport, h.gate, h.exporter, clock.SystemClock{}, h.scheduler, logging.Nop(), opts)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.queue.Start(ctx)
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.queue.WaitIdle(ctx))
}

func (h *harness) seedStopped(t *testing.T, id string, sizes ...int) catalogdomain.Session {
	t.Helper()
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Minute)
	session := catalogdomain.Session{ID: id, StartTime: start, Status: catalogdomain.StatusActive}
	require.NoError(t, h.store.Put(ctx, session))
	for seq, size := range sizes {
		require.NoError(t, h.queue.Accept(ctx, domain.Chunk{SessionID: id, Sequence: seq, Data: make([]byte, size)}))
		session.ChunkCount++
		session.TotalBytes += int64(size)
	}
	end := start.Add(30 * time.Second)
	session.EndTime = &end
	session.Status = catalogdomain.StatusStopped
	require.NoError(t, h.store.Put(ctx, session))
	return session
}

func transient() step {
	return step{err: &apperrors.TransferError{Kind: apperrors.ErrTransferTransient, Status: 503}}
}

func TestTransientFailuresThenDelivered(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{}, transient(), transient())
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 10, 20, 30)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	calls := h.transport.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 60, calls[2].bytes)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.scheduler.Delays())

	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusDelivered, got.Status)

	stats := h.queue.Stats()
	assert.Zero(t, stats.BufferedBytes)
	assert.Zero(t, stats.WaitingTimers)
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 3, stats.Attempts)
}

func TestExhaustedRetriesAbandonOnce(t *testing.T) {
	t.Parallel()
	steps := make([]step, 10)
	for i := range steps {
		steps[i] = transient()
	}
	h := newHarness(t, service.Options{}, steps...)
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 10, 20)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	assert.Len(t, h.transport.Calls(), 5)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, h.scheduler.Delays())

	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, got.Status)
	require.True(t, got.HasPayload())
	assert.Len(t, got.Payload.Data, 30)
	assert.Equal(t, 0, got.Payload.FirstSequence)
	assert.Equal(t, 1, got.Payload.LastSequence)

	stats := h.queue.Stats()
	assert.Equal(t, 1, stats.Escalated)
	assert.Zero(t, stats.WaitingTimers)
	assert.Zero(t, stats.Pending)
}

func TestRejectedStopsRetryingImmediately(t *testing.T) {
	t.Parallel()
	rejected := step{err: &apperrors.TransferError{Kind: apperrors.ErrTransferRejected, Status: 422}}
	h := newHarness(t, service.Options{}, rejected)
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	assert.Len(t, h.transport.Calls(), 1)
	assert.Empty(t, h.scheduler.Delays())
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, got.Status)
	assert.True(t, got.HasPayload())
}

func TestSuccessWithoutCorrelatingAckIsRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{}, step{ack: &domain.Ack{SessionID: "someone-else"}})
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	assert.Len(t, h.transport.Calls(), 2)
	assert.Equal(t, []time.Duration{time.Second}, h.scheduler.Delays())
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusDelivered, got.Status)
}

func TestClosedGateDoesNotConsumeAttempts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{Policy: domain.InlinePolicy()})
	h.gate.closedFor.Store(4)
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	assert.Len(t, h.transport.Calls(), 1)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, h.scheduler.Delays())
	assert.Equal(t, 1, h.queue.Stats().Attempts)
}

func TestResumeOfDeliveredSessionMakesNoNetworkCall(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)
	require.Len(t, h.transport.Calls(), 1)

	require.NoError(t, h.queue.Resume(ctx, dto.ResumeInput{SessionID: "S1", Data: []byte("again")}))
	h.waitIdle(t)
	assert.Len(t, h.transport.Calls(), 1)
	assert.Zero(t, h.queue.Stats().Pending)
}

func TestResumeDeliversRecoveredPayload(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	ctx := context.Background()
	session := h.seedStopped(t, "S1")
	session.ChunkCount = 4
	session.Status = catalogdomain.StatusAbandoned
	require.NoError(t, h.store.Put(ctx, session))

	require.NoError(t, h.queue.Resume(ctx, dto.ResumeInput{SessionID: "S1", FirstSequence: 0, LastSequence: 3, Data: []byte("payload")}))
	require.NoError(t, h.queue.Resume(ctx, dto.ResumeInput{SessionID: "S1", FirstSequence: 0, LastSequence: 3, Data: []byte("payload")}))
	h.start(t)
	h.waitIdle(t)

	calls := h.transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 7, calls[0].bytes)
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusDelivered, got.Status)
}

func TestResumeWithoutPayloadIsNotRecoverable(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	h.seedStopped(t, "S1")
	err := h.queue.Resume(context.Background(), dto.ResumeInput{SessionID: "S1"})
	assert.True(t, errors.Is(err, apperrors.ErrNotRecoverable))
}

func TestChunkModeStagesInOrderThenFinalizes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{Mode: domain.ModeChunk, Policy: domain.InlinePolicy()}, step{}, transient())
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 3, 4, 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	calls := h.transport.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, []int{0, 1, 1, 2}, []int{calls[0].sequence, calls[1].sequence, calls[2].sequence, calls[3].sequence})
	assert.Equal(t, domain.KindFinalize, calls[4].kind)

	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusDelivered, got.Status)
}

func TestChunkModeFailureUsesEmergencySlotAndAbandons(t *testing.T) {
	t.Parallel()
	rejected := step{err: &apperrors.TransferError{Kind: apperrors.ErrTransferRejected, Status: 400}}
	h := newHarness(t, service.Options{Mode: domain.ModeChunk, Policy: domain.InlinePolicy()}, step{}, rejected, rejected)
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 3, 4, 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	slot, err := h.store.LoadEmergency(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, slot.Sequence)
	assert.Len(t, slot.Data, 5)
	// Chunk 1 was pushed out of the slot by chunk 2 and had to be exported.
	require.Equal(t, 1, h.exporter.Count())
	assert.Equal(t, 1, h.exporter.exports[0].FirstSequence)

	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, got.Status)
	assert.Equal(t, []string{filepath.Join("/exports", "S1")}, got.ChunkArtifacts)
	for _, c := range h.transport.Calls() {
		assert.NotEqual(t, domain.KindFinalize, c.kind)
	}
}

func TestOversizedPayloadIsExportedOnAbandon(t *testing.T) {
	t.Parallel()
	rejected := step{err: &apperrors.TransferError{Kind: apperrors.ErrTransferRejected, Status: 413}}
	h := newHarness(t, service.Options{EmergencyMaxBytes: 16}, rejected)
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 40, 20)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	require.Equal(t, 1, h.exporter.Count())
	assert.Equal(t, 60, h.exporter.sizes[0])
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, got.Status)
	assert.False(t, got.HasPayload())
	assert.Equal(t, filepath.Join("/exports", "S1"), got.ArtifactPath)
}

func TestCancelStopsPendingRetryTimers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{}, transient())
	h.scheduler.auto = false
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)

	require.Eventually(t, func() bool { return h.queue.Stats().WaitingTimers == 1 }, 5*time.Second, 5*time.Millisecond)
	h.queue.Cancel("S1")
	assert.Zero(t, h.queue.Stats().WaitingTimers)
	h.scheduler.fireAll()
	h.waitIdle(t)
	assert.Len(t, h.transport.Calls(), 1)
}

func TestSingleTransferInFlight(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	h.transport.hold = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.queue.Start(ctx)
	h.queue.Start(ctx)

	sessions := make([]catalogdomain.Session, 8)
	for i := range sessions {
		sessions[i] = h.seedStopped(t, string(rune('a'+i)))
	}
	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(session catalogdomain.Session) {
			defer wg.Done()
			assert.NoError(t, h.queue.Accept(ctx, domain.Chunk{SessionID: session.ID, Sequence: 0, Data: []byte("data")}))
			assert.NoError(t, h.queue.Seal(ctx, session))
		}(session)
	}
	wg.Wait()
	h.waitIdle(t)

	assert.Len(t, h.transport.Calls(), 8)
	assert.Equal(t, int32(1), h.transport.maxSeen.Load())
}

func TestSpillExportsBufferedChunks(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, catalogdomain.Session{ID: "S1", StartTime: time.Now().UTC(), Status: catalogdomain.StatusActive}))
	require.NoError(t, h.queue.Accept(ctx, domain.Chunk{SessionID: "S1", Sequence: 1, Data: []byte("bb")}))
	require.NoError(t, h.queue.Accept(ctx, domain.Chunk{SessionID: "S1", Sequence: 0, Data: []byte("a")}))

	out, err := h.queue.Spill(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 3, out.Bytes)
	require.Equal(t, 1, h.exporter.Count())
	assert.Equal(t, 0, h.exporter.exports[0].FirstSequence)
	assert.Equal(t, 1, h.exporter.exports[0].LastSequence)

	_, err = h.queue.Spill(ctx, "nobody")
	assert.True(t, errors.Is(err, apperrors.ErrNotRecoverable))
}

func TestAcceptRejectsChunksAfterSeal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 1)
	require.NoError(t, h.queue.Seal(ctx, session))
	require.NoError(t, h.queue.Seal(ctx, session))
	err := h.queue.Accept(ctx, domain.Chunk{SessionID: "S1", Sequence: 1, Data: []byte("x")})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, 1, h.queue.Stats().Pending)
}

func TestShelvePersistsUndeliveredPayloads(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	ctx := context.Background()
	sealed := h.seedStopped(t, "S1", 2, 3)
	require.NoError(t, h.queue.Seal(ctx, sealed))
	h.seedStopped(t, "S2", 4)

	shelved := h.queue.Shelve(ctx, "host exiting")
	assert.Equal(t, []string{"S1", "S2"}, shelved)
	assert.Equal(t, 0, h.queue.Stats().Pending)
	assert.Equal(t, 0, h.exporter.Count())
	assert.Empty(t, h.transport.Calls())

	s1, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, s1.Status)
	require.True(t, s1.HasPayload())
	assert.Len(t, s1.Payload.Data, 5)
	assert.Equal(t, 1, s1.Payload.LastSequence)

	s2, err := h.store.Get(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, s2.Status)
	require.True(t, s2.HasPayload())
	assert.Len(t, s2.Payload.Data, 4)

	assert.Empty(t, h.queue.Shelve(ctx, "again"))
}

func (h *harness) holdTransfers() {
	h.transport.entered = make(chan struct{}, 1)
	h.transport.release = make(chan struct{})
}

func (h *harness) awaitTransfer(t *testing.T) {
	t.Helper()
	select {
	case <-h.transport.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}
}

func TestAcknowledgedTransferSurvivesShutdown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{})
	h.holdTransfers()
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))

	runCtx, cancel := context.WithCancel(ctx)
	h.queue.Start(runCtx)
	h.awaitTransfer(t)
	cancel()
	close(h.transport.release)
	h.queue.Wait()

	assert.Empty(t, h.queue.Shelve(ctx, "host exiting"))
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusDelivered, got.Status)
	assert.False(t, got.HasPayload())
	assert.Equal(t, 1, h.queue.Stats().Delivered)
}

func TestFailedTransferDuringShutdownIsShelved(t *testing.T) {
	t.Parallel()
	h := newHarness(t, service.Options{}, transient())
	h.holdTransfers()
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))

	runCtx, cancel := context.WithCancel(ctx)
	h.queue.Start(runCtx)
	h.awaitTransfer(t)
	cancel()
	close(h.transport.release)
	h.queue.Wait()

	assert.Zero(t, h.queue.Stats().Attempts)
	assert.Empty(t, h.scheduler.Delays())
	assert.Equal(t, []string{"S1"}, h.queue.Shelve(ctx, "host exiting"))
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, got.Status)
	assert.True(t, got.HasPayload())
}

func TestHungTransferTimesOutAndRetries(t *testing.T) {
	t.Parallel()
	policy := domain.BackgroundPolicy()
	policy.TransferTimeout = 20 * time.Millisecond
	h := newHarness(t, service.Options{Policy: policy}, step{hang: true})
	ctx := context.Background()
	session := h.seedStopped(t, "S1", 5)
	require.NoError(t, h.queue.Seal(ctx, session))
	h.start(t)
	h.waitIdle(t)

	require.Len(t, h.transport.Calls(), 2)
	assert.Equal(t, []time.Duration{time.Second}, h.scheduler.Delays())
	assert.Equal(t, 2, h.queue.Stats().Attempts)
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusDelivered, got.Status)
}

func TestShelveLinksExportedChunks(t *testing.T) {
	t.Parallel()
	rejected := step{err: &apperrors.TransferError{Kind: apperrors.ErrTransferRejected, Status: 400}}
	h := newHarness(t, service.Options{Mode: domain.ModeChunk, Policy: domain.InlinePolicy(), EmergencyMaxBytes: 4}, rejected)
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, catalogdomain.Session{ID: "S1", StartTime: time.Now().UTC(), Status: catalogdomain.StatusActive}))
	require.NoError(t, h.queue.Accept(ctx, domain.Chunk{SessionID: "S1", Sequence: 0, Data: []byte("oversized")}))
	h.start(t)
	h.waitIdle(t)
	require.Equal(t, 1, h.exporter.Count())

	stopped, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	end := time.Now().UTC()
	stopped.EndTime = &end
	stopped.Status = catalogdomain.StatusStopped
	require.NoError(t, h.store.Put(ctx, stopped))

	assert.Equal(t, []string{"S1"}, h.queue.Shelve(ctx, "host exiting"))
	got, err := h.store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.StatusAbandoned, got.Status)
	assert.Equal(t, []string{filepath.Join("/exports", "S1")}, got.ChunkArtifacts)
}
