package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"recvault/internal/modules/capture/domain"
	captureout "recvault/internal/modules/capture/port/out"
	catalogdomain "recvault/internal/modules/catalog/domain"
	catalogin "recvault/internal/modules/catalog/port/in"
	"recvault/internal/platform/clock"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/id"
	"recvault/internal/platform/logging"
)

const DefaultAutosaveInterval = 30 * time.Second

type Options struct {
	AutosaveInterval time.Duration
}

// handoff is one ordered instruction for the sink; exactly one field is set.
type handoff struct {
	chunk *domain.Chunk
	seal  *catalogdomain.Session
	spill string
}

// Buffer owns the active session. Appends only touch memory; a forwarder
// goroutine passes chunks to the sink in order.
type Buffer struct {
	mu       sync.Mutex
	active   *domain.ActiveSession
	pending  []handoff
	inFlight bool
	wake     chan struct{}
	changed  chan struct{}
	running  atomic.Bool
	workers  sync.WaitGroup

	// persistMu orders snapshot writes so a stale active snapshot never
	// lands after the stopped one.
	persistMu sync.Mutex

	store catalogin.Store
	sink  captureout.Sink
	clock clock.Clock
	ids   id.Generator
	log   logging.Logger
	opts  Options
}

func NewBuffer(store catalogin.Store, sink captureout.Sink, clk clock.Clock, ids id.Generator, logger logging.Logger, opts Options) *Buffer {
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	return &Buffer{
		wake:    make(chan struct{}, 1),
		changed: make(chan struct{}),
		store:   store,
		sink:    sink,
		clock:   clk,
		ids:     ids,
		log:     logger,
		opts:    opts,
	}
}

// Start launches the forwarder and the autosave ticker once.
func (b *Buffer) Start(ctx context.Context) {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.workers.Add(2)
	go func() {
		defer b.workers.Done()
		b.forward(ctx)
	}()
	go func() {
		defer b.workers.Done()
		b.autosave(ctx)
	}()
}

// Wait blocks until the goroutines launched by Start have returned. The
// forwarder empties its backlog into the sink before it stops.
func (b *Buffer) Wait() {
	b.workers.Wait()
}

func (b *Buffer) Begin(ctx context.Context, label string) (domain.ActiveSession, error) {
	b.persistMu.Lock()
	defer b.persistMu.Unlock()

	b.mu.Lock()
	if b.active != nil {
		b.mu.Unlock()
		return domain.ActiveSession{}, fmt.Errorf("session %s is recording: %w", b.active.ID, apperrors.ErrActiveSessionExists)
	}
	active := domain.ActiveSession{ID: b.ids.New(), Label: label, StartTime: b.clock.Now()}
	b.active = &active
	b.mu.Unlock()

	if err := b.persist(ctx, active.Snapshot()); err != nil {
		b.mu.Lock()
		b.active = nil
		b.mu.Unlock()
		return domain.ActiveSession{}, err
	}
	b.log.Infow("session started", "session_id", active.ID, "label", label)
	return active, nil
}

// Append records data as the next chunk of the active session and queues it
// for the sink.
func (b *Buffer) Append(data []byte) (domain.Chunk, domain.ActiveSession, error) {
	if len(data) == 0 {
		return domain.Chunk{}, domain.ActiveSession{}, fmt.Errorf("empty chunk: %w", apperrors.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return domain.Chunk{}, domain.ActiveSession{}, apperrors.ErrNoActiveSession
	}
	chunk := b.active.Append(data)
	b.pushLocked(handoff{chunk: &chunk})
	return chunk, *b.active, nil
}

// Stop ends the active session, writes the final snapshot and queues the
// session for sealing behind its chunks.
func (b *Buffer) Stop(ctx context.Context) (catalogdomain.Session, error) {
	b.persistMu.Lock()
	defer b.persistMu.Unlock()

	b.mu.Lock()
	if b.active == nil {
		b.mu.Unlock()
		return catalogdomain.Session{}, apperrors.ErrNoActiveSession
	}
	session := b.active.Stopped(b.clock.Now())
	b.active = nil
	b.mu.Unlock()

	if err := b.persist(ctx, session); err != nil {
		b.log.Errorw("final snapshot failed", "session_id", session.ID, "error", err)
	}
	b.mu.Lock()
	b.pushLocked(handoff{seal: &session})
	b.mu.Unlock()
	b.log.Infow("session stopped", "session_id", session.ID, "chunks", session.ChunkCount, "bytes", session.TotalBytes)
	return session, nil
}

// Flush writes a metadata snapshot of the active session. It is a no-op when
// nothing is recording.
func (b *Buffer) Flush(ctx context.Context) error {
	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	b.mu.Lock()
	if b.active == nil {
		b.mu.Unlock()
		return nil
	}
	snap := b.active.Snapshot()
	b.mu.Unlock()
	return b.persist(ctx, snap)
}

func (b *Buffer) Active() (domain.ActiveSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return domain.ActiveSession{}, false
	}
	return *b.active, true
}

// Drain blocks until every queued hand-off reached the sink or ctx ends.
func (b *Buffer) Drain(ctx context.Context) error {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 && !b.inFlight {
			b.mu.Unlock()
			return nil
		}
		changed := b.changed
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// persist writes a snapshot. A full store is not fatal to capture: the sink
// is asked to spill the session's payload instead.
func (b *Buffer) persist(ctx context.Context, session catalogdomain.Session) error {
	err := b.store.Put(ctx, session)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrStoreExhausted) {
		b.log.Warnw("catalog exhausted, spilling session payload", "session_id", session.ID, "error", err)
		b.mu.Lock()
		b.pushLocked(handoff{spill: session.ID})
		b.mu.Unlock()
		return nil
	}
	return fmt.Errorf("snapshot %s: %w", session.ID, err)
}

func (b *Buffer) forward(ctx context.Context) {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-b.wake:
			}
			continue
		}
		item := b.pending[0]
		b.pending[0] = handoff{}
		b.pending = b.pending[1:]
		b.inFlight = true
		b.mu.Unlock()

		b.deliver(ctx, item)

		b.mu.Lock()
		b.inFlight = false
		b.notifyLocked()
		b.mu.Unlock()
	}
}

func (b *Buffer) deliver(ctx context.Context, item handoff) {
	switch {
	case item.chunk != nil:
		if err := b.sink.Accept(ctx, *item.chunk); err != nil {
			b.log.Errorw("hand chunk to delivery", "session_id", item.chunk.SessionID, "sequence", item.chunk.Sequence, "error", err)
		}
	case item.seal != nil:
		if err := b.sink.Seal(ctx, *item.seal); err != nil {
			b.log.Errorw("seal session", "session_id", item.seal.ID, "error", err)
		}
	case item.spill != "":
		path, err := b.sink.Spill(ctx, item.spill)
		if err != nil {
			b.log.Errorw("spill session", "session_id", item.spill, "error", err)
			return
		}
		b.log.Warnw("session spilled", "session_id", item.spill, "path", path)
	}
}

func (b *Buffer) autosave(ctx context.Context) {
	ticker := time.NewTicker(b.opts.AutosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.log.Warnw("autosave failed", "error", err)
			}
		}
	}
}

func (b *Buffer) pushLocked(item handoff) {
	b.pending = append(b.pending, item)
	b.notifyLocked()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Buffer) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}
