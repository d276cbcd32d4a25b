package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	catalogdomain "recvault/internal/modules/catalog/domain"
	catalogin "recvault/internal/modules/catalog/port/in"
	"recvault/internal/modules/delivery/domain"
	"recvault/internal/modules/delivery/dto"
	deliveryin "recvault/internal/modules/delivery/port/in"
	deliveryout "recvault/internal/modules/delivery/port/out"
	"recvault/internal/platform/artifact"
	"recvault/internal/platform/clock"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
)

type Options struct {
	Mode domain.Mode
	// Policy governs tasks created from live capture; ResumePolicy governs
	// tasks created by Resume.
	Policy            domain.Policy
	ResumePolicy      domain.Policy
	EmergencyMaxBytes int
}

type queuedTask struct {
	domain.Task
	policy  domain.Policy
	waiting bool
	timer   clock.Timer
}

type sessionState struct {
	chunks []domain.Chunk
	sealed bool
	// failed is set once a staged chunk of the session was escalated.
	failed bool
	// artifacts holds exported chunks until the session record is abandoned.
	artifacts []string
}

// Queue delivers tasks one at a time. Tasks of one session run in enqueue
// order; a session waiting on a retry timer does not hold up other sessions.
type Queue struct {
	mu       sync.Mutex
	tasks    []*queuedTask
	sessions map[string]*sessionState
	wake     chan struct{}
	changed  chan struct{}
	running  atomic.Bool
	worker   sync.WaitGroup
	busy     bool
	seq      int
	stats    dto.QueueStats

	store     catalogin.Store
	transport deliveryout.Transport
	gate      deliveryout.Gate
	exporter  deliveryout.Exporter
	clock     clock.Clock
	scheduler clock.Scheduler
	log       logging.Logger
	opts      Options
}

var _ deliveryin.Queue = (*Queue)(nil)

func NewQueue(
	store catalogin.Store,
	transport deliveryout.Transport,
	gate deliveryout.Gate,
	exporter deliveryout.Exporter,
	clk clock.Clock,
	scheduler clock.Scheduler,
	logger logging.Logger,
	opts Options,
) *Queue {
	if opts.Mode == "" {
		opts.Mode = domain.ModeSession
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = domain.BackgroundPolicy()
	}
	if opts.ResumePolicy.MaxAttempts <= 0 {
		opts.ResumePolicy = domain.BackgroundPolicy()
	}
	if opts.EmergencyMaxBytes <= 0 {
		opts.EmergencyMaxBytes = 50 * 1024
	}
	return &Queue{
		sessions:  map[string]*sessionState{},
		wake:      make(chan struct{}, 1),
		changed:   make(chan struct{}),
		store:     store,
		transport: transport,
		gate:      gate,
		exporter:  exporter,
		clock:     clk,
		scheduler: scheduler,
		log:       logger,
		opts:      opts,
	}
}

func (q *Queue) Start(ctx context.Context) {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	q.worker.Add(1)
	go func() {
		defer q.worker.Done()
		q.run(ctx)
	}()
}

// Wait blocks until the worker started by Start has returned.
func (q *Queue) Wait() {
	q.worker.Wait()
}

func (q *Queue) Accept(_ context.Context, chunk domain.Chunk) error {
	if chunk.SessionID == "" || len(chunk.Data) == 0 {
		return fmt.Errorf("chunk needs a session id and data: %w", apperrors.ErrInvalidInput)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.stateLocked(chunk.SessionID)
	if st.sealed {
		return fmt.Errorf("session %s is already sealed: %w", chunk.SessionID, apperrors.ErrInvalidInput)
	}
	if q.opts.Mode == domain.ModeChunk {
		q.pushLocked(domain.Task{
			Kind:      domain.KindChunk,
			SessionID: chunk.SessionID,
			Meta:      domain.SessionMeta{ID: chunk.SessionID, FirstSequence: chunk.Sequence, LastSequence: chunk.Sequence},
			Chunks:    []domain.Chunk{chunk},
		}, q.opts.Policy)
		return nil
	}
	st.chunks = append(st.chunks, chunk)
	return nil
}

// Seal hands a stopped session over to delivery. Sealing twice is a no-op.
func (q *Queue) Seal(_ context.Context, session catalogdomain.Session) error {
	if session.ID == "" {
		return fmt.Errorf("seal needs a session id: %w", apperrors.ErrInvalidInput)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.stateLocked(session.ID)
	if st.sealed {
		return nil
	}
	st.sealed = true
	meta := domain.MetaFromSession(session)
	if q.opts.Mode == domain.ModeChunk {
		q.pushLocked(domain.Task{Kind: domain.KindFinalize, SessionID: session.ID, Meta: meta}, q.opts.Policy)
		return nil
	}
	q.pushLocked(domain.Task{Kind: domain.KindSession, SessionID: session.ID, Meta: meta, Chunks: st.chunks}, q.opts.Policy)
	st.chunks = nil
	return nil
}

// Resume re-enqueues a recovered payload. Delivered sessions and sessions
// that already have pending work are left alone.
func (q *Queue) Resume(ctx context.Context, input dto.ResumeInput) error {
	session, err := q.store.Get(ctx, input.SessionID)
	if err != nil {
		return err
	}
	if session.Status == catalogdomain.StatusDelivered {
		q.log.Debugw("resume ignored for delivered session", "session_id", session.ID)
		return nil
	}
	if len(input.Data) == 0 {
		return fmt.Errorf("resume %s: %w", session.ID, apperrors.ErrNotRecoverable)
	}

	meta := domain.MetaFromSession(session)
	meta.FirstSequence = input.FirstSequence
	meta.LastSequence = input.LastSequence
	meta.Partial = input.Gaps || input.FirstSequence != 0 || input.LastSequence != session.ChunkCount-1

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.hasTaskLocked(session.ID) {
		return nil
	}
	st := q.stateLocked(session.ID)
	st.sealed = true
	st.failed = false
	q.pushLocked(domain.Task{
		Kind:      domain.KindSession,
		SessionID: session.ID,
		Meta:      meta,
		Chunks:    []domain.Chunk{{SessionID: session.ID, Sequence: input.FirstSequence, Data: input.Data}},
	}, q.opts.ResumePolicy)
	q.log.Infow("session resumed", "session_id", session.ID, "bytes", len(input.Data), "partial", meta.Partial)
	return nil
}

// Spill exports whatever payload the queue still holds for a session.
func (q *Queue) Spill(ctx context.Context, sessionID string) (dto.SpillOutput, error) {
	q.mu.Lock()
	var chunks []domain.Chunk
	if st := q.sessions[sessionID]; st != nil {
		chunks = append(chunks, st.chunks...)
	}
	for _, t := range q.tasks {
		if t.SessionID == sessionID {
			chunks = append(chunks, t.Chunks...)
		}
	}
	q.mu.Unlock()
	if len(chunks) == 0 {
		return dto.SpillOutput{SessionID: sessionID}, fmt.Errorf("spill %s: %w", sessionID, apperrors.ErrNotRecoverable)
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Sequence < chunks[j].Sequence })

	task := domain.Task{SessionID: sessionID, Chunks: chunks}
	meta := domain.SessionMeta{ID: sessionID}
	if session, err := q.store.Get(ctx, sessionID); err == nil {
		meta = domain.MetaFromSession(session)
	}
	meta.FirstSequence = chunks[0].Sequence
	meta.LastSequence = chunks[len(chunks)-1].Sequence
	data := task.Payload()
	path, err := q.exporter.Export(ctx, meta, data, "local store exhausted")
	if err != nil {
		return dto.SpillOutput{SessionID: sessionID}, fmt.Errorf("spill %s: %w", sessionID, err)
	}
	q.log.Warnw("session payload spilled to artifact", "session_id", sessionID, "path", path, "bytes", len(data))
	return dto.SpillOutput{SessionID: sessionID, Path: path, Bytes: len(data)}, nil
}

// Shelve takes every undelivered payload out of the queue and records it as
// an abandoned session, so the host can exit without losing audio. Call it
// once Wait has returned.
func (q *Queue) Shelve(ctx context.Context, reason string) []string {
	q.mu.Lock()
	pending := map[string]*domain.Task{}
	artifacts := map[string][]string{}
	var order []string
	take := func(sessionID string) *domain.Task {
		task, ok := pending[sessionID]
		if !ok {
			task = &domain.Task{Kind: domain.KindSession, SessionID: sessionID, Meta: domain.SessionMeta{ID: sessionID}}
			pending[sessionID] = task
			order = append(order, sessionID)
		}
		return task
	}
	for _, t := range q.tasks {
		task := take(t.SessionID)
		if t.Kind != domain.KindChunk {
			task.Meta = t.Meta
		}
		task.Chunks = append(task.Chunks, t.Chunks...)
	}
	for sessionID, st := range q.sessions {
		if len(st.chunks) > 0 || st.failed || len(st.artifacts) > 0 {
			task := take(sessionID)
			task.Chunks = append(task.Chunks, st.chunks...)
		}
	}
	for _, sessionID := range order {
		q.dropSessionLocked(sessionID)
		artifacts[sessionID] = q.forgetLocked(sessionID)
	}
	q.mu.Unlock()

	sort.Strings(order)
	for _, sessionID := range order {
		task := pending[sessionID]
		if len(task.Chunks) == 0 {
			q.abandon(ctx, sessionID, nil, artifacts[sessionID], reason)
			continue
		}
		sort.SliceStable(task.Chunks, func(i, j int) bool { return task.Chunks[i].Sequence < task.Chunks[j].Sequence })
		task.Meta.FirstSequence = task.Chunks[0].Sequence
		task.Meta.LastSequence = task.Chunks[len(task.Chunks)-1].Sequence
		q.abandon(ctx, sessionID, task, artifacts[sessionID], reason)
	}
	return order
}

// Cancel drops every pending task and retry timer of a session.
func (q *Queue) Cancel(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropSessionLocked(sessionID)
	delete(q.sessions, sessionID)
	q.notifyLocked()
}

func (q *Queue) Stats() dto.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := q.stats
	stats.Pending = len(q.tasks)
	for _, t := range q.tasks {
		if t.timer != nil {
			stats.WaitingTimers++
		}
		stats.BufferedBytes += t.Size()
	}
	for _, st := range q.sessions {
		for _, c := range st.chunks {
			stats.BufferedBytes += int64(len(c.Data))
		}
	}
	return stats
}

// WaitIdle blocks until no task is pending or in flight, or ctx ends.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 && !q.busy {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.running.Store(false)
	q.log.Debugw("delivery worker started", "mode", q.opts.Mode, "policy", q.opts.Policy.Name)
	for {
		if ctx.Err() != nil {
			return
		}
		t := q.next()
		if t == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}
		q.attempt(ctx, t)
		q.mu.Lock()
		q.busy = false
		q.notifyLocked()
		q.mu.Unlock()
	}
}

func (q *Queue) next() *queuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := map[string]bool{}
	for _, t := range q.tasks {
		if seen[t.SessionID] {
			continue
		}
		seen[t.SessionID] = true
		if t.waiting {
			continue
		}
		q.busy = true
		return t
	}
	return nil
}

func (q *Queue) attempt(ctx context.Context, t *queuedTask) {
	if !q.gate.Deliverable() {
		q.log.Debugw("delivery gate closed, deferring", "task", t.ID, "session_id", t.SessionID)
		q.retryLater(t, t.policy.GateRetry)
		return
	}
	switch t.Kind {
	case domain.KindFinalize:
		if q.sessionFailed(t.SessionID) {
			q.mu.Lock()
			q.removeLocked(t)
			artifacts := q.forgetLocked(t.SessionID)
			q.mu.Unlock()
			q.abandon(ctx, t.SessionID, nil, artifacts, "chunk delivery failed")
			return
		}
		if !q.markDelivering(ctx, t) {
			return
		}
	case domain.KindSession:
		if !q.markDelivering(ctx, t) {
			return
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, t.policy.TransferTimeout)
	ack, err := q.send(attemptCtx, t)
	cancel()
	confirmed := err == nil && ack.Confirms(t.Task)
	if !confirmed && ctx.Err() != nil {
		return
	}
	if err == nil && !confirmed {
		err = fmt.Errorf("task %s: %w", t.ID, apperrors.ErrDeliveryUnconfirmed)
	}

	q.mu.Lock()
	if !q.containsLocked(t) {
		q.mu.Unlock()
		q.log.Infow("task cancelled during transfer", "task", t.ID, "session_id", t.SessionID)
		return
	}
	t.Attempts++
	q.stats.Attempts++
	attempts := t.Attempts
	q.mu.Unlock()

	switch {
	case confirmed:
		// The endpoint holds the session now; record it even when shutting down.
		q.succeed(context.WithoutCancel(ctx), t)
	case !apperrors.Retryable(err):
		q.escalate(ctx, t, err)
	case attempts >= t.policy.MaxAttempts:
		q.escalate(ctx, t, err)
	default:
		delay := t.policy.Delay(attempts - 1)
		q.log.Infow("transfer failed, retrying", "task", t.ID, "session_id", t.SessionID, "attempt", attempts, "max_attempts", t.policy.MaxAttempts, "delay", delay, "error", err)
		q.retryLater(t, delay)
	}
}

func (q *Queue) send(ctx context.Context, t *queuedTask) (domain.Ack, error) {
	if t.Kind == domain.KindChunk {
		return q.transport.StageChunk(ctx, domain.ChunkUpload{SessionID: t.SessionID, Sequence: t.Sequence(), Audio: t.Chunks[0].Data})
	}
	return q.transport.SubmitSession(ctx, domain.Submission{
		Meta:        t.Meta,
		Filename:    artifact.Filename(t.SessionID, t.Meta.Label, t.Meta.StartTime, "webm"),
		ContentType: artifact.ContentTypeWebM,
		Audio:       t.Payload(),
	})
}

// markDelivering records the hand-over in the catalog. It reports false when
// the session turned out to be delivered already.
func (q *Queue) markDelivering(ctx context.Context, t *queuedTask) bool {
	session, err := q.store.Get(ctx, t.SessionID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		q.log.Warnw("session missing from catalog, delivering from memory", "session_id", t.SessionID)
		return true
	case err != nil:
		q.log.Errorw("read session before transfer", "session_id", t.SessionID, "error", err)
		return true
	case session.Status == catalogdomain.StatusDelivered:
		q.log.Infow("session already delivered, dropping task", "session_id", t.SessionID, "task", t.ID)
		q.mu.Lock()
		q.dropSessionLocked(t.SessionID)
		q.mu.Unlock()
		return false
	case session.Status == catalogdomain.StatusDelivering:
		return true
	}
	session.Status = catalogdomain.StatusDelivering
	if err := q.store.Put(ctx, session); err != nil {
		q.log.Warnw("record delivering status", "session_id", t.SessionID, "error", err)
	}
	return true
}

func (q *Queue) succeed(ctx context.Context, t *queuedTask) {
	final := t.Kind != domain.KindChunk
	q.mu.Lock()
	q.removeLocked(t)
	if final {
		q.dropSessionLocked(t.SessionID)
		delete(q.sessions, t.SessionID)
		q.stats.Delivered++
	}
	q.mu.Unlock()

	if !final {
		q.log.Debugw("chunk staged", "session_id", t.SessionID, "sequence", t.Sequence(), "attempts", t.Attempts)
		return
	}
	if err := q.store.MarkDelivered(ctx, t.SessionID); err != nil {
		q.log.Warnw("mark delivered", "session_id", t.SessionID, "error", err)
	}
	q.log.Infow("session delivered", "session_id", t.SessionID, "attempts", t.Attempts, "bytes", t.Size())
}

func (q *Queue) escalate(ctx context.Context, t *queuedTask, cause error) {
	q.log.Warnw("delivery failed permanently", "task", t.ID, "session_id", t.SessionID, "kind", t.Kind, "attempts", t.Attempts, "error", cause)
	if t.Kind == domain.KindChunk {
		q.mu.Lock()
		q.removeLocked(t)
		q.stateLocked(t.SessionID).failed = true
		q.stats.Escalated++
		q.mu.Unlock()
		q.persistChunk(ctx, t.Chunks[0])
		return
	}
	q.mu.Lock()
	q.dropSessionLocked(t.SessionID)
	artifacts := q.forgetLocked(t.SessionID)
	q.stats.Escalated++
	q.mu.Unlock()
	task := t.Task
	q.abandon(ctx, t.SessionID, &task, artifacts, cause.Error())
}

// abandon moves a session to abandoned and keeps its payload reachable: in
// the catalog when it fits the emergency ceiling, as an exported artifact
// otherwise. chunkArtifacts are chunks of the session exported earlier.
func (q *Queue) abandon(ctx context.Context, sessionID string, task *domain.Task, chunkArtifacts []string, reason string) {
	var data []byte
	meta := domain.SessionMeta{ID: sessionID}
	if task != nil {
		data = task.Payload()
		meta = task.Meta
	}

	session, err := q.store.Get(ctx, sessionID)
	if err != nil {
		if task == nil {
			q.log.Errorw("abandon session", "session_id", sessionID, "error", err)
			return
		}
		session = catalogdomain.Session{
			ID:         sessionID,
			Label:      meta.Label,
			StartTime:  meta.StartTime,
			EndTime:    meta.EndTime,
			ChunkCount: meta.ChunkCount,
			TotalBytes: meta.TotalBytes,
			Status:     catalogdomain.StatusStopped,
		}
	}
	if session.Status == catalogdomain.StatusDelivered {
		return
	}
	session.Status = catalogdomain.StatusAbandoned
	session.Payload = nil
	session.ChunkArtifacts = appendMissing(session.ChunkArtifacts, chunkArtifacts...)

	exported := ""
	if len(data) > 0 {
		if len(data) <= q.opts.EmergencyMaxBytes {
			session.Payload = &catalogdomain.Payload{FirstSequence: meta.FirstSequence, LastSequence: meta.LastSequence, Data: data}
		} else {
			exported = q.export(ctx, meta, data, "payload over emergency ceiling: "+reason)
			session.ArtifactPath = exported
		}
	}
	if err := q.store.Put(ctx, session); err != nil {
		q.log.Errorw("emergency persistence failed", "session_id", sessionID, "error", err)
		if len(data) > 0 && exported == "" {
			q.export(ctx, meta, data, "emergency persistence failed: "+reason)
		}
		return
	}
	q.log.Warnw("session abandoned", "session_id", sessionID, "payload_bytes", len(data), "artifact", exported, "reason", reason)
}

// persistChunk stores a failed chunk in the emergency slot. A different chunk
// already in the slot is exported first so overwriting never loses it.
func (q *Queue) persistChunk(ctx context.Context, chunk domain.Chunk) {
	meta := domain.SessionMeta{ID: chunk.SessionID, FirstSequence: chunk.Sequence, LastSequence: chunk.Sequence, Partial: true}
	if len(chunk.Data) > q.opts.EmergencyMaxBytes {
		q.keepArtifact(ctx, chunk.SessionID, q.export(ctx, meta, chunk.Data, "chunk over emergency ceiling"))
		return
	}
	prev, err := q.store.LoadEmergency(ctx)
	if err == nil && len(prev.Data) > 0 && (prev.SessionID != chunk.SessionID || prev.Sequence != chunk.Sequence) {
		prevMeta := domain.SessionMeta{ID: prev.SessionID, FirstSequence: prev.Sequence, LastSequence: prev.Sequence, Partial: true}
		q.keepArtifact(ctx, prev.SessionID, q.export(ctx, prevMeta, prev.Data, "emergency slot overwritten"))
	}
	slot := catalogdomain.EmergencySlot{SessionID: chunk.SessionID, Sequence: chunk.Sequence, SavedAt: q.clock.Now(), Data: chunk.Data}
	if err := q.store.SaveEmergency(ctx, slot); err != nil {
		q.log.Errorw("save emergency chunk", "session_id", chunk.SessionID, "sequence", chunk.Sequence, "error", err)
		q.keepArtifact(ctx, chunk.SessionID, q.export(ctx, meta, chunk.Data, "emergency save failed"))
		return
	}
	q.log.Warnw("chunk kept in emergency slot", "session_id", chunk.SessionID, "sequence", chunk.Sequence, "bytes", len(chunk.Data))
}

// keepArtifact links an exported chunk to its session: in memory while the
// queue still tracks the session, on the catalog record after that.
func (q *Queue) keepArtifact(ctx context.Context, sessionID, path string) {
	if path == "" {
		return
	}
	q.mu.Lock()
	if st, ok := q.sessions[sessionID]; ok {
		st.artifacts = append(st.artifacts, path)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	session, err := q.store.Get(ctx, sessionID)
	if err != nil {
		q.log.Warnw("link exported chunk", "session_id", sessionID, "path", path, "error", err)
		return
	}
	if session.Status == catalogdomain.StatusDelivered {
		return
	}
	session.ChunkArtifacts = appendMissing(session.ChunkArtifacts, path)
	if err := q.store.Put(ctx, session); err != nil {
		q.log.Warnw("link exported chunk", "session_id", sessionID, "path", path, "error", err)
	}
}

func (q *Queue) export(ctx context.Context, meta domain.SessionMeta, data []byte, reason string) string {
	path, err := q.exporter.Export(ctx, meta, data, reason)
	if err != nil {
		q.log.Errorw("export artifact", "session_id", meta.ID, "bytes", len(data), "error", err)
		return ""
	}
	q.log.Warnw("payload exported", "session_id", meta.ID, "path", path, "reason", reason)
	return path
}

func (q *Queue) retryLater(t *queuedTask, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.containsLocked(t) {
		return
	}
	t.waiting = true
	t.NextEligible = q.clock.Now().Add(delay)
	t.timer = q.scheduler.AfterFunc(delay, func() {
		q.mu.Lock()
		if t.timer != nil {
			t.waiting = false
			t.timer = nil
		}
		q.notifyLocked()
		q.mu.Unlock()
		q.signal()
	})
}

func (q *Queue) sessionFailed(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.sessions[sessionID]
	return st != nil && st.failed
}

func (q *Queue) stateLocked(sessionID string) *sessionState {
	st, ok := q.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		q.sessions[sessionID] = st
	}
	return st
}

func (q *Queue) pushLocked(task domain.Task, policy domain.Policy) {
	q.seq++
	task.ID = fmt.Sprintf("%s-%d", task.Kind, q.seq)
	task.EnqueuedAt = q.clock.Now()
	task.NextEligible = task.EnqueuedAt
	q.tasks = append(q.tasks, &queuedTask{Task: task, policy: policy})
	q.notifyLocked()
	q.signal()
}

// forgetLocked drops the session's in-memory state and returns the chunk
// artifacts it was holding.
func (q *Queue) forgetLocked(sessionID string) []string {
	var artifacts []string
	if st := q.sessions[sessionID]; st != nil {
		artifacts = st.artifacts
	}
	delete(q.sessions, sessionID)
	return artifacts
}

func (q *Queue) hasTaskLocked(sessionID string) bool {
	for _, t := range q.tasks {
		if t.SessionID == sessionID {
			return true
		}
	}
	return false
}

func (q *Queue) containsLocked(target *queuedTask) bool {
	for _, t := range q.tasks {
		if t == target {
			return true
		}
	}
	return false
}

func (q *Queue) removeLocked(target *queuedTask) {
	for i, t := range q.tasks {
		if t == target {
			if t.timer != nil {
				t.timer.Stop()
				t.timer = nil
			}
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			q.notifyLocked()
			return
		}
	}
}

func (q *Queue) dropSessionLocked(sessionID string) {
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.SessionID != sessionID {
			kept = append(kept, t)
			continue
		}
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
	}
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = nil
	}
	q.tasks = kept
	q.notifyLocked()
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func appendMissing(list []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
