package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	catalogdomain "recvault/internal/modules/catalog/domain"
	catalogin "recvault/internal/modules/catalog/port/in"
	deliverydto "recvault/internal/modules/delivery/dto"
	deliveryin "recvault/internal/modules/delivery/port/in"
	"recvault/internal/modules/recovery/dto"
	recoveryin "recvault/internal/modules/recovery/port/in"
	"recvault/internal/modules/recovery/service"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
)

type Interactor struct {
	svc     *service.RecoveryService
	store   catalogin.Store
	queue   deliveryin.Queue
	log     logging.Logger
	scanMu  sync.Mutex
	scanned atomic.Bool
	locks   sync.Map
}

func NewInteractor(svc *service.RecoveryService, store catalogin.Store, queue deliveryin.Queue, logger logging.Logger) recoveryin.Usecase {
	return &Interactor{svc: svc, store: store, queue: queue, log: logger}
}

func (i *Interactor) Scan(ctx context.Context) ([]dto.RecoverableOutput, error) {
	i.scanMu.Lock()
	defer i.scanMu.Unlock()
	if i.scanned.Load() {
		return i.ListRecoverable(ctx)
	}

	sessions, err := i.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovery scan: %w", err)
	}
	for _, session := range sessions {
		normalized, changed := i.svc.Normalize(session)
		if !changed {
			continue
		}
		if err := i.store.Put(ctx, normalized); err != nil {
			i.log.Warnw("normalize orphaned session", "session_id", session.ID, "from", session.Status, "error", err)
			continue
		}
		i.log.Infow("orphaned session stopped", "session_id", session.ID, "was", session.Status)
	}
	i.scanned.Store(true)

	out, err := i.ListRecoverable(ctx)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		i.log.Warnw("undelivered sessions found", "count", len(out))
	}
	return out, nil
}

func (i *Interactor) Scanned() bool {
	return i.scanned.Load()
}

func (i *Interactor) ListRecoverable(ctx context.Context) ([]dto.RecoverableOutput, error) {
	sessions, err := i.store.List(ctx)
	if err != nil {
		return nil, err
	}
	slot := i.emergencySlot(ctx)
	out := make([]dto.RecoverableOutput, 0, len(sessions))
	for _, session := range sessions {
		if session.Status == catalogdomain.StatusDelivered {
			continue
		}
		recovered, ok := i.svc.Resolve(ctx, session, slot)
		out = append(out, i.svc.Describe(session, recovered, ok))
	}
	return out, nil
}

// Resume re-enqueues a recovered payload. Delivered or in-flight sessions are
// left alone.
func (i *Interactor) Resume(ctx context.Context, sessionID string) (dto.ResumeOutput, error) {
	defer i.lock(sessionID)()
	session, err := i.store.Get(ctx, sessionID)
	if err != nil {
		return dto.ResumeOutput{}, err
	}
	switch {
	case session.Status == catalogdomain.StatusDelivered:
		return dto.ResumeOutput{SessionID: sessionID, Reason: "already delivered"}, nil
	case session.Status == catalogdomain.StatusDelivering:
		return dto.ResumeOutput{SessionID: sessionID, Reason: "delivery in progress"}, nil
	case session.Status == catalogdomain.StatusActive:
		return dto.ResumeOutput{}, fmt.Errorf("session %s is still recording: %w", sessionID, apperrors.ErrInvalidInput)
	case session.Exported:
		return dto.ResumeOutput{}, fmt.Errorf("session %s was exported: %w", sessionID, apperrors.ErrNotRecoverable)
	}

	recovered, ok := i.svc.Resolve(ctx, session, i.emergencySlot(ctx))
	if !ok {
		return dto.ResumeOutput{}, fmt.Errorf("session %s has no payload left: %w", sessionID, apperrors.ErrNotRecoverable)
	}
	err = i.queue.Resume(ctx, deliverydto.ResumeInput{
		SessionID:     sessionID,
		FirstSequence: recovered.FirstSequence,
		LastSequence:  recovered.LastSequence,
		Gaps:          recovered.HasGaps(),
		Data:          recovered.Data,
	})
	if err != nil {
		return dto.ResumeOutput{}, err
	}
	return dto.ResumeOutput{SessionID: sessionID, Queued: true}, nil
}

// Export marks the session abandoned and exported and returns the artifact.
// Exporting again returns the same bytes.
func (i *Interactor) Export(ctx context.Context, input dto.ExportInput) (dto.ArtifactOutput, error) {
	defer i.lock(input.SessionID)()
	session, err := i.store.Get(ctx, input.SessionID)
	if err != nil {
		return dto.ArtifactOutput{}, err
	}
	switch session.Status {
	case catalogdomain.StatusDelivered:
		return dto.ArtifactOutput{}, fmt.Errorf("session %s was delivered: %w", session.ID, apperrors.ErrNotRecoverable)
	case catalogdomain.StatusActive, catalogdomain.StatusDelivering:
		return dto.ArtifactOutput{}, fmt.Errorf("session %s is %s: %w", session.ID, session.Status, apperrors.ErrInvalidInput)
	}
	recovered, ok := i.svc.Resolve(ctx, session, i.emergencySlot(ctx))
	if !ok {
		return dto.ArtifactOutput{}, fmt.Errorf("session %s has no payload left: %w", session.ID, apperrors.ErrNotRecoverable)
	}

	if !session.Exported {
		i.queue.Cancel(session.ID)
		session.Status = catalogdomain.StatusAbandoned
		session.Exported = true
		if err := i.store.Put(ctx, session); err != nil {
			return dto.ArtifactOutput{}, err
		}
		if session, err = i.store.Get(ctx, session.ID); err != nil {
			return dto.ArtifactOutput{}, err
		}
		i.log.Infow("session exported", "session_id", session.ID, "bytes", len(recovered.Data), "source", recovered.Source)
	}
	return i.svc.BuildArtifact(session, recovered, input.Format)
}

// Discard drops a session and any queued work for it. Unknown ids are a
// no-op.
func (i *Interactor) Discard(ctx context.Context, sessionID string) (dto.DiscardOutput, error) {
	defer i.lock(sessionID)()
	session, err := i.store.Get(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return dto.DiscardOutput{SessionID: sessionID}, nil
	}
	if err != nil {
		return dto.DiscardOutput{}, err
	}
	if session.Status == catalogdomain.StatusActive && i.scanned.Load() {
		return dto.DiscardOutput{}, fmt.Errorf("session %s is still recording: %w", sessionID, apperrors.ErrInvalidInput)
	}
	i.queue.Cancel(sessionID)
	if err := i.store.Remove(ctx, sessionID); err != nil {
		return dto.DiscardOutput{}, err
	}
	i.log.Infow("session discarded", "session_id", sessionID, "status", session.Status)
	return dto.DiscardOutput{SessionID: sessionID, Removed: true}, nil
}

func (i *Interactor) emergencySlot(ctx context.Context) *catalogdomain.EmergencySlot {
	slot, err := i.store.LoadEmergency(ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			i.log.Warnw("read emergency slot", "error", err)
		}
		return nil
	}
	return &slot
}

func (i *Interactor) lock(sessionID string) func() {
	v, _ := i.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
