package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recvault/internal/modules/catalog/domain"
	catalogin "recvault/internal/modules/catalog/port/in"
	catalogout "recvault/internal/modules/catalog/port/out"
	"recvault/internal/platform/clock"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
	"recvault/internal/platform/tx"
)

const (
	DefaultMaxBackups        = 5
	DefaultMaxBytes          = 5 * 1024 * 1024
	DefaultEmergencyMaxBytes = 50 * 1024

	// keepOnQuota is how many of the most recently touched entries survive a
	// backend quota failure.
	keepOnQuota = 2
	corruptKey  = domain.CatalogKey + ".corrupt"
)

type Options struct {
	MaxBackups        int
	MaxBytes          int
	EmergencyMaxBytes int
}

func (o Options) withDefaults() Options {
	if o.MaxBackups <= 0 {
		o.MaxBackups = DefaultMaxBackups
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.EmergencyMaxBytes <= 0 {
		o.EmergencyMaxBytes = DefaultEmergencyMaxBytes
	}
	return o
}

type CatalogService struct {
	backend catalogout.Backend
	tx      tx.Manager
	clock   clock.Clock
	log     logging.Logger
	opts    Options
}

func NewCatalogService(backend catalogout.Backend, txm tx.Manager, clk clock.Clock, logger logging.Logger, opts Options) catalogin.Store {
	return &CatalogService{backend: backend, tx: txm, clock: clk, log: logger, opts: opts.withDefaults()}
}

func (s *CatalogService) Put(ctx context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required: %w", apperrors.ErrInvalidInput)
	}
	if !session.Status.Valid() {
		return fmt.Errorf("session %s has unknown status %q: %w", session.ID, session.Status, apperrors.ErrInvalidInput)
	}
	if session.Status == domain.StatusActive && session.EndTime != nil {
		return fmt.Errorf("active session %s has an end time: %w", session.ID, apperrors.ErrInvalidInput)
	}
	return s.tx.Within(ctx, func(ctx context.Context) error {
		cat, err := s.load(ctx)
		if err != nil {
			return err
		}
		if idx := indexOf(cat.Sessions, session.ID); idx >= 0 {
			current := cat.Sessions[idx]
			if current.Status == domain.StatusDelivered {
				return fmt.Errorf("put %s: %w", session.ID, apperrors.ErrDeliveredImmutable)
			}
			if !domain.CanTransition(current.Status, session.Status) {
				return fmt.Errorf("session %s cannot move from %s to %s: %w", session.ID, current.Status, session.Status, apperrors.ErrInvalidInput)
			}
			cat.Sessions = append(cat.Sessions[:idx], cat.Sessions[idx+1:]...)
		}
		session.TouchedAt = s.clock.Now()
		session.Payload = s.boundPayload(session.ID, session.Payload)
		cat.Sessions = append([]domain.Session{session}, cat.Sessions...)
		cat.Sessions = s.enforceRetention(cat.Sessions)
		return s.persist(ctx, cat, session.ID)
	})
}

func (s *CatalogService) Get(ctx context.Context, id string) (domain.Session, error) {
	cat, err := s.load(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	idx := indexOf(cat.Sessions, id)
	if idx < 0 {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	return cat.Sessions[idx], nil
}

func (s *CatalogService) List(ctx context.Context) ([]domain.Session, error) {
	cat, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Sessions, nil
}

// MarkDelivered is idempotent. The stored payload and any emergency slot
// owned by the session are dropped.
func (s *CatalogService) MarkDelivered(ctx context.Context, id string) error {
	return s.tx.Within(ctx, func(ctx context.Context) error {
		cat, err := s.load(ctx)
		if err != nil {
			return err
		}
		idx := indexOf(cat.Sessions, id)
		if idx < 0 {
			return fmt.Errorf("mark delivered %s: %w", id, apperrors.ErrNotFound)
		}
		session := cat.Sessions[idx]
		if session.Status == domain.StatusDelivered {
			return nil
		}
		session.Status = domain.StatusDelivered
		session.Payload = nil
		session.TouchedAt = s.clock.Now()
		if session.EndTime == nil {
			end := session.TouchedAt
			session.EndTime = &end
		}
		cat.Sessions = append(cat.Sessions[:idx], cat.Sessions[idx+1:]...)
		cat.Sessions = append([]domain.Session{session}, cat.Sessions...)
		if err := s.persist(ctx, cat, id); err != nil {
			return err
		}
		return s.clearEmergencyFor(ctx, id)
	})
}

// EvictOldest removes up to n of the oldest non-active entries and returns
// their ids.
func (s *CatalogService) EvictOldest(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var evicted []string
	err := s.tx.Within(ctx, func(ctx context.Context) error {
		cat, err := s.load(ctx)
		if err != nil {
			return err
		}
		for len(evicted) < n {
			idx := oldestEvictable(cat.Sessions, "")
			if idx < 0 {
				break
			}
			evicted = append(evicted, cat.Sessions[idx].ID)
			cat.Sessions = append(cat.Sessions[:idx], cat.Sessions[idx+1:]...)
		}
		if len(evicted) == 0 {
			return nil
		}
		return s.persist(ctx, cat, "")
	})
	if err != nil {
		return nil, err
	}
	if len(evicted) > 0 {
		s.log.Infow("evicted catalog entries", "sessions", evicted)
	}
	return evicted, nil
}

// Remove deletes an entry. Unknown ids are not an error.
func (s *CatalogService) Remove(ctx context.Context, id string) error {
	return s.tx.Within(ctx, func(ctx context.Context) error {
		cat, err := s.load(ctx)
		if err != nil {
			return err
		}
		idx := indexOf(cat.Sessions, id)
		if idx >= 0 {
			cat.Sessions = append(cat.Sessions[:idx], cat.Sessions[idx+1:]...)
			if err := s.persist(ctx, cat, ""); err != nil {
				return err
			}
		}
		return s.clearEmergencyFor(ctx, id)
	})
}

// SaveEmergency overwrites the emergency slot. Payloads over the emergency
// ceiling are refused so callers can degrade to metadata-only.
func (s *CatalogService) SaveEmergency(ctx context.Context, slot domain.EmergencySlot) error {
	if slot.SessionID == "" {
		return fmt.Errorf("emergency slot needs a session id: %w", apperrors.ErrInvalidInput)
	}
	if len(slot.Data) > s.opts.EmergencyMaxBytes {
		return fmt.Errorf("emergency payload of %d bytes exceeds %d: %w", len(slot.Data), s.opts.EmergencyMaxBytes, apperrors.ErrInvalidInput)
	}
	if slot.SavedAt.IsZero() {
		slot.SavedAt = s.clock.Now()
	}
	data, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("encode emergency slot: %w", err)
	}
	return s.tx.Within(ctx, func(ctx context.Context) error {
		err := s.backend.Set(ctx, domain.EmergencyKey, data)
		if err == nil || !errors.Is(err, apperrors.ErrQuotaExceeded) {
			return err
		}
		cat, loadErr := s.load(ctx)
		if loadErr != nil {
			return loadErr
		}
		s.log.Warnw("emergency save exceeded quota, trimming catalog", "keep", keepOnQuota, "sessions", len(cat.Sessions))
		cat.Sessions = keepRecent(cat.Sessions, keepOnQuota, slot.SessionID)
		if err := s.persist(ctx, cat, slot.SessionID); err != nil {
			return err
		}
		if err := s.backend.Set(ctx, domain.EmergencyKey, data); err != nil {
			if errors.Is(err, apperrors.ErrQuotaExceeded) {
				return fmt.Errorf("%w: %w", apperrors.ErrStoreExhausted, err)
			}
			return err
		}
		return nil
	})
}

func (s *CatalogService) LoadEmergency(ctx context.Context) (domain.EmergencySlot, error) {
	raw, err := s.backend.Get(ctx, domain.EmergencyKey)
	if err != nil {
		return domain.EmergencySlot{}, err
	}
	slot := domain.EmergencySlot{}
	if err := json.Unmarshal(raw, &slot); err != nil {
		return domain.EmergencySlot{}, fmt.Errorf("decode emergency slot: %w", err)
	}
	return slot, nil
}

func (s *CatalogService) ClearEmergency(ctx context.Context) error {
	return s.backend.Delete(ctx, domain.EmergencyKey)
}

func (s *CatalogService) Purge(ctx context.Context) error {
	return s.tx.Within(ctx, func(ctx context.Context) error {
		for _, key := range []string{domain.CatalogKey, domain.EmergencyKey, corruptKey} {
			if err := s.backend.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *CatalogService) load(ctx context.Context) (domain.Catalog, error) {
	raw, err := s.backend.Get(ctx, domain.CatalogKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Catalog{Version: domain.SchemaVersion}, nil
		}
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	cat := domain.Catalog{}
	if err := json.Unmarshal(raw, &cat); err != nil {
		s.log.Errorw("catalog is unreadable, starting empty", "error", err, "bytes", len(raw))
		if setErr := s.backend.Set(ctx, corruptKey, raw); setErr != nil {
			s.log.Warnw("could not keep unreadable catalog", "error", setErr)
		}
		return domain.Catalog{Version: domain.SchemaVersion}, nil
	}
	return cat, nil
}

// persist writes cat as one snapshot. Entries are purged oldest-first until
// the byte ceiling holds; a backend quota failure keeps the most recent
// entries and retries exactly once.
func (s *CatalogService) persist(ctx context.Context, cat domain.Catalog, writing string) error {
	cat.Version = domain.SchemaVersion
	data, err := s.fitCeiling(&cat, writing)
	if err != nil {
		return err
	}
	err = s.backend.Set(ctx, domain.CatalogKey, data)
	if err == nil || !errors.Is(err, apperrors.ErrQuotaExceeded) {
		return err
	}

	s.log.Warnw("catalog write exceeded quota, keeping most recent entries", "keep", keepOnQuota, "sessions", len(cat.Sessions))
	cat.Sessions = keepRecent(cat.Sessions, keepOnQuota, writing)
	data, err = json.Marshal(cat)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := s.backend.Set(ctx, domain.CatalogKey, data); err != nil {
		if errors.Is(err, apperrors.ErrQuotaExceeded) {
			return fmt.Errorf("%w: %w", apperrors.ErrStoreExhausted, err)
		}
		return err
	}
	return nil
}

func (s *CatalogService) fitCeiling(cat *domain.Catalog, writing string) ([]byte, error) {
	for {
		data, err := json.Marshal(cat)
		if err != nil {
			return nil, fmt.Errorf("encode catalog: %w", err)
		}
		if len(data) <= s.opts.MaxBytes {
			return data, nil
		}
		idx := oldestEvictable(cat.Sessions, writing)
		if idx >= 0 {
			s.log.Warnw("catalog over byte ceiling, purging oldest entry", "session_id", cat.Sessions[idx].ID, "bytes", len(data), "ceiling", s.opts.MaxBytes)
			cat.Sessions = append(cat.Sessions[:idx], cat.Sessions[idx+1:]...)
			continue
		}
		if w := indexOf(cat.Sessions, writing); w >= 0 && cat.Sessions[w].Payload != nil {
			cat.Sessions[w].Payload = nil
			continue
		}
		return nil, fmt.Errorf("catalog of %d bytes exceeds ceiling %d: %w", len(data), s.opts.MaxBytes, apperrors.ErrStoreExhausted)
	}
}

func (s *CatalogService) enforceRetention(sessions []domain.Session) []domain.Session {
	for len(sessions) > s.opts.MaxBackups {
		idx := oldestEvictable(sessions, sessions[0].ID)
		if idx < 0 {
			break
		}
		s.log.Debugw("retention evicted session", "session_id", sessions[idx].ID, "max_backups", s.opts.MaxBackups)
		sessions = append(sessions[:idx], sessions[idx+1:]...)
	}
	return sessions
}

func (s *CatalogService) boundPayload(id string, payload *domain.Payload) *domain.Payload {
	if payload == nil || len(payload.Data) == 0 {
		return nil
	}
	if len(payload.Data) > s.opts.EmergencyMaxBytes {
		s.log.Warnw("payload over emergency ceiling, keeping metadata only", "session_id", id, "bytes", len(payload.Data), "ceiling", s.opts.EmergencyMaxBytes)
		return nil
	}
	return payload
}

func (s *CatalogService) clearEmergencyFor(ctx context.Context, id string) error {
	slot, err := s.LoadEmergency(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if slot.SessionID != id {
		return nil
	}
	return s.backend.Delete(ctx, domain.EmergencyKey)
}

func indexOf(sessions []domain.Session, id string) int {
	for i, session := range sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}

// oldestEvictable returns the index of the oldest entry that is neither
// active nor the one named by keep, or -1.
func oldestEvictable(sessions []domain.Session, keep string) int {
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].Status == domain.StatusActive || (keep != "" && sessions[i].ID == keep) {
			continue
		}
		return i
	}
	return -1
}

func keepRecent(sessions []domain.Session, n int, keep string) []domain.Session {
	kept := make([]domain.Session, 0, n+1)
	for i, session := range sessions {
		if i < n || session.Status == domain.StatusActive || session.ID == keep {
			kept = append(kept, session)
		}
	}
	return kept
}
