package service

import (
	"context"
	"fmt"
	"strings"

	catalogdomain "recvault/internal/modules/catalog/domain"
	"recvault/internal/modules/recovery/domain"
	"recvault/internal/modules/recovery/dto"
	recoveryout "recvault/internal/modules/recovery/port/out"
	"recvault/internal/platform/artifact"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
)

const exportReason = "exported for manual recovery"

type RecoveryService struct {
	artifacts recoveryout.ArtifactStore
	log       logging.Logger
}

func NewRecoveryService(artifacts recoveryout.ArtifactStore, logger logging.Logger) *RecoveryService {
	return &RecoveryService{artifacts: artifacts, log: logger}
}

// Normalize turns entries left active or delivering by a previous process
// into stopped ones. It reports whether the session changed.
func (s *RecoveryService) Normalize(session catalogdomain.Session) (catalogdomain.Session, bool) {
	switch session.Status {
	case catalogdomain.StatusActive:
		end := session.TouchedAt
		if end.IsZero() || end.Before(session.StartTime) {
			end = session.StartTime
		}
		session.EndTime = &end
		session.Status = catalogdomain.StatusStopped
		return session, true
	case catalogdomain.StatusDelivering:
		session.Status = catalogdomain.StatusStopped
		return session, true
	default:
		return session, false
	}
}

// Resolve finds the payload still held for a session: the catalog record
// first, otherwise whatever the emergency slot and exported artifacts hold,
// joined in sequence order.
func (s *RecoveryService) Resolve(ctx context.Context, session catalogdomain.Session, slot *catalogdomain.EmergencySlot) (domain.Recovered, bool) {
	if session.HasPayload() {
		return domain.Recovered{
			FirstSequence: session.Payload.FirstSequence,
			LastSequence:  session.Payload.LastSequence,
			Data:          session.Payload.Data,
			Source:        domain.SourceCatalog,
		}, true
	}
	var pieces []domain.Recovered
	if slot != nil && slot.SessionID == session.ID && len(slot.Data) > 0 {
		pieces = append(pieces, domain.Recovered{FirstSequence: slot.Sequence, LastSequence: slot.Sequence, Data: slot.Data, Source: domain.SourceEmergency})
	}
	for _, path := range session.Artifacts() {
		recovered, err := s.artifacts.Load(ctx, path)
		if err != nil {
			s.log.Warnw("exported payload unreadable", "session_id", session.ID, "path", path, "error", err)
			continue
		}
		recovered.Source = domain.SourceArtifact
		pieces = append(pieces, recovered)
	}
	recovered := domain.Merge(pieces)
	return recovered, len(recovered.Data) > 0
}

func (s *RecoveryService) Describe(session catalogdomain.Session, recovered domain.Recovered, ok bool) dto.RecoverableOutput {
	out := dto.RecoverableOutput{
		ID:           session.ID,
		Label:        session.Label,
		StartTime:    session.StartTime,
		EndTime:      session.EndTime,
		ChunkCount:   session.ChunkCount,
		TotalBytes:   session.TotalBytes,
		Status:       string(session.Status),
		Exported:     session.Exported,
		Recoverable:  ok,
		ArtifactPath: session.ArtifactPath,
	}
	if !ok {
		out.PartialLoss = session.ChunkCount > 0
		return out
	}
	out.Source = string(recovered.Source)
	out.PayloadBytes = len(recovered.Data)
	out.FirstSequence = recovered.FirstSequence
	out.LastSequence = recovered.LastSequence
	out.MissingSequences = recovered.MissingSequences(session.ChunkCount)
	out.PartialLoss = len(out.MissingSequences) > 0
	return out
}

// BuildArtifact renders the recovered payload as a downloadable file plus
// its YAML manifest. The output only depends on its inputs.
func (s *RecoveryService) BuildArtifact(session catalogdomain.Session, recovered domain.Recovered, format string) (dto.ArtifactOutput, error) {
	ext := "webm"
	contentType := artifact.ContentTypeWebM
	data := recovered.Data
	switch strings.ToLower(format) {
	case "", "webm":
	case "wav":
		wrapped, err := artifact.WrapWAV(recovered.Data, artifact.DefaultWAVFormat())
		if err != nil {
			return dto.ArtifactOutput{}, err
		}
		ext, contentType, data = "wav", artifact.ContentTypeWAV, wrapped
	default:
		return dto.ArtifactOutput{}, fmt.Errorf("unsupported export format %q: %w", format, apperrors.ErrInvalidInput)
	}

	m := artifact.Manifest{
		SessionID:        session.ID,
		Label:            session.Label,
		StartTime:        session.StartTime,
		EndTime:          session.EndTime,
		ChunkCount:       session.ChunkCount,
		TotalBytes:       session.TotalBytes,
		PayloadBytes:     len(recovered.Data),
		FirstSequence:    recovered.FirstSequence,
		LastSequence:     recovered.LastSequence,
		MissingSequences: recovered.MissingSequences(session.ChunkCount),
		ContentType:      contentType,
		Reason:           exportReason,
		ExportedAt:       session.TouchedAt,
	}
	raw, err := m.Render()
	if err != nil {
		return dto.ArtifactOutput{}, err
	}
	return dto.ArtifactOutput{
		SessionID:   session.ID,
		Filename:    artifact.Filename(session.ID, session.Label, session.StartTime, ext),
		ContentType: contentType,
		Data:        data,
		Manifest:    raw,
	}, nil
}
