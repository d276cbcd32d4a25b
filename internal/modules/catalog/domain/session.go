package domain

import "time"

const SchemaVersion = 1

// Persisted keys of the local backend.
const (
	CatalogKey   = "recvault.sessions"
	EmergencyKey = "recvault.emergency"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusStopped    Status = "stopped"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusAbandoned  Status = "abandoned"
)

var transitions = map[Status][]Status{
	StatusActive:     {StatusStopped, StatusAbandoned},
	StatusStopped:    {StatusDelivering, StatusAbandoned},
	StatusDelivering: {StatusDelivered, StatusAbandoned, StatusStopped},
	StatusAbandoned:  {StatusDelivering},
}

// CanTransition reports whether a session may move from one status to another.
// Staying in the same status is always allowed except for delivered, which is
// terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return from != StatusDelivered
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusStopped, StatusDelivering, StatusDelivered, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Payload is an emergency copy of captured audio for sequences
// FirstSequence..LastSequence inclusive.
type Payload struct {
	FirstSequence int    `json:"first_sequence"`
	LastSequence  int    `json:"last_sequence"`
	Data          []byte `json:"data"`
}

type Session struct {
	ID         string     `json:"id"`
	Label      string     `json:"label,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	ChunkCount int        `json:"chunk_count"`
	TotalBytes int64      `json:"total_bytes"`
	Status     Status     `json:"status"`
	Exported   bool       `json:"exported,omitempty"`
	// ArtifactPath points at a payload that was written out instead of kept.
	ArtifactPath string `json:"artifact_path,omitempty"`
	// ChunkArtifacts point at single chunks exported after a staging failure.
	ChunkArtifacts []string  `json:"chunk_artifacts,omitempty"`
	TouchedAt      time.Time `json:"touched_at"`
	Payload        *Payload  `json:"payload,omitempty"`
}

func (s Session) HasPayload() bool {
	return s.Payload != nil && len(s.Payload.Data) > 0
}

// Artifacts lists every exported file holding audio of the session.
func (s Session) Artifacts() []string {
	var paths []string
	if s.ArtifactPath != "" {
		paths = append(paths, s.ArtifactPath)
	}
	return append(paths, s.ChunkArtifacts...)
}

// Catalog is the whole persisted snapshot, newest-touched first.
type Catalog struct {
	Version  int       `json:"version"`
	Sessions []Session `json:"sessions"`
}

// EmergencySlot holds the single most recent emergency chunk save.
type EmergencySlot struct {
	SessionID string    `json:"session_id"`
	Sequence  int       `json:"sequence"`
	SavedAt   time.Time `json:"saved_at"`
	Data      []byte    `json:"data"`
}
