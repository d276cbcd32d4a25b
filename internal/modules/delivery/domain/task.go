package domain

import (
	"time"

	catalogdomain "recvault/internal/modules/catalog/domain"
)

type Kind string

const (
	// KindSession carries every chunk of a stopped session in one submission.
	KindSession Kind = "session"
	// KindChunk stages a single chunk while the session may still be active.
	KindChunk Kind = "chunk"
	// KindFinalize closes a chunk-mode session with a metadata-only submission.
	KindFinalize Kind = "finalize"
)

type Mode string

const (
	ModeSession Mode = "session"
	ModeChunk   Mode = "chunk"
)

type Chunk struct {
	SessionID string
	Sequence  int
	Data      []byte
}

// SessionMeta is the metadata document sent alongside audio.
type SessionMeta struct {
	ID            string     `json:"id"`
	Label         string     `json:"label,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	ChunkCount    int        `json:"chunk_count"`
	TotalBytes    int64      `json:"total_bytes"`
	FirstSequence int        `json:"first_sequence"`
	LastSequence  int        `json:"last_sequence"`
	Partial       bool       `json:"partial,omitempty"`
}

func MetaFromSession(session catalogdomain.Session) SessionMeta {
	return SessionMeta{
		ID:            session.ID,
		Label:         session.Label,
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		ChunkCount:    session.ChunkCount,
		TotalBytes:    session.TotalBytes,
		FirstSequence: 0,
		LastSequence:  session.ChunkCount - 1,
	}
}

type Task struct {
	ID           string
	Kind         Kind
	SessionID    string
	Meta         SessionMeta
	Chunks       []Chunk
	Attempts     int
	EnqueuedAt   time.Time
	NextEligible time.Time
}

func (t Task) Payload() []byte {
	if len(t.Chunks) == 1 {
		return t.Chunks[0].Data
	}
	size := 0
	for _, c := range t.Chunks {
		size += len(c.Data)
	}
	out := make([]byte, 0, size)
	for _, c := range t.Chunks {
		out = append(out, c.Data...)
	}
	return out
}

func (t Task) Size() int64 {
	var n int64
	for _, c := range t.Chunks {
		n += int64(len(c.Data))
	}
	return n
}

// Sequence returns the chunk sequence of a chunk task, or -1.
func (t Task) Sequence() int {
	if t.Kind != KindChunk || len(t.Chunks) == 0 {
		return -1
	}
	return t.Chunks[0].Sequence
}
