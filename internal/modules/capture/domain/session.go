package domain

import (
	"time"

	catalogdomain "recvault/internal/modules/catalog/domain"
)

type Chunk struct {
	SessionID string
	Sequence  int
	Data      []byte
}

// ActiveSession is the in-memory state of the session being recorded. Its
// counters only grow.
type ActiveSession struct {
	ID         string
	Label      string
	StartTime  time.Time
	ChunkCount int
	TotalBytes int64
}

// Append assigns the next sequence number to data and bumps the counters.
// The returned chunk owns a copy of data.
func (a *ActiveSession) Append(data []byte) Chunk {
	chunk := Chunk{SessionID: a.ID, Sequence: a.ChunkCount, Data: append([]byte(nil), data...)}
	a.ChunkCount++
	a.TotalBytes += int64(len(data))
	return chunk
}

func (a ActiveSession) Snapshot() catalogdomain.Session {
	return catalogdomain.Session{
		ID:         a.ID,
		Label:      a.Label,
		StartTime:  a.StartTime,
		ChunkCount: a.ChunkCount,
		TotalBytes: a.TotalBytes,
		Status:     catalogdomain.StatusActive,
	}
}

func (a ActiveSession) Stopped(end time.Time) catalogdomain.Session {
	s := a.Snapshot()
	s.EndTime = &end
	s.Status = catalogdomain.StatusStopped
	return s
}
