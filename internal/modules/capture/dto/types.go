package dto

import "time"

type StartInput struct {
	Label string
}

type StartOutput struct {
	SessionID string
	StartTime time.Time
}

type AppendOutput struct {
	SessionID  string
	Sequence   int
	ChunkCount int
	TotalBytes int64
}

type SessionOutput struct {
	ID         string     `json:"id"`
	Label      string     `json:"label,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	ChunkCount int        `json:"chunk_count"`
	TotalBytes int64      `json:"total_bytes"`
	Status     string     `json:"status"`
}
