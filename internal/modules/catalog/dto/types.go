package dto

import "time"

type SessionOutput struct {
	ID           string     `json:"id"`
	Label        string     `json:"label,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ChunkCount   int        `json:"chunk_count"`
	TotalBytes   int64      `json:"total_bytes"`
	Status       string     `json:"status"`
	Exported     bool       `json:"exported"`
	PayloadBytes int        `json:"payload_bytes"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	TouchedAt    time.Time  `json:"touched_at"`
}
