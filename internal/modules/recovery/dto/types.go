package dto

import "time"

type RecoverableOutput struct {
	ID               string     `json:"id"`
	Label            string     `json:"label,omitempty"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	ChunkCount       int        `json:"chunk_count"`
	TotalBytes       int64      `json:"total_bytes"`
	Status           string     `json:"status"`
	Exported         bool       `json:"exported"`
	Recoverable      bool       `json:"recoverable"`
	Source           string     `json:"source,omitempty"`
	PayloadBytes     int        `json:"payload_bytes"`
	FirstSequence    int        `json:"first_sequence"`
	LastSequence     int        `json:"last_sequence"`
	MissingSequences []int      `json:"missing_sequences,omitempty"`
	PartialLoss      bool       `json:"partial_loss"`
	ArtifactPath     string     `json:"artifact_path,omitempty"`
}

type ResumeOutput struct {
	SessionID string `json:"session_id"`
	Queued    bool   `json:"queued"`
	Reason    string `json:"reason,omitempty"`
}

type ExportInput struct {
	SessionID string
	// Format is "webm" (default) or "wav".
	Format string
}

type ArtifactOutput struct {
	SessionID   string
	Filename    string
	ContentType string
	Data        []byte
	Manifest    []byte
}

type DiscardOutput struct {
	SessionID string `json:"session_id"`
	Removed   bool   `json:"removed"`
}
