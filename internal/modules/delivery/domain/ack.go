package domain

// Ack is the structured acknowledgment returned by the delivery endpoint.
type Ack struct {
	SessionID string
	Sequence  *int
	Status    string
}

// Confirms reports whether the ack correlates with the submitted task. A
// transport-level success alone never counts.
func (a Ack) Confirms(t Task) bool {
	if a.SessionID == "" || a.SessionID != t.SessionID {
		return false
	}
	if a.Status != "" && a.Status != "accepted" && a.Status != "ok" && a.Status != "stored" {
		return false
	}
	if t.Kind == KindChunk {
		return a.Sequence != nil && *a.Sequence == t.Sequence()
	}
	return true
}

// Submission is one whole-session (or finalize) transfer.
type Submission struct {
	Meta        SessionMeta
	Filename    string
	ContentType string
	Audio       []byte
}

// ChunkUpload is one staged chunk.
type ChunkUpload struct {
	SessionID string
	Sequence  int
	Audio     []byte
}
