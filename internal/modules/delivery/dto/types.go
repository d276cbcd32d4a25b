package dto

type QueueStats struct {
	Pending       int
	WaitingTimers int
	BufferedBytes int64
	Attempts      int
	Delivered     int
	Escalated     int
}

// ResumeInput re-enqueues a recovered payload covering FirstSequence through
// LastSequence. Gaps is set when sequences inside that range are missing.
type ResumeInput struct {
	SessionID     string
	FirstSequence int
	LastSequence  int
	Gaps          bool
	Data          []byte
}

type SpillOutput struct {
	SessionID string
	Path      string
	Bytes     int
}
