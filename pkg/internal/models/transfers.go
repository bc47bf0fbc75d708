package models

import "time"

// ChunkTransfer collects the fragments of one attachment delivered over the
// real-time channel. Chunks is sparse and indexed by sequence number.
type ChunkTransfer struct {
	MessageID     string
	TotalChunks   int
	Chunks        map[int][]byte
	ReceivedCount int
	Mime          string
	// TotalKnown is false while the total is a placeholder because the start
	// signal has not been seen.
	TotalKnown bool
	LastIndex  int
	LastSeen   bool
	Completed  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AttachmentPayload is a reassembled attachment ready to be displayed.
type AttachmentPayload struct {
	MessageID string
	Mime      string
	Kind      MessageKind
	Data      []byte
}
