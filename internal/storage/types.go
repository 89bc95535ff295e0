package storage

import "time"

// SpooledBatch is a delivery payload captured while the sink was
// unreachable, held for a later flush.
type SpooledBatch struct {
	ID        int64
	Payload   []byte
	CreatedAt time.Time
}

// Stats holds aggregate statistics about the tracker database.
type Stats struct {
	Keys              int64
	SpooledBatches    int64
	SpooledBytes      int64
	OldestBatch       time.Time
	NewestBatch       time.Time
	DatabaseSizeBytes int64
}
