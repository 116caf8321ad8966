package models

import "time"

// FileRecord holds an uploaded or produced file entirely in memory.
// Bytes are owned by the record; callers must not modify them after Put.
type FileRecord struct {
	ID        string
	Name      string
	MimeType  string
	SizeBytes int64
	Bytes     []byte
	CreatedAt time.Time
}
