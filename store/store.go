package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"fileconvert/models"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrOperationNotFound = errors.New("operation not found")
	ErrResourceExhausted = errors.New("memory ceiling exceeded")
)

// Stats is a point-in-time snapshot of store contents.
type Stats struct {
	FileCount      int
	OperationCount int
	TotalBytes     int64
}

// MemoryStore is the fallback persistence layer: thread-safe in-memory
// storage for file payloads and operation records. It never expires
// entries on its own; eviction is driven externally by the scheduler.
type MemoryStore struct {
	mu         sync.RWMutex
	files      map[string]*models.FileRecord
	operations map[string]*models.Operation
	totalBytes int64

	ceiling int64        // hard ceiling for PutFile; 0 disables
	usage   func() int64 // injectable usage source for the ceiling check
	now     func() time.Time
}

// New creates a MemoryStore with the given hard ceiling in bytes.
// With no usage source wired the ceiling is checked against the store's
// own payload accounting.
func New(ceilingBytes int64) *MemoryStore {
	return &MemoryStore{
		files:      make(map[string]*models.FileRecord),
		operations: make(map[string]*models.Operation),
		ceiling:    ceilingBytes,
		now:        time.Now,
	}
}

// SetUsageFunc wires an external memory usage source (the pressure
// monitor in production) into the PutFile ceiling check. Must be called
// before the store is shared.
func (s *MemoryStore) SetUsageFunc(f func() int64) {
	s.usage = f
}

// PutFile inserts or overwrites a file record and returns its id.
// A missing ID or CreatedAt is filled in. Returns ErrResourceExhausted
// when the payload would push measured usage past the hard ceiling;
// the store is left unchanged in that case.
func (s *MemoryStore) PutFile(rec *models.FileRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.SizeBytes = int64(len(rec.Bytes))

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	used := s.totalBytes
	if s.usage != nil {
		used = s.usage()
	}
	// An overwrite releases the previous payload, so only the delta
	// counts against the ceiling.
	if prev, ok := s.files[rec.ID]; ok {
		used -= prev.SizeBytes
	}
	if s.ceiling > 0 && used+rec.SizeBytes > s.ceiling {
		return "", ErrResourceExhausted
	}

	if prev, ok := s.files[rec.ID]; ok {
		s.totalBytes -= prev.SizeBytes
	}
	s.files[rec.ID] = rec
	s.totalBytes += rec.SizeBytes

	return rec.ID, nil
}

// GetFile returns the record for id. Callers must not modify the
// returned bytes.
func (s *MemoryStore) GetFile(id string) (*models.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	return rec, nil
}

// DeleteFile removes the record for id. No-op if absent.
func (s *MemoryStore) DeleteFile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.files[id]; ok {
		s.totalBytes -= rec.SizeBytes
		delete(s.files, id)
	}
}

// PutOperation inserts or overwrites an operation record and returns
// its id. Missing ID and timestamps are filled in.
func (s *MemoryStore) PutOperation(op *models.Operation) (string, error) {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if op.CreatedAt.IsZero() {
		op.CreatedAt = s.now()
	}
	if op.UpdatedAt.IsZero() {
		op.UpdatedAt = op.CreatedAt
	}
	s.operations[op.ID] = op

	return op.ID, nil
}

// GetOperation returns a copy of the operation for id.
func (s *MemoryStore) GetOperation(id string) (*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operations[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return op.Clone(), nil
}

// UpdateOperation applies mutate to the operation for id atomically with
// respect to concurrent readers and bumps UpdatedAt. Returns a copy of
// the mutated record.
func (s *MemoryStore) UpdateOperation(id string, mutate func(*models.Operation)) (*models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	mutate(op)
	op.UpdatedAt = s.now()
	return op.Clone(), nil
}

// DeleteOperation removes the operation for id. No-op if absent.
func (s *MemoryStore) DeleteOperation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.operations, id)
}

// ListFiles returns the current file records. The scheduler is the only
// consumer; records are shared, not copied.
func (s *MemoryStore) ListFiles() []*models.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.FileRecord, 0, len(s.files))
	for _, rec := range s.files {
		out = append(out, rec)
	}
	return out
}

// ListOperations returns copies of the current operation records.
func (s *MemoryStore) ListOperations() []*models.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Operation, 0, len(s.operations))
	for _, op := range s.operations {
		out = append(out, op.Clone())
	}
	return out
}

// Stats returns counts and total payload bytes. Holds the read lock
// only for the scan.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		FileCount:      len(s.files),
		OperationCount: len(s.operations),
		TotalBytes:     s.totalBytes,
	}
}
