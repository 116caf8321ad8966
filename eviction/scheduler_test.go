package eviction

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fileconvert/lifecycle"
	"fileconvert/memory"
	"fileconvert/models"
	"fileconvert/store"
)

type fakePressure struct {
	level memory.Level
}

func (f *fakePressure) Level() memory.Level { return f.level }

var testPolicy = Policy{
	LongTTL:       4 * time.Hour,
	ShortTTL:      time.Hour,
	StallTimeout:  30 * time.Minute,
	RetainedBytes: 200,
}

func newTestScheduler(t *testing.T, level memory.Level) (*Scheduler, *store.MemoryStore, *fakePressure) {
	t.Helper()
	st := store.New(0)
	mgr := lifecycle.NewManager(st, nil, nil, nil, zaptest.NewLogger(t))
	pressure := &fakePressure{level: level}
	s := NewScheduler(st, pressure, mgr, testPolicy, 5*time.Minute, zaptest.NewLogger(t))
	return s, st, pressure
}

func putFileAt(t *testing.T, st *store.MemoryStore, id string, size int, createdAt time.Time) {
	t.Helper()
	_, err := st.PutFile(&models.FileRecord{
		ID:        id,
		Bytes:     make([]byte, size),
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
}

func putOperationAt(t *testing.T, st *store.MemoryStore, id, sourceFileID string, status models.OperationStatus, at time.Time) {
	t.Helper()
	_, err := st.PutOperation(&models.Operation{
		ID:           id,
		SourceFileID: sourceFileID,
		Status:       status,
		CreatedAt:    at,
		UpdatedAt:    at,
	})
	if err != nil {
		t.Fatalf("PutOperation failed: %v", err)
	}
}

func TestScheduler_NormalTier_LongTTL(t *testing.T) {
	s, st, _ := newTestScheduler(t, memory.LevelNormal)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	putFileAt(t, st, "old", 10, now.Add(-5*time.Hour))
	putFileAt(t, st, "young", 10, now.Add(-2*time.Hour))
	putOperationAt(t, st, "op-old", "", models.StatusCompleted, now.Add(-5*time.Hour))
	putOperationAt(t, st, "op-young", "", models.StatusFailed, now.Add(-2*time.Hour))

	res := s.RunOnce(context.Background())

	if res.FilesEvicted != 1 {
		t.Errorf("Expected 1 file evicted, got %d", res.FilesEvicted)
	}
	if res.OperationsEvicted != 1 {
		t.Errorf("Expected 1 operation evicted, got %d", res.OperationsEvicted)
	}
	if _, err := st.GetFile("old"); !errors.Is(err, store.ErrFileNotFound) {
		t.Error("Expected old file to be evicted")
	}
	if _, err := st.GetFile("young"); err != nil {
		t.Error("Expected young file to survive the long TTL")
	}
	if _, err := st.GetOperation("op-young"); err != nil {
		t.Error("Expected young terminal operation to survive")
	}
}

func TestScheduler_NormalTier_NoStallHandling(t *testing.T) {
	s, st, _ := newTestScheduler(t, memory.LevelNormal)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	putFileAt(t, st, "src", 10, now.Add(-2*time.Hour))
	putOperationAt(t, st, "stale", "src", models.StatusPending, now.Add(-2*time.Hour))

	res := s.RunOnce(context.Background())

	if res.Stalled != 0 {
		t.Errorf("Expected no stall handling at normal pressure, got %d", res.Stalled)
	}
	op, err := st.GetOperation("stale")
	if err != nil {
		t.Fatalf("GetOperation failed: %v", err)
	}
	if op.Status != models.StatusPending {
		t.Errorf("Expected pending, got %s", op.Status)
	}
}

func TestScheduler_CriticalTier_StallThenRemove(t *testing.T) {
	s, st, _ := newTestScheduler(t, memory.LevelCritical)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// Never marked processing, no update past the stall timeout.
	putFileAt(t, st, "src", 10, now.Add(-45*time.Minute))
	putOperationAt(t, st, "o2", "src", models.StatusPending, now.Add(-45*time.Minute))

	res := s.RunOnce(context.Background())
	if res.Stalled != 1 {
		t.Fatalf("Expected 1 stalled operation, got %d", res.Stalled)
	}

	op, err := st.GetOperation("o2")
	if err != nil {
		t.Fatalf("Stalled operation must stay observable, got %v", err)
	}
	if op.Status != models.StatusFailed {
		t.Errorf("Expected failed, got %s", op.Status)
	}
	if op.Error == nil || op.Error.Code != models.ErrCodeStallTimeout {
		t.Errorf("Expected stall timeout error info, got %+v", op.Error)
	}

	// Next sweep: the stall-failed record is removed even though its
	// CreatedAt is still inside the short TTL.
	res = s.RunOnce(context.Background())
	if res.OperationsEvicted != 1 {
		t.Errorf("Expected the failed record removed on the next sweep, got %d evicted", res.OperationsEvicted)
	}
	if _, err := st.GetOperation("o2"); !errors.Is(err, store.ErrOperationNotFound) {
		t.Error("Expected operation to be gone after the second sweep")
	}
}

func TestScheduler_ReferencedFileDeferred(t *testing.T) {
	s, st, _ := newTestScheduler(t, memory.LevelWarning)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// File is well past the short TTL but referenced by a non-terminal
	// operation that is not yet stalled.
	putFileAt(t, st, "busy", 10, now.Add(-3*time.Hour))
	putOperationAt(t, st, "op", "busy", models.StatusProcessing, now.Add(-5*time.Minute))

	s.RunOnce(context.Background())
	if _, err := st.GetFile("busy"); err != nil {
		t.Fatal("Expected file referenced by a non-terminal operation to survive")
	}

	// Once the operation is terminal the file is eligible.
	if _, err := st.UpdateOperation("op", func(o *models.Operation) {
		o.Status = models.StatusCompleted
	}); err != nil {
		t.Fatalf("UpdateOperation failed: %v", err)
	}
	s.RunOnce(context.Background())
	if _, err := st.GetFile("busy"); !errors.Is(err, store.ErrFileNotFound) {
		t.Error("Expected file to be evicted once its operation is terminal")
	}
}

func TestScheduler_EmergencyTier_BudgetOldestFirst(t *testing.T) {
	s, st, _ := newTestScheduler(t, memory.LevelEmergency)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// All young, so only the emergency budget path applies.
	for i, id := range []string{"f1", "f2", "f3", "f4", "f5"} {
		putFileAt(t, st, id, 100, now.Add(time.Duration(i)*time.Minute-30*time.Minute))
	}
	// f1 is the oldest but referenced by a live operation.
	putOperationAt(t, st, "op", "f1", models.StatusProcessing, now)

	res := s.RunOnce(context.Background())

	if stats := st.Stats(); stats.TotalBytes > testPolicy.RetainedBytes {
		t.Errorf("Expected total bytes within the %d budget, got %d", testPolicy.RetainedBytes, stats.TotalBytes)
	}
	if _, err := st.GetFile("f1"); err != nil {
		t.Error("Emergency eviction must never remove a file referenced by a non-terminal operation")
	}
	if _, err := st.GetFile("f5"); err != nil {
		t.Error("Expected the newest file to survive budget eviction")
	}
	if _, err := st.GetFile("f2"); !errors.Is(err, store.ErrFileNotFound) {
		t.Error("Expected the oldest unprotected file to be evicted first")
	}
	if res.BytesReclaimed == 0 {
		t.Error("Expected reclaimed bytes to be reported")
	}
}
