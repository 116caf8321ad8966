package eviction

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.uber.org/zap"

	"fileconvert/memory"
	"fileconvert/models"
	"fileconvert/store"
)

// PressureSource reports the current memory pressure level.
// Implemented by memory.Monitor.
type PressureSource interface {
	Level() memory.Level
}

// Failer force-fails a stalled operation so pollers observe a terminal
// state instead of a silent disappearance. Implemented by
// lifecycle.Manager.
type Failer interface {
	Fail(ctx context.Context, id string, info models.ErrorInfo) (*models.Operation, error)
}

// Policy holds the tier-specific eviction tunables.
type Policy struct {
	// LongTTL applies at normal pressure.
	LongTTL time.Duration
	// ShortTTL applies at warning pressure and above.
	ShortTTL time.Duration
	// StallTimeout is the maximum time a non-terminal operation may go
	// without an update before it is force-failed (warning and above).
	StallTimeout time.Duration
	// RetainedBytes is the byte budget enforced at emergency pressure.
	RetainedBytes int64
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Level             memory.Level
	FilesEvicted      int
	OperationsEvicted int
	Stalled           int
	BytesReclaimed    int64
	Errors            int
	Duration          time.Duration
}

// Scheduler periodically reclaims memory from the store, with
// aggressiveness tied to the pressure level. It runs as a single
// background goroutine and never blocks request handling.
type Scheduler struct {
	store    *store.MemoryStore
	pressure PressureSource
	failer   Failer
	policy   Policy
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	cancel context.CancelFunc
}

func NewScheduler(st *store.MemoryStore, pressure PressureSource, failer Failer, policy Policy, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		pressure: pressure,
		failer:   failer,
		policy:   policy,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the background sweep loop.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
	s.logger.Info("Eviction scheduler started",
		zap.Duration("interval", s.interval),
	)
}

// Stop cancels the background loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res := s.RunOnce(ctx)
			if res.FilesEvicted > 0 || res.OperationsEvicted > 0 || res.Stalled > 0 || res.Errors > 0 {
				s.logger.Info("Eviction sweep completed",
					zap.String("level", res.Level.String()),
					zap.Int("files_evicted", res.FilesEvicted),
					zap.Int("operations_evicted", res.OperationsEvicted),
					zap.Int("stalled_failed", res.Stalled),
					zap.Int64("bytes_reclaimed", res.BytesReclaimed),
					zap.Int("errors", res.Errors),
					zap.Duration("duration", res.Duration),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep. A failure on one record is isolated
// and logged; the rest of the sweep continues.
func (s *Scheduler) RunOnce(ctx context.Context) SweepResult {
	start := s.now()
	res := SweepResult{Level: s.pressure.Level()}

	ttl := s.policy.LongTTL
	if res.Level >= memory.LevelWarning {
		ttl = s.policy.ShortTTL
	}
	cutoff := start.Add(-ttl)

	ops := s.store.ListOperations()
	protected := make(map[string]bool)
	for _, op := range ops {
		if !op.Status.Terminal() {
			protected[op.SourceFileID] = true
		}
	}

	for _, op := range ops {
		s.guard(&res, "operation", op.ID, func() {
			s.sweepOperation(ctx, op, res.Level, cutoff, start, &res)
		})
	}

	files := s.store.ListFiles()
	for _, rec := range files {
		s.guard(&res, "file", rec.ID, func() {
			if protected[rec.ID] {
				return
			}
			if rec.CreatedAt.Before(cutoff) {
				s.store.DeleteFile(rec.ID)
				res.FilesEvicted++
				res.BytesReclaimed += rec.SizeBytes
			}
		})
	}

	if res.Level == memory.LevelEmergency {
		s.evictToBudget(protected, &res)
		debug.FreeOSMemory()
	}

	res.Duration = s.now().Sub(start)
	return res
}

func (s *Scheduler) sweepOperation(ctx context.Context, op *models.Operation, level memory.Level, cutoff, now time.Time, res *SweepResult) {
	if op.Status.Terminal() {
		// A stall-failed record is kept for exactly one sweep so
		// in-flight pollers observe the failure, then removed here
		// regardless of TTL. Other terminal records age out normally.
		stalled := op.Error != nil && op.Error.Code == models.ErrCodeStallTimeout
		if stalled || op.CreatedAt.Before(cutoff) {
			s.store.DeleteOperation(op.ID)
			res.OperationsEvicted++
		}
		return
	}

	// Non-terminal: under elevated pressure, force-fail operations with
	// no update within the stall timeout. The record stays behind until
	// the next sweep so in-flight pollers observe the failure.
	if level >= memory.LevelWarning && now.Sub(op.UpdatedAt) > s.policy.StallTimeout {
		info := models.ErrorInfo{
			Code:    models.ErrCodeStallTimeout,
			Message: fmt.Sprintf("no progress for %s, operation timed out", s.policy.StallTimeout),
		}
		if _, err := s.failer.Fail(ctx, op.ID, info); err != nil {
			res.Errors++
			s.logger.Warn("Failed to time out stalled operation",
				zap.String("operation_id", op.ID),
				zap.Error(err),
			)
			return
		}
		res.Stalled++
	}
}

// evictToBudget removes the oldest unprotected files until total
// payload bytes fit the retained budget.
func (s *Scheduler) evictToBudget(protected map[string]bool, res *SweepResult) {
	files := s.store.ListFiles()
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})

	total := s.store.Stats().TotalBytes
	for _, rec := range files {
		if total <= s.policy.RetainedBytes {
			break
		}
		if protected[rec.ID] {
			continue
		}
		s.store.DeleteFile(rec.ID)
		total -= rec.SizeBytes
		res.FilesEvicted++
		res.BytesReclaimed += rec.SizeBytes
	}
}

// guard isolates a per-record panic so one bad record cannot abort the
// sweep or crash the process.
func (s *Scheduler) guard(res *SweepResult, kind, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			res.Errors++
			s.logger.Error("Panic during eviction sweep",
				zap.String("kind", kind),
				zap.String("id", id),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
