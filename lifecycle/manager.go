package lifecycle

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fileconvert/models"
	"fileconvert/store"
)

var ErrInvalidTransition = errors.New("invalid operation transition")

// StatusMirror receives a best-effort copy of the operation after every
// transition. Implemented by the Redis status cache.
type StatusMirror interface {
	Set(ctx context.Context, op *models.Operation) error
}

// Archive receives terminal operations for durable record keeping.
type Archive interface {
	ArchiveOperation(ctx context.Context, op *models.Operation) error
}

// EventPublisher receives terminal operations for downstream consumers.
type EventPublisher interface {
	PublishOperationEvent(ctx context.Context, op *models.Operation) error
}

const lockStripes = 64

// Manager owns the operation state machine:
// pending → processing → {completed, failed}, plus pending → failed.
// Transitions for one operation id are strictly serialized; different
// ids proceed independently. Terminal states never transition further.
type Manager struct {
	store   *store.MemoryStore
	mirror  StatusMirror
	archive Archive
	events  EventPublisher
	logger  *zap.Logger

	locks [lockStripes]sync.Mutex

	waitersMu sync.Mutex
	waiters   map[string][]chan *models.Operation
}

// NewManager creates a Manager. mirror, archive and events may be nil.
func NewManager(st *store.MemoryStore, mirror StatusMirror, archive Archive, events EventPublisher, logger *zap.Logger) *Manager {
	return &Manager{
		store:   st,
		mirror:  mirror,
		archive: archive,
		events:  events,
		logger:  logger,
		waiters: make(map[string][]chan *models.Operation),
	}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.locks[h.Sum32()%lockStripes]
}

// Create registers a new pending operation for the given source file.
// Returns store.ErrFileNotFound if the source file is unknown.
func (m *Manager) Create(ctx context.Context, traceID, sourceFileID string, opts models.ConversionOptions) (*models.Operation, error) {
	if _, err := m.store.GetFile(sourceFileID); err != nil {
		return nil, err
	}

	op := &models.Operation{
		ID:           uuid.New().String(),
		TraceID:      traceID,
		SourceFileID: sourceFileID,
		Options:      opts,
		Status:       models.StatusPending,
	}
	if _, err := m.store.PutOperation(op); err != nil {
		return nil, err
	}

	snapshot := op.Clone()
	m.mirrorStatus(ctx, snapshot)
	return snapshot, nil
}

// Get returns the operation for id. Pure read, no state change.
func (m *Manager) Get(ctx context.Context, id string) (*models.Operation, error) {
	return m.store.GetOperation(id)
}

// MarkProcessing moves a pending operation to processing.
func (m *Manager) MarkProcessing(ctx context.Context, id string) (*models.Operation, error) {
	op, err := m.transition(id, func(cur *models.Operation) (func(*models.Operation), error) {
		if cur.Status != models.StatusPending {
			return nil, ErrInvalidTransition
		}
		return func(o *models.Operation) {
			o.Status = models.StatusProcessing
		}, nil
	})
	if err != nil {
		return nil, err
	}
	m.mirrorStatus(ctx, op)
	return op, nil
}

// UpdateProgress records conversion progress for a processing
// operation. Percent is clamped to [0,100]; a value lower than the
// previously recorded one is ignored so out-of-order reports keep the
// maximum. etaSeconds may be nil when no estimate is available.
func (m *Manager) UpdateProgress(ctx context.Context, id string, percent int, etaSeconds *int) (*models.Operation, error) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	op, err := m.transition(id, func(cur *models.Operation) (func(*models.Operation), error) {
		if cur.Status != models.StatusProcessing {
			return nil, ErrInvalidTransition
		}
		return func(o *models.Operation) {
			if percent > o.ProgressPercent {
				o.ProgressPercent = percent
			}
			o.ETASeconds = etaSeconds
		}, nil
	})
	if err != nil {
		return nil, err
	}
	m.mirrorStatus(ctx, op)
	return op, nil
}

// Complete moves a processing operation to completed and records the
// result file id. Progress is forced to 100.
func (m *Manager) Complete(ctx context.Context, id, resultFileID string) (*models.Operation, error) {
	op, err := m.transition(id, func(cur *models.Operation) (func(*models.Operation), error) {
		if cur.Status != models.StatusProcessing {
			return nil, ErrInvalidTransition
		}
		return func(o *models.Operation) {
			o.Status = models.StatusCompleted
			o.ProgressPercent = 100
			o.ETASeconds = nil
			o.ResultFileID = resultFileID
			t := time.Now()
			o.CompletedAt = &t
		}, nil
	})
	if err != nil {
		return nil, err
	}
	m.finishTerminal(ctx, op)
	return op, nil
}

// Fail moves a pending or processing operation to failed. Calling Fail
// again with the same error is idempotent; any other transition out of
// a terminal state is rejected.
func (m *Manager) Fail(ctx context.Context, id string, info models.ErrorInfo) (*models.Operation, error) {
	var alreadyFailed bool
	op, err := m.transition(id, func(cur *models.Operation) (func(*models.Operation), error) {
		if cur.Status == models.StatusFailed {
			if cur.Error != nil && *cur.Error == info {
				alreadyFailed = true
				return nil, nil
			}
			return nil, ErrInvalidTransition
		}
		if cur.Status == models.StatusCompleted {
			return nil, ErrInvalidTransition
		}
		return func(o *models.Operation) {
			o.Status = models.StatusFailed
			o.ETASeconds = nil
			e := info
			o.Error = &e
			t := time.Now()
			o.CompletedAt = &t
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyFailed {
		return op, nil
	}
	m.finishTerminal(ctx, op)
	return op, nil
}

// transition runs validate under the per-id lock. validate inspects the
// current record and either rejects the move or returns the mutation to
// apply. When it returns (nil, nil) the current record is returned
// unchanged (idempotent no-op).
func (m *Manager) transition(id string, validate func(*models.Operation) (func(*models.Operation), error)) (*models.Operation, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	cur, err := m.store.GetOperation(id)
	if err != nil {
		return nil, err
	}
	mutate, err := validate(cur)
	if err != nil {
		return nil, err
	}
	if mutate == nil {
		return cur, nil
	}
	return m.store.UpdateOperation(id, mutate)
}

// WaitTerminal blocks until the operation reaches a terminal state, the
// timeout elapses, or ctx is cancelled. On timeout it returns the
// current record. Used by the status endpoint's fast path.
func (m *Manager) WaitTerminal(ctx context.Context, id string, timeout time.Duration) (*models.Operation, error) {
	op, err := m.store.GetOperation(id)
	if err != nil {
		return nil, err
	}
	if op.Status.Terminal() {
		return op, nil
	}

	ch := m.registerWaiter(id)
	defer m.unregisterWaiter(id, ch)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case done, ok := <-ch:
		if ok {
			return done, nil
		}
		return m.store.GetOperation(id)
	case <-timer.C:
		return m.store.GetOperation(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) registerWaiter(id string) chan *models.Operation {
	ch := make(chan *models.Operation, 1)
	m.waitersMu.Lock()
	m.waiters[id] = append(m.waiters[id], ch)
	m.waitersMu.Unlock()
	return ch
}

func (m *Manager) unregisterWaiter(id string, ch chan *models.Operation) {
	m.waitersMu.Lock()
	defer m.waitersMu.Unlock()
	waiters := m.waiters[id]
	for i, c := range waiters {
		if c == ch {
			m.waiters[id] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(m.waiters[id]) == 0 {
		delete(m.waiters, id)
	}
}

func (m *Manager) notifyWaiters(op *models.Operation) {
	m.waitersMu.Lock()
	waiters := m.waiters[op.ID]
	delete(m.waiters, op.ID)
	m.waitersMu.Unlock()
	for _, ch := range waiters {
		select {
		case ch <- op:
		default:
		}
	}
}

// finishTerminal runs after the per-id lock is released: waiters first,
// then the best-effort sidecars. Sidecar errors are logged, never
// propagated.
func (m *Manager) finishTerminal(ctx context.Context, op *models.Operation) {
	m.notifyWaiters(op)
	m.mirrorStatus(ctx, op)
	if m.archive != nil {
		if err := m.archive.ArchiveOperation(ctx, op); err != nil {
			m.logger.Warn("Failed to archive operation",
				zap.String("operation_id", op.ID),
				zap.Error(err),
			)
		}
	}
	if m.events != nil {
		if err := m.events.PublishOperationEvent(ctx, op); err != nil {
			m.logger.Warn("Failed to publish operation event",
				zap.String("operation_id", op.ID),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) mirrorStatus(ctx context.Context, op *models.Operation) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.Set(ctx, op); err != nil {
		m.logger.Warn("Failed to mirror operation status",
			zap.String("operation_id", op.ID),
			zap.Error(err),
		)
	}
}
