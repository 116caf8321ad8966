package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fileconvert/converter"
	"fileconvert/lifecycle"
	"fileconvert/models"
	"fileconvert/pool"
	"fileconvert/store"
)

// Engine converts a source file according to the requested options,
// reporting coarse progress along the way.
type Engine interface {
	Convert(ctx context.Context, src *models.FileRecord, opts models.ConversionOptions, progress converter.ProgressFunc) (*converter.Result, error)
}

// Processor runs conversions in-process on a bounded worker pool and
// reports progress and outcome back into the lifecycle manager. All
// engine work happens outside store critical sections.
type Processor struct {
	store     *store.MemoryStore
	lifecycle *lifecycle.Manager
	engine    Engine
	pool      *pool.WorkerPool
	logger    *zap.Logger
}

func NewProcessor(st *store.MemoryStore, lm *lifecycle.Manager, engine Engine, workers int, logger *zap.Logger) *Processor {
	return &Processor{
		store:     st,
		lifecycle: lm,
		engine:    engine,
		pool:      pool.NewWorkerPool(workers),
		logger:    logger,
	}
}

// Dispatch hands the operation to the worker pool and returns
// immediately.
func (p *Processor) Dispatch(ctx context.Context, operationID string) error {
	p.pool.Submit(ctx, func(ctx context.Context) {
		p.process(ctx, operationID)
	})
	return nil
}

// Wait blocks until all dispatched conversions have finished. Used on
// shutdown.
func (p *Processor) Wait() {
	p.pool.Wait()
}

func (p *Processor) process(ctx context.Context, operationID string) {
	op, err := p.lifecycle.MarkProcessing(ctx, operationID)
	if err != nil {
		// Evicted or already transitioned; nothing to do.
		p.logger.Warn("Skipping conversion",
			zap.String("operation_id", operationID),
			zap.Error(err),
		)
		return
	}

	src, err := p.store.GetFile(op.SourceFileID)
	if err != nil {
		p.fail(ctx, operationID, models.ErrorInfo{
			Code:    models.ErrCodeSourceMissing,
			Message: fmt.Sprintf("source file %s is gone", op.SourceFileID),
		})
		return
	}

	started := time.Now()
	progress := func(percent int) {
		eta := estimateRemaining(started, percent)
		p.lifecycle.UpdateProgress(ctx, operationID, percent, eta)
	}

	result, err := p.engine.Convert(ctx, src, op.Options, progress)
	if err != nil {
		p.fail(ctx, operationID, models.ErrorInfo{
			Code:    models.ErrCodeConversionFailed,
			Message: err.Error(),
		})
		return
	}

	resultID, err := p.store.PutFile(&models.FileRecord{
		Name:     outputName(src.Name, result.Format),
		MimeType: result.MimeType,
		Bytes:    result.Bytes,
	})
	if err != nil {
		code := models.ErrCodeConversionFailed
		if errors.Is(err, store.ErrResourceExhausted) {
			code = models.ErrCodeOutOfMemory
		}
		p.fail(ctx, operationID, models.ErrorInfo{Code: code, Message: err.Error()})
		return
	}

	if _, err := p.lifecycle.Complete(ctx, operationID, resultID); err != nil {
		// The scheduler may have timed the operation out mid-conversion.
		p.logger.Warn("Could not complete operation, dropping result",
			zap.String("operation_id", operationID),
			zap.Error(err),
		)
		p.store.DeleteFile(resultID)
		return
	}

	p.logger.Info("Conversion finished",
		zap.String("operation_id", operationID),
		zap.String("result_file_id", resultID),
		zap.Duration("took", time.Since(started)),
	)
}

func (p *Processor) fail(ctx context.Context, operationID string, info models.ErrorInfo) {
	if _, err := p.lifecycle.Fail(ctx, operationID, info); err != nil {
		p.logger.Warn("Could not fail operation",
			zap.String("operation_id", operationID),
			zap.Error(err),
		)
	}
}

// estimateRemaining extrapolates elapsed time across the remaining
// percentage. Nil when there is nothing meaningful to report yet.
func estimateRemaining(started time.Time, percent int) *int {
	if percent <= 0 || percent >= 100 {
		return nil
	}
	elapsed := time.Since(started).Seconds()
	eta := int(elapsed * float64(100-percent) / float64(percent))
	return &eta
}

func outputName(sourceName, format string) string {
	if sourceName == "" {
		return "converted." + format
	}
	for i := len(sourceName) - 1; i >= 0; i-- {
		if sourceName[i] == '.' {
			return sourceName[:i+1] + format
		}
	}
	return sourceName + "." + format
}
