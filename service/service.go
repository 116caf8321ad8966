package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fileconvert/dto"
	"fileconvert/lifecycle"
	"fileconvert/memory"
	"fileconvert/models"
	"fileconvert/store"
)

const timeFormat = "2006-01-02T15:04:05Z"

// ErrNoObjectStore is returned by PersistFile when no durable object
// storage is configured.
var ErrNoObjectStore = errors.New("object storage not configured")

// Dispatcher hands a created operation to whatever runs the conversion.
type Dispatcher interface {
	Dispatch(ctx context.Context, operationID string) error
}

// StatusReader answers status polls for operations no longer held
// locally. Implemented by cache.StatusMirror.
type StatusReader interface {
	Get(ctx context.Context, operationID string) (*models.Operation, error)
}

// ObjectStore persists a file durably and returns its permanent URL.
// The core is agnostic to when it is called; a file is only deleted
// locally after the durable copy is confirmed.
type ObjectStore interface {
	Store(ctx context.Context, rec *models.FileRecord) (string, error)
}

// ConversionService is the facade the HTTP layer talks to.
type ConversionService struct {
	store      *store.MemoryStore
	lifecycle  *lifecycle.Manager
	dispatcher Dispatcher
	mirror     StatusReader // optional
	objects    ObjectStore  // optional
	monitor    *memory.Monitor
	logger     *zap.Logger
	startedAt  time.Time
}

func NewConversionService(st *store.MemoryStore, lm *lifecycle.Manager, dispatcher Dispatcher, mirror StatusReader, objects ObjectStore, monitor *memory.Monitor, logger *zap.Logger) *ConversionService {
	return &ConversionService{
		store:      st,
		lifecycle:  lm,
		dispatcher: dispatcher,
		mirror:     mirror,
		objects:    objects,
		monitor:    monitor,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// CreateUpload stores the uploaded payload in memory and returns its
// file record. store.ErrResourceExhausted is passed through so the
// caller can reject the upload.
func (s *ConversionService) CreateUpload(ctx context.Context, data []byte, name, mimeType string) (*dto.FileResponse, error) {
	rec := &models.FileRecord{
		Name:     name,
		MimeType: mimeType,
		Bytes:    data,
	}
	id, err := s.store.PutFile(rec)
	if err != nil {
		return nil, err
	}

	s.logger.Info("File stored",
		zap.String("file_id", id),
		zap.String("name", name),
		zap.Int64("size_bytes", rec.SizeBytes),
	)

	return &dto.FileResponse{
		ID:        id,
		Name:      rec.Name,
		MimeType:  rec.MimeType,
		SizeBytes: rec.SizeBytes,
		CreatedAt: rec.CreatedAt.UTC().Format(timeFormat),
	}, nil
}

// CreateConversion registers a pending operation for the given source
// file and hands it to the dispatcher.
func (s *ConversionService) CreateConversion(ctx context.Context, traceID string, req *dto.CreateConversionRequest) (*dto.OperationResponse, error) {
	opts := models.ConversionOptions{
		OutputFormat: req.OutputFormat,
		TargetWidth:  req.TargetWidth,
		TargetHeight: req.TargetHeight,
		Crop:         req.Crop,
	}

	op, err := s.lifecycle.Create(ctx, traceID, req.FileID, opts)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, op.ID); err != nil {
		s.lifecycle.Fail(ctx, op.ID, models.ErrorInfo{
			Code:    models.ErrCodeConversionFailed,
			Message: "could not dispatch conversion",
		})
		return nil, err
	}

	return toOperationResponse(op), nil
}

// GetOperationStatus returns the operation's current state. When the
// local record has been evicted it falls back to the status mirror.
func (s *ConversionService) GetOperationStatus(ctx context.Context, operationID string) (*dto.OperationResponse, error) {
	op, err := s.lifecycle.Get(ctx, operationID)
	if err == nil {
		return toOperationResponse(op), nil
	}
	if !errors.Is(err, store.ErrOperationNotFound) || s.mirror == nil {
		return nil, err
	}

	mirrored, merr := s.mirror.Get(ctx, operationID)
	if merr != nil {
		if errors.Is(merr, store.ErrOperationNotFound) {
			return nil, err
		}
		s.logger.Warn("Status mirror lookup failed",
			zap.String("operation_id", operationID),
			zap.Error(merr),
		)
		return nil, err
	}
	return toOperationResponse(mirrored), nil
}

// WaitOperationStatus blocks up to timeout for the operation to reach a
// terminal state, then returns whatever state it is in. Fast path for
// quick conversions.
func (s *ConversionService) WaitOperationStatus(ctx context.Context, operationID string, timeout time.Duration) (*dto.OperationResponse, error) {
	op, err := s.lifecycle.WaitTerminal(ctx, operationID, timeout)
	if err != nil {
		return nil, err
	}
	return toOperationResponse(op), nil
}

// GetFile returns the stored file record for download.
func (s *ConversionService) GetFile(ctx context.Context, fileID string) (*models.FileRecord, error) {
	return s.store.GetFile(fileID)
}

// DeleteFile removes a file explicitly (e.g. after the client confirmed
// the download). Idempotent.
func (s *ConversionService) DeleteFile(ctx context.Context, fileID string) {
	s.store.DeleteFile(fileID)
}

// DeleteOperation removes an operation record explicitly. Idempotent.
func (s *ConversionService) DeleteOperation(ctx context.Context, operationID string) {
	s.store.DeleteOperation(operationID)
}

// PersistFile stores a durable copy of the file through the object
// storage adapter and, once confirmed, drops the in-memory copy.
func (s *ConversionService) PersistFile(ctx context.Context, fileID string) (string, error) {
	if s.objects == nil {
		return "", ErrNoObjectStore
	}
	rec, err := s.store.GetFile(fileID)
	if err != nil {
		return "", err
	}
	url, err := s.objects.Store(ctx, rec)
	if err != nil {
		return "", err
	}
	s.store.DeleteFile(fileID)

	s.logger.Info("File persisted durably",
		zap.String("file_id", fileID),
		zap.String("url", url),
	)
	return url, nil
}

// Stats reports store contents and pressure for diagnostics.
func (s *ConversionService) Stats(ctx context.Context) *dto.StatsResponse {
	stats := s.store.Stats()
	level := memory.LevelNormal
	if s.monitor != nil {
		level = s.monitor.Level()
	}
	return &dto.StatsResponse{
		FileCount:      stats.FileCount,
		OperationCount: stats.OperationCount,
		TotalBytes:     stats.TotalBytes,
		PressureLevel:  level.String(),
		Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
	}
}

func toOperationResponse(op *models.Operation) *dto.OperationResponse {
	var completedAt *string
	if op.CompletedAt != nil {
		formatted := op.CompletedAt.UTC().Format(timeFormat)
		completedAt = &formatted
	}
	var errInfo *dto.ErrorInfo
	if op.Error != nil {
		errInfo = &dto.ErrorInfo{Code: op.Error.Code, Message: op.Error.Message}
	}

	return &dto.OperationResponse{
		ID:                        op.ID,
		TraceID:                   op.TraceID,
		SourceFileID:              op.SourceFileID,
		Status:                    string(op.Status),
		ProgressPercent:           op.ProgressPercent,
		EstimatedSecondsRemaining: op.ETASeconds,
		ResultFileID:              op.ResultFileID,
		Error:                     errInfo,
		CreatedAt:                 op.CreatedAt.UTC().Format(timeFormat),
		CompletedAt:               completedAt,
	}
}
