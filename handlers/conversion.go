package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fileconvert/dto"
	"fileconvert/lifecycle"
	"fileconvert/middleware"
	"fileconvert/models"
	"fileconvert/service"
	"fileconvert/store"
	"fileconvert/validation"
)

// ConversionService is the slice of the service layer the HTTP handlers
// need.
type ConversionService interface {
	CreateUpload(ctx context.Context, data []byte, name, mimeType string) (*dto.FileResponse, error)
	CreateConversion(ctx context.Context, traceID string, req *dto.CreateConversionRequest) (*dto.OperationResponse, error)
	GetOperationStatus(ctx context.Context, operationID string) (*dto.OperationResponse, error)
	WaitOperationStatus(ctx context.Context, operationID string, timeout time.Duration) (*dto.OperationResponse, error)
	GetFile(ctx context.Context, fileID string) (*models.FileRecord, error)
	PersistFile(ctx context.Context, fileID string) (string, error)
	DeleteFile(ctx context.Context, fileID string)
	DeleteOperation(ctx context.Context, operationID string)
	Stats(ctx context.Context) *dto.StatsResponse
}

type ConversionHandler struct {
	service      ConversionService
	maxFileSize  int64
	fastPathWait time.Duration
	logger       *zap.Logger
}

func NewConversionHandler(service ConversionService, maxFileSize int64, fastPathWait time.Duration, logger *zap.Logger) *ConversionHandler {
	return &ConversionHandler{
		service:      service,
		maxFileSize:  maxFileSize,
		fastPathWait: fastPathWait,
		logger:       logger,
	}
}

// Upload reads the multipart payload fully into memory; the host's
// filesystem is never touched.
func (h *ConversionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, "Failed to get file", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		h.handleError(w, "File too large", validation.ErrFileTooLarge, traceID, http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		h.handleError(w, "Failed to read file", err, traceID, http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.maxFileSize {
		h.handleError(w, "File too large", validation.ErrFileTooLarge, traceID, http.StatusRequestEntityTooLarge)
		return
	}

	fileType, err := validation.DetectFileType(data)
	if err != nil {
		h.handleError(w, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}
	if !validation.IsConvertible(fileType) {
		h.handleError(w, fmt.Sprintf("%s input cannot be converted", fileType), validation.ErrInvalidFileType, traceID, http.StatusUnsupportedMediaType)
		return
	}

	resp, err := h.service.CreateUpload(r.Context(), data, header.Filename, validation.MimeType(fileType))
	if err != nil {
		if errors.Is(err, store.ErrResourceExhausted) {
			h.handleError(w, "Server is out of memory, try again later", err, traceID, http.StatusInsufficientStorage)
			return
		}
		h.handleError(w, "Failed to store file", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("file_id", resp.ID),
		zap.String("filename", header.Filename),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

// Convert creates a conversion operation for an uploaded file.
func (h *ConversionHandler) Convert(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.CreateConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if req.FileID == "" || req.OutputFormat == "" {
		h.handleError(w, "file_id and output_format are required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreateConversion(r.Context(), traceID, &req)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			h.handleError(w, "File not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to create conversion", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusAccepted, resp)
}

// Status answers operation polls. With ?wait=1 it holds up to the fast
// path timeout so quick conversions answer in one round trip.
func (h *ConversionHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	operationID := strings.TrimPrefix(r.URL.Path, "/status/")
	if operationID == "" {
		h.handleError(w, "Operation ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	var resp *dto.OperationResponse
	var err error
	if r.URL.Query().Get("wait") != "" {
		resp, err = h.service.WaitOperationStatus(r.Context(), operationID, h.fastPathWait)
	} else {
		resp, err = h.service.GetOperationStatus(r.Context(), operationID)
	}
	if err != nil {
		if errors.Is(err, store.ErrOperationNotFound) {
			h.handleError(w, "Operation not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get operation status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Download streams a stored file back to the client.
func (h *ConversionHandler) Download(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	fileID := strings.TrimPrefix(r.URL.Path, "/files/")
	if fileID == "" {
		h.handleError(w, "File ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	rec, err := h.service.GetFile(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			h.handleError(w, "File not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to read file", err, traceID, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Bytes)
}

// Persist copies a file to durable object storage and releases the
// in-memory copy once the durable write is confirmed.
func (h *ConversionHandler) Persist(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Invalid request method", nil, traceID, http.StatusMethodNotAllowed)
		return
	}
	fileID := strings.TrimPrefix(r.URL.Path, "/persist/")
	if fileID == "" {
		h.handleError(w, "File ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	url, err := h.service.PersistFile(r.Context(), fileID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoObjectStore):
			h.handleError(w, "Object storage is not configured", err, traceID, http.StatusNotImplemented)
		case errors.Is(err, store.ErrFileNotFound):
			h.handleError(w, "File not found", err, traceID, http.StatusNotFound)
		default:
			h.handleError(w, "Failed to persist file", err, traceID, http.StatusBadGateway)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"file_id": fileID, "url": url})
}

// DeleteOperation removes an operation record on client request.
func (h *ConversionHandler) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodDelete {
		h.handleError(w, "Invalid request method", nil, traceID, http.StatusMethodNotAllowed)
		return
	}
	operationID := strings.TrimPrefix(r.URL.Path, "/operations/")
	if operationID == "" {
		h.handleError(w, "Operation ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	// Best effort: drop the result file too if one exists.
	if resp, err := h.service.GetOperationStatus(r.Context(), operationID); err == nil && resp.ResultFileID != "" {
		h.service.DeleteFile(r.Context(), resp.ResultFileID)
	}
	h.service.DeleteOperation(r.Context(), operationID)

	h.respondJSON(w, http.StatusOK, map[string]string{"deleted": operationID})
}

func (h *ConversionHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	var code string
	switch {
	case errors.Is(err, store.ErrResourceExhausted):
		code = "resource_exhausted"
	case errors.Is(err, store.ErrFileNotFound), errors.Is(err, store.ErrOperationNotFound):
		code = "not_found"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		code = "invalid_transition"
	case errors.Is(err, validation.ErrInvalidFileType), errors.Is(err, validation.ErrEmptyFile):
		code = "invalid_file"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: traceID,
	})
}

func (h *ConversionHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
