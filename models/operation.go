package models

import "time"

type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Error codes attached to failed operations.
const (
	ErrCodeStallTimeout     = "stall_timeout"
	ErrCodeSourceMissing    = "source_missing"
	ErrCodeConversionFailed = "conversion_failed"
	ErrCodeOutOfMemory      = "out_of_memory"
)

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConversionOptions describes the requested output.
type ConversionOptions struct {
	OutputFormat string `json:"output_format"`
	TargetWidth  *int   `json:"target_width,omitempty"`
	TargetHeight *int   `json:"target_height,omitempty"`
	Crop         bool   `json:"crop"`
}

// Operation is one conversion job. SourceFileID and ResultFileID are
// foreign-key style references into the file store, not ownership: the
// referenced files may be evicted independently once the operation is
// terminal.
type Operation struct {
	ID              string            `json:"id"`
	TraceID         string            `json:"trace_id"`
	SourceFileID    string            `json:"source_file_id"`
	Options         ConversionOptions `json:"options"`
	Status          OperationStatus   `json:"status"`
	ProgressPercent int               `json:"progress_percent"`
	ETASeconds      *int              `json:"eta_seconds,omitempty"`
	ResultFileID    string            `json:"result_file_id,omitempty"`
	Error           *ErrorInfo        `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (o *Operation) Clone() *Operation {
	cp := *o
	if o.ETASeconds != nil {
		v := *o.ETASeconds
		cp.ETASeconds = &v
	}
	if o.Error != nil {
		e := *o.Error
		cp.Error = &e
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	if o.Options.TargetWidth != nil {
		w := *o.Options.TargetWidth
		cp.Options.TargetWidth = &w
	}
	if o.Options.TargetHeight != nil {
		h := *o.Options.TargetHeight
		cp.Options.TargetHeight = &h
	}
	return &cp
}
