package dto

type CreateConversionRequest struct {
	FileID       string `json:"file_id"`
	OutputFormat string `json:"output_format"`
	TargetWidth  *int   `json:"target_width,omitempty"`
	TargetHeight *int   `json:"target_height,omitempty"`
	Crop         bool   `json:"crop"`
}

type FileResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type OperationResponse struct {
	ID                        string     `json:"id"`
	TraceID                   string     `json:"trace_id,omitempty"`
	SourceFileID              string     `json:"source_file_id"`
	Status                    string     `json:"status"`
	ProgressPercent           int        `json:"progress_percent"`
	EstimatedSecondsRemaining *int       `json:"estimated_seconds_remaining,omitempty"`
	ResultFileID              string     `json:"result_file_id,omitempty"`
	Error                     *ErrorInfo `json:"error,omitempty"`
	CreatedAt                 string     `json:"created_at"`
	CompletedAt               *string    `json:"completed_at,omitempty"`
}

type StatsResponse struct {
	FileCount      int    `json:"file_count"`
	OperationCount int    `json:"operation_count"`
	TotalBytes     int64  `json:"total_bytes"`
	PressureLevel  string `json:"pressure_level"`
	Uptime         string `json:"uptime"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
