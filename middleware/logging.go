package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// statusRecorder captures what the handler wrote so the completion log
// can carry the status and response size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Logging logs one line per completed request. Request and response
// sizes matter here because every payload lands in the in-memory store;
// pressure supplies the current memory pressure level so slow or
// rejected requests can be correlated with store load. A nil pressure
// func disables that field.
func Logging(logger *zap.Logger, pressure func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("trace_id", GetTraceID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int64("request_bytes", r.ContentLength),
				zap.Int("response_bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
			}
			if pressure != nil {
				fields = append(fields, zap.String("pressure_level", pressure()))
			}
			logger.Info("Request completed", fields...)
		})
	}
}
