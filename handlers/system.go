package handlers

import (
	"net/http"
)

// Health reports liveness. The process is healthy as long as it can
// serve; memory pressure is visible through Stats.
func (h *ConversionHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Stats exposes store contents and the current pressure level for
// diagnostics.
func (h *ConversionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Stats(r.Context()))
}
