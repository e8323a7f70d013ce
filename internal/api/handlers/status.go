package handlers

import (
	"net/http"

	"github.com/voice-scribe/backend/internal/recovery"
	"github.com/voice-scribe/backend/internal/resource"
)

// StatusHandler reports sentinel state, memory pressure and recovery
// counters to the GUI shell.
type StatusHandler struct {
	sentinel *resource.Sentinel
	recovery *recovery.Manager
}

func NewStatusHandler(sentinel *resource.Sentinel, rec *recovery.Manager) *StatusHandler {
	return &StatusHandler{sentinel: sentinel, recovery: rec}
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	recovered, failed := h.recovery.Stats()
	jsonResponse(w, map[string]any{
		"sentinel": h.sentinel.Status(),
		"memory":   h.sentinel.ProbeMemory(),
		"recovery": map[string]uint64{
			"recovered": recovered,
			"failed":    failed,
		},
	}, http.StatusOK)
}

func (h *StatusHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.sentinel.Metrics(), http.StatusOK)
}
