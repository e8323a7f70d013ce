package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voice-scribe/backend/internal/resource"
)

// ModelsHandler exposes the resource sentinel's lifecycle operations.
type ModelsHandler struct {
	sentinel *resource.Sentinel
}

func NewModelsHandler(sentinel *resource.Sentinel) *ModelsHandler {
	return &ModelsHandler{sentinel: sentinel}
}

func parseKind(r *http.Request) (resource.Kind, bool) {
	kind := resource.Kind(chi.URLParam(r, "kind"))
	return kind, kind.Valid()
}

// Load makes a model of the given kind resident. Idempotent.
func (h *ModelsHandler) Load(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r)
	if !ok {
		jsonError(w, "unknown model kind", http.StatusBadRequest)
		return
	}

	var params map[string]string
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	if !h.sentinel.Request(kind, params) {
		if safe, reason := h.sentinel.CheckThreshold(); !safe {
			jsonError(w, reason, http.StatusInsufficientStorage)
			return
		}
		jsonError(w, "model load failed", http.StatusServiceUnavailable)
		return
	}

	jsonResponse(w, map[string]any{"kind": kind, "loaded": true}, http.StatusOK)
}

// Unload releases the model of the given kind if it is resident.
func (h *ModelsHandler) Unload(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r)
	if !ok {
		jsonError(w, "unknown model kind", http.StatusBadRequest)
		return
	}

	released := h.sentinel.Release(kind)
	jsonResponse(w, map[string]any{"kind": kind, "released": released}, http.StatusOK)
}

type swapRequest struct {
	From   string            `json:"from"`
	To     string            `json:"to"`
	Params map[string]string `json:"params,omitempty"`
}

// Swap releases one model kind and loads another in a single operation.
// On failure neither model is resident; the caller decides what to load
// next.
func (h *ModelsHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	from, to := resource.Kind(req.From), resource.Kind(req.To)
	if !from.Valid() || !to.Valid() || from == to {
		jsonError(w, "invalid swap kinds", http.StatusBadRequest)
		return
	}

	if !h.sentinel.Swap(from, to, req.Params) {
		jsonError(w, "swap failed, no model is loaded", http.StatusConflict)
		return
	}

	jsonResponse(w, map[string]any{"from": from, "to": to, "swapped": true}, http.StatusOK)
}

// Cleanup forces a memory cleanup pass.
func (h *ModelsHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	h.sentinel.ForceCleanup()
	jsonResponse(w, map[string]any{"cleaned": true}, http.StatusOK)
}
