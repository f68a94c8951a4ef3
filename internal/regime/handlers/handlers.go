// Package handlers provides HTTP handlers for market regime queries.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"vantage/internal/regime"
)

// Handler handles regime HTTP requests
type Handler struct {
	detector *regime.Detector
	log      zerolog.Logger
}

// NewHandler creates a new regime handler
func NewHandler(detector *regime.Detector, log zerolog.Logger) *Handler {
	return &Handler{
		detector: detector,
		log:      log.With().Str("handler", "regime").Logger(),
	}
}

// HandleGetRegime handles GET /api/regime
func (h *Handler) HandleGetRegime(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.detector.Current(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to assess regime")
		http.Error(w, "Regime unavailable", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// HandleRefreshRegime handles POST /api/regime/refresh
func (h *Handler) HandleRefreshRegime(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.detector.Refresh(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to refresh regime")
		http.Error(w, "Regime unavailable", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
