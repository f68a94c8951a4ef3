// Package handlers provides HTTP handlers for the alert watcher.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/modules/alerts"
)

// Handler handles alert configuration and history requests
type Handler struct {
	config  *alerts.ConfigStore
	history *alerts.HistoryStore
	log     zerolog.Logger
}

// NewHandler creates a new alerts handler
func NewHandler(config *alerts.ConfigStore, history *alerts.HistoryStore, log zerolog.Logger) *Handler {
	return &Handler{
		config:  config,
		history: history,
		log:     log.With().Str("handler", "alerts").Logger(),
	}
}

// HandleGetConfig handles GET /api/alerts/config
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Load()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load alert config")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// HandleUpdateConfig handles PUT /api/alerts/config
func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg alerts.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.config.Save(cfg); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cfg)
}

// HandleHistory handles GET /api/alerts/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	signals := h.history.Recent(limit)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": signals,
		"count":   len(signals),
	})
}

// HandleStats handles GET /api/alerts/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.history.Stats(time.Now().UTC()))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
