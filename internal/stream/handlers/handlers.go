// Package handlers provides HTTP handlers for streamer control.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/stream"
)

// Handler handles stream HTTP requests
type Handler struct {
	streamer *stream.Streamer
	log      zerolog.Logger
}

// NewHandler creates a new stream handler
func NewHandler(streamer *stream.Streamer, log zerolog.Logger) *Handler {
	return &Handler{
		streamer: streamer,
		log:      log.With().Str("handler", "stream").Logger(),
	}
}

// HandleStatus handles GET /api/stream/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.streamer.Status())
}

// HandleSetMode handles POST /api/stream/mode
func (h *Handler) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.streamer.SetTradingMode(r.Context(), stream.TradingMode(req.Mode)); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.streamer.Status())
}

// HandleSubscribe handles POST /api/stream/subscribe
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker   string `json:"ticker"`
		Priority int    `json:"priority"`
		Source   string `json:"source,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ticker, err := domain.ParseTicker(req.Ticker)
	if err != nil {
		h.writeError(w, domain.NewValidationError("ticker", "%v", err))
		return
	}
	if req.Priority == 0 {
		req.Priority = stream.PriorityNormal
	}

	state, err := h.streamer.Subscribe(r.Context(), ticker, req.Priority, req.Source)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// HandleUnsubscribe handles DELETE /api/stream/subscribe/{ticker}
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ticker, err := domain.ParseTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeError(w, domain.NewValidationError("ticker", "%v", err))
		return
	}

	if err := h.streamer.Unsubscribe(r.Context(), ticker); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed", "ticker": ticker.String()})
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
	var notFoundErr *domain.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Error(), http.StatusNotFound)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
