// Package handlers provides HTTP handlers for on-demand indicator
// calculations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/modules/indicators"
	"vantage/internal/quotes"
)

// defaultHistoryDays gives the engine enough bars for the SMA200 leg
const defaultHistoryDays = 365

// Handler handles indicator HTTP requests
type Handler struct {
	provider quotes.Provider
	engine   *indicators.Engine
	log      zerolog.Logger
}

// NewHandler creates a new indicators handler
func NewHandler(provider quotes.Provider, engine *indicators.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		provider: provider,
		engine:   engine,
		log:      log.With().Str("handler", "indicators").Logger(),
	}
}

// HandleGet handles GET /api/indicators/{ticker}?days=365
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ticker, err := domain.ParseTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeError(w, domain.NewValidationError("ticker", "%v", err))
		return
	}

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	bars, err := h.provider.Historical(r.Context(), ticker, days)
	if err != nil {
		h.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Historical fetch failed")
		h.writeError(w, err)
		return
	}

	result, err := h.engine.Calculate(ticker, bars)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
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
	var notFoundErr *quotes.TickerNotFoundError
	var insufficientErr *domain.InsufficientDataError

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Error(), http.StatusNotFound)
	case errors.As(err, &insufficientErr):
		http.Error(w, insufficientErr.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Upstream timeout", http.StatusGatewayTimeout)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
