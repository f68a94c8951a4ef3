package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"nhooyr.io/websocket"

	"vantage/internal/domain"
)

// healthResponse is the liveness payload
type healthResponse struct {
	Status     string            `json:"status"`
	UptimeSecs int64             `json:"uptime_seconds"`
	Goroutines int               `json:"goroutines"`
	CPUPercent float64           `json:"cpu_percent"`
	MemPercent float64           `json:"mem_percent"`
	Databases  map[string]string `json:"databases"`
	Clients    int               `json:"stream_clients"`
}

// handleHealth handles GET /health and GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.systemStats()

	databases := make(map[string]string, 2)
	status := "ok"
	for name, db := range s.databases() {
		if err := db.QuickCheck(r.Context()); err != nil {
			databases[name] = err.Error()
			status = "degraded"
			continue
		}
		databases[name] = "ok"
	}

	resp := healthResponse{
		Status:     status,
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
		Goroutines: runtime.NumGoroutine(),
		CPUPercent: cpuPercent,
		MemPercent: memPercent,
		Databases:  databases,
		Clients:    s.cfg.Streamer.Hub().ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// systemStats samples CPU and RAM usage. The 100ms CPU window keeps the
// health endpoint fast enough for tight poll loops.
func (s *Server) systemStats() (float64, float64) {
	cpuAvg := 0.0
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		cpuAvg = percents[0]
	} else if err != nil {
		s.log.Warn().Err(err).Msg("Failed to sample CPU usage")
	}

	memPercent := 0.0
	if stat, err := mem.VirtualMemory(); err == nil {
		memPercent = stat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("Failed to sample memory usage")
	}

	return cpuAvg, memPercent
}

// handleWebSocket handles GET /ws: upgrade and hand off to the hub. The
// tickers query parameter (comma-separated) limits delivery to those
// tickers; without it the client receives every broadcast quote.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tickers, err := parseTickerFilter(r.URL.Query().Get("tickers"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}

	if client := s.cfg.Streamer.Hub().Register(conn, tickers); client == nil {
		s.log.Debug().Msg("WebSocket rejected, hub closed")
	}
}

// parseTickerFilter parses the comma-separated tickers query parameter.
// Empty input means no filter.
func parseTickerFilter(raw string) ([]domain.Ticker, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	out := make([]domain.Ticker, 0, len(parts))
	for _, part := range parts {
		ticker, err := domain.ParseTicker(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, ticker)
	}
	return out, nil
}
