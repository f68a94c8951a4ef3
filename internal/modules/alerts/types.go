// Package alerts watches a configurable ticker list for technical signals
// and pushes them through the notifier.
//
// The watcher scans on a runtime-editable interval, detects RSI extremes,
// MACD line crossovers and Bollinger band breaches on a short daily
// window, and emits a signal only when its type differs from the last one
// recorded for the ticker and the (ticker, type) pair is outside its
// cooldown. Emitted signals land in a capped on-disk history that also
// seeds the dedup state across restarts.
package alerts

import (
	"time"

	"vantage/internal/domain"
)

// Signal types produced by the scanner
const (
	SignalRSIOverbought  = "rsi_overbought"
	SignalRSIOversold    = "rsi_oversold"
	SignalMACDBullCross  = "macd_bullish_cross"
	SignalMACDBearCross  = "macd_bearish_cross"
	SignalBandBreakUpper = "bollinger_break_upper"
	SignalBandBreakLower = "bollinger_break_lower"
)

// Severity levels attached to signals. Severity is informational and does
// not participate in the cooldown key.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Signal is one detected event on one ticker
type Signal struct {
	Ticker      domain.Ticker `json:"ticker"`
	Type        string        `json:"type"`
	Severity    string        `json:"severity"`
	Message     string        `json:"message"`
	Value       float64       `json:"value"`
	Price       float64       `json:"price"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// Stats summarises the retained signal history
type Stats struct {
	Total    int            `json:"total"`
	Last24h  int            `json:"last_24h"`
	Last7d   int            `json:"last_7d"`
	ByType   map[string]int `json:"by_type"`
	ByTicker map[string]int `json:"by_ticker"`
}

func computeStats(entries []Signal, now time.Time) *Stats {
	stats := &Stats{
		Total:    len(entries),
		ByType:   make(map[string]int),
		ByTicker: make(map[string]int),
	}
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, sig := range entries {
		if sig.TriggeredAt.After(dayAgo) {
			stats.Last24h++
		}
		if sig.TriggeredAt.After(weekAgo) {
			stats.Last7d++
		}
		stats.ByType[sig.Type]++
		stats.ByTicker[sig.Ticker.String()]++
	}
	return stats
}
