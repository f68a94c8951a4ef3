package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
)

// scanTimeout bounds the quote fetch for one ticker
const scanTimeout = 10 * time.Second

// Notifier pushes an emitted signal to the outbound channel. The telegram
// notifier satisfies this; a nil notifier keeps alerts history-only.
type Notifier interface {
	SendAlert(ctx context.Context, ticker, signalType, message string)
}

type cooldownKey struct {
	ticker     domain.Ticker
	signalType string
}

// Watcher runs the periodic scan loop and decides which detected signals
// actually get emitted. A signal is emitted only when its type differs
// from the last recorded signal for the ticker and the (ticker, type)
// pair is outside the configured cooldown. Severity never shortens a
// cooldown.
type Watcher struct {
	config   *ConfigStore
	history  *HistoryStore
	scanner  *Scanner
	notifier Notifier
	log      zerolog.Logger

	mu       sync.Mutex
	lastType map[domain.Ticker]string
	lastSent map[cooldownKey]time.Time
}

// NewWatcher creates a watcher and seeds its dedup state from the
// retained signal history, so restarts do not replay recent alerts.
func NewWatcher(config *ConfigStore, history *HistoryStore, scanner *Scanner, notifier Notifier, log zerolog.Logger) *Watcher {
	w := &Watcher{
		config:   config,
		history:  history,
		scanner:  scanner,
		notifier: notifier,
		log:      log.With().Str("component", "alerts").Logger(),
		lastType: make(map[domain.Ticker]string),
		lastSent: make(map[cooldownKey]time.Time),
	}
	w.seedFromHistory()
	return w
}

func (w *Watcher) seedFromHistory() {
	// Recent returns newest first, so the first hit per key wins
	for _, sig := range w.history.Recent(0) {
		if _, ok := w.lastType[sig.Ticker]; !ok {
			w.lastType[sig.Ticker] = sig.Type
		}
		key := cooldownKey{ticker: sig.Ticker, signalType: sig.Type}
		if _, ok := w.lastSent[key]; !ok {
			w.lastSent[key] = sig.TriggeredAt
		}
	}
	if len(w.lastSent) > 0 {
		w.log.Debug().Int("pairs", len(w.lastSent)).Msg("Cooldown state seeded from history")
	}
}

// Run blocks until ctx is cancelled, scanning on the configured interval.
// The config is re-read every cycle and a saved change re-arms the timer
// immediately, so a shortened interval never waits out the old one.
func (w *Watcher) Run(ctx context.Context) {
	w.log.Info().Msg("Alert watcher started")
	for {
		cfg, err := w.config.Load()
		if err != nil {
			w.log.Error().Err(err).Msg("Failed to load alert config, watcher idling")
			cfg = DefaultConfig()
		}
		interval := cfg.Interval()
		if interval < MinInterval || interval > MaxInterval {
			interval = DefaultConfig().Interval()
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Alert watcher stopped")
			return
		case <-w.config.Updates():
			timer.Stop()
			continue
		case <-timer.C:
		}

		if !cfg.Enabled || len(cfg.Tickers) == 0 {
			continue
		}
		if !cfg.TradingHours.Contains(time.Now()) {
			continue
		}
		w.runScan(ctx, cfg)
	}
}

// runScan evaluates every configured ticker once. Per-ticker failures are
// logged and never abort the sweep.
func (w *Watcher) runScan(ctx context.Context, cfg Config) {
	for _, raw := range cfg.Tickers {
		ticker := domain.Ticker(raw)

		scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
		signals, err := w.scanner.Scan(scanCtx, ticker)
		cancel()
		if err != nil {
			w.log.Warn().Err(err).Str("ticker", raw).Msg("Signal scan failed")
			continue
		}

		for _, sig := range signals {
			w.process(ctx, sig, cfg.Cooldown())
		}
	}
}

// process applies the dedup and cooldown rules and emits when both pass
func (w *Watcher) process(ctx context.Context, sig Signal, cooldown time.Duration) {
	key := cooldownKey{ticker: sig.Ticker, signalType: sig.Type}

	w.mu.Lock()
	if w.lastType[sig.Ticker] == sig.Type {
		w.mu.Unlock()
		return
	}
	if last, ok := w.lastSent[key]; ok && sig.TriggeredAt.Sub(last) < cooldown {
		w.mu.Unlock()
		return
	}
	w.lastType[sig.Ticker] = sig.Type
	w.lastSent[key] = sig.TriggeredAt
	w.mu.Unlock()

	if err := w.history.Append(sig); err != nil {
		w.log.Error().Err(err).Str("ticker", sig.Ticker.String()).Msg("Failed to record signal")
	}
	if w.notifier != nil {
		w.notifier.SendAlert(ctx, sig.Ticker.String(), sig.Type, sig.Message)
	}
	w.log.Info().
		Str("ticker", sig.Ticker.String()).
		Str("type", sig.Type).
		Str("severity", sig.Severity).
		Msg("Signal emitted")
}
