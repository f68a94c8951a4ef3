package alerts

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubNotifier) SendAlert(_ context.Context, ticker, signalType, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ticker+":"+signalType)
}

func (s *stubNotifier) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestWatcher(t *testing.T, closes map[string][]float64) (*Watcher, *stubNotifier) {
	t.Helper()
	dir := t.TempDir()
	configStore, err := NewConfigStore(filepath.Join(dir, "alert_config.json"), zerolog.Nop())
	require.NoError(t, err)
	historyStore, err := NewHistoryStore(filepath.Join(dir, "signal_history.json"), zerolog.Nop())
	require.NoError(t, err)
	scanner, _ := newTestScanner(closes)
	notifier := &stubNotifier{}
	return NewWatcher(configStore, historyStore, scanner, notifier, zerolog.Nop()), notifier
}

func TestProcessDedupAndCooldown(t *testing.T) {
	w, notifier := newTestWatcher(t, nil)
	ctx := context.Background()
	base := time.Now().UTC()
	cooldown := time.Hour

	// First sighting emits
	w.process(ctx, signalAt("AAPL", SignalRSIOverbought, base), cooldown)
	assert.Equal(t, []string{"AAPL:rsi_overbought"}, notifier.sent())

	// Same type again is suppressed regardless of cooldown
	w.process(ctx, signalAt("AAPL", SignalRSIOverbought, base.Add(time.Minute)), cooldown)
	assert.Len(t, notifier.sent(), 1)

	// A different type passes the changed-type gate
	w.process(ctx, signalAt("AAPL", SignalBandBreakUpper, base.Add(2*time.Minute)), cooldown)
	assert.Len(t, notifier.sent(), 2)

	// Back to the first type: changed vs last, but inside its cooldown
	w.process(ctx, signalAt("AAPL", SignalRSIOverbought, base.Add(10*time.Minute)), cooldown)
	assert.Len(t, notifier.sent(), 2)

	// Outside the cooldown it emits again
	w.process(ctx, signalAt("AAPL", SignalRSIOverbought, base.Add(2*time.Hour)), cooldown)
	assert.Len(t, notifier.sent(), 3)

	recorded := w.history.Recent(0)
	require.Len(t, recorded, 3)
	assert.Equal(t, SignalRSIOverbought, recorded[0].Type)
	assert.Equal(t, SignalBandBreakUpper, recorded[1].Type)
}

func TestProcessTracksTickersIndependently(t *testing.T) {
	w, notifier := newTestWatcher(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	w.process(ctx, signalAt("AAPL", SignalRSIOverbought, now), time.Hour)
	w.process(ctx, signalAt("MSFT", SignalRSIOverbought, now), time.Hour)

	assert.ElementsMatch(t, []string{"AAPL:rsi_overbought", "MSFT:rsi_overbought"}, notifier.sent())
}

func TestWatcherSeedsStateFromHistory(t *testing.T) {
	dir := t.TempDir()
	configStore, err := NewConfigStore(filepath.Join(dir, "alert_config.json"), zerolog.Nop())
	require.NoError(t, err)
	historyStore, err := NewHistoryStore(filepath.Join(dir, "signal_history.json"), zerolog.Nop())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, historyStore.Append(signalAt("AAPL", SignalRSIOverbought, now.Add(-5*time.Minute))))
	require.NoError(t, historyStore.Append(signalAt("AAPL", SignalMACDBullCross, now.Add(-time.Minute))))

	scanner, _ := newTestScanner(nil)
	notifier := &stubNotifier{}
	w := NewWatcher(configStore, historyStore, scanner, notifier, zerolog.Nop())
	ctx := context.Background()

	// Latest recorded type for AAPL is the MACD cross
	w.process(ctx, signalAt("AAPL", SignalMACDBullCross, now), time.Hour)
	assert.Empty(t, notifier.sent(), "unchanged type after restart stays quiet")

	// Type changed, but the pair was emitted five minutes ago
	w.process(ctx, signalAt("AAPL", SignalRSIOverbought, now), time.Hour)
	assert.Empty(t, notifier.sent(), "cooldown survives restart")

	// A fresh ticker is unaffected by the seeded state
	w.process(ctx, signalAt("MSFT", SignalRSIOverbought, now), time.Hour)
	assert.Equal(t, []string{"MSFT:rsi_overbought"}, notifier.sent())
}

func TestRunScanSweepsConfiguredTickers(t *testing.T) {
	w, notifier := newTestWatcher(t, map[string][]float64{
		"AAPL": linearCloses(30, 100, 1),
	})

	cfg := DefaultConfig()
	cfg.Enabled = true
	// MISSING fails its fetch; the sweep must still reach AAPL
	cfg.Tickers = []string{"MISSING", "AAPL"}

	w.runScan(context.Background(), cfg)
	assert.Equal(t, []string{"AAPL:rsi_overbought"}, notifier.sent())
	assert.Len(t, w.history.Recent(0), 1)

	// A second sweep with unchanged posture emits nothing new
	w.runScan(context.Background(), cfg)
	assert.Len(t, notifier.sent(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	w, _ := newTestWatcher(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}
