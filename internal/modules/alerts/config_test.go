package alerts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
)

func newTestConfigStore(t *testing.T) *ConfigStore {
	t.Helper()
	store, err := NewConfigStore(filepath.Join(t.TempDir(), "alert_config.json"), zerolog.Nop())
	require.NoError(t, err)
	return store
}

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Tickers = []string{"AAPL", "MSFT"}
	return cfg
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	store := newTestConfigStore(t)

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 300, cfg.IntervalSeconds)
	assert.Equal(t, 60, cfg.CooldownMinutes)
	assert.Empty(t, cfg.Tickers)
}

func TestSaveRoundTrip(t *testing.T) {
	store := newTestConfigStore(t)

	saved := enabledConfig()
	saved.Tickers = []string{"aapl", " msft "}
	require.NoError(t, store.Save(saved))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Tickers, "tickers are normalised on save")
	assert.Equal(t, 5*time.Minute, cfg.Interval())
	assert.Equal(t, time.Hour, cfg.Cooldown())
}

func TestSaveWritesPlainJSON(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Save(enabledConfig()))

	raw, err := os.ReadFile(store.path)
	require.NoError(t, err)

	var onDisk map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, true, onDisk["enabled"])
	assert.Contains(t, onDisk, "trading_hours")
}

func TestSaveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval below floor", func(c *Config) { c.IntervalSeconds = 5 }},
		{"interval above ceiling", func(c *Config) { c.IntervalSeconds = 25 * 3600 }},
		{"negative cooldown", func(c *Config) { c.CooldownMinutes = -1 }},
		{"invalid ticker", func(c *Config) { c.Tickers = []string{"not a ticker!"} }},
		{"bad window start", func(c *Config) {
			c.TradingHours.Enabled = true
			c.TradingHours.Start = "9am"
		}},
		{"unknown timezone", func(c *Config) {
			c.TradingHours.Enabled = true
			c.TradingHours.Timezone = "Mars/Olympus"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestConfigStore(t)
			cfg := enabledConfig()
			tt.mutate(&cfg)

			err := store.Save(cfg)
			require.Error(t, err)
			var validationErr *domain.ValidationError
			assert.ErrorAs(t, err, &validationErr)

			// Rejected configs never reach disk
			loaded, loadErr := store.Load()
			require.NoError(t, loadErr)
			assert.False(t, loaded.Enabled)
		})
	}
}

func TestSaveNudgesWatcher(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Save(enabledConfig()))

	select {
	case <-store.Updates():
	default:
		t.Fatal("expected an update notification after save")
	}
}

func TestTradingHoursContains(t *testing.T) {
	window := TradingHours{Enabled: true, Start: "09:30", End: "16:00", Timezone: "UTC"}
	overnight := TradingHours{Enabled: true, Start: "22:00", End: "02:00", Timezone: "UTC"}
	disabled := TradingHours{Enabled: false}

	wednesday := func(hour, minute int) time.Time {
		return time.Date(2024, 1, 3, hour, minute, 0, 0, time.UTC)
	}
	saturday := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		hours  TradingHours
		now    time.Time
		expect bool
	}{
		{"disabled contains everything", disabled, saturday, true},
		{"weekday inside window", window, wednesday(12, 0), true},
		{"weekday at open", window, wednesday(9, 30), true},
		{"weekday at close is outside", window, wednesday(16, 0), false},
		{"weekday before open", window, wednesday(8, 0), false},
		{"weekend always outside", window, saturday, false},
		{"overnight window late evening", overnight, wednesday(23, 0), true},
		{"overnight window early morning", overnight, time.Date(2024, 1, 4, 1, 0, 0, 0, time.UTC), true},
		{"overnight window midday", overnight, wednesday(12, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.hours.Contains(tt.now))
		})
	}
}

func TestLoadCorruptConfigErrors(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte("{not json"), 0o644))

	_, err := store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse alert config")
}
