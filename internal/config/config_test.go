package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SAXO_ENVIRONMENT", "")
	t.Setenv("FORCE_ENV_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8742, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "SIM", cfg.Saxo.Environment)
	assert.False(t, cfg.ForceEnvConfig)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9001")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SAXO_ENVIRONMENT", "LIVE")
	t.Setenv("SAXO_APP_KEY", "key123")
	t.Setenv("FORCE_ENV_CONFIG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "LIVE", cfg.Saxo.Environment)
	assert.Equal(t, "key123", cfg.Saxo.AppKey)
	assert.True(t, cfg.ForceEnvConfig)
}

func TestLoadCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SAXO_ENVIRONMENT", "STAGING")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAXO_ENVIRONMENT")
}

func TestBackupConfigEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  BackupConfig
		want bool
	}{
		{"all set", BackupConfig{AccessKeyID: "a", SecretAccessKey: "s", Bucket: "b"}, true},
		{"no bucket", BackupConfig{AccessKeyID: "a", SecretAccessKey: "s"}, false},
		{"empty", BackupConfig{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Enabled())
		})
	}
}

func TestBackupConfigEndpointURL(t *testing.T) {
	explicit := BackupConfig{Endpoint: "https://s3.example.com"}
	assert.Equal(t, "https://s3.example.com", explicit.EndpointURL())

	derived := BackupConfig{AccountID: "abc123"}
	assert.Equal(t, "https://abc123.r2.cloudflarestorage.com", derived.EndpointURL())

	assert.Empty(t, BackupConfig{}.EndpointURL())
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("VANTAGE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "long_term", s.Stream.DefaultMode)
	assert.Equal(t, 60, s.Stream.LongTerm.PollSeconds)
	assert.Equal(t, 30, s.Stream.LongTerm.PrioritySeconds)
	assert.Equal(t, 5, s.Stream.Scalping.PollSeconds)
	assert.Equal(t, 300, s.Alerts.IntervalSeconds)
	assert.Equal(t, "^VIX", s.Regime.VIX)
	assert.Equal(t, "quarterly", s.Backtest.RebalanceCadence)
	assert.Equal(t, 7, s.Backtest.EntryDays)
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
stream:
  default_mode: swing
  swing:
    poll_seconds: 15
    priority_seconds: 5
alerts:
  enabled: true
  interval_seconds: 120
  tickers: [AAPL, MSFT]
backtest:
  rebalance_cadence: monthly
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("VANTAGE_CONFIG", path)

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "swing", s.Stream.DefaultMode)
	assert.Equal(t, 15, s.Stream.Swing.PollSeconds)
	assert.True(t, s.Alerts.Enabled)
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Alerts.Tickers)
	assert.Equal(t, "monthly", s.Backtest.RebalanceCadence)
	// Untouched sections keep defaults
	assert.Equal(t, 60, s.Stream.LongTerm.PollSeconds)
}

func TestLoadSettingsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alerts:\n  interval_seconds: 5\n"), 0o644))
	t.Setenv("VANTAGE_CONFIG", path)

	_, err := LoadSettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval_seconds")
}
