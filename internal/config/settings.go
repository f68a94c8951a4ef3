package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Settings are runtime tunables read from config.yaml, each overridable via
// VANTAGE_* environment variables. All values have working defaults so the
// file is optional.
type Settings struct {
	Stream   StreamSettings   `mapstructure:"stream"`
	Alerts   AlertSettings    `mapstructure:"alerts"`
	Regime   RegimeSettings   `mapstructure:"regime"`
	Backtest BacktestSettings `mapstructure:"backtest"`
}

// StreamSettings tunes the hybrid streamer poll cadences per trading mode.
// Intervals are in seconds.
type StreamSettings struct {
	DefaultMode string        `mapstructure:"default_mode"`
	LongTerm    ModeIntervals `mapstructure:"long_term"`
	Swing       ModeIntervals `mapstructure:"swing"`
	Scalping    ModeIntervals `mapstructure:"scalping"`
}

// ModeIntervals holds the two poll cadences of a trading mode
type ModeIntervals struct {
	PollSeconds     int `mapstructure:"poll_seconds"`
	PrioritySeconds int `mapstructure:"priority_seconds"`
}

// AlertSettings seeds the alert watcher config file on first run
type AlertSettings struct {
	Enabled         bool     `mapstructure:"enabled"`
	IntervalSeconds int      `mapstructure:"interval_seconds"`
	CooldownMinutes int      `mapstructure:"cooldown_minutes"`
	Tickers         []string `mapstructure:"tickers"`
}

// RegimeSettings names the tickers the regime detector watches
type RegimeSettings struct {
	SPY             string `mapstructure:"spy"`
	VIX             string `mapstructure:"vix"`
	HYG             string `mapstructure:"hyg"`
	LQD             string `mapstructure:"lqd"`
	TenYear         string `mapstructure:"ten_year"`
	ThreeMonth      string `mapstructure:"three_month"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// BacktestSettings supplies defaults for runs that omit fields
type BacktestSettings struct {
	InitialCash         float64 `mapstructure:"initial_cash"`
	MonthlyContribution float64 `mapstructure:"monthly_contribution"`
	SlippageRate        float64 `mapstructure:"slippage_rate"`
	FXFeeRate           float64 `mapstructure:"fx_fee_rate"`
	FixedCommission     float64 `mapstructure:"fixed_commission"`
	RebalanceCadence    string  `mapstructure:"rebalance_cadence"`
	EntryDays           int     `mapstructure:"entry_days"`
	ExitDays            int     `mapstructure:"exit_days"`
}

// LoadSettings reads config.yaml (path overridable via VANTAGE_CONFIG) with
// env var overrides. A missing file falls back to defaults.
func LoadSettings() (*Settings, error) {
	path := getEnv("VANTAGE_CONFIG", "config.yaml")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VANTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.default_mode", "long_term")
	v.SetDefault("stream.long_term.poll_seconds", 60)
	v.SetDefault("stream.long_term.priority_seconds", 30)
	v.SetDefault("stream.swing.poll_seconds", 10)
	v.SetDefault("stream.swing.priority_seconds", 5)
	v.SetDefault("stream.scalping.poll_seconds", 5)
	v.SetDefault("stream.scalping.priority_seconds", 2)

	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.interval_seconds", 300)
	v.SetDefault("alerts.cooldown_minutes", 60)
	v.SetDefault("alerts.tickers", []string{})

	v.SetDefault("regime.spy", "SPY")
	v.SetDefault("regime.vix", "^VIX")
	v.SetDefault("regime.hyg", "HYG")
	v.SetDefault("regime.lqd", "LQD")
	v.SetDefault("regime.ten_year", "^TNX")
	v.SetDefault("regime.three_month", "^IRX")
	v.SetDefault("regime.cache_ttl_seconds", 300)

	v.SetDefault("backtest.initial_cash", 10000.0)
	v.SetDefault("backtest.monthly_contribution", 0.0)
	v.SetDefault("backtest.slippage_rate", 0.001)
	v.SetDefault("backtest.fx_fee_rate", 0.0025)
	v.SetDefault("backtest.fixed_commission", 1.0)
	v.SetDefault("backtest.rebalance_cadence", "quarterly")
	v.SetDefault("backtest.entry_days", 7)
	v.SetDefault("backtest.exit_days", 14)
}

// Validate checks value ranges
func (s *Settings) Validate() error {
	switch s.Stream.DefaultMode {
	case "long_term", "swing", "scalping":
	default:
		return fmt.Errorf("stream.default_mode must be one of long_term, swing, scalping, got %q", s.Stream.DefaultMode)
	}
	for name, m := range map[string]ModeIntervals{
		"long_term": s.Stream.LongTerm,
		"swing":     s.Stream.Swing,
		"scalping":  s.Stream.Scalping,
	} {
		if m.PollSeconds <= 0 || m.PrioritySeconds <= 0 {
			return fmt.Errorf("stream.%s intervals must be positive", name)
		}
	}
	if s.Alerts.IntervalSeconds < 10 || s.Alerts.IntervalSeconds > 86400 {
		return fmt.Errorf("alerts.interval_seconds must be between 10 and 86400, got %d", s.Alerts.IntervalSeconds)
	}
	if s.Alerts.CooldownMinutes < 0 {
		return fmt.Errorf("alerts.cooldown_minutes must not be negative")
	}
	switch s.Backtest.RebalanceCadence {
	case "monthly", "quarterly", "annual":
	default:
		return fmt.Errorf("backtest.rebalance_cadence must be one of monthly, quarterly, annual, got %q", s.Backtest.RebalanceCadence)
	}
	if s.Backtest.EntryDays < 1 || s.Backtest.ExitDays < 1 {
		return fmt.Errorf("backtest entry_days and exit_days must be at least 1")
	}
	return nil
}
