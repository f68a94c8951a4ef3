package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
)

// Interval bounds for the watcher loop
const (
	MinInterval = 10 * time.Second
	MaxInterval = 24 * time.Hour
)

// Config drives the alert watcher. It lives in a plain JSON file so it can
// be edited through the API or by hand while the watcher is running.
type Config struct {
	Enabled         bool         `json:"enabled"`
	IntervalSeconds int          `json:"interval_seconds"`
	Tickers         []string     `json:"tickers"`
	CooldownMinutes int          `json:"cooldown_minutes"`
	TradingHours    TradingHours `json:"trading_hours"`
}

// TradingHours restricts scanning to a daily window when enabled.
// Start and End are wall-clock times ("15:04") in Timezone; weekends are
// always outside the window.
type TradingHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// DefaultConfig returns the configuration written on first save and served
// when no file exists yet. The watcher starts disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		IntervalSeconds: 300,
		CooldownMinutes: 60,
		TradingHours: TradingHours{
			Enabled:  false,
			Start:    "09:30",
			End:      "16:00",
			Timezone: "America/New_York",
		},
	}
}

// Interval returns the scan period
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Cooldown returns the per-(ticker, type) re-emission guard
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Validate checks bounds and normalises the ticker list in place
func (c *Config) Validate() error {
	if iv := c.Interval(); iv < MinInterval || iv > MaxInterval {
		return domain.NewValidationError("interval_seconds",
			"interval must be between %s and %s, got %s", MinInterval, MaxInterval, iv)
	}
	if c.CooldownMinutes < 0 {
		return domain.NewValidationError("cooldown_minutes", "cooldown must not be negative")
	}

	normalised := make([]string, 0, len(c.Tickers))
	for _, raw := range c.Tickers {
		ticker, err := domain.ParseTicker(raw)
		if err != nil {
			return domain.NewValidationError("tickers", "%v", err)
		}
		normalised = append(normalised, ticker.String())
	}
	c.Tickers = normalised

	return c.TradingHours.validate()
}

func (h TradingHours) validate() error {
	if !h.Enabled {
		return nil
	}
	if _, err := time.Parse("15:04", h.Start); err != nil {
		return domain.NewValidationError("trading_hours.start", "expected HH:MM, got %q", h.Start)
	}
	if _, err := time.Parse("15:04", h.End); err != nil {
		return domain.NewValidationError("trading_hours.end", "expected HH:MM, got %q", h.End)
	}
	if _, err := time.LoadLocation(h.Timezone); err != nil {
		return domain.NewValidationError("trading_hours.timezone", "unknown timezone %q", h.Timezone)
	}
	return nil
}

// Contains reports whether now falls inside the window. A disabled window
// contains everything. An end at or before the start wraps past midnight.
func (h TradingHours) Contains(now time.Time) bool {
	if !h.Enabled {
		return true
	}
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return true
	}
	local := now.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	start, err := time.Parse("15:04", h.Start)
	if err != nil {
		return true
	}
	end, err := time.Parse("15:04", h.End)
	if err != nil {
		return true
	}

	cur := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if endMin <= startMin {
		return cur >= startMin || cur < endMin
	}
	return cur >= startMin && cur < endMin
}

// ConfigStore persists the alert configuration as plain JSON under an
// advisory file lock, written atomically via temp file and rename.
type ConfigStore struct {
	path    string
	fl      *flock.Flock
	mu      sync.RWMutex // serialises goroutines of this process; flock covers other processes
	updates chan struct{}
	log     zerolog.Logger
}

// NewConfigStore creates a store backed by the given file path
func NewConfigStore(path string, log zerolog.Logger) (*ConfigStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &ConfigStore{
		path:    path,
		fl:      flock.New(path + ".lock"),
		updates: make(chan struct{}, 1),
		log:     log.With().Str("component", "alerts").Str("file", filepath.Base(path)).Logger(),
	}, nil
}

// Updates signals after every successful Save so the watcher can re-arm
// its timer without waiting out the old interval
func (s *ConfigStore) Updates() <-chan struct{} {
	return s.updates
}

// Load reads the current configuration. A missing file yields the default.
func (s *ConfigStore) Load() (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fl.RLock(); err != nil {
		return Config{}, fmt.Errorf("failed to acquire shared lock: %w", err)
	}
	defer s.fl.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read alert config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse alert config: %w", err)
	}
	return cfg, nil
}

// Save validates and persists cfg, replacing the file atomically
func (s *ConfigStore) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock: %w", err)
	}
	defer s.fl.Unlock()

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialise alert config: %w", err)
	}
	if err := writeFileAtomic(s.path, raw); err != nil {
		return err
	}
	s.log.Info().
		Bool("enabled", cfg.Enabled).
		Int("tickers", len(cfg.Tickers)).
		Str("interval", cfg.Interval().String()).
		Msg("Alert config saved")

	select {
	case s.updates <- struct{}{}:
	default:
	}
	return nil
}

// writeFileAtomic replaces path via a temp file in the same directory
// followed by rename
func writeFileAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
