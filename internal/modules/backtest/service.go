package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/config"
	"vantage/internal/domain"
	"vantage/internal/quotes"
)

// signalWarmupDays is extra calendar history fetched before the backtest
// window so the 200-day SMA has bars to work with on day one
const signalWarmupDays = 320

// Service loads market data, runs the replay and persists the outcome
type Service struct {
	engine   *Engine
	repo     *Repository
	provider quotes.Provider
	signals  config.RegimeSettings
	log      zerolog.Logger
}

// NewService creates a backtest service
func NewService(engine *Engine, repo *Repository, provider quotes.Provider, signals config.RegimeSettings, log zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		repo:     repo,
		provider: provider,
		signals:  signals,
		log:      log.With().Str("component", "backtest-service").Logger(),
	}
}

// Run executes a backtest end to end and stores the result. The returned
// id identifies the persisted run.
func (s *Service) Run(ctx context.Context, name string, cfg Config) (*Result, int64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}

	startedAt := time.Now()
	market, err := s.loadMarketData(ctx, cfg)
	if err != nil {
		return nil, 0, err
	}

	result, err := s.engine.Run(ctx, cfg, market)
	if err != nil {
		return nil, 0, err
	}

	id, err := s.repo.SaveRun(name, startedAt, time.Now(), cfg, result.Metrics)
	if err != nil {
		return nil, 0, err
	}
	return result, id, nil
}

// GetRun loads a stored run
func (s *Service) GetRun(id int64) (*StoredRun, error) {
	return s.repo.GetRun(id)
}

// ListRuns lists stored runs, most recent first
func (s *Service) ListRuns(limit int) ([]*StoredRun, error) {
	return s.repo.ListRuns(limit)
}

// DeleteRun removes a stored run
func (s *Service) DeleteRun(id int64) error {
	return s.repo.DeleteRun(id)
}

// loadMarketData fetches bars for every traded ticker plus the macro
// signal series. Traded tickers are required; signal series degrade to
// absent, which keeps their triggers from firing.
func (s *Service) loadMarketData(ctx context.Context, cfg Config) (MarketData, error) {
	fetchDays := int(time.Since(cfg.StartDate).Hours()/24) + signalWarmupDays

	tickers := make(map[domain.Ticker]bool, len(cfg.Allocation)+len(cfg.RiskOffAllocation))
	for ticker := range cfg.Allocation {
		tickers[ticker] = true
	}
	for ticker := range cfg.RiskOffAllocation {
		tickers[ticker] = true
	}

	bars := make(map[domain.Ticker][]domain.HistoricalBar, len(tickers))
	for ticker := range tickers {
		series, err := s.provider.Historical(ctx, ticker, fetchDays)
		if err != nil {
			return MarketData{}, fmt.Errorf("failed to fetch history for %s: %w", ticker, err)
		}
		bars[ticker] = series
	}

	market := MarketData{Bars: bars}
	if !cfg.RiskOffEnabled {
		return market, nil
	}

	optional := func(ticker domain.Ticker) []domain.HistoricalBar {
		if ticker == "" {
			return nil
		}
		series, err := s.provider.Historical(ctx, ticker, fetchDays)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Signal series unavailable")
			return nil
		}
		return series
	}

	in := SignalInputs{
		SPY:        optional(domain.Ticker(s.signals.SPY)),
		VIX:        optional(domain.Ticker(s.signals.VIX)),
		HYG:        optional(domain.Ticker(s.signals.HYG)),
		LQD:        optional(domain.Ticker(s.signals.LQD)),
		TenYear:    optional(domain.Ticker(s.signals.TenYear)),
		ThreeMonth: optional(domain.Ticker(s.signals.ThreeMonth)),
	}
	if len(in.SPY) == 0 {
		return MarketData{}, domain.NewValidationError("signals", "risk-off enabled but %s history is unavailable", s.signals.SPY)
	}

	market.Signals = BuildSignals(in)
	return market, nil
}
