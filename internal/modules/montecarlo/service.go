package montecarlo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/quotes"
)

// historyDays is how much history parameter estimation pulls
const historyDays = 252

// Service wires the engine to market data
type Service struct {
	engine   *Engine
	provider quotes.Provider
	log      zerolog.Logger
}

// NewService creates a simulation service over a quote provider
func NewService(engine *Engine, provider quotes.Provider, log zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		provider: provider,
		log:      log.With().Str("component", "montecarlo_service").Logger(),
	}
}

// SimulateTicker estimates GBM parameters from history and runs the
// simulation. A non-positive initial price is replaced by the latest close.
func (s *Service) SimulateTicker(ctx context.Context, req SimulationRequest) (*SimulationResult, error) {
	bars, err := s.provider.Historical(ctx, req.Ticker, historyDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", req.Ticker, err)
	}

	params, err := EstimateParams(bars)
	if err != nil {
		return nil, err
	}

	if req.InitialPrice <= 0 && len(bars) > 0 {
		req.InitialPrice = bars[len(bars)-1].Close
	}

	return s.engine.Simulate(ctx, req, params)
}

// PortfolioRisk fetches aligned return series for every position and runs
// the VaR/CVaR computation
func (s *Service) PortfolioRisk(ctx context.Context, req PortfolioRiskRequest) (*PortfolioRiskResult, error) {
	returns := make(map[domain.Ticker][]float64, len(req.Positions))
	for _, p := range req.Positions {
		bars, err := s.provider.Historical(ctx, p.Ticker, historyDays)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history for %s: %w", p.Ticker, err)
		}
		returns[p.Ticker] = quotes.DailyReturns(bars)
	}

	return s.engine.PortfolioRisk(ctx, req, returns)
}

// Scenarios estimates base parameters once and runs every scenario
func (s *Service) Scenarios(ctx context.Context, req ScenarioRequest) (map[string]*SimulationResult, error) {
	bars, err := s.provider.Historical(ctx, req.Ticker, historyDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", req.Ticker, err)
	}

	base, err := EstimateParams(bars)
	if err != nil {
		return nil, err
	}

	if req.InitialPrice <= 0 && len(bars) > 0 {
		req.InitialPrice = bars[len(bars)-1].Close
	}

	return s.engine.RunScenarios(ctx, req, base)
}
