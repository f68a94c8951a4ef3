package montecarlo

import (
	"vantage/internal/domain"
)

// Simulation bounds
const (
	MinHistoricalPoints = 20
	MaxDrawdownPaths    = 500
	SamplePathCount     = 5
	DistributionPoints  = 1000
	TradingDaysPerYear  = 252
)

// Params are annualised GBM parameters estimated from daily returns
type Params struct {
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility"`
}

// SimulationRequest describes a single-asset GBM run
type SimulationRequest struct {
	Ticker         domain.Ticker `json:"ticker"`
	InitialPrice   float64       `json:"initial_price"`
	Days           int           `json:"days"`
	NumSimulations int           `json:"num_simulations"`
	Seed           *uint64       `json:"seed,omitempty"`
}

// SimulationResult summarises terminal prices across all paths
type SimulationResult struct {
	Percentiles         map[string]float64 `json:"percentiles"`
	Ticker              domain.Ticker      `json:"ticker"`
	SamplePaths         [][]float64        `json:"sample_paths"`
	Distribution        []float64          `json:"distribution"`
	Params              Params             `json:"params"`
	InitialPrice        float64            `json:"initial_price"`
	Days                int                `json:"days"`
	NumSimulations      int                `json:"num_simulations"`
	Mean                float64            `json:"mean"`
	Median              float64            `json:"median"`
	StdDev              float64            `json:"std_dev"`
	ProbBelowInitial    float64            `json:"prob_below_initial"`
	ProbGainOver10Pct   float64            `json:"prob_gain_over_10pct"`
	ProbLossOver10Pct   float64            `json:"prob_loss_over_10pct"`
	ExpectedMaxDrawdown float64            `json:"expected_max_drawdown"`
	Seed                uint64             `json:"seed"`
}

// PortfolioPosition is one holding in a portfolio risk request
type PortfolioPosition struct {
	Ticker      domain.Ticker `json:"ticker"`
	MarketValue float64       `json:"market_value"`
}

// PortfolioRiskRequest describes a portfolio VaR/CVaR run
type PortfolioRiskRequest struct {
	Positions      []PortfolioPosition `json:"positions"`
	HorizonDays    int                 `json:"horizon_days"`
	NumSimulations int                 `json:"num_simulations"`
	Seed           *uint64             `json:"seed,omitempty"`
}

// PositionRisk is the per-position attribution of portfolio risk
type PositionRisk struct {
	Ticker               domain.Ticker `json:"ticker"`
	Weight               float64       `json:"weight"`
	Volatility           float64       `json:"volatility"`
	CorrelationToPort    float64       `json:"correlation_to_portfolio"`
	MarginalContribution float64       `json:"marginal_contribution"`
}

// PortfolioRiskResult carries VaR/CVaR at the standard confidence levels
// plus decomposition. VaR and CVaR are positive currency losses.
type PortfolioRiskResult struct {
	VaR                  map[string]float64 `json:"var"`
	CVaR                 map[string]float64 `json:"cvar"`
	Positions            []PositionRisk     `json:"positions"`
	TotalValue           float64            `json:"total_value"`
	HorizonDays          int                `json:"horizon_days"`
	NumSimulations       int                `json:"num_simulations"`
	PortfolioVolatility  float64            `json:"portfolio_volatility"`
	DiversificationRatio float64            `json:"diversification_ratio"`
	Seed                 uint64             `json:"seed"`
}

// Scenario adjusts base GBM parameters. DriftOverride replaces drift
// entirely; the multipliers scale the estimated base values.
type Scenario struct {
	VolMultiplier   *float64 `json:"vol_multiplier,omitempty"`
	DriftMultiplier *float64 `json:"drift_multiplier,omitempty"`
	DriftOverride   *float64 `json:"drift_override,omitempty"`
}

// ScenarioRequest runs one simulation per named scenario off shared base
// parameter estimates
type ScenarioRequest struct {
	Scenarios      map[string]Scenario `json:"scenarios"`
	Ticker         domain.Ticker       `json:"ticker"`
	InitialPrice   float64             `json:"initial_price"`
	Days           int                 `json:"days"`
	NumSimulations int                 `json:"num_simulations"`
	Seed           *uint64             `json:"seed,omitempty"`
}
