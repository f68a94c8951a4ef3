package montecarlo

import (
	"context"

	"vantage/internal/domain"
)

// RunScenarios executes one simulation per named scenario against adjusted
// copies of the shared base parameters. Every scenario uses the same seed so
// differences come from parameters alone.
func (e *Engine) RunScenarios(ctx context.Context, req ScenarioRequest, base Params) (map[string]*SimulationResult, error) {
	if len(req.Scenarios) == 0 {
		return nil, domain.NewValidationError("scenarios", "at least one scenario required")
	}

	seed := resolveSeed(req.Seed)
	results := make(map[string]*SimulationResult, len(req.Scenarios))
	for name, scenario := range req.Scenarios {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		params := scenario.apply(base)
		result, err := e.Simulate(ctx, SimulationRequest{
			Ticker:         req.Ticker,
			InitialPrice:   req.InitialPrice,
			Days:           req.Days,
			NumSimulations: req.NumSimulations,
			Seed:           &seed,
		}, params)
		if err != nil {
			return nil, err
		}
		results[name] = result
	}
	return results, nil
}

// apply derives scenario parameters from the base estimate. Overrides win
// over multipliers.
func (s Scenario) apply(base Params) Params {
	params := base
	if s.VolMultiplier != nil {
		params.Volatility = base.Volatility * *s.VolMultiplier
	}
	if s.DriftMultiplier != nil {
		params.Drift = base.Drift * *s.DriftMultiplier
	}
	if s.DriftOverride != nil {
		params.Drift = *s.DriftOverride
	}
	return params
}
