// Package montecarlo simulates price paths under geometric Brownian motion
// and derives portfolio risk measures. All randomness flows from an explicit
// seed so results are reproducible.
package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"vantage/internal/domain"
)

// ctxCheckStride is how many paths run between context checks
const ctxCheckStride = 100

// Engine runs GBM simulations
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a simulation engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "montecarlo").Logger(),
	}
}

// EstimateParams derives annualised drift and volatility from daily closes.
// Needs at least MinHistoricalPoints closes.
func EstimateParams(bars []domain.HistoricalBar) (Params, error) {
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			closes = append(closes, b.Close)
		}
	}
	if len(closes) < MinHistoricalPoints {
		return Params{}, &domain.InsufficientDataError{Op: "gbm parameter estimation", Need: MinHistoricalPoints, Have: len(closes)}
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, closes[i]/closes[i-1]-1)
	}

	mean, std := stat.MeanStdDev(returns, nil)
	return Params{
		Drift:      mean * TradingDaysPerYear,
		Volatility: std * math.Sqrt(TradingDaysPerYear),
	}, nil
}

// Simulate runs the GBM paths for one asset and summarises terminal prices.
// Interruptible at path boundaries via ctx.
func (e *Engine) Simulate(ctx context.Context, req SimulationRequest, params Params) (*SimulationResult, error) {
	if err := validateSimulationRequest(req); err != nil {
		return nil, err
	}

	seed := resolveSeed(req.Seed)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed)}

	dt := 1.0 / TradingDaysPerYear
	driftTerm := (params.Drift - 0.5*params.Volatility*params.Volatility) * dt
	diffusion := params.Volatility * math.Sqrt(dt)

	finals := make([]float64, req.NumSimulations)
	samplePaths := make([][]float64, 0, SamplePathCount)
	drawdownSum := 0.0
	drawdownPaths := 0

	for i := 0; i < req.NumSimulations; i++ {
		if i%ctxCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		recordPath := i < SamplePathCount
		trackDrawdown := i < MaxDrawdownPaths

		var path []float64
		if recordPath {
			path = make([]float64, 0, req.Days+1)
			path = append(path, req.InitialPrice)
		}

		price := req.InitialPrice
		peak := price
		maxDD := 0.0

		for d := 0; d < req.Days; d++ {
			price *= math.Exp(driftTerm + diffusion*normal.Rand())
			if recordPath {
				path = append(path, price)
			}
			if trackDrawdown {
				if price > peak {
					peak = price
				} else if peak > 0 {
					if dd := (peak - price) / peak; dd > maxDD {
						maxDD = dd
					}
				}
			}
		}

		finals[i] = price
		if recordPath {
			samplePaths = append(samplePaths, path)
		}
		if trackDrawdown {
			drawdownSum += maxDD
			drawdownPaths++
		}
	}

	result := summarise(finals, req)
	result.Params = params
	result.Seed = seed
	result.SamplePaths = samplePaths
	if drawdownPaths > 0 {
		result.ExpectedMaxDrawdown = drawdownSum / float64(drawdownPaths)
	}

	e.log.Debug().
		Str("ticker", req.Ticker.String()).
		Int("simulations", req.NumSimulations).
		Int("days", req.Days).
		Uint64("seed", seed).
		Msg("Simulation complete")

	return result, nil
}

// summarise computes distribution statistics over terminal prices
func summarise(finals []float64, req SimulationRequest) *SimulationResult {
	sorted := make([]float64, len(finals))
	copy(sorted, finals)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(finals, nil)

	belowInitial := 0
	gainOver10 := 0
	lossOver10 := 0
	for _, f := range finals {
		if f < req.InitialPrice {
			belowInitial++
		}
		if f > req.InitialPrice*1.10 {
			gainOver10++
		}
		if f < req.InitialPrice*0.90 {
			lossOver10++
		}
	}
	n := float64(len(finals))

	return &SimulationResult{
		Ticker:         req.Ticker,
		InitialPrice:   req.InitialPrice,
		Days:           req.Days,
		NumSimulations: req.NumSimulations,
		Mean:           mean,
		Median:         stat.Quantile(0.50, stat.Empirical, sorted, nil),
		StdDev:         std,
		Percentiles: map[string]float64{
			"p5":  stat.Quantile(0.05, stat.Empirical, sorted, nil),
			"p25": stat.Quantile(0.25, stat.Empirical, sorted, nil),
			"p50": stat.Quantile(0.50, stat.Empirical, sorted, nil),
			"p75": stat.Quantile(0.75, stat.Empirical, sorted, nil),
			"p95": stat.Quantile(0.95, stat.Empirical, sorted, nil),
		},
		ProbBelowInitial:  float64(belowInitial) / n,
		ProbGainOver10Pct: float64(gainOver10) / n,
		ProbLossOver10Pct: float64(lossOver10) / n,
		Distribution:      distributionSnapshot(sorted),
	}
}

// distributionSnapshot thins the sorted terminal prices to at most
// DistributionPoints evenly spaced samples
func distributionSnapshot(sorted []float64) []float64 {
	if len(sorted) <= DistributionPoints {
		out := make([]float64, len(sorted))
		copy(out, sorted)
		return out
	}

	out := make([]float64, DistributionPoints)
	step := float64(len(sorted)-1) / float64(DistributionPoints-1)
	for i := range out {
		out[i] = sorted[int(math.Round(float64(i)*step))]
	}
	return out
}

func validateSimulationRequest(req SimulationRequest) error {
	if req.InitialPrice <= 0 {
		return domain.NewValidationError("initial_price", "must be positive, got %v", req.InitialPrice)
	}
	if req.Days <= 0 {
		return domain.NewValidationError("days", "must be positive, got %d", req.Days)
	}
	if req.NumSimulations <= 0 {
		return domain.NewValidationError("num_simulations", "must be positive, got %d", req.NumSimulations)
	}
	return nil
}

// resolveSeed picks a time-derived seed when the request omits one
func resolveSeed(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return uint64(time.Now().UnixNano())
}
