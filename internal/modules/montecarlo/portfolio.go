package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"vantage/internal/domain"
)

// MinAlignedReturns is the minimum aligned return-series length in a
// portfolio risk run; shorter shared histories are zero-padded up to it
const MinAlignedReturns = 50

// Confidence levels for VaR/CVaR, expressed as left-tail probabilities
var tailLevels = map[string]float64{
	"99": 0.01,
	"95": 0.05,
	"90": 0.10,
}

// PortfolioRisk computes VaR/CVaR and risk decomposition for a portfolio.
// returnsByTicker holds daily simple returns per position, most recent last;
// series are truncated to the shared minimum length and zero-padded up to
// MinAlignedReturns when shorter.
func (e *Engine) PortfolioRisk(ctx context.Context, req PortfolioRiskRequest, returnsByTicker map[domain.Ticker][]float64) (*PortfolioRiskResult, error) {
	if err := validatePortfolioRequest(req); err != nil {
		return nil, err
	}

	n := len(req.Positions)
	aligned, err := alignReturns(req.Positions, returnsByTicker)
	if err != nil {
		return nil, err
	}
	periods := len(aligned[0])

	totalValue := 0.0
	for _, p := range req.Positions {
		totalValue += p.MarketValue
	}
	weights := make([]float64, n)
	for i, p := range req.Positions {
		weights[i] = p.MarketValue / totalValue
	}

	// Covariance of daily returns; observations in rows, assets in columns
	data := mat.NewDense(periods, n, nil)
	for j, series := range aligned {
		for t, r := range series {
			data.Set(t, j, r)
		}
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	// Portfolio variance wᵀΣw on daily covariance
	wVec := mat.NewVecDense(n, weights)
	var sigmaW mat.VecDense
	sigmaW.MulVec(&cov, wVec)
	dailyVariance := mat.Dot(wVec, &sigmaW)

	portVol := math.Sqrt(dailyVariance * TradingDaysPerYear)

	// Portfolio daily return series for correlations and drift
	portReturns := make([]float64, periods)
	for t := 0; t < periods; t++ {
		for j := range aligned {
			portReturns[t] += weights[j] * aligned[j][t]
		}
	}
	portDrift := stat.Mean(portReturns, nil) * TradingDaysPerYear

	positions := make([]PositionRisk, n)
	weightedVolSum := 0.0
	for i, p := range req.Positions {
		assetVol := math.Sqrt(cov.At(i, i) * TradingDaysPerYear)
		corr := stat.Correlation(aligned[i], portReturns, nil)
		if math.IsNaN(corr) {
			corr = 0
		}

		marginal := 0.0
		if portVol > 0 {
			marginal = weights[i] * assetVol * corr / portVol
		}
		positions[i] = PositionRisk{
			Ticker:               p.Ticker,
			Weight:               weights[i],
			Volatility:           assetVol,
			CorrelationToPort:    corr,
			MarginalContribution: marginal,
		}
		weightedVolSum += weights[i] * assetVol
	}

	diversification := 0.0
	if portVol > 0 {
		diversification = weightedVolSum / portVol
	}

	// Horizon-scaled portfolio return distribution
	horizon := float64(req.HorizonDays) / TradingDaysPerYear
	dist := distuv.Normal{
		Mu:    portDrift * horizon,
		Sigma: portVol * math.Sqrt(horizon),
	}
	seed := resolveSeed(req.Seed)
	dist.Src = rand.NewPCG(seed, seed)

	simulated := make([]float64, req.NumSimulations)
	for i := range simulated {
		if i%ctxCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		simulated[i] = dist.Rand()
	}
	sort.Float64s(simulated)

	varOut := make(map[string]float64, len(tailLevels))
	cvarOut := make(map[string]float64, len(tailLevels))
	for label, alpha := range tailLevels {
		tailCount := int(alpha * float64(len(simulated)))
		if tailCount < 1 {
			tailCount = 1
		}
		tail := simulated[:tailCount]
		// A tail that is still a gain carries no value-at-risk
		varOut[label] = math.Max(0, -tail[tailCount-1]*totalValue)
		cvarOut[label] = math.Max(0, -stat.Mean(tail, nil)*totalValue)
	}

	e.log.Debug().
		Int("positions", n).
		Int("periods", periods).
		Float64("portfolio_vol", portVol).
		Uint64("seed", seed).
		Msg("Portfolio risk computed")

	return &PortfolioRiskResult{
		TotalValue:           totalValue,
		HorizonDays:          req.HorizonDays,
		NumSimulations:       req.NumSimulations,
		PortfolioVolatility:  portVol,
		DiversificationRatio: diversification,
		VaR:                  varOut,
		CVaR:                 cvarOut,
		Positions:            positions,
		Seed:                 seed,
	}, nil
}

// alignReturns truncates every series to the shared minimum length, keeping
// the most recent observations. Shared lengths below MinAlignedReturns are
// padded at the old end with zero returns up to the minimum.
func alignReturns(positions []PortfolioPosition, returnsByTicker map[domain.Ticker][]float64) ([][]float64, error) {
	minLen := -1
	for _, p := range positions {
		series, ok := returnsByTicker[p.Ticker]
		if !ok {
			return nil, domain.NewValidationError("positions", "no return series for %s", p.Ticker)
		}
		if minLen < 0 || len(series) < minLen {
			minLen = len(series)
		}
	}
	if minLen == 0 {
		return nil, &domain.InsufficientDataError{Op: "portfolio risk", Need: 1, Have: 0}
	}

	pad := 0
	if minLen < MinAlignedReturns {
		pad = MinAlignedReturns - minLen
	}

	aligned := make([][]float64, len(positions))
	for i, p := range positions {
		series := returnsByTicker[p.Ticker]
		tail := series[len(series)-minLen:]
		if pad == 0 {
			aligned[i] = tail
			continue
		}
		padded := make([]float64, MinAlignedReturns)
		copy(padded[pad:], tail)
		aligned[i] = padded
	}
	return aligned, nil
}

func validatePortfolioRequest(req PortfolioRiskRequest) error {
	if len(req.Positions) == 0 {
		return domain.NewValidationError("positions", "at least one position required")
	}
	for _, p := range req.Positions {
		if p.MarketValue <= 0 {
			return domain.NewValidationError("positions", "market value for %s must be positive", p.Ticker)
		}
	}
	if req.HorizonDays <= 0 {
		return domain.NewValidationError("horizon_days", "must be positive, got %d", req.HorizonDays)
	}
	if req.NumSimulations <= 0 {
		return domain.NewValidationError("num_simulations", "must be positive, got %d", req.NumSimulations)
	}
	return nil
}
