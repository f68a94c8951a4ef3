package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const monthsPerYear = 12

// computeMetrics derives summary statistics from the finished replay
func computeMetrics(cfg Config, state *runState, equity []EquityPoint, monthly []MonthlyValue) Metrics {
	m := Metrics{
		TotalFees:           state.totalFees,
		TotalContributions:  state.contributions,
		TotalDividends:      state.totalDividends,
		TradeCount:          len(state.trades),
		RiskOffPeriodsCount: len(state.riskOffPeriods),
	}
	if len(equity) == 0 {
		return m
	}

	final := equity[len(equity)-1].Value
	m.FinalValue = final
	if cfg.InitialCash > 0 {
		m.TotalReturn = final/cfg.InitialCash - 1
	}

	years := equity[len(equity)-1].Date.Sub(equity[0].Date).Hours() / 24 / 365.25
	if years > 0 && cfg.InitialCash > 0 && final > 0 {
		m.CAGR = math.Pow(final/cfg.InitialCash, 1/years) - 1
	}

	returns := monthlyReturns(monthly)
	if len(returns) >= 2 {
		mean, std := stat.MeanStdDev(returns, nil)
		m.Volatility = std * math.Sqrt(monthsPerYear)
		if m.Volatility > 0 {
			m.Sharpe = mean * monthsPerYear / m.Volatility
		}
		if downside := downsideDeviation(returns); downside > 0 {
			m.Sortino = mean * monthsPerYear / downside
		}
	}

	m.MaxDrawdown, m.MaxDrawdownDays = maxDrawdown(equity)

	riskOffDays := 0
	for _, p := range equity {
		if p.RiskOff {
			riskOffDays++
		}
	}
	m.TimeInRiskOff = float64(riskOffDays) / float64(len(equity))

	return m
}

// monthlyReturns converts month-end value snapshots to simple returns
func monthlyReturns(monthly []MonthlyValue) []float64 {
	if len(monthly) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(monthly)-1)
	for i := 1; i < len(monthly); i++ {
		prev := monthly[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, monthly[i].Value/prev-1)
	}
	return returns
}

// downsideDeviation is the annualised standard deviation of the negative
// monthly returns
func downsideDeviation(returns []float64) float64 {
	negative := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) < 2 {
		return 0
	}
	return stat.StdDev(negative, nil) * math.Sqrt(monthsPerYear)
}

// maxDrawdown returns the deepest peak-to-trough decline and the longest
// stretch of days spent below a prior peak
func maxDrawdown(equity []EquityPoint) (float64, int) {
	peak := equity[0].Value
	peakDate := equity[0].Date
	maxDD := 0.0
	maxDays := 0

	for _, p := range equity {
		if p.Value >= peak {
			peak = p.Value
			peakDate = p.Date
			continue
		}
		if peak > 0 {
			if dd := p.Value/peak - 1; dd < maxDD {
				maxDD = dd
			}
		}
		if days := int(p.Date.Sub(peakDate).Hours() / 24); days > maxDays {
			maxDays = days
		}
	}
	return maxDD, maxDays
}
