package quotes

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"vantage/internal/domain"
)

// MinVolatilityPoints is the minimum number of closes needed before an
// annualised volatility is reported.
const MinVolatilityPoints = 20

const tradingDaysPerYear = 252

// AnnualisedVolatility computes the annualised standard deviation of daily
// log returns over the bar series. Returns nil when fewer than
// MinVolatilityPoints usable closes exist.
func AnnualisedVolatility(bars []domain.HistoricalBar) *domain.Percentage {
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			closes = append(closes, b.Close)
		}
	}
	if len(closes) < MinVolatilityPoints {
		return nil
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	daily := stat.StdDev(returns, nil)
	annualised := daily * math.Sqrt(tradingDaysPerYear)
	p := domain.PercentFromDecimal(annualised)
	return &p
}

// DailyReturns computes simple daily returns from a bar series
func DailyReturns(bars []domain.HistoricalBar) []float64 {
	returns := make([]float64, 0, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, bars[i].Close/prev-1)
	}
	return returns
}
