package indicators

import (
	"github.com/markcheno/go-talib"
)

// RSIPeriod is the Wilder smoothing window
const RSIPeriod = 14

// CalculateRSI computes the relative strength index over closes.
// Returns nil when fewer than period+1 closes exist.
func CalculateRSI(closes []float64, period int) *RSIResult {
	if len(closes) < period+1 {
		return nil
	}

	series := talib.Rsi(closes, period)
	if len(series) == 0 {
		return nil
	}

	value := series[len(series)-1]
	if isNaN(value) {
		return nil
	}

	return &RSIResult{
		Value:  value,
		Signal: rsiSignal(value),
	}
}

func rsiSignal(value float64) string {
	switch {
	case value >= 80:
		return RSIStrongOverbought
	case value >= 70:
		return RSIOverbought
	case value <= 20:
		return RSIStrongOversold
	case value <= 30:
		return RSIOversold
	default:
		return RSINeutral
	}
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
