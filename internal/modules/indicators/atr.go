package indicators

import (
	"github.com/markcheno/go-talib"
)

// ATRPeriod is the true-range smoothing window
const ATRPeriod = 14

// CalculateATR computes ATR(14) and its percentage of the last close.
// Returns nil when fewer than period+1 bars exist.
func CalculateATR(highs, lows, closes []float64) *ATRResult {
	if len(closes) < ATRPeriod+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}

	series := talib.Atr(highs, lows, closes, ATRPeriod)
	if len(series) == 0 {
		return nil
	}

	value := series[len(series)-1]
	if isNaN(value) {
		return nil
	}

	result := &ATRResult{Value: value}
	if last := closes[len(closes)-1]; last > 0 {
		result.Percent = value / last * 100
	}
	return result
}
