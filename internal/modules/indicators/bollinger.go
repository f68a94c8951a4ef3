package indicators

import (
	"github.com/markcheno/go-talib"
)

// Bollinger parameters: SMA period and standard deviation multiplier
const (
	BollingerPeriod = 20
	BollingerStdDev = 2.0
)

// CalculateBollinger computes Bollinger(20, 2σ) with bandwidth and %B.
// Returns nil when fewer than BollingerPeriod closes exist.
func CalculateBollinger(closes []float64) *BollingerResult {
	if len(closes) < BollingerPeriod {
		return nil
	}

	// MAType 0 = SMA
	upper, middle, lower := talib.BBands(closes, BollingerPeriod, BollingerStdDev, BollingerStdDev, 0)
	last := len(upper) - 1
	if last < 0 || isNaN(upper[last]) || isNaN(middle[last]) || isNaN(lower[last]) {
		return nil
	}

	price := closes[len(closes)-1]
	width := upper[last] - lower[last]

	result := &BollingerResult{
		Upper:  upper[last],
		Middle: middle[last],
		Lower:  lower[last],
	}
	if middle[last] != 0 {
		result.Bandwidth = width / middle[last]
	}
	if width != 0 {
		result.PercentB = (price - lower[last]) / width
	} else {
		result.PercentB = 0.5
	}
	result.Position = bollingerPosition(result.PercentB)

	return result
}

func bollingerPosition(percentB float64) string {
	switch {
	case percentB >= 1:
		return BandAboveUpper
	case percentB >= 0.8:
		return BandNearUpper
	case percentB <= 0:
		return BandBelowLower
	case percentB <= 0.2:
		return BandNearLower
	default:
		return BandMiddle
	}
}
