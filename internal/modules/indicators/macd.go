package indicators

import (
	"github.com/markcheno/go-talib"
)

// MACD periods: fast EMA, slow EMA, signal EMA
const (
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
)

// CalculateMACD computes MACD(12,26,9). Returns nil when the series is too
// short for the slow EMA plus signal warm-up.
func CalculateMACD(closes []float64) *MACDResult {
	if len(closes) < MACDSlowPeriod+MACDSignalPeriod {
		return nil
	}

	macd, signal, hist := talib.Macd(closes, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)
	if len(hist) == 0 {
		return nil
	}

	last := len(hist) - 1
	if isNaN(macd[last]) || isNaN(signal[last]) || isNaN(hist[last]) {
		return nil
	}

	return &MACDResult{
		MACD:      macd[last],
		Signal:    signal[last],
		Histogram: hist[last],
		Trend:     macdTrend(macd[last], signal[last], hist[last]),
	}
}

func macdTrend(macd, signal, hist float64) string {
	switch {
	case hist > 0 && macd > signal:
		return TrendBullish
	case hist < 0 && macd < signal:
		return TrendBearish
	default:
		return TrendNeutral
	}
}
