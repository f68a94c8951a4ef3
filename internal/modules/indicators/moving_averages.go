package indicators

import (
	"github.com/markcheno/go-talib"
)

// CalculateMovingAverages computes the SMA/EMA stack and derives the trend
// label. SMA50/SMA200 are nil when the series is too short; the trend then
// falls back to the averages that do exist.
func CalculateMovingAverages(closes []float64) *MovingAveragesResult {
	if len(closes) < 20 {
		return nil
	}

	result := &MovingAveragesResult{
		SMA20: lastOf(talib.Sma(closes, 20)),
		EMA12: lastOf(talib.Ema(closes, 12)),
	}
	if len(closes) >= 26 {
		result.EMA26 = lastOf(talib.Ema(closes, 26))
	}
	if len(closes) >= 50 {
		result.SMA50 = lastOf(talib.Sma(closes, 50))
	}
	if len(closes) >= 200 {
		result.SMA200 = lastOf(talib.Sma(closes, 200))
	}

	price := closes[len(closes)-1]
	if result.SMA50 != nil && result.SMA200 != nil {
		result.GoldenCross = *result.SMA50 > *result.SMA200
	}
	result.Trend = maTrend(price, result)

	return result
}

// maTrend labels the stack: price above a rising short/medium stack is an
// uptrend; SMA200 agreement upgrades it to strong.
func maTrend(price float64, ma *MovingAveragesResult) string {
	if ma.SMA20 == nil || ma.SMA50 == nil {
		return TrendSideways
	}

	sma20, sma50 := *ma.SMA20, *ma.SMA50

	switch {
	case price > sma20 && sma20 > sma50:
		if ma.SMA200 != nil && sma50 > *ma.SMA200 && ma.GoldenCross {
			return TrendStrongUptrend
		}
		return TrendUptrend
	case price < sma20 && sma20 < sma50:
		if ma.SMA200 != nil && sma50 < *ma.SMA200 {
			return TrendStrongDowntrend
		}
		return TrendDowntrend
	default:
		return TrendSideways
	}
}

// lastOf returns a pointer to the last non-NaN value of a talib series
func lastOf(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if isNaN(v) {
		return nil
	}
	return &v
}
