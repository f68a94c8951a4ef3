package backtest

import (
	"time"

	"github.com/markcheno/go-talib"

	"vantage/internal/domain"
)

// drawdownAlertLevel is the SPY rolling-drawdown threshold counted as a
// stress signal
const drawdownAlertLevel = -0.10

// CreditStress reports whether the HYG/LQD ratio sits below its SMA50
func (s SignalSnapshot) CreditStress() bool {
	return s.HasHYGLQD && s.HYGLQDRatio < s.HYGLQDSMA50
}

// VIXElevated reports whether VIX exceeds 25 or its own SMA20
func (s SignalSnapshot) VIXElevated() bool {
	return s.HasVIX && (s.VIX > 25 || s.VIX > s.VIXSMA20)
}

// SPYBelowSMA200 reports whether SPY closed under its 200-day average
func (s SignalSnapshot) SPYBelowSMA200() bool {
	return s.HasSPY && s.SPYClose < s.SPYSMA200
}

// DrawdownAlert reports whether SPY sits more than 10% under its rolling peak
func (s SignalSnapshot) DrawdownAlert() bool {
	return s.HasDrawdown && s.SPYDrawdown < drawdownAlertLevel
}

// StressCount counts active underlying signals
func (s SignalSnapshot) StressCount() int {
	count := 0
	for _, active := range []bool{s.CreditStress(), s.VIXElevated(), s.SPYBelowSMA200(), s.DrawdownAlert()} {
		if active {
			count++
		}
	}
	return count
}

// EvaluateTrigger reports whether the named trigger fires on this snapshot
func EvaluateTrigger(trigger string, s SignalSnapshot) bool {
	switch trigger {
	case TriggerHYGLQDBelowSMA50:
		return s.CreditStress()
	case TriggerVIXAbove25:
		return s.VIXElevated()
	case TriggerSPYBelowSMA200:
		return s.SPYBelowSMA200()
	case TriggerCombined:
		return s.StressCount() >= 2
	default:
		return false
	}
}

// SignalInputs carries the macro bar series the snapshot builder consumes.
// Any series may be nil; the matching snapshot fields stay unset.
type SignalInputs struct {
	HYG        []domain.HistoricalBar
	LQD        []domain.HistoricalBar
	VIX        []domain.HistoricalBar
	SPY        []domain.HistoricalBar
	TenYear    []domain.HistoricalBar
	ThreeMonth []domain.HistoricalBar
}

// BuildSignals derives one SignalSnapshot per SPY trading day. Moving
// averages use as much lead-in as the series provides; days inside the
// warm-up window carry unset flags for the affected signals.
func BuildSignals(in SignalInputs) []SignalSnapshot {
	if len(in.SPY) == 0 {
		return nil
	}

	spyCloses := closesOf(in.SPY)
	spySMA200 := smaSeries(spyCloses, 200)
	spyDrawdown := rollingDrawdown(spyCloses, 252)

	vixByDate := closeByDate(in.VIX)
	vixSMAByDate := smaByDate(in.VIX, 20)
	tnxByDate := closeByDate(in.TenYear)
	irxByDate := closeByDate(in.ThreeMonth)

	ratioDates, ratio := ratioSeries(in.HYG, in.LQD)
	ratioSMA := smaSeries(ratio, 50)
	ratioByDate := make(map[int64]float64, len(ratio))
	ratioSMAByDate := make(map[int64]float64, len(ratio))
	for i, d := range ratioDates {
		ratioByDate[d] = ratio[i]
		if !isNaN(ratioSMA[i]) && ratioSMA[i] != 0 {
			ratioSMAByDate[d] = ratioSMA[i]
		}
	}

	signals := make([]SignalSnapshot, 0, len(in.SPY))
	for i, bar := range in.SPY {
		day := dateKey(bar.Date)
		snap := SignalSnapshot{
			Date:     bar.Date,
			SPYClose: bar.Close,
		}

		if !isNaN(spySMA200[i]) && spySMA200[i] != 0 {
			snap.SPYSMA200 = spySMA200[i]
			snap.HasSPY = true
		}
		if dd, ok := spyDrawdown[i]; ok {
			snap.SPYDrawdown = dd
			snap.HasDrawdown = true
		}
		if v, ok := vixByDate[day]; ok {
			snap.VIX = v
			if sma, ok := vixSMAByDate[day]; ok {
				snap.VIXSMA20 = sma
				snap.HasVIX = true
			}
		}
		if r, ok := ratioByDate[day]; ok {
			snap.HYGLQDRatio = r
			if sma, ok := ratioSMAByDate[day]; ok {
				snap.HYGLQDSMA50 = sma
				snap.HasHYGLQD = true
			}
		}
		if tnx, ok := tnxByDate[day]; ok {
			if irx, ok := irxByDate[day]; ok {
				snap.YieldSpread = tnx - irx
			}
		}

		signals = append(signals, snap)
	}
	return signals
}

// ratioSeries divides HYG closes by LQD closes on their shared dates
func ratioSeries(hyg, lqd []domain.HistoricalBar) ([]int64, []float64) {
	lqdByDate := closeByDate(lqd)

	dates := make([]int64, 0, len(hyg))
	values := make([]float64, 0, len(hyg))
	for _, bar := range hyg {
		day := dateKey(bar.Date)
		if denom, ok := lqdByDate[day]; ok && denom > 0 {
			dates = append(dates, day)
			values = append(values, bar.Close/denom)
		}
	}
	return dates, values
}

// rollingDrawdown computes each day's drop from the trailing peak over the
// window. Days without a full window still use whatever lead-in exists.
func rollingDrawdown(closes []float64, window int) map[int]float64 {
	out := make(map[int]float64, len(closes))
	for i, c := range closes {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		peak := closes[start]
		for j := start + 1; j <= i; j++ {
			if closes[j] > peak {
				peak = closes[j]
			}
		}
		if peak > 0 {
			out[i] = c/peak - 1
		}
	}
	return out
}

func closesOf(bars []domain.HistoricalBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func closeByDate(bars []domain.HistoricalBar) map[int64]float64 {
	out := make(map[int64]float64, len(bars))
	for _, b := range bars {
		out[dateKey(b.Date)] = b.Close
	}
	return out
}

// smaByDate maps each bar date to the SMA value ending on that date
func smaByDate(bars []domain.HistoricalBar, period int) map[int64]float64 {
	out := make(map[int64]float64, len(bars))
	if len(bars) == 0 {
		return out
	}
	series := smaSeries(closesOf(bars), period)
	for i, b := range bars {
		if !isNaN(series[i]) && series[i] != 0 {
			out[dateKey(b.Date)] = series[i]
		}
	}
	return out
}

// smaSeries guards talib.Sma for series shorter than the period; short
// inputs yield an all-zero series the callers treat as unset
func smaSeries(values []float64, period int) []float64 {
	if len(values) < period {
		return make([]float64, len(values))
	}
	return talib.Sma(values, period)
}

// dateKey collapses a timestamp to its UTC calendar day
func dateKey(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

func isNaN(f float64) bool {
	return f != f
}
