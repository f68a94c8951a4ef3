// Package indicators computes technical indicators from daily bars.
// All calculations are pure functions of the input series; the same bars
// always produce the same result.
package indicators

import (
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
)

// MinBars is the minimum series length the engine accepts
const MinBars = 50

// Component weights of the aggregated signal
const (
	weightRSI       = 0.20
	weightMACD      = 0.25
	weightBollinger = 0.15
	weightMA        = 0.30
	weightVolume    = 0.10
)

// Aggregate signal thresholds on the weighted score
const (
	strongThreshold = 1.2
	actionThreshold = 0.5
)

// Engine calculates the full indicator set for a bar series
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates an indicator engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "indicators").Logger(),
	}
}

// Calculate computes every indicator group plus the weighted aggregate
// signal. Bars must be ascending by date and at least MinBars long.
func (e *Engine) Calculate(ticker domain.Ticker, bars []domain.HistoricalBar) (*TechnicalIndicators, error) {
	if len(bars) < MinBars {
		return nil, &domain.InsufficientDataError{Op: "indicators", Need: MinBars, Have: len(bars)}
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]int64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	result := &TechnicalIndicators{
		CalculatedAt:   time.Now().UTC(),
		Ticker:         ticker,
		Close:          closes[len(closes)-1],
		BarCount:       len(bars),
		RSI:            CalculateRSI(closes, RSIPeriod),
		MACD:           CalculateMACD(closes),
		Bollinger:      CalculateBollinger(closes),
		MovingAverages: CalculateMovingAverages(closes),
		ATR:            CalculateATR(highs, lows, closes),
		Volume:         CalculateVolume(closes, volumes),
	}
	result.Signal = aggregateSignal(result)

	e.log.Debug().
		Str("ticker", ticker.String()).
		Int("bars", len(bars)).
		Float64("score", result.Signal.Score).
		Str("label", result.Signal.Label).
		Msg("Indicators calculated")

	return result, nil
}

// aggregateSignal combines per-group votes (each in [−2, +2]) into a
// weighted score and maps it to a label
func aggregateSignal(t *TechnicalIndicators) SignalResult {
	components := map[string]float64{
		"rsi":       rsiVote(t.RSI),
		"macd":      macdVote(t.MACD),
		"bollinger": bollingerVote(t.Bollinger),
		"ma":        maVote(t.MovingAverages),
		"volume":    volumeVote(t.Volume),
	}

	score := components["rsi"]*weightRSI +
		components["macd"]*weightMACD +
		components["bollinger"]*weightBollinger +
		components["ma"]*weightMA +
		components["volume"]*weightVolume

	return SignalResult{
		Components: components,
		Score:      score,
		Label:      signalLabel(score),
	}
}

func signalLabel(score float64) string {
	switch {
	case score >= strongThreshold:
		return SignalStrongBuy
	case score >= actionThreshold:
		return SignalBuy
	case score <= -strongThreshold:
		return SignalStrongSell
	case score <= -actionThreshold:
		return SignalSell
	default:
		return SignalNeutral
	}
}

// rsiVote: oversold favours buying, overbought favours selling
func rsiVote(r *RSIResult) float64 {
	if r == nil {
		return 0
	}
	switch r.Signal {
	case RSIStrongOversold:
		return 2
	case RSIOversold:
		return 1
	case RSIStrongOverbought:
		return -2
	case RSIOverbought:
		return -1
	default:
		return 0
	}
}

// macdVote: alignment above the zero line counts double
func macdVote(m *MACDResult) float64 {
	if m == nil {
		return 0
	}
	switch m.Trend {
	case TrendBullish:
		if m.MACD > 0 {
			return 2
		}
		return 1
	case TrendBearish:
		if m.MACD < 0 {
			return -2
		}
		return -1
	default:
		return 0
	}
}

// bollingerVote: band breaches read as mean-reversion opportunities
func bollingerVote(b *BollingerResult) float64 {
	if b == nil {
		return 0
	}
	switch b.Position {
	case BandBelowLower:
		return 2
	case BandNearLower:
		return 1
	case BandAboveUpper:
		return -2
	case BandNearUpper:
		return -1
	default:
		return 0
	}
}

func maVote(m *MovingAveragesResult) float64 {
	if m == nil {
		return 0
	}
	switch m.Trend {
	case TrendStrongUptrend:
		return 2
	case TrendUptrend:
		return 1
	case TrendStrongDowntrend:
		return -2
	case TrendDowntrend:
		return -1
	default:
		return 0
	}
}

// volumeVote only counts when OBV confirms the price move; a volume spike
// above 1.5× the 20-day average doubles it
func volumeVote(v *VolumeResult) float64 {
	if v == nil || !v.Confirmation {
		return 0
	}

	direction := 1.0
	if v.OBVDirection == OBVFalling {
		direction = -1.0
	}
	if v.SMA20 > 0 && float64(v.Current) > 1.5*v.SMA20 {
		return 2 * direction
	}
	return direction
}
