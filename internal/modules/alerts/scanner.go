package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/modules/indicators"
	"vantage/internal/quotes"
)

// The scan window is deliberately short: it cares about the current
// posture, not trend depth. scanFetchDays is the calendar lookback that
// safely yields scanBars trading days.
const (
	scanBars      = 30
	scanFetchDays = 45
)

// RSI emission thresholds
const (
	rsiOverbought       = 70.0
	rsiStrongOverbought = 80.0
	rsiOversold         = 30.0
	rsiStrongOversold   = 20.0
)

// Scanner evaluates one ticker against the signal rules
type Scanner struct {
	quotes quotes.Provider
	log    zerolog.Logger
}

// NewScanner creates a scanner over the given quote provider
func NewScanner(provider quotes.Provider, log zerolog.Logger) *Scanner {
	return &Scanner{
		quotes: provider,
		log:    log.With().Str("component", "alerts").Logger(),
	}
}

// Scan fetches the recent daily bars for ticker and returns every rule
// that currently fires. Indicators that cannot resolve on the available
// bars are skipped silently.
func (s *Scanner) Scan(ctx context.Context, ticker domain.Ticker) ([]Signal, error) {
	bars, err := s.quotes.Historical(ctx, ticker, scanFetchDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return nil, nil
	}
	if len(bars) > scanBars {
		bars = bars[len(bars)-scanBars:]
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	price := closes[len(closes)-1]
	now := time.Now().UTC()

	var signals []Signal
	emit := func(sigType, severity, message string, value float64) {
		signals = append(signals, Signal{
			Ticker:      ticker,
			Type:        sigType,
			Severity:    severity,
			Message:     message,
			Value:       value,
			Price:       price,
			TriggeredAt: now,
		})
	}

	if rsi := indicators.CalculateRSI(closes, indicators.RSIPeriod); rsi != nil {
		switch {
		case rsi.Value >= rsiStrongOverbought:
			emit(SignalRSIOverbought, SeverityCritical,
				fmt.Sprintf("RSI at %.1f, strongly overbought", rsi.Value), rsi.Value)
		case rsi.Value >= rsiOverbought:
			emit(SignalRSIOverbought, SeverityWarning,
				fmt.Sprintf("RSI at %.1f, overbought", rsi.Value), rsi.Value)
		case rsi.Value <= rsiStrongOversold:
			emit(SignalRSIOversold, SeverityCritical,
				fmt.Sprintf("RSI at %.1f, strongly oversold", rsi.Value), rsi.Value)
		case rsi.Value <= rsiOversold:
			emit(SignalRSIOversold, SeverityWarning,
				fmt.Sprintf("RSI at %.1f, oversold", rsi.Value), rsi.Value)
		}
	}

	switch cross, gap := macdCross(closes); cross {
	case 1:
		emit(SignalMACDBullCross, SeverityInfo, "MACD crossed above its signal line", gap)
	case -1:
		emit(SignalMACDBearCross, SeverityInfo, "MACD crossed below its signal line", gap)
	}

	if boll := indicators.CalculateBollinger(closes); boll != nil {
		switch boll.Position {
		case indicators.BandAboveUpper:
			emit(SignalBandBreakUpper, SeverityWarning,
				fmt.Sprintf("Close %.2f above the upper Bollinger band %.2f", price, boll.Upper),
				boll.PercentB)
		case indicators.BandBelowLower:
			emit(SignalBandBreakLower, SeverityWarning,
				fmt.Sprintf("Close %.2f below the lower Bollinger band %.2f", price, boll.Lower),
				boll.PercentB)
		}
	}

	return signals, nil
}

// macdCross reports +1 when the MACD line closed above its signal line
// after being at or below it on the previous bar, -1 for the opposite
// cross, 0 otherwise. The second return is the current line-signal gap.
//
// EMAs are seeded from the first close so the crossover resolves on the
// short scan window; the talib MACD needs slow plus signal warm-up, which
// is more bars than the scan fetches.
func macdCross(closes []float64) (int, float64) {
	if len(closes) < indicators.MACDSlowPeriod {
		return 0, 0
	}

	fast := seededEMA(closes, indicators.MACDFastPeriod)
	slow := seededEMA(closes, indicators.MACDSlowPeriod)
	line := make([]float64, len(closes))
	for i := range line {
		line[i] = fast[i] - slow[i]
	}
	signal := seededEMA(line, indicators.MACDSignalPeriod)

	last := len(line) - 1
	prev := line[last-1] - signal[last-1]
	cur := line[last] - signal[last]
	switch {
	case prev <= 0 && cur > 0:
		return 1, cur
	case prev >= 0 && cur < 0:
		return -1, cur
	}
	return 0, cur
}

// seededEMA computes an exponential moving average primed with the first
// value instead of an SMA warm-up
func seededEMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}
