package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
)

// barsFromCloses builds daily bars with a synthetic high/low envelope and
// constant volume
func barsFromCloses(closes []float64) []domain.HistoricalBar {
	bars := make([]domain.HistoricalBar, len(closes))
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.HistoricalBar{
			Date:   base.AddDate(0, 0, i),
			Open:   c * 0.995,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	return closes
}

func fallingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 200 - float64(i)*0.5
	}
	return closes
}

// zigzagCloses oscillates around 100 with a fixed amplitude
func zigzagCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)*0.7)
	}
	return closes
}

func TestEngineRejectsShortSeries(t *testing.T) {
	e := NewEngine(zerolog.Nop())

	_, err := e.Calculate(domain.MustTicker("AAPL"), barsFromCloses(risingCloses(49)))
	require.Error(t, err)

	var dataErr *domain.InsufficientDataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, MinBars, dataErr.Need)
	assert.Equal(t, 49, dataErr.Have)
}

func TestEngineDeterminism(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	bars := barsFromCloses(zigzagCloses(120))

	a, err := e.Calculate(domain.MustTicker("AAPL"), bars)
	require.NoError(t, err)
	b, err := e.Calculate(domain.MustTicker("AAPL"), bars)
	require.NoError(t, err)

	// Timestamps differ; everything computed must not
	a.CalculatedAt = time.Time{}
	b.CalculatedAt = time.Time{}
	assert.Equal(t, a, b)
}

func TestRSIBounds(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
	}{
		{"rising", risingCloses(100)},
		{"falling", fallingCloses(100)},
		{"zigzag", zigzagCloses(100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := CalculateRSI(tt.closes, RSIPeriod)
			require.NotNil(t, rsi)
			assert.GreaterOrEqual(t, rsi.Value, 0.0)
			assert.LessOrEqual(t, rsi.Value, 100.0)
		})
	}
}

func TestRSISignalLabels(t *testing.T) {
	rising := CalculateRSI(risingCloses(100), RSIPeriod)
	require.NotNil(t, rising)
	assert.Contains(t, []string{RSIOverbought, RSIStrongOverbought}, rising.Signal)

	falling := CalculateRSI(fallingCloses(100), RSIPeriod)
	require.NotNil(t, falling)
	assert.Contains(t, []string{RSIOversold, RSIStrongOversold}, falling.Signal)
}

func TestRSIShortSeriesReturnsNil(t *testing.T) {
	assert.Nil(t, CalculateRSI(risingCloses(RSIPeriod), RSIPeriod))
}

func TestMACDTrendFollowsDirection(t *testing.T) {
	up := CalculateMACD(risingCloses(100))
	require.NotNil(t, up)
	assert.Equal(t, TrendBullish, up.Trend)
	assert.Greater(t, up.Histogram, 0.0)

	down := CalculateMACD(fallingCloses(100))
	require.NotNil(t, down)
	assert.Equal(t, TrendBearish, down.Trend)
	assert.Less(t, down.Histogram, 0.0)
}

func TestMACDHistogramIdentity(t *testing.T) {
	m := CalculateMACD(zigzagCloses(120))
	require.NotNil(t, m)
	assert.InDelta(t, m.MACD-m.Signal, m.Histogram, 1e-9)
}

func TestBollingerOrderingAndPercentB(t *testing.T) {
	for _, closes := range [][]float64{risingCloses(80), fallingCloses(80), zigzagCloses(80)} {
		b := CalculateBollinger(closes)
		require.NotNil(t, b)

		assert.LessOrEqual(t, b.Lower, b.Middle)
		assert.LessOrEqual(t, b.Middle, b.Upper)

		price := closes[len(closes)-1]
		width := b.Upper - b.Lower
		if width > 0 {
			assert.InDelta(t, (price-b.Lower)/width, b.PercentB, 1e-9)
		}
	}
}

func TestBollingerPercentBEndpoints(t *testing.T) {
	assert.Equal(t, BandAboveUpper, bollingerPosition(1.0))
	assert.Equal(t, BandAboveUpper, bollingerPosition(1.3))
	assert.Equal(t, BandBelowLower, bollingerPosition(0.0))
	assert.Equal(t, BandBelowLower, bollingerPosition(-0.2))
	assert.Equal(t, BandMiddle, bollingerPosition(0.5))
}

func TestMovingAveragesTrend(t *testing.T) {
	up := CalculateMovingAverages(risingCloses(250))
	require.NotNil(t, up)
	require.NotNil(t, up.SMA200)
	assert.Equal(t, TrendStrongUptrend, up.Trend)
	assert.True(t, up.GoldenCross)

	down := CalculateMovingAverages(fallingCloses(250))
	require.NotNil(t, down)
	assert.Equal(t, TrendStrongDowntrend, down.Trend)
	assert.False(t, down.GoldenCross)
}

func TestMovingAveragesShortSeriesOmitsLong(t *testing.T) {
	ma := CalculateMovingAverages(risingCloses(60))
	require.NotNil(t, ma)
	assert.NotNil(t, ma.SMA20)
	assert.NotNil(t, ma.SMA50)
	assert.Nil(t, ma.SMA200)
	assert.Equal(t, TrendUptrend, ma.Trend)
}

func TestMovingAveragesMinimumSeries(t *testing.T) {
	ma := CalculateMovingAverages(risingCloses(22))
	require.NotNil(t, ma)
	assert.NotNil(t, ma.SMA20)
	assert.NotNil(t, ma.EMA12)
	assert.Nil(t, ma.EMA26)
	assert.Nil(t, ma.SMA50)
}

func TestATRPositiveAndRelative(t *testing.T) {
	bars := barsFromCloses(zigzagCloses(60))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}

	atr := CalculateATR(highs, lows, closes)
	require.NotNil(t, atr)
	assert.Greater(t, atr.Value, 0.0)
	assert.InDelta(t, atr.Value/closes[len(closes)-1]*100, atr.Percent, 1e-9)
}

func TestVolumeConfirmation(t *testing.T) {
	closes := risingCloses(60)
	volumes := make([]int64, len(closes))
	for i := range volumes {
		// Volume grows with the rally so OBV rises
		volumes[i] = int64(1_000_000 + i*10_000)
	}

	v := CalculateVolume(closes, volumes)
	require.NotNil(t, v)
	assert.Equal(t, OBVRising, v.OBVDirection)
	assert.True(t, v.Confirmation)
	assert.Greater(t, v.SMA20, 0.0)
}

func TestSignalLabelThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{1.5, SignalStrongBuy},
		{1.2, SignalStrongBuy},
		{0.8, SignalBuy},
		{0.5, SignalBuy},
		{0.49, SignalNeutral},
		{0.0, SignalNeutral},
		{-0.49, SignalNeutral},
		{-0.5, SignalSell},
		{-1.19, SignalSell},
		{-1.2, SignalStrongSell},
		{-2.0, SignalStrongSell},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, signalLabel(tt.score), "score %v", tt.score)
	}
}

func TestEngineFullCalculation(t *testing.T) {
	e := NewEngine(zerolog.Nop())

	result, err := e.Calculate(domain.MustTicker("SPY"), barsFromCloses(risingCloses(250)))
	require.NoError(t, err)

	require.NotNil(t, result.RSI)
	require.NotNil(t, result.MACD)
	require.NotNil(t, result.Bollinger)
	require.NotNil(t, result.MovingAverages)
	require.NotNil(t, result.ATR)
	require.NotNil(t, result.Volume)
	assert.Equal(t, 250, result.BarCount)

	for name, vote := range result.Signal.Components {
		assert.GreaterOrEqual(t, vote, -2.0, "component %s", name)
		assert.LessOrEqual(t, vote, 2.0, "component %s", name)
	}
	assert.GreaterOrEqual(t, result.Signal.Score, -2.0)
	assert.LessOrEqual(t, result.Signal.Score, 2.0)
	assert.Contains(t, []string{
		SignalStrongBuy, SignalBuy, SignalNeutral, SignalSell, SignalStrongSell,
	}, result.Signal.Label)
}
