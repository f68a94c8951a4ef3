package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
	"vantage/internal/quotes"
)

type stubProvider struct {
	bars     map[domain.Ticker][]domain.HistoricalBar
	lastDays int
}

func (s *stubProvider) Historical(_ context.Context, ticker domain.Ticker, days int) ([]domain.HistoricalBar, error) {
	s.lastDays = days
	bars, ok := s.bars[ticker]
	if !ok {
		return nil, &quotes.TickerNotFoundError{Ticker: ticker}
	}
	return bars, nil
}

func (s *stubProvider) CurrentQuote(context.Context, domain.Ticker) (*domain.Quote, error) {
	return nil, nil
}

func (s *stubProvider) Metadata(context.Context, domain.Ticker) (*domain.StockMetadata, error) {
	return nil, nil
}

func (s *stubProvider) Volatility(context.Context, domain.Ticker, int) (*domain.Percentage, error) {
	return nil, nil
}

func (s *stubProvider) IsValid(context.Context, domain.Ticker) bool { return true }

func (s *stubProvider) Search(context.Context, string, int) ([]domain.StockMetadata, error) {
	return nil, nil
}

func barsFromCloses(closes []float64) []domain.HistoricalBar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.HistoricalBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.HistoricalBar{
			Date:   base.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func linearCloses(n int, start, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return closes
}

// flat series with a single final spike
func spikeCloses(n int, level, last float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = level
	}
	closes[n-1] = last
	return closes
}

func newTestScanner(closes map[string][]float64) (*Scanner, *stubProvider) {
	provider := &stubProvider{bars: make(map[domain.Ticker][]domain.HistoricalBar)}
	for raw, series := range closes {
		provider.bars[domain.MustTicker(raw)] = barsFromCloses(series)
	}
	return NewScanner(provider, zerolog.Nop()), provider
}

func TestScanRisingSeriesFlagsOverbought(t *testing.T) {
	scanner, provider := newTestScanner(map[string][]float64{
		"AAPL": linearCloses(30, 100, 1),
	})

	signals, err := scanner.Scan(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, SignalRSIOverbought, sig.Type)
	assert.Equal(t, SeverityCritical, sig.Severity)
	assert.InDelta(t, 100, sig.Value, 1e-9, "a loss-free series pins RSI at 100")
	assert.InDelta(t, 129, sig.Price, 1e-9)
	assert.WithinDuration(t, time.Now().UTC(), sig.TriggeredAt, 5*time.Second)
	assert.Equal(t, scanFetchDays, provider.lastDays)
}

func TestScanFallingSeriesFlagsOversold(t *testing.T) {
	scanner, _ := newTestScanner(map[string][]float64{
		"AAPL": linearCloses(30, 130, -1),
	})

	signals, err := scanner.Scan(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalRSIOversold, signals[0].Type)
	assert.Equal(t, SeverityCritical, signals[0].Severity)
	assert.InDelta(t, 0, signals[0].Value, 1e-9)
}

func TestScanSpikeFiresJointSignals(t *testing.T) {
	// A flat month ending in a 10% jump trips all three rules at once
	scanner, _ := newTestScanner(map[string][]float64{
		"AAPL": spikeCloses(30, 100, 110),
	})

	signals, err := scanner.Scan(context.Background(), "AAPL")
	require.NoError(t, err)

	types := make([]string, len(signals))
	for i, sig := range signals {
		types[i] = sig.Type
		assert.InDelta(t, 110, sig.Price, 1e-9)
	}
	assert.ElementsMatch(t, []string{
		SignalRSIOverbought,
		SignalMACDBullCross,
		SignalBandBreakUpper,
	}, types)

	for _, sig := range signals {
		if sig.Type == SignalBandBreakUpper {
			assert.Contains(t, sig.Message, "above the upper Bollinger band")
			assert.Greater(t, sig.Value, 1.0, "%B beyond the band")
		}
	}
}

func TestScanTrimsToWindow(t *testing.T) {
	// 40 bars arrive, only the latest 30 participate: with the crash
	// confined to the discarded prefix, the visible window is loss-free.
	closes := append(linearCloses(10, 200, -10), linearCloses(30, 100, 1)...)
	scanner, _ := newTestScanner(map[string][]float64{"AAPL": closes})

	signals, err := scanner.Scan(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalRSIOverbought, signals[0].Type)
	assert.InDelta(t, 100, signals[0].Value, 1e-9)
}

func TestScanShortSeriesYieldsNothing(t *testing.T) {
	scanner, _ := newTestScanner(map[string][]float64{
		"NEW": linearCloses(10, 100, 1),
	})

	signals, err := scanner.Scan(context.Background(), "NEW")
	require.NoError(t, err)
	assert.Empty(t, signals, "no indicator resolves on 10 bars")
}

func TestScanEmptySeries(t *testing.T) {
	scanner, _ := newTestScanner(map[string][]float64{"GONE": {}})

	signals, err := scanner.Scan(context.Background(), "GONE")
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestScanProviderErrorPropagates(t *testing.T) {
	scanner, _ := newTestScanner(nil)

	_, err := scanner.Scan(context.Background(), "MISSING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch bars")
}

func TestMACDCross(t *testing.T) {
	t.Run("bullish on spike", func(t *testing.T) {
		cross, gap := macdCross(spikeCloses(30, 100, 110))
		assert.Equal(t, 1, cross)
		assert.Greater(t, gap, 0.0)
	})

	t.Run("bearish on drop", func(t *testing.T) {
		cross, gap := macdCross(spikeCloses(30, 100, 90))
		assert.Equal(t, -1, cross)
		assert.Less(t, gap, 0.0)
	})

	t.Run("no cross on steady trend", func(t *testing.T) {
		cross, _ := macdCross(linearCloses(30, 100, 1))
		assert.Equal(t, 0, cross)
	})

	t.Run("too short", func(t *testing.T) {
		cross, gap := macdCross(linearCloses(25, 100, 1))
		assert.Equal(t, 0, cross)
		assert.Zero(t, gap)
	})

	t.Run("single bullish cross through a reversal", func(t *testing.T) {
		// 26 falling bars then a sharp recovery: scanning every prefix
		// must find exactly one upward cross and no downward one.
		closes := append(linearCloses(26, 100, -1), linearCloses(8, 77, 2)...)

		bullish, bearish := 0, 0
		for n := 27; n <= len(closes); n++ {
			cross, _ := macdCross(closes[:n])
			switch cross {
			case 1:
				bullish++
			case -1:
				bearish++
			}
		}
		assert.Equal(t, 1, bullish)
		assert.Zero(t, bearish)
	})
}
