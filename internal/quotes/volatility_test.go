package quotes

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
)

func barsFromCloses(closes []float64) []domain.HistoricalBar {
	bars := make([]domain.HistoricalBar, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.HistoricalBar{Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestAnnualisedVolatilityTooFewPoints(t *testing.T) {
	closes := make([]float64, MinVolatilityPoints-1)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	assert.Nil(t, AnnualisedVolatility(barsFromCloses(closes)))

	// Zero closes do not count as usable points.
	padded := append(closes, 0, 0, 0)
	assert.Nil(t, AnnualisedVolatility(barsFromCloses(padded)))
}

func TestAnnualisedVolatilityConstantSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 250
	}
	vol := AnnualisedVolatility(barsFromCloses(closes))
	require.NotNil(t, vol)
	assert.InDelta(t, 0, vol.AsDecimal(), 1e-12)
}

// An alternating series has log returns of ±ln(r) with mean zero, so the
// sample deviation has the closed form ln(r)·sqrt(n/(n-1)).
func TestAnnualisedVolatilityAlternatingSeries(t *testing.T) {
	const ratio = 1.1
	closes := make([]float64, 21)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 100 * ratio
		}
	}

	vol := AnnualisedVolatility(barsFromCloses(closes))
	require.NotNil(t, vol)

	n := float64(len(closes) - 1)
	expectedDaily := math.Log(ratio) * math.Sqrt(n/(n-1))
	expected := expectedDaily * math.Sqrt(252)
	assert.InDelta(t, expected, vol.AsDecimal(), 1e-9)
}

func TestDailyReturns(t *testing.T) {
	bars := barsFromCloses([]float64{100, 110, 99})
	returns := DailyReturns(bars)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)

	// Bars with a non-positive previous close are skipped.
	withZero := barsFromCloses([]float64{100, 0, 50})
	returns = DailyReturns(withZero)
	require.Len(t, returns, 1)
	assert.InDelta(t, -1.0, returns[0], 1e-12)
}
