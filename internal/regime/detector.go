package regime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"vantage/internal/config"
	"vantage/internal/domain"
	"vantage/internal/quotes"
)

// Fetch depths in calendar days, sized so each moving average has enough
// trading bars
const (
	spyFetchDays   = 400
	vixFetchDays   = 60
	ratioFetchDays = 120
	yieldFetchDays = 15

	drawdownWindow = 252
)

// VIX thresholds
const (
	vixElevatedLevel = 20.0
	vixSpikeLevel    = 30.0
)

// spyDrawdownAlertLevel marks a drop of more than 10% from the rolling peak
const spyDrawdownAlertLevel = -0.10

// Detector assembles regime snapshots from quote history, caching the
// result for a TTL
type Detector struct {
	provider quotes.Provider
	tickers  config.RegimeSettings
	ttl      time.Duration
	log      zerolog.Logger

	// Cache (protected by mu)
	mu        sync.RWMutex
	cached    *Snapshot
	fetchedAt time.Time
}

// NewDetector creates a regime detector. The cache TTL comes from settings,
// falling back to five minutes.
func NewDetector(provider quotes.Provider, tickers config.RegimeSettings, log zerolog.Logger) *Detector {
	ttl := time.Duration(tickers.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Detector{
		provider: provider,
		tickers:  tickers,
		ttl:      ttl,
		log:      log.With().Str("component", "regime").Logger(),
	}
}

// Current returns the regime snapshot, recomputing when the cache is stale.
// A failed refresh falls back to the last cached snapshot.
func (d *Detector) Current(ctx context.Context) (*Snapshot, error) {
	d.mu.RLock()
	cached := d.cached
	fresh := cached != nil && time.Since(d.fetchedAt) < d.ttl
	d.mu.RUnlock()

	if fresh {
		return cached, nil
	}

	snapshot, err := d.compute(ctx)
	if err != nil {
		if cached != nil {
			d.log.Warn().Err(err).Msg("Regime refresh failed, serving cached snapshot")
			return cached, nil
		}
		return nil, err
	}

	d.mu.Lock()
	d.cached = snapshot
	d.fetchedAt = time.Now()
	d.mu.Unlock()

	d.log.Info().
		Str("regime", string(snapshot.Regime)).
		Int("stress_count", snapshot.StressCount).
		Msg("Regime updated")

	return snapshot, nil
}

// Refresh drops the cache and recomputes
func (d *Detector) Refresh(ctx context.Context) (*Snapshot, error) {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
	return d.Current(ctx)
}

// compute fetches every indicator series and derives the signal set.
// Individual series degrade to absent; only a fully dark board is an error.
func (d *Detector) compute(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{AsOf: time.Now().UTC()}
	available := 0

	fetch := func(ticker string, days int) []domain.HistoricalBar {
		if ticker == "" {
			return nil
		}
		bars, err := d.provider.Historical(ctx, domain.Ticker(ticker), days)
		if err != nil {
			d.log.Warn().Err(err).Str("ticker", ticker).Msg("Indicator series unavailable")
			snapshot.MissingSeries = append(snapshot.MissingSeries, ticker)
			return nil
		}
		return bars
	}

	if spy := fetch(d.tickers.SPY, spyFetchDays); len(spy) > 0 {
		available++
		d.applySPY(snapshot, spy)
	}
	if vix := fetch(d.tickers.VIX, vixFetchDays); len(vix) > 0 {
		available++
		d.applyVIX(snapshot, vix)
	}
	hyg := fetch(d.tickers.HYG, ratioFetchDays)
	lqd := fetch(d.tickers.LQD, ratioFetchDays)
	if len(hyg) > 0 && len(lqd) > 0 {
		available++
		d.applyCreditRatio(snapshot, hyg, lqd)
	}
	tenYear := fetch(d.tickers.TenYear, yieldFetchDays)
	threeMonth := fetch(d.tickers.ThreeMonth, yieldFetchDays)
	if len(tenYear) > 0 && len(threeMonth) > 0 {
		available++
		snapshot.Readings.YieldSpread = lastClose(tenYear) - lastClose(threeMonth)
		snapshot.Signals.YieldCurveInverted = snapshot.Readings.YieldSpread < 0
	}

	if available == 0 {
		return nil, fmt.Errorf("failed to assess regime: no indicator series available")
	}

	snapshot.StressCount = snapshot.Signals.Count()
	snapshot.Regime = Classify(snapshot.Signals)
	snapshot.Allocation = RecommendedAllocation(snapshot.Regime)
	return snapshot, nil
}

func (d *Detector) applySPY(snapshot *Snapshot, bars []domain.HistoricalBar) {
	closes := closesOf(bars)
	price := closes[len(closes)-1]
	snapshot.Readings.SPYClose = price

	if sma := lastSMA(closes, 200); sma > 0 {
		snapshot.Readings.SPYSMA200 = sma
		snapshot.Signals.SPYBelowSMA200 = price < sma
	}

	start := len(closes) - drawdownWindow
	if start < 0 {
		start = 0
	}
	peak := closes[start]
	for _, c := range closes[start:] {
		if c > peak {
			peak = c
		}
	}
	if peak > 0 {
		snapshot.Readings.SPYDrawdown = price/peak - 1
		snapshot.Signals.SPYDrawdownAlert = snapshot.Readings.SPYDrawdown < spyDrawdownAlertLevel
	}
}

func (d *Detector) applyVIX(snapshot *Snapshot, bars []domain.HistoricalBar) {
	closes := closesOf(bars)
	vix := closes[len(closes)-1]
	snapshot.Readings.VIX = vix
	snapshot.Signals.VIXSpike = vix > vixSpikeLevel

	sma := lastSMA(closes, 20)
	snapshot.Readings.VIXSMA20 = sma
	if sma > 0 {
		snapshot.Signals.VIXElevated = vix > vixElevatedLevel || vix > sma
	} else {
		snapshot.Signals.VIXElevated = vix > vixElevatedLevel
	}
}

func (d *Detector) applyCreditRatio(snapshot *Snapshot, hyg, lqd []domain.HistoricalBar) {
	lqdByDate := make(map[int64]float64, len(lqd))
	for _, bar := range lqd {
		lqdByDate[dateKey(bar.Date)] = bar.Close
	}

	ratio := make([]float64, 0, len(hyg))
	for _, bar := range hyg {
		if denom, ok := lqdByDate[dateKey(bar.Date)]; ok && denom > 0 {
			ratio = append(ratio, bar.Close/denom)
		}
	}
	if len(ratio) == 0 {
		return
	}

	snapshot.Readings.HYGLQDRatio = ratio[len(ratio)-1]
	if sma := lastSMA(ratio, 50); sma > 0 {
		snapshot.Readings.HYGLQDSMA50 = sma
		snapshot.Signals.CreditStress = snapshot.Readings.HYGLQDRatio < sma
	}
}

// lastSMA returns the final SMA value, or 0 when the series is too short
func lastSMA(values []float64, period int) float64 {
	if len(values) < period {
		return 0
	}
	series := talib.Sma(values, period)
	last := series[len(series)-1]
	if last != last {
		return 0
	}
	return last
}

func closesOf(bars []domain.HistoricalBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func lastClose(bars []domain.HistoricalBar) float64 {
	return bars[len(bars)-1].Close
}

// dateKey collapses a timestamp to its UTC calendar day
func dateKey(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
