package backtest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/config"
	"vantage/internal/domain"
	"vantage/internal/quotes"
)

type stubProvider struct {
	bars map[domain.Ticker][]domain.HistoricalBar
}

func (s *stubProvider) Historical(_ context.Context, ticker domain.Ticker, _ int) ([]domain.HistoricalBar, error) {
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

func signalTickers() config.RegimeSettings {
	return config.RegimeSettings{
		SPY: "SPY", VIX: "^VIX", HYG: "HYG", LQD: "LQD",
		TenYear: "^TNX", ThreeMonth: "^IRX",
	}
}

func newTestService(t *testing.T, provider quotes.Provider) *Service {
	t.Helper()
	return NewService(NewEngine(zerolog.Nop()), newTestRepository(t), provider, signalTickers(), zerolog.Nop())
}

func TestServiceRunPersistsResult(t *testing.T) {
	n := 90
	provider := &stubProvider{bars: map[domain.Ticker][]domain.HistoricalBar{
		"AAA": flatBars(n, 100),
		"BBB": flatBars(n, 50),
	}}
	svc := newTestService(t, provider)

	cfg := baseConfig(n)
	result, id, err := svc.Run(context.Background(), "baseline", cfg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Positive(t, id)

	stored, err := svc.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, "baseline", stored.Name)
	assert.InDelta(t, result.Metrics.FinalValue, stored.Metrics.FinalValue, 1e-9)
	assert.False(t, stored.FinishedAt.Before(stored.StartedAt))

	runs, err := svc.ListRuns(5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestServiceRunFailsOnMissingTradedTicker(t *testing.T) {
	provider := &stubProvider{bars: map[domain.Ticker][]domain.HistoricalBar{
		"AAA": flatBars(30, 100),
	}}
	svc := newTestService(t, provider)

	_, _, err := svc.Run(context.Background(), "broken", baseConfig(30))
	require.Error(t, err)
	var notFound *quotes.TickerNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestServiceRunRiskOffBuildsSignals(t *testing.T) {
	n := 260
	bars := map[domain.Ticker][]domain.HistoricalBar{
		"AAA":  flatBars(n, 100),
		"SGOV": flatBars(n, 100),
		"SPY":  flatBars(n, 100),
	}
	svc := newTestService(t, &stubProvider{bars: bars})

	cfg := baseConfig(n)
	cfg.Allocation = map[domain.Ticker]float64{"AAA": 100}
	cfg.RiskOffAllocation = map[domain.Ticker]float64{"SGOV": 100}
	cfg.RiskOffEnabled = true
	cfg.Trigger = TriggerSPYBelowSMA200
	cfg.EntryDays = 7
	cfg.ExitDays = 14

	// VIX, HYG, LQD and yields are unavailable; SPY alone is enough
	result, _, err := svc.Run(context.Background(), "risk-off", cfg)
	require.NoError(t, err)
	assert.Empty(t, result.RiskOffPeriods, "flat SPY never goes below its average")
}

func TestServiceRunRiskOffRequiresSPY(t *testing.T) {
	n := 30
	svc := newTestService(t, &stubProvider{bars: map[domain.Ticker][]domain.HistoricalBar{
		"AAA":  flatBars(n, 100),
		"SGOV": flatBars(n, 100),
	}})

	cfg := baseConfig(n)
	cfg.Allocation = map[domain.Ticker]float64{"AAA": 100}
	cfg.RiskOffAllocation = map[domain.Ticker]float64{"SGOV": 100}
	cfg.RiskOffEnabled = true
	cfg.Trigger = TriggerSPYBelowSMA200
	cfg.EntryDays = 7
	cfg.ExitDays = 14

	_, _, err := svc.Run(context.Background(), "no-spy", cfg)
	require.Error(t, err)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
