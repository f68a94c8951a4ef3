package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/clientdata"
	"vantage/internal/domain"
	vtesting "vantage/internal/testing"
)

// fakeProvider counts calls and can be switched to fail
type fakeProvider struct {
	quoteCalls int
	metaCalls  int
	histCalls  int
	fail       bool
}

func (f *fakeProvider) Historical(_ context.Context, ticker domain.Ticker, days int) ([]domain.HistoricalBar, error) {
	f.histCalls++
	if f.fail {
		return nil, &DataFetchError{Ticker: ticker, Op: "historical"}
	}
	bars := make([]domain.HistoricalBar, days)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.HistoricalBar{Date: base.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	return bars, nil
}

func (f *fakeProvider) CurrentQuote(_ context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	f.quoteCalls++
	if f.fail {
		return nil, &DataFetchError{Ticker: ticker, Op: "quote"}
	}
	return &domain.Quote{Ticker: ticker, Price: 101.5, Timestamp: time.Now().UTC(), Source: "fake"}, nil
}

func (f *fakeProvider) Metadata(_ context.Context, ticker domain.Ticker) (*domain.StockMetadata, error) {
	f.metaCalls++
	if f.fail {
		return nil, &DataFetchError{Ticker: ticker, Op: "metadata"}
	}
	return &domain.StockMetadata{Ticker: ticker, Name: "Fake Corp", Currency: domain.CurrencyUSD, AssetType: domain.AssetTypeStock}, nil
}

func (f *fakeProvider) Volatility(ctx context.Context, ticker domain.Ticker, days int) (*domain.Percentage, error) {
	bars, err := f.Historical(ctx, ticker, days)
	if err != nil {
		return nil, err
	}
	return AnnualisedVolatility(bars), nil
}

func (f *fakeProvider) IsValid(context.Context, domain.Ticker) bool { return !f.fail }

func (f *fakeProvider) Search(context.Context, string, int) ([]domain.StockMetadata, error) {
	return nil, nil
}

func newCachingProvider(t *testing.T) (*CachingProvider, *fakeProvider) {
	t.Helper()
	db, cleanup := vtesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	upstream := &fakeProvider{}
	return NewCachingProvider(upstream, clientdata.NewRepository(db.Conn()), zerolog.Nop()), upstream
}

func TestCachingProviderQuoteHitsCacheOnSecondCall(t *testing.T) {
	p, upstream := newCachingProvider(t)
	ticker := domain.MustTicker("AAPL")

	q1, err := p.CurrentQuote(context.Background(), ticker)
	require.NoError(t, err)
	q2, err := p.CurrentQuote(context.Background(), ticker)
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.quoteCalls, "second call must be served from cache")
	assert.Equal(t, q1.Price, q2.Price)
	assert.Equal(t, q1.Ticker, q2.Ticker)
}

func TestCachingProviderServesStaleOnUpstreamFailure(t *testing.T) {
	p, upstream := newCachingProvider(t)
	ticker := domain.MustTicker("MSFT")

	meta, err := p.Metadata(context.Background(), ticker)
	require.NoError(t, err)

	// Re-store the entry already expired, then break the upstream
	require.NoError(t, p.cache.Store(clientdata.BucketMetadata, ticker.String(), meta, -time.Minute))
	upstream.fail = true

	stale, err := p.Metadata(context.Background(), ticker)
	require.NoError(t, err, "stale entry must be served when the upstream is down")
	assert.Equal(t, "Fake Corp", stale.Name)
	assert.Equal(t, 2, upstream.metaCalls, "upstream was retried before falling back")
}

func TestCachingProviderPropagatesErrorWithoutCache(t *testing.T) {
	p, upstream := newCachingProvider(t)
	upstream.fail = true

	_, err := p.CurrentQuote(context.Background(), domain.MustTicker("GOOG"))
	require.Error(t, err)

	var fetchErr *DataFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestCachingProviderHistoricalKeyedByDays(t *testing.T) {
	p, upstream := newCachingProvider(t)
	ticker := domain.MustTicker("SPY")

	bars30, err := p.Historical(context.Background(), ticker, 30)
	require.NoError(t, err)
	bars60, err := p.Historical(context.Background(), ticker, 60)
	require.NoError(t, err)

	assert.Len(t, bars30, 30)
	assert.Len(t, bars60, 60)
	assert.Equal(t, 2, upstream.histCalls, "different day windows are distinct cache keys")

	_, err = p.Historical(context.Background(), ticker, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.histCalls)
}

func TestCachingProviderVolatilityUsesCachedBars(t *testing.T) {
	p, upstream := newCachingProvider(t)
	ticker := domain.MustTicker("QQQ")

	vol, err := p.Volatility(context.Background(), ticker, 252)
	require.NoError(t, err)
	require.NotNil(t, vol)

	_, err = p.Volatility(context.Background(), ticker, 252)
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.histCalls)
}
