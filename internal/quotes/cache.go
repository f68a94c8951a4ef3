package quotes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vantage/internal/clientdata"
	"vantage/internal/domain"
)

// CachingProvider wraps any Provider with the persistent client-data cache.
// Reads are cache-first; on upstream failure a stale entry is served rather
// than the error, because stale data beats no data for display purposes.
type CachingProvider struct {
	upstream Provider
	cache    *clientdata.Repository
	log      zerolog.Logger
}

// NewCachingProvider wraps upstream with the cache repository
func NewCachingProvider(upstream Provider, cache *clientdata.Repository, log zerolog.Logger) *CachingProvider {
	return &CachingProvider{
		upstream: upstream,
		cache:    cache,
		log:      log.With().Str("component", "quote_cache").Logger(),
	}
}

// Historical returns daily bars, cached for a short window keyed by
// (ticker, days)
func (p *CachingProvider) Historical(ctx context.Context, ticker domain.Ticker, days int) ([]domain.HistoricalBar, error) {
	key := fmt.Sprintf("%s:%d", ticker, days)

	var cached []domain.HistoricalBar
	if found, err := p.cache.GetFresh(clientdata.BucketHistorical, key, &cached); err == nil && found {
		return cached, nil
	}

	bars, err := p.upstream.Historical(ctx, ticker, days)
	if err != nil {
		var stale []domain.HistoricalBar
		if found, cacheErr := p.cache.GetStale(clientdata.BucketHistorical, key, &stale); cacheErr == nil && found {
			p.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Upstream failed, serving stale bars")
			return stale, nil
		}
		return nil, err
	}

	if err := p.cache.Store(clientdata.BucketHistorical, key, bars, clientdata.TTLHistorical); err != nil {
		p.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Failed to cache bars")
	}
	return bars, nil
}

// CurrentQuote returns the latest price snapshot, cached briefly to absorb
// request bursts for the same ticker
func (p *CachingProvider) CurrentQuote(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	key := ticker.String()

	var cached domain.Quote
	if found, err := p.cache.GetFresh(clientdata.BucketQuote, key, &cached); err == nil && found {
		return &cached, nil
	}

	quote, err := p.upstream.CurrentQuote(ctx, ticker)
	if err != nil {
		var stale domain.Quote
		if found, cacheErr := p.cache.GetStale(clientdata.BucketQuote, key, &stale); cacheErr == nil && found {
			p.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Upstream failed, serving stale quote")
			return &stale, nil
		}
		return nil, err
	}

	if err := p.cache.Store(clientdata.BucketQuote, key, quote, clientdata.TTLQuote); err != nil {
		p.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Failed to cache quote")
	}
	return quote, nil
}

// Metadata returns instrument descriptive data, cached for a day
func (p *CachingProvider) Metadata(ctx context.Context, ticker domain.Ticker) (*domain.StockMetadata, error) {
	key := ticker.String()

	var cached domain.StockMetadata
	if found, err := p.cache.GetFresh(clientdata.BucketMetadata, key, &cached); err == nil && found {
		return &cached, nil
	}

	meta, err := p.upstream.Metadata(ctx, ticker)
	if err != nil {
		var stale domain.StockMetadata
		if found, cacheErr := p.cache.GetStale(clientdata.BucketMetadata, key, &stale); cacheErr == nil && found {
			p.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Upstream failed, serving stale metadata")
			return &stale, nil
		}
		return nil, err
	}

	if err := p.cache.Store(clientdata.BucketMetadata, key, meta, clientdata.TTLMetadata); err != nil {
		p.log.Warn().Err(err).Str("ticker", ticker.String()).Msg("Failed to cache metadata")
	}
	return meta, nil
}

// Volatility derives annualised volatility from (cached) historical bars
func (p *CachingProvider) Volatility(ctx context.Context, ticker domain.Ticker, days int) (*domain.Percentage, error) {
	bars, err := p.Historical(ctx, ticker, days)
	if err != nil {
		return nil, err
	}
	return AnnualisedVolatility(bars), nil
}

// IsValid reports whether the ticker resolves; a cached metadata entry is
// proof enough without an upstream round trip
func (p *CachingProvider) IsValid(ctx context.Context, ticker domain.Ticker) bool {
	var cached domain.StockMetadata
	if found, err := p.cache.GetFresh(clientdata.BucketMetadata, ticker.String(), &cached); err == nil && found {
		return true
	}
	return p.upstream.IsValid(ctx, ticker)
}

// Search passes through; result sets are query-shaped and not worth caching
func (p *CachingProvider) Search(ctx context.Context, query string, limit int) ([]domain.StockMetadata, error) {
	return p.upstream.Search(ctx, query, limit)
}
