// Package yahoo implements the quote-provider contract against the Yahoo
// Finance public API: v8 chart for history, v7 quote for snapshots and
// metadata, v1 search for resolution.
package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"vantage/internal/domain"
	"vantage/internal/quotes"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// browserUA keeps the public endpoints from rejecting the default Go agent
const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Client is a Yahoo Finance quote provider
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewClient creates a Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return NewClientWithBaseURL(defaultBaseURL, log)
}

// NewClientWithBaseURL creates a client against a specific base URL
func NewClientWithBaseURL(baseURL string, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", browserUA).
		SetHeader("Accept", "application/json")

	return &Client{
		http: httpClient,
		log:  log.With().Str("client", "yahoo").Logger(),
	}
}

// Historical fetches up to days of daily bars, ascending by date, with
// dividends attached to their effective date.
func (c *Client) Historical(ctx context.Context, ticker domain.Ticker, days int) ([]domain.HistoricalBar, error) {
	if days <= 0 {
		days = 365
	}
	now := time.Now()

	var result chartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("period1", strconv.FormatInt(now.AddDate(0, 0, -days).Unix(), 10)).
		SetQueryParam("period2", strconv.FormatInt(now.Unix(), 10)).
		SetQueryParam("interval", "1d").
		SetQueryParam("events", "div").
		SetResult(&result).
		Get("/v8/finance/chart/" + ticker.String())
	if err != nil {
		return nil, &quotes.DataFetchError{Ticker: ticker, Op: "historical", Err: err}
	}
	if err := checkChartResponse(resp, &result, ticker, "historical"); err != nil {
		return nil, err
	}

	bars := buildBars(result.Chart.Result[0])
	if len(bars) == 0 {
		return nil, &quotes.TickerNotFoundError{Ticker: ticker}
	}
	return bars, nil
}

// CurrentQuote fetches the latest snapshot for a ticker
func (c *Client) CurrentQuote(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	res, err := c.quoteLookup(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if res.RegularMarketPrice == nil {
		return nil, &quotes.TickerNotFoundError{Ticker: ticker}
	}

	ts := time.Now().UTC()
	if res.RegularMarketTime != nil {
		ts = time.Unix(*res.RegularMarketTime, 0).UTC()
	}
	return &domain.Quote{
		Ticker:        ticker,
		Price:         *res.RegularMarketPrice,
		Bid:           res.Bid,
		Ask:           res.Ask,
		Change:        res.RegularMarketChange,
		ChangePercent: res.RegularMarketChangePercent,
		Volume:        res.RegularMarketVolume,
		Timestamp:     ts,
		Source:        "yahoo",
	}, nil
}

// Metadata fetches instrument descriptive data
func (c *Client) Metadata(ctx context.Context, ticker domain.Ticker) (*domain.StockMetadata, error) {
	res, err := c.quoteLookup(ctx, ticker)
	if err != nil {
		return nil, err
	}

	name := res.LongName
	if name == "" {
		name = res.ShortName
	}
	currency, err := domain.ParseCurrency(res.Currency)
	if err != nil {
		currency = domain.CurrencyUSD
	}

	return &domain.StockMetadata{
		Ticker:        ticker,
		Name:          name,
		Currency:      currency,
		Exchange:      res.FullExchangeName,
		Sector:        res.Sector,
		Industry:      res.Industry,
		AssetType:     mapQuoteType(res.QuoteType),
		MarketCap:     res.MarketCap,
		DividendYield: res.TrailingAnnualDividendYield,
	}, nil
}

// Volatility computes annualised volatility over the requested window,
// nil when the history is too short.
func (c *Client) Volatility(ctx context.Context, ticker domain.Ticker, days int) (*domain.Percentage, error) {
	if days <= 0 {
		days = 252
	}
	bars, err := c.Historical(ctx, ticker, days)
	if err != nil {
		return nil, err
	}
	return quotes.AnnualisedVolatility(bars), nil
}

// IsValid reports whether the ticker resolves to a quote
func (c *Client) IsValid(ctx context.Context, ticker domain.Ticker) bool {
	_, err := c.CurrentQuote(ctx, ticker)
	return err == nil
}

// Search resolves instruments matching a free-text query
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.StockMetadata, error) {
	if limit <= 0 {
		limit = 10
	}

	var result searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("quotesCount", strconv.Itoa(limit)).
		SetQueryParam("newsCount", "0").
		SetResult(&result).
		Get("/v1/finance/search")
	if err != nil {
		return nil, &quotes.DataFetchError{Op: "search", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &quotes.DataFetchError{Op: "search", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}

	out := make([]domain.StockMetadata, 0, len(result.Quotes))
	for _, q := range result.Quotes {
		ticker, err := domain.ParseTicker(q.Symbol)
		if err != nil {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		out = append(out, domain.StockMetadata{
			Ticker:    ticker,
			Name:      name,
			Exchange:  q.Exchange,
			Sector:    q.Sector,
			Industry:  q.Industry,
			AssetType: mapQuoteType(q.QuoteType),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// quoteLookup hits the v7 quote endpoint for a single symbol
func (c *Client) quoteLookup(ctx context.Context, ticker domain.Ticker) (*quoteResult, error) {
	var result quoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbols", ticker.String()).
		SetResult(&result).
		Get("/v7/finance/quote")
	if err != nil {
		return nil, &quotes.DataFetchError{Ticker: ticker, Op: "quote", Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, &quotes.TickerNotFoundError{Ticker: ticker}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &quotes.DataFetchError{Ticker: ticker, Op: "quote", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}
	if result.QuoteResponse.Error != nil {
		return nil, &quotes.DataFetchError{Ticker: ticker, Op: "quote", Err: fmt.Errorf("api error: %s", result.QuoteResponse.Error.Description)}
	}
	if len(result.QuoteResponse.Result) == 0 {
		return nil, &quotes.TickerNotFoundError{Ticker: ticker}
	}
	return &result.QuoteResponse.Result[0], nil
}

// checkChartResponse maps chart endpoint failures to the error taxonomy
func checkChartResponse(resp *resty.Response, result *chartResponse, ticker domain.Ticker, op string) error {
	if resp.StatusCode() == http.StatusNotFound {
		return &quotes.TickerNotFoundError{Ticker: ticker}
	}
	if resp.StatusCode() != http.StatusOK {
		return &quotes.DataFetchError{Ticker: ticker, Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}
	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return &quotes.TickerNotFoundError{Ticker: ticker}
		}
		return &quotes.DataFetchError{Ticker: ticker, Op: op, Err: fmt.Errorf("api error: %s", result.Chart.Error.Description)}
	}
	if len(result.Chart.Result) == 0 {
		return &quotes.TickerNotFoundError{Ticker: ticker}
	}
	return nil
}

// buildBars assembles daily bars from the parallel arrays of the chart
// payload, skipping days where the close is missing.
func buildBars(res chartResult) []domain.HistoricalBar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	q := res.Indicators.Quote[0]

	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	dividends := make(map[string]float64)
	if res.Events != nil {
		for _, d := range res.Events.Dividends {
			day := time.Unix(d.Date, 0).UTC().Format("2006-01-02")
			dividends[day] += d.Amount
		}
	}

	bars := make([]domain.HistoricalBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		date := time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
		bar := domain.HistoricalBar{
			Date:     date,
			Close:    *q.Close[i],
			Dividend: dividends[date.Format("2006-01-02")],
		}
		if i < len(q.Open) && q.Open[i] != nil {
			bar.Open = *q.Open[i]
		}
		if i < len(q.High) && q.High[i] != nil {
			bar.High = *q.High[i]
		}
		if i < len(q.Low) && q.Low[i] != nil {
			bar.Low = *q.Low[i]
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			bar.Volume = *q.Volume[i]
		}
		if i < len(adj) && adj[i] != nil {
			bar.AdjClose = adj[i]
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

// mapQuoteType converts Yahoo quote types to asset types
func mapQuoteType(qt string) domain.AssetType {
	switch qt {
	case "ETF", "MUTUALFUND":
		return domain.AssetTypeETF
	case "CRYPTOCURRENCY":
		return domain.AssetTypeCrypto
	case "BOND":
		return domain.AssetTypeBond
	default:
		return domain.AssetTypeStock
	}
}
