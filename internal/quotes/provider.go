// Package quotes defines the uniform market-data contract the rest of the
// service consumes, independent of which upstream supplies it.
package quotes

import (
	"context"
	"fmt"

	"vantage/internal/domain"
)

// Provider is the capability set every quote source must implement.
// Each call is cancellable through ctx and carries a hard deadline
// (30s default at the transport).
type Provider interface {
	// Historical returns up to days of daily bars, ascending by date
	Historical(ctx context.Context, ticker domain.Ticker, days int) ([]domain.HistoricalBar, error)

	// CurrentQuote returns the latest price snapshot
	CurrentQuote(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error)

	// Metadata returns instrument descriptive data
	Metadata(ctx context.Context, ticker domain.Ticker) (*domain.StockMetadata, error)

	// Volatility returns annualised historical volatility, nil when fewer
	// than 20 usable points exist
	Volatility(ctx context.Context, ticker domain.Ticker, days int) (*domain.Percentage, error)

	// IsValid reports whether the ticker resolves upstream
	IsValid(ctx context.Context, ticker domain.Ticker) bool

	// Search resolves instruments matching a free-text query
	Search(ctx context.Context, query string, limit int) ([]domain.StockMetadata, error)
}

// TickerNotFoundError reports that the upstream has no data for a ticker
type TickerNotFoundError struct {
	Ticker domain.Ticker
}

func (e *TickerNotFoundError) Error() string {
	return fmt.Sprintf("ticker not found: %s", e.Ticker)
}

// DataFetchError reports a network or parse failure from the upstream
type DataFetchError struct {
	Err    error
	Ticker domain.Ticker
	Op     string
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s for %s: %v", e.Op, e.Ticker, e.Err)
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}
