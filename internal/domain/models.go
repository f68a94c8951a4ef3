// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Currency represents an ISO-4217 currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencySEK Currency = "SEK"
	CurrencyNOK Currency = "NOK"
	CurrencyDKK Currency = "DKK"
	CurrencyCHF Currency = "CHF"
	CurrencyJPY Currency = "JPY"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyHKD Currency = "HKD"
)

var knownCurrencies = map[Currency]bool{
	CurrencyEUR: true,
	CurrencyUSD: true,
	CurrencyGBP: true,
	CurrencySEK: true,
	CurrencyNOK: true,
	CurrencyDKK: true,
	CurrencyCHF: true,
	CurrencyJPY: true,
	CurrencyCAD: true,
	CurrencyAUD: true,
	CurrencyHKD: true,
}

// ParseCurrency validates and normalises a currency code
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !knownCurrencies[c] {
		return "", fmt.Errorf("unsupported currency: %q", s)
	}
	return c, nil
}

// AssetType represents the type of financial instrument
type AssetType string

const (
	AssetTypeStock  AssetType = "stock"
	AssetTypeETF    AssetType = "etf"
	AssetTypeCrypto AssetType = "crypto"
	AssetTypeBond   AssetType = "bond"
)

// Ticker is a case-normalised instrument symbol.
// Always uppercase, non-empty, at most 12 characters. The character set
// admits index (^VIX) and FX (EURUSD=X) symbols alongside equities.
type Ticker string

const maxTickerLen = 12

// ParseTicker validates and normalises a raw symbol string
func ParseTicker(raw string) (Ticker, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("ticker is empty")
	}
	if len(s) > maxTickerLen {
		return "", fmt.Errorf("ticker %q exceeds %d characters", raw, maxTickerLen)
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '^' || r == '=':
		default:
			return "", fmt.Errorf("ticker %q contains invalid character %q", raw, r)
		}
	}
	return Ticker(s), nil
}

// MustTicker parses a ticker and panics on failure. Intended for constants
// and tests, never for user input.
func MustTicker(raw string) Ticker {
	t, err := ParseTicker(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Ticker) String() string {
	return string(t)
}

// Quote is a transient price snapshot. Any newer quote for the same ticker
// supersedes it.
type Quote struct {
	Timestamp     time.Time `json:"timestamp"`
	Ticker        Ticker    `json:"ticker"`
	Source        string    `json:"source"`
	Bid           *float64  `json:"bid,omitempty"`
	Ask           *float64  `json:"ask,omitempty"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	Volume        *int64    `json:"volume,omitempty"`
	Price         float64   `json:"price"`
}

// HistoricalBar is one daily OHLCV record, keyed by (ticker, date).
// Series are always ordered ascending by date.
type HistoricalBar struct {
	Date     time.Time `json:"date"`
	AdjClose *float64  `json:"adj_close,omitempty"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Dividend float64   `json:"dividend"`
	Volume   int64     `json:"volume"`
}

// StockMetadata describes an instrument
type StockMetadata struct {
	Ticker        Ticker    `json:"ticker"`
	Name          string    `json:"name"`
	Currency      Currency  `json:"currency"`
	Exchange      string    `json:"exchange,omitempty"`
	Sector        string    `json:"sector,omitempty"`
	Industry      string    `json:"industry,omitempty"`
	AssetType     AssetType `json:"asset_type"`
	MarketCap     *float64  `json:"market_cap,omitempty"`
	DividendYield *float64  `json:"dividend_yield,omitempty"`
}
