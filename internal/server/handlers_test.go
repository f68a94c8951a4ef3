package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/domain"
)

func TestParseTickerFilter(t *testing.T) {
	t.Run("empty means no filter", func(t *testing.T) {
		tickers, err := parseTickerFilter("")
		require.NoError(t, err)
		assert.Nil(t, tickers)

		tickers, err = parseTickerFilter("   ")
		require.NoError(t, err)
		assert.Nil(t, tickers)
	})

	t.Run("splits and normalises", func(t *testing.T) {
		tickers, err := parseTickerFilter("aapl, MSFT ,VWCE.DE")
		require.NoError(t, err)
		assert.Equal(t, []domain.Ticker{
			domain.MustTicker("AAPL"),
			domain.MustTicker("MSFT"),
			domain.MustTicker("VWCE.DE"),
		}, tickers)
	})

	t.Run("rejects invalid symbols", func(t *testing.T) {
		_, err := parseTickerFilter("AAPL,not a ticker!!")
		require.Error(t, err)
	})
}
