package yahoo

// Wire shapes of the Yahoo Finance public API. Numeric arrays in the chart
// payload carry nulls for non-trading days, hence the pointer slices.

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol                      string   `json:"symbol"`
	Currency                    string   `json:"currency"`
	FullExchangeName            string   `json:"fullExchangeName"`
	LongName                    string   `json:"longName"`
	ShortName                   string   `json:"shortName"`
	QuoteType                   string   `json:"quoteType"`
	Sector                      string   `json:"sector"`
	Industry                    string   `json:"industry"`
	RegularMarketPrice          *float64 `json:"regularMarketPrice"`
	RegularMarketChange         *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent  *float64 `json:"regularMarketChangePercent"`
	RegularMarketVolume         *int64   `json:"regularMarketVolume"`
	RegularMarketTime           *int64   `json:"regularMarketTime"`
	Bid                         *float64 `json:"bid"`
	Ask                         *float64 `json:"ask"`
	MarketCap                   *float64 `json:"marketCap"`
	TrailingAnnualDividendYield *float64 `json:"trailingAnnualDividendYield"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Currency           string  `json:"currency"`
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
	Events *struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
	} `json:"events"`
}

type searchResponse struct {
	Quotes []searchQuote `json:"quotes"`
}

type searchQuote struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"shortname"`
	LongName  string `json:"longname"`
	QuoteType string `json:"quoteType"`
	Exchange  string `json:"exchange"`
	Sector    string `json:"sector"`
	Industry  string `json:"industry"`
}
