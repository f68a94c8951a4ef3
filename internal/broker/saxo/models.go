package saxo

import "time"

// Wire shapes of the Saxo OpenAPI. Field names follow the broker's JSON
// exactly; mapping.go converts them to domain types.

type listResponse[T any] struct {
	Data []T `json:"Data"`
}

type errorBody struct {
	Message   string `json:"Message"`
	ErrorInfo *struct {
		ErrorCode string `json:"ErrorCode"`
		Message   string `json:"Message"`
	} `json:"ErrorInfo"`
}

type clientInfo struct {
	ClientKey         string `json:"ClientKey"`
	ClientID          string `json:"ClientId"`
	Name              string `json:"Name"`
	DefaultAccountKey string `json:"DefaultAccountKey"`
	DefaultCurrency   string `json:"DefaultCurrency"`
}

type account struct {
	AccountID   string `json:"AccountId"`
	AccountKey  string `json:"AccountKey"`
	ClientKey   string `json:"ClientKey"`
	AccountType string `json:"AccountType"`
	Currency    string `json:"Currency"`
	Active      bool   `json:"Active"`
}

type balance struct {
	CashBalance               float64  `json:"CashBalance"`
	Currency                  string   `json:"Currency"`
	TotalValue                float64  `json:"TotalValue"`
	MarginAvailableForTrading *float64 `json:"MarginAvailableForTrading"`
}

type position struct {
	NetPositionID    string           `json:"NetPositionId"`
	PositionBase     positionBase     `json:"PositionBase"`
	PositionView     positionView     `json:"PositionView"`
	DisplayAndFormat displayAndFormat `json:"DisplayAndFormat"`
}

type positionBase struct {
	AccountID string  `json:"AccountId"`
	Uic       int64   `json:"Uic"`
	AssetType string  `json:"AssetType"`
	Amount    float64 `json:"Amount"`
	OpenPrice float64 `json:"OpenPrice"`
	Status    string  `json:"Status"`
}

type positionView struct {
	CurrentPrice             float64  `json:"CurrentPrice"`
	MarketValue              float64  `json:"MarketValue"`
	ProfitLossOnTrade        float64  `json:"ProfitLossOnTrade"`
	ProfitLossOnTradeInBase  float64  `json:"ProfitLossOnTradeInBaseCurrency"`
	TradeCostsTotal          float64  `json:"TradeCostsTotal"`
	ProfitLossOnTradePercent *float64 `json:"ProfitLossOnTradeInPercentage"`
	ExposureCurrency         string   `json:"ExposureCurrency"`
}

type displayAndFormat struct {
	Symbol      string `json:"Symbol"`
	Description string `json:"Description"`
	Currency    string `json:"Currency"`
	Decimals    int    `json:"Decimals"`
}

type order struct {
	OrderID          string           `json:"OrderId"`
	Uic              int64            `json:"Uic"`
	AssetType        string           `json:"AssetType"`
	BuySell          string           `json:"BuySell"`
	Amount           float64          `json:"Amount"`
	OpenOrderType    string           `json:"OpenOrderType"`
	Price            *float64         `json:"Price"`
	Status           string           `json:"Status"`
	OrderTime        time.Time        `json:"OrderTime"`
	CurrencyCode     string           `json:"CurrencyCode"`
	Duration         orderDuration    `json:"Duration"`
	DisplayAndFormat displayAndFormat `json:"DisplayAndFormat"`
}

type orderDuration struct {
	DurationType string `json:"DurationType"`
}

// OrderRequest is the order-placement payload
type OrderRequest struct {
	AccountKey    string        `json:"AccountKey"`
	AssetType     string        `json:"AssetType"`
	BuySell       string        `json:"BuySell"`
	Amount        float64       `json:"Amount"`
	OrderType     string        `json:"OrderType"`
	OrderPrice    *float64      `json:"OrderPrice,omitempty"`
	Uic           int64         `json:"Uic"`
	OrderDuration orderDuration `json:"OrderDuration"`
	ManualOrder   bool          `json:"ManualOrder"`
}

// NewMarketOrder builds a market day-order request
func NewMarketOrder(accountKey, assetType, buySell string, uic int64, amount float64) OrderRequest {
	return OrderRequest{
		AccountKey:    accountKey,
		AssetType:     assetType,
		BuySell:       buySell,
		Amount:        amount,
		OrderType:     "Market",
		Uic:           uic,
		OrderDuration: orderDuration{DurationType: "DayOrder"},
		ManualOrder:   true,
	}
}

type orderResponse struct {
	OrderID string `json:"OrderId"`
}

type instrument struct {
	Identifier   int64  `json:"Identifier"`
	AssetType    string `json:"AssetType"`
	Symbol       string `json:"Symbol"`
	Description  string `json:"Description"`
	CurrencyCode string `json:"CurrencyCode"`
	ExchangeID   string `json:"ExchangeId"`
}

type historicTrade struct {
	TradeID          string    `json:"TradeId"`
	OrderID          string    `json:"OrderId"`
	Uic              int64     `json:"Uic"`
	AssetType        string    `json:"AssetType"`
	Direction        string    `json:"Direction"`
	Amount           float64   `json:"Amount"`
	Price            float64   `json:"Price"`
	TradeCurrency    string    `json:"TradeCurrency"`
	InstrumentSymbol string    `json:"InstrumentSymbol"`
	ExecutionTime    time.Time `json:"ExecutionTime"`
}
