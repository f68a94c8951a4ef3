package domain

import "time"

// Broker-agnostic views of brokerage state. The broker session maps its
// native wire types onto these; nothing above the session layer sees
// broker-specific field names.

// BrokerPosition represents an open position at the broker
type BrokerPosition struct {
	Symbol           string   // Instrument symbol
	Description      string   // Instrument long name
	UIC              int64    // Broker-internal instrument code
	AssetType        string   // Broker asset type (Stock, Etf, ...)
	Quantity         float64  // Signed number of units held
	AverageOpenPrice float64  // Average entry price
	CurrentPrice     float64  // Latest mark price
	MarketValue      float64  // Position value in position currency
	ProfitLoss       float64  // Unrealised profit/loss
	ProfitLossPct    *float64 // Unrealised P&L percent (nullable)
	Currency         Currency // Position currency
}

// BrokerAccount represents a trading account
type BrokerAccount struct {
	AccountID   string
	AccountKey  string
	ClientKey   string
	Currency    Currency
	AccountType string
	Active      bool
}

// BrokerBalance represents the cash state of an account
type BrokerBalance struct {
	Currency        Currency
	CashBalance     float64
	TotalValue      float64
	MarginAvailable *float64
}

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// BrokerOrder represents an order at the broker
type BrokerOrder struct {
	CreatedAt time.Time
	OrderID   string
	Symbol    string
	UIC       int64
	Side      OrderSide
	OrderType string // Market, Limit, ...
	Duration  string // DayOrder, GoodTillCancel, ...
	Status    string
	Amount    float64
	Price     *float64
	Currency  Currency
}

// Instrument represents a tradeable instrument resolved via search
type Instrument struct {
	Symbol      string
	Description string
	UIC         int64
	AssetType   string
	Currency    Currency
	ExchangeID  string
}

// BrokerTrade represents one executed fill from trade history
type BrokerTrade struct {
	ExecutedAt time.Time
	TradeID    string
	OrderID    string
	Symbol     string
	UIC        int64
	Side       OrderSide
	Quantity   float64
	Price      float64
	Currency   Currency
}
