package saxo

import (
	"encoding/json"

	"vantage/internal/domain"
)

// jsonUnmarshal is split out so response-policy helpers stay testable
// without a live resty response.
func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Pure mappings from Saxo wire types to domain types. No I/O here.

func mapAccount(a account) domain.BrokerAccount {
	return domain.BrokerAccount{
		AccountID:   a.AccountID,
		AccountKey:  a.AccountKey,
		ClientKey:   a.ClientKey,
		AccountType: a.AccountType,
		Currency:    domain.Currency(a.Currency),
		Active:      a.Active,
	}
}

func mapPosition(p position) domain.BrokerPosition {
	currency := p.DisplayAndFormat.Currency
	if currency == "" {
		currency = p.PositionView.ExposureCurrency
	}
	return domain.BrokerPosition{
		Symbol:           p.DisplayAndFormat.Symbol,
		Description:      p.DisplayAndFormat.Description,
		UIC:              p.PositionBase.Uic,
		AssetType:        p.PositionBase.AssetType,
		Quantity:         p.PositionBase.Amount,
		AverageOpenPrice: p.PositionBase.OpenPrice,
		CurrentPrice:     p.PositionView.CurrentPrice,
		MarketValue:      p.PositionView.MarketValue,
		ProfitLoss:       p.PositionView.ProfitLossOnTrade,
		ProfitLossPct:    p.PositionView.ProfitLossOnTradePercent,
		Currency:         domain.Currency(currency),
	}
}

func mapBalance(b balance) domain.BrokerBalance {
	return domain.BrokerBalance{
		Currency:        domain.Currency(b.Currency),
		CashBalance:     b.CashBalance,
		TotalValue:      b.TotalValue,
		MarginAvailable: b.MarginAvailableForTrading,
	}
}

func mapOrder(o order) domain.BrokerOrder {
	side := domain.OrderSideBuy
	if o.BuySell == "Sell" {
		side = domain.OrderSideSell
	}
	return domain.BrokerOrder{
		CreatedAt: o.OrderTime,
		OrderID:   o.OrderID,
		Symbol:    o.DisplayAndFormat.Symbol,
		UIC:       o.Uic,
		Side:      side,
		OrderType: o.OpenOrderType,
		Duration:  o.Duration.DurationType,
		Status:    o.Status,
		Amount:    o.Amount,
		Price:     o.Price,
		Currency:  domain.Currency(o.CurrencyCode),
	}
}

func mapInstrument(in instrument) domain.Instrument {
	return domain.Instrument{
		Symbol:      in.Symbol,
		Description: in.Description,
		UIC:         in.Identifier,
		AssetType:   in.AssetType,
		Currency:    domain.Currency(in.CurrencyCode),
		ExchangeID:  in.ExchangeID,
	}
}

func mapTrade(t historicTrade) domain.BrokerTrade {
	side := domain.OrderSideBuy
	if t.Direction == "Sell" {
		side = domain.OrderSideSell
	}
	return domain.BrokerTrade{
		ExecutedAt: t.ExecutionTime,
		TradeID:    t.TradeID,
		OrderID:    t.OrderID,
		Symbol:     t.InstrumentSymbol,
		UIC:        t.Uic,
		Side:       side,
		Quantity:   t.Amount,
		Price:      t.Price,
		Currency:   domain.Currency(t.TradeCurrency),
	}
}
