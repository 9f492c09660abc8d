package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether an order in this status accepts no further
// transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected || s == OrderStatusCancelled
}

// Signal is a proposed trade produced by a strategy. Immutable once created.
type Signal struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Side       OrderSide        `json:"side"`
	Quantity   int64            `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StrategyID string           `json:"strategy_id"`
	Timestamp  time.Time        `json:"timestamp"`
}

type Order struct {
	ID             string          `json:"id"`
	SignalID       string          `json:"signal_id"`
	Symbol         string          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	Type           OrderType       `json:"type"`
	Quantity       int64           `json:"quantity"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	Status         OrderStatus     `json:"status"`
	FilledQuantity int64           `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
	Commission     decimal.Decimal `json:"commission"`
	StrategyID     string          `json:"strategy_id"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	CompletedAt    time.Time       `json:"completed_at"`
}

// Trade is an immutable record of one executed fill.
type Trade struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Commission  decimal.Decimal `json:"commission"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	StrategyID  string          `json:"strategy_id"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Position invariant: Quantity == 0 implies AverageCost == 0.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// AccountSnapshot is recomputed after every fill; Equity is the single
// source of truth for drawdown tracking.
type AccountSnapshot struct {
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RiskLimits bounds trade size, cash reserve, position size, concentration,
// trade frequency and drawdown. Immutable; copied whole when the emergency
// stop snapshots it.
type RiskLimits struct {
	MaxTradeValue          decimal.Decimal `json:"max_trade_value"`
	MinCashReserve         decimal.Decimal `json:"min_cash_reserve"`
	MaxPositionValue       decimal.Decimal `json:"max_position_value"`
	MaxPositionRatio       decimal.Decimal `json:"max_position_ratio"`
	MaxSectorConcentration decimal.Decimal `json:"max_sector_concentration"`
	MaxDailyTrades         int             `json:"max_daily_trades"`
	MaxOrderFrequency      int             `json:"max_order_frequency"`
	MaxDrawdown            decimal.Decimal `json:"max_drawdown"`
	MaxDailyLoss           decimal.Decimal `json:"max_daily_loss"`
}

type CommissionSchedule struct {
	Rate    decimal.Decimal `json:"rate"`
	Minimum decimal.Decimal `json:"minimum"`
}

// Commission applies the schedule to a trade value: max(value*rate, minimum),
// rounded at the cash boundary.
func (c CommissionSchedule) Commission(tradeValue decimal.Decimal) decimal.Decimal {
	commission := tradeValue.Mul(c.Rate)
	if commission.LessThan(c.Minimum) {
		commission = c.Minimum
	}
	return RoundCash(commission)
}

const (
	// CashScale is the number of decimal places carried on cash amounts.
	CashScale = 2
	// CostScale is the number of decimal places carried on average cost,
	// which survives repeated weighted-average divisions.
	CostScale = 8
)

// RoundCash rounds a money amount at the cash boundary. Every figure that
// credits or debits the ledger passes through here.
func RoundCash(d decimal.Decimal) decimal.Decimal {
	return d.Round(CashScale)
}

// TradeValue is price times quantity, the notional of a fill before
// commission.
func TradeValue(price decimal.Decimal, quantity int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}
