package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/1cbyc/risk-ledger-go/internal/marketdata"
	"github.com/1cbyc/risk-ledger-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExecutionResult reports a confirmed fill back to the caller, including the
// realized PnL the risk gate needs for daily-loss attribution.
type ExecutionResult struct {
	OrderID        string          `json:"order_id"`
	FilledPrice    decimal.Decimal `json:"filled_price"`
	FilledQuantity int64           `json:"filled_quantity"`
	Commission     decimal.Decimal `json:"commission"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
}

// Ledger owns the cash balance, per-symbol positions and the order/trade
// history of one account. Execute applies a simulated fill as a single
// logical transaction: either every mutation lands or none does.
type Ledger struct {
	market      marketdata.Provider
	commissions models.CommissionSchedule
	logger      *zap.Logger

	mu          sync.RWMutex
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*models.Position
	orders      map[string]*models.Order
	orderIDs    []string
	trades      []models.Trade
	updatedAt   time.Time
}

func New(initialCash decimal.Decimal, commissions models.CommissionSchedule, market marketdata.Provider, logger *zap.Logger) *Ledger {
	return &Ledger{
		market:      market,
		commissions: commissions,
		logger:      logger,
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*models.Position),
		orders:      make(map[string]*models.Order),
		updatedAt:   time.Now(),
	}
}

// Submit derives an Order from a Signal and registers it as submitted.
func (l *Ledger) Submit(signal models.Signal, orderType models.OrderType) models.Order {
	order := models.Order{
		ID:          uuid.NewString(),
		SignalID:    signal.ID,
		Symbol:      signal.Symbol,
		Side:        signal.Side,
		Type:        orderType,
		Quantity:    signal.Quantity,
		Status:      models.OrderStatusSubmitted,
		StrategyID:  signal.StrategyID,
		SubmittedAt: time.Now(),
	}
	if signal.LimitPrice != nil {
		order.LimitPrice = *signal.LimitPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[order.ID] = &order
	l.orderIDs = append(l.orderIDs, order.ID)
	return order
}

// Execute resolves the fill price, charges commission and applies the fill
// atomically. A failed price lookup or a failed ledger-local check marks the
// order rejected; it is never left in submitted state.
func (l *Ledger) Execute(ctx context.Context, orderID string) (*ExecutionResult, error) {
	l.mu.RLock()
	order, exists := l.orders[orderID]
	if !exists {
		l.mu.RUnlock()
		return nil, ErrUnknownOrder
	}
	if order.Status.Terminal() {
		l.mu.RUnlock()
		return nil, ErrOrderTerminal
	}
	orderType := order.Type
	symbol := order.Symbol
	limitPrice := order.LimitPrice
	l.mu.RUnlock()

	// Price discovery is the only I/O boundary; it runs outside the write
	// lock so readers see a consistent snapshot while a quote is in flight.
	var fillPrice decimal.Decimal
	if orderType == models.OrderTypeLimit {
		fillPrice = limitPrice
	} else {
		price, err := l.market.GetCurrentPrice(ctx, symbol)
		if err != nil {
			l.finishOrder(orderID, models.OrderStatusRejected)
			return nil, fmt.Errorf("resolve fill price for %s: %w", symbol, err)
		}
		fillPrice = price
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if order.Status.Terminal() {
		return nil, ErrOrderTerminal
	}

	tradeValue := models.RoundCash(models.TradeValue(fillPrice, order.Quantity))
	commission := l.commissions.Commission(tradeValue)
	realizedPnL := decimal.Zero

	if order.Side == models.OrderSideBuy {
		total := tradeValue.Add(commission)
		if l.cash.LessThan(total) {
			order.Status = models.OrderStatusRejected
			order.CompletedAt = time.Now()
			return nil, ErrInsufficientFunds
		}

		position := l.positionLocked(order.Symbol)
		newQuantity := position.Quantity + order.Quantity
		totalCost := position.AverageCost.Mul(decimal.NewFromInt(position.Quantity)).Add(total)
		position.AverageCost = totalCost.DivRound(decimal.NewFromInt(newQuantity), models.CostScale)
		position.Quantity = newQuantity
		l.cash = l.cash.Sub(total)
	} else {
		position := l.positionLocked(order.Symbol)
		if position.Quantity < order.Quantity {
			order.Status = models.OrderStatusRejected
			order.CompletedAt = time.Now()
			return nil, ErrInsufficientPosition
		}

		realizedPnL = models.RoundCash(fillPrice.Sub(position.AverageCost).Mul(decimal.NewFromInt(order.Quantity)))
		l.cash = l.cash.Add(tradeValue.Sub(commission))
		position.Quantity -= order.Quantity
		if position.Quantity == 0 {
			position.AverageCost = decimal.Zero
		}
	}

	position := l.positions[order.Symbol]
	position.CurrentPrice = fillPrice
	position.LastUpdated = time.Now()
	l.refreshPositionLocked(position)

	order.Status = models.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = fillPrice
	order.Commission = commission
	order.CompletedAt = time.Now()
	l.updatedAt = order.CompletedAt

	trade := models.Trade{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		Price:       fillPrice,
		Commission:  commission,
		RealizedPnL: realizedPnL,
		StrategyID:  order.StrategyID,
		Timestamp:   order.CompletedAt,
	}
	l.trades = append(l.trades, trade)

	l.logger.Info("Trade executed",
		zap.String("trade_id", trade.ID),
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Int64("quantity", order.Quantity),
		zap.String("price", fillPrice.String()),
		zap.String("commission", commission.String()),
		zap.String("cash", l.cash.String()),
	)

	return &ExecutionResult{
		OrderID:        order.ID,
		FilledPrice:    fillPrice,
		FilledQuantity: order.Quantity,
		Commission:     commission,
		RealizedPnL:    realizedPnL,
	}, nil
}

// Cancel moves a submitted order to cancelled. Terminal orders reject the
// transition.
func (l *Ledger) Cancel(orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, exists := l.orders[orderID]
	if !exists {
		return ErrUnknownOrder
	}
	if order.Status.Terminal() {
		return ErrOrderTerminal
	}

	order.Status = models.OrderStatusCancelled
	order.CompletedAt = time.Now()
	l.logger.Info("Order cancelled", zap.String("order_id", orderID))
	return nil
}

// MarkPrice refreshes a position's mark without trading, so reporting equity
// tracks the market between fills.
func (l *Ledger) MarkPrice(symbol string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	position, exists := l.positions[symbol]
	if !exists {
		return
	}
	position.CurrentPrice = price
	position.LastUpdated = time.Now()
	l.refreshPositionLocked(position)
}

// AccountInfo returns a consistent snapshot of cash, equity and buying
// power. Equity is cash plus the market value of every position.
func (l *Ledger) AccountInfo() models.AccountSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accountLocked()
}

func (l *Ledger) accountLocked() models.AccountSnapshot {
	equity := l.cash
	for _, position := range l.positions {
		equity = equity.Add(position.MarketValue)
	}
	return models.AccountSnapshot{
		Cash:        l.cash,
		Equity:      equity,
		BuyingPower: l.cash,
		UpdatedAt:   l.updatedAt,
	}
}

// Positions returns a copy of every position keyed by symbol.
func (l *Ledger) Positions() map[string]models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make(map[string]models.Position, len(l.positions))
	for symbol, position := range l.positions {
		positions[symbol] = *position
	}
	return positions
}

// Orders returns order copies in submission order, optionally filtered by
// status.
func (l *Ledger) Orders(statuses ...models.OrderStatus) []models.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	orders := make([]models.Order, 0, len(l.orderIDs))
	for _, id := range l.orderIDs {
		order := l.orders[id]
		if len(statuses) == 0 {
			orders = append(orders, *order)
			continue
		}
		for _, status := range statuses {
			if order.Status == status {
				orders = append(orders, *order)
				break
			}
		}
	}
	return orders
}

// Order returns a copy of one order by ID.
func (l *Ledger) Order(orderID string) (models.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	order, exists := l.orders[orderID]
	if !exists {
		return models.Order{}, ErrUnknownOrder
	}
	return *order, nil
}

// Trades returns the immutable fill history in fill order.
func (l *Ledger) Trades() []models.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trades := make([]models.Trade, len(l.trades))
	copy(trades, l.trades)
	return trades
}

// InitialCash reports the opening balance the ledger was funded with.
func (l *Ledger) InitialCash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialCash
}

func (l *Ledger) positionLocked(symbol string) *models.Position {
	position, exists := l.positions[symbol]
	if !exists {
		position = &models.Position{
			Symbol:      symbol,
			AverageCost: decimal.Zero,
		}
		l.positions[symbol] = position
	}
	return position
}

func (l *Ledger) refreshPositionLocked(position *models.Position) {
	position.MarketValue = models.TradeValue(position.CurrentPrice, position.Quantity)
	position.UnrealizedPnL = position.CurrentPrice.Sub(position.AverageCost).Mul(decimal.NewFromInt(position.Quantity))
}

func (l *Ledger) finishOrder(orderID string, status models.OrderStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, exists := l.orders[orderID]
	if !exists || order.Status.Terminal() {
		return
	}
	order.Status = status
	order.CompletedAt = time.Now()
}
