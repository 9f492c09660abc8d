package strategies

import (
	"errors"
	"sync"
	"time"

	"github.com/1cbyc/risk-ledger-go/internal/models"
	"github.com/shopspring/decimal"
)

var ErrInsufficientHistory = errors.New("insufficient price history")

// MomentumStrategy emits buy/sell signals on short/long moving-average
// crossovers over observed prices. It exists to drive the execution
// pipeline; signal quality is not the point.
type MomentumStrategy struct {
	id          string
	shortPeriod int
	longPeriod  int
	orderValue  decimal.Decimal

	mu     sync.Mutex
	prices map[string][]decimal.Decimal
}

func NewMomentumStrategy(id string, shortPeriod, longPeriod int, orderValue decimal.Decimal) *MomentumStrategy {
	return &MomentumStrategy{
		id:          id,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		orderValue:  orderValue,
		prices:      make(map[string][]decimal.Decimal),
	}
}

func (s *MomentumStrategy) ID() string { return s.id }

// Observe appends a price observation for a symbol.
func (s *MomentumStrategy) Observe(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.prices[symbol], price)
	if len(history) > s.longPeriod*4 {
		history = history[len(history)-s.longPeriod*4:]
	}
	s.prices[symbol] = history
}

// Evaluate proposes at most one signal for the symbol: buy when the short
// average crosses above the long average and no position is held, sell the
// whole position on the opposite cross.
func (s *MomentumStrategy) Evaluate(symbol string, position models.Position) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.prices[symbol]
	if len(history) < s.longPeriod {
		return nil, ErrInsufficientHistory
	}

	shortMA := average(history[len(history)-s.shortPeriod:])
	longMA := average(history[len(history)-s.longPeriod:])
	currentPrice := history[len(history)-1]

	if shortMA.GreaterThan(longMA) && position.Quantity == 0 {
		quantity := s.orderValue.Div(currentPrice).IntPart()
		if quantity <= 0 {
			return nil, nil
		}
		return &models.Signal{
			Symbol:     symbol,
			Side:       models.OrderSideBuy,
			Quantity:   quantity,
			StrategyID: s.id,
			Timestamp:  time.Now(),
		}, nil
	}

	if shortMA.LessThan(longMA) && position.Quantity > 0 {
		return &models.Signal{
			Symbol:     symbol,
			Side:       models.OrderSideSell,
			Quantity:   position.Quantity,
			StrategyID: s.id,
			Timestamp:  time.Now(),
		}, nil
	}

	return nil, nil
}

func average(prices []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, price := range prices {
		sum = sum.Add(price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(prices))))
}
