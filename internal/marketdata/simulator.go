package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Simulator is a random-walk quote source implementing Provider. It keeps a
// bounded return history per symbol so callers can feed the risk calculator
// without a real data feed.
type Simulator struct {
	symbols  map[string]*symbolState
	logger   *zap.Logger
	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
}

type symbolState struct {
	Symbol       string
	BasePrice    decimal.Decimal
	CurrentPrice decimal.Decimal
	Volatility   decimal.Decimal
	Trend        decimal.Decimal
	Returns      []float64
	LastUpdate   time.Time
}

const maxReturnHistory = 2048

func NewSimulator(logger *zap.Logger) *Simulator {
	return &Simulator{
		symbols:  make(map[string]*symbolState),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (s *Simulator) AddSymbol(symbol string, basePrice, volatility decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols[symbol] = &symbolState{
		Symbol:       symbol,
		BasePrice:    basePrice,
		CurrentPrice: basePrice,
		Volatility:   volatility,
		Trend:        decimal.Zero,
		LastUpdate:   time.Now(),
	}

	s.logger.Info("Symbol added to simulator", zap.String("symbol", symbol), zap.String("base_price", basePrice.String()))
}

func (s *Simulator) Start(interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Market simulator started")
	go s.priceGenerator(interval)
}

func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	s.running = false
	close(s.stopChan)
	s.logger.Info("Market simulator stopped")
}

func (s *Simulator) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.symbols[symbol]
	if !exists {
		return decimal.Zero, ErrUnknownSymbol
	}
	return data.CurrentPrice, nil
}

func (s *Simulator) GetHistoricalReturns(ctx context.Context, symbol string, window int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.symbols[symbol]
	if !exists {
		return nil, ErrUnknownSymbol
	}
	if window <= 0 || window > len(data.Returns) {
		window = len(data.Returns)
	}

	returns := make([]float64, window)
	copy(returns, data.Returns[len(data.Returns)-window:])
	return returns, nil
}

func (s *Simulator) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (s *Simulator) SetTrend(symbol string, trend decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, exists := s.symbols[symbol]; exists {
		data.Trend = trend
		s.logger.Info("Trend updated", zap.String("symbol", symbol), zap.String("trend", trend.String()))
	}
}

func (s *Simulator) priceGenerator(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updatePrices()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Simulator) updatePrices() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, data := range s.symbols {
		change := s.calculatePriceChange(data)
		newPrice := data.CurrentPrice.Add(change)

		if newPrice.LessThanOrEqual(decimal.Zero) {
			newPrice = decimal.NewFromFloat(0.01)
		}

		if !data.CurrentPrice.IsZero() {
			ret, _ := newPrice.Sub(data.CurrentPrice).Div(data.CurrentPrice).Float64()
			data.Returns = append(data.Returns, ret)
			if len(data.Returns) > maxReturnHistory {
				data.Returns = data.Returns[len(data.Returns)-maxReturnHistory:]
			}
		}

		data.CurrentPrice = newPrice
		data.LastUpdate = time.Now()
	}
}

func (s *Simulator) calculatePriceChange(data *symbolState) decimal.Decimal {
	randomFactor := decimal.NewFromFloat(rand.NormFloat64())
	volatilityImpact := data.Volatility.Mul(randomFactor)
	trendImpact := data.Trend.Mul(decimal.NewFromFloat(0.1))

	changePercent := volatilityImpact.Add(trendImpact)

	if changePercent.Abs().GreaterThan(decimal.NewFromFloat(0.1)) {
		if changePercent.IsPositive() {
			changePercent = decimal.NewFromFloat(0.1)
		} else {
			changePercent = decimal.NewFromFloat(-0.1)
		}
	}

	return data.CurrentPrice.Mul(changePercent)
}
