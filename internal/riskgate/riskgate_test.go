package riskgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/1cbyc/risk-ledger-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stubProvider struct {
	prices map[string]decimal.Decimal
	err    error
}

func (p *stubProvider) GetCurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	if p.err != nil {
		return decimal.Zero, p.err
	}
	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("unknown symbol")
	}
	return price, nil
}

func (p *stubProvider) GetHistoricalReturns(_ context.Context, _ string, _ int) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func testLimits() models.RiskLimits {
	return models.RiskLimits{
		MaxTradeValue:          decimal.NewFromFloat(50000),
		MinCashReserve:         decimal.NewFromFloat(100000),
		MaxPositionValue:       decimal.NewFromFloat(500000),
		MaxPositionRatio:       decimal.NewFromFloat(0.5),
		MaxSectorConcentration: decimal.NewFromFloat(0.5),
		MaxDailyTrades:         100,
		MaxOrderFrequency:      50,
		MaxDrawdown:            decimal.NewFromFloat(0.15),
		MaxDailyLoss:           decimal.NewFromFloat(50000),
	}
}

func testCommissions() models.CommissionSchedule {
	return models.CommissionSchedule{
		Rate:    decimal.NewFromFloat(0.001),
		Minimum: decimal.NewFromFloat(1),
	}
}

func newTestGate(t *testing.T, limits models.RiskLimits) (*Gate, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	provider := &stubProvider{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromFloat(150),
	}}
	return New(limits, testCommissions(), provider, clock, zap.NewNop()), clock
}

func testAccount(cash float64) models.AccountSnapshot {
	c := decimal.NewFromFloat(cash)
	return models.AccountSnapshot{Cash: c, Equity: c, BuyingPower: c}
}

func buySignal(symbol string, quantity int64, price float64) models.Signal {
	limit := decimal.NewFromFloat(price)
	return models.Signal{
		ID:         "sig-1",
		Symbol:     symbol,
		Side:       models.OrderSideBuy,
		Quantity:   quantity,
		LimitPrice: &limit,
		StrategyID: "test",
	}
}

func sellSignal(symbol string, quantity int64, price float64) models.Signal {
	signal := buySignal(symbol, quantity, price)
	signal.Side = models.OrderSideSell
	return signal
}

func TestCheck_AllowsSmallBuyWithinLimits(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	result := gate.Check(context.Background(), buySignal("AAPL", 100, 300), testAccount(1000000), nil)

	assert.True(t, result.Allowed)
	assert.Empty(t, result.Reason)
	assert.Equal(t, "30000", result.Detail["trade_value"])
}

func TestCheck_RejectsTradeValueAboveLimit(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	result := gate.Check(context.Background(), buySignal("AAPL", 500, 350), testAccount(1000000), nil)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckCash, result.Check)
	assert.Contains(t, result.Reason, "trade value")
}

func TestCheck_MaxTradeValueBoundary(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())
	account := testAccount(1000000)

	atLimit := gate.Check(context.Background(), buySignal("AAPL", 100, 500), account, nil)
	assert.True(t, atLimit.Allowed, "trade value exactly at the limit must pass")

	aboveLimit := gate.Check(context.Background(), buySignal("AAPL", 100, 500.0001), account, nil)
	assert.False(t, aboveLimit.Allowed, "one cent above the limit must be rejected")
	assert.Equal(t, CheckCash, aboveLimit.Check)
}

func TestCheck_RejectsWhenCashReserveBreached(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	// 30,000 + 30 commission + 100,000 reserve > 120,000 cash.
	result := gate.Check(context.Background(), buySignal("AAPL", 100, 300), testAccount(120000), nil)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckCash, result.Check)
	assert.Contains(t, result.Reason, "cash")
}

func TestCheck_Validation(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())
	account := testAccount(1000000)

	tests := []struct {
		name   string
		signal models.Signal
	}{
		{"empty symbol", buySignal("", 10, 100)},
		{"zero quantity", buySignal("AAPL", 0, 100)},
		{"negative quantity", buySignal("AAPL", -5, 100)},
		{
			name: "invalid side",
			signal: models.Signal{
				Symbol:   "AAPL",
				Side:     models.OrderSide("hold"),
				Quantity: 10,
			},
		},
		{"non-positive price", buySignal("AAPL", 10, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := gate.Check(context.Background(), tt.signal, account, nil)
			assert.False(t, result.Allowed)
			assert.Equal(t, CheckValidation, result.Check)
		})
	}
}

func TestCheck_MarketSignalUsesProviderPrice(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	signal := models.Signal{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10, StrategyID: "test"}
	result := gate.Check(context.Background(), signal, testAccount(1000000), nil)

	require.True(t, result.Allowed)
	assert.Equal(t, "150", result.Detail["reference_price"])
}

func TestCheck_RejectsWhenPriceUnavailable(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	signal := models.Signal{Symbol: "UNKNOWN", Side: models.OrderSideBuy, Quantity: 10, StrategyID: "test"}
	result := gate.Check(context.Background(), signal, testAccount(1000000), nil)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckValidation, result.Check)
	assert.Contains(t, result.Reason, "price unavailable")
}

func TestCheck_RejectsSellExceedingHoldings(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())
	positions := map[string]models.Position{
		"AAPL": {Symbol: "AAPL", Quantity: 50, AverageCost: decimal.NewFromFloat(100)},
	}

	result := gate.Check(context.Background(), sellSignal("AAPL", 100, 150), testAccount(1000000), positions)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckPositionLimit, result.Check)
	assert.Contains(t, result.Reason, "holdings")
}

func TestCheck_RejectsPositionValueAboveLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxTradeValue = decimal.NewFromFloat(1000000)
	limits.MaxPositionValue = decimal.NewFromFloat(40000)
	gate, _ := newTestGate(t, limits)

	result := gate.Check(context.Background(), buySignal("AAPL", 500, 100), testAccount(1000000), nil)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckPositionLimit, result.Check)
	assert.Contains(t, result.Reason, "position")
}

func TestCheck_RejectsPositionRatioAboveLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionRatio = decimal.NewFromFloat(0.02)
	gate, _ := newTestGate(t, limits)

	result := gate.Check(context.Background(), buySignal("AAPL", 100, 300), testAccount(1000000), nil)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckPositionLimit, result.Check)
	assert.Contains(t, result.Reason, "ratio")
}

func TestCheck_ConcentrationSkippedOnEmptyPortfolio(t *testing.T) {
	limits := testLimits()
	limits.MaxSectorConcentration = decimal.NewFromFloat(0.01)
	gate, _ := newTestGate(t, limits)

	// First position taken: total market value is zero, so the
	// concentration cap does not apply even though the trade would be 100%
	// of the portfolio.
	result := gate.Check(context.Background(), buySignal("AAPL", 100, 300), testAccount(1000000), nil)

	assert.True(t, result.Allowed)
}

func TestCheck_RejectsConcentration(t *testing.T) {
	limits := testLimits()
	limits.MaxSectorConcentration = decimal.NewFromFloat(0.1)
	gate, _ := newTestGate(t, limits)
	positions := map[string]models.Position{
		"MSFT": {Symbol: "MSFT", Quantity: 100, MarketValue: decimal.NewFromFloat(30000)},
	}

	// 30,000 / (30,000 + 30,000) = 50% > 10%.
	result := gate.Check(context.Background(), buySignal("AAPL", 100, 300), testAccount(1000000), positions)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckConcentration, result.Check)
}

func TestCheck_DailyTradeLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyTrades = 3
	gate, clock := newTestGate(t, limits)
	account := testAccount(1000000)
	price := decimal.NewFromFloat(300)

	for i := 0; i < 3; i++ {
		result := gate.Check(context.Background(), buySignal("AAPL", 10, 300), account, nil)
		require.True(t, result.Allowed, "trade %d should pass", i+1)
		gate.RecordTrade("AAPL", models.OrderSideBuy, 10, price, decimal.Zero)
	}

	fourth := gate.Check(context.Background(), buySignal("AAPL", 10, 300), account, nil)
	assert.False(t, fourth.Allowed)
	assert.Equal(t, CheckFrequency, fourth.Check)
	assert.Contains(t, fourth.Reason, "daily trade limit")

	clock.Advance(24 * time.Hour)

	fifth := gate.Check(context.Background(), buySignal("AAPL", 10, 300), account, nil)
	assert.True(t, fifth.Allowed, "counters must reset after day rollover")
	assert.Equal(t, 0, gate.Status().DailyTradeCount)
}

func TestCheck_SymbolFrequencyLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxOrderFrequency = 2
	gate, _ := newTestGate(t, limits)
	account := testAccount(1000000)
	price := decimal.NewFromFloat(300)

	gate.RecordTrade("AAPL", models.OrderSideBuy, 10, price, decimal.Zero)
	gate.RecordTrade("AAPL", models.OrderSideBuy, 10, price, decimal.Zero)

	blocked := gate.Check(context.Background(), buySignal("AAPL", 10, 300), account, nil)
	assert.False(t, blocked.Allowed)
	assert.Equal(t, CheckFrequency, blocked.Check)
	assert.Contains(t, blocked.Reason, "frequency")

	other := gate.Check(context.Background(), buySignal("MSFT", 10, 300), account, nil)
	assert.True(t, other.Allowed, "other symbols are not affected")
}

func TestCheck_MaxDrawdown(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	first := gate.Check(context.Background(), buySignal("AAPL", 10, 300), testAccount(1000000), nil)
	require.True(t, first.Allowed)

	// Equity fell 20% from the peak; limit is 15%.
	second := gate.Check(context.Background(), buySignal("AAPL", 10, 300), testAccount(800000), nil)
	assert.False(t, second.Allowed)
	assert.Equal(t, CheckDrawdown, second.Check)
	assert.Equal(t, "0.2", gate.Status().CurrentDrawdown.String())
}

func TestCheck_DailyLossLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyLoss = decimal.NewFromFloat(1000)
	gate, _ := newTestGate(t, limits)
	positions := map[string]models.Position{
		"AAPL": {
			Symbol:      "AAPL",
			Quantity:    200,
			AverageCost: decimal.NewFromFloat(100),
			MarketValue: decimal.NewFromFloat(10000),
		},
	}

	// Selling 100 at 50 realizes -5,000 against a 1,000 daily loss cap.
	result := gate.Check(context.Background(), sellSignal("AAPL", 100, 50), testAccount(1000000), positions)

	assert.False(t, result.Allowed)
	assert.Equal(t, CheckDailyLoss, result.Check)
	assert.Equal(t, "-5000", result.Detail["projected_daily_pnl"])
}

func TestEmergencyStop_BlocksEverything(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	gate.EmergencyStop("volatility spike")

	result := gate.Check(context.Background(), buySignal("AAPL", 1, 1), testAccount(100000000), nil)
	assert.False(t, result.Allowed)
	assert.Equal(t, CheckEmergencyStop, result.Check)
	assert.Equal(t, "true", result.Detail["emergency_stop"])
	assert.Contains(t, result.Reason, "volatility spike")
}

func TestEmergencyStop_Idempotent(t *testing.T) {
	gate, clock := newTestGate(t, testLimits())

	gate.EmergencyStop("first")
	firstTime := gate.Status().EmergencyStopTime

	clock.Advance(time.Hour)
	gate.EmergencyStop("second")

	status := gate.Status()
	assert.Equal(t, firstTime, status.EmergencyStopTime, "second stop must not overwrite the trigger time")
	assert.Equal(t, "first", status.EmergencyStopReason)
}

func TestEmergencyStop_ResumeRestoresLimits(t *testing.T) {
	original := testLimits()
	gate, _ := newTestGate(t, original)

	gate.EmergencyStop("halt")

	tightened := original
	tightened.MaxTradeValue = decimal.NewFromFloat(1)
	tightened.MaxDailyTrades = 0
	gate.UpdateLimits(tightened)

	gate.Resume()

	restored := gate.Limits()
	assert.True(t, original.MaxTradeValue.Equal(restored.MaxTradeValue))
	assert.Equal(t, original.MaxDailyTrades, restored.MaxDailyTrades)

	status := gate.Status()
	assert.False(t, status.EmergencyStopActive)
	assert.Empty(t, status.EmergencyStopReason)
	assert.True(t, status.EmergencyStopTime.IsZero())
}

func TestEmergencyStop_ResumeWhenNormalIsNoop(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())

	gate.Resume()

	assert.False(t, gate.Status().EmergencyStopActive)
}

func TestEmergencyStop_PersistsAcrossDayRollover(t *testing.T) {
	gate, clock := newTestGate(t, testLimits())
	price := decimal.NewFromFloat(300)

	gate.RecordTrade("AAPL", models.OrderSideBuy, 10, price, decimal.NewFromFloat(-500))
	gate.EmergencyStop("halt")

	clock.Advance(48 * time.Hour)

	result := gate.Check(context.Background(), buySignal("AAPL", 10, 300), testAccount(1000000), nil)
	assert.False(t, result.Allowed)
	assert.Equal(t, CheckEmergencyStop, result.Check)

	// Counters are frozen while stopped.
	status := gate.Status()
	assert.Equal(t, 1, status.DailyTradeCount)
	assert.Equal(t, "-500", status.DailyPnL.String())

	gate.Resume()
	allowed := gate.Check(context.Background(), buySignal("AAPL", 10, 300), testAccount(1000000), nil)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 0, gate.Status().DailyTradeCount, "rollover applies once resumed")
}

func TestRecordTrade_UpdatesCounters(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())
	price := decimal.NewFromFloat(150)

	gate.RecordTrade("AAPL", models.OrderSideBuy, 10, price, decimal.Zero)
	gate.RecordTrade("AAPL", models.OrderSideSell, 10, price, decimal.NewFromFloat(250))
	gate.RecordTrade("MSFT", models.OrderSideBuy, 5, price, decimal.Zero)

	status := gate.Status()
	assert.Equal(t, 3, status.DailyTradeCount)
	assert.Equal(t, 2, status.TradesBySymbol["AAPL"])
	assert.Equal(t, 1, status.TradesBySymbol["MSFT"])
	assert.Equal(t, "250", status.DailyPnL.String())
}

func TestStatus_ReturnsCopies(t *testing.T) {
	gate, _ := newTestGate(t, testLimits())
	gate.RecordTrade("AAPL", models.OrderSideBuy, 10, decimal.NewFromFloat(150), decimal.Zero)

	status := gate.Status()
	status.TradesBySymbol["AAPL"] = 99

	assert.Equal(t, 1, gate.Status().TradesBySymbol["AAPL"])
}
