package riskgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/1cbyc/risk-ledger-go/internal/marketdata"
	"github.com/1cbyc/risk-ledger-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Check identifies which pre-trade check produced a rejection.
type Check string

const (
	CheckEmergencyStop Check = "emergency_stop"
	CheckValidation    Check = "validation"
	CheckCash          Check = "cash"
	CheckPositionLimit Check = "position_limit"
	CheckConcentration Check = "concentration"
	CheckFrequency     Check = "frequency"
	CheckDrawdown      Check = "drawdown"
	CheckDailyLoss     Check = "daily_loss"
)

// CheckResult is the structured outcome of Check. A rejection is an expected
// business outcome, not an error: Reason is human-readable, Detail carries
// the numbers behind the decision.
type CheckResult struct {
	Allowed bool              `json:"allowed"`
	Check   Check             `json:"check,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Detail  map[string]string `json:"detail,omitempty"`
}

func reject(check Check, reason string, detail map[string]string) CheckResult {
	return CheckResult{Allowed: false, Check: check, Reason: reason, Detail: detail}
}

// Status is the read-only snapshot exposed to monitoring and compliance
// collaborators.
type Status struct {
	EmergencyStopActive bool              `json:"emergency_stop_active"`
	EmergencyStopReason string            `json:"emergency_stop_reason,omitempty"`
	EmergencyStopTime   time.Time         `json:"emergency_stop_time,omitempty"`
	DailyPnL            decimal.Decimal   `json:"daily_pnl"`
	DailyTradeCount     int               `json:"daily_trade_count"`
	TradesBySymbol      map[string]int    `json:"trades_by_symbol"`
	PeakEquity          decimal.Decimal   `json:"peak_equity"`
	CurrentDrawdown     decimal.Decimal   `json:"current_drawdown"`
	Limits              models.RiskLimits `json:"limits"`
}

// Gate validates proposed trades against risk limits and the current account
// snapshot. It owns the emergency-stop state machine and the daily counters;
// RecordTrade is its only counter mutator and must run exactly once per
// confirmed fill.
type Gate struct {
	market      marketdata.Provider
	commissions models.CommissionSchedule
	clock       Clock
	logger      *zap.Logger

	mu              sync.Mutex
	limits          models.RiskLimits
	day             time.Time
	dailyPnL        decimal.Decimal
	dailyTradeCount int
	tradesBySymbol  map[string]int
	peakEquity      decimal.Decimal
	currentDrawdown decimal.Decimal

	stopped        bool
	stopReason     string
	stopTime       time.Time
	limitsSnapshot models.RiskLimits
}

func New(limits models.RiskLimits, commissions models.CommissionSchedule, market marketdata.Provider, clock Clock, logger *zap.Logger) *Gate {
	if clock == nil {
		clock = SystemClock()
	}
	return &Gate{
		market:          market,
		commissions:     commissions,
		clock:           clock,
		logger:          logger,
		limits:          limits,
		day:             clock.Now(),
		dailyPnL:        decimal.Zero,
		tradesBySymbol:  make(map[string]int),
		peakEquity:      decimal.Zero,
		currentDrawdown: decimal.Zero,
	}
}

// Check runs the eight pre-trade checks in fixed order, short-circuiting on
// the first failure. It never mutates gate state except the peak-equity and
// drawdown recompute inside the drawdown check.
func (g *Gate) Check(ctx context.Context, signal models.Signal, account models.AccountSnapshot, positions map[string]models.Position) CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()

	if result := g.checkEmergencyStopLocked(); !result.Allowed {
		return result
	}

	refPrice, result := g.checkValidation(ctx, signal)
	if !result.Allowed {
		return result
	}

	tradeValue := models.TradeValue(refPrice, signal.Quantity)

	if signal.Side == models.OrderSideBuy {
		if result := g.checkCashLocked(tradeValue, account); !result.Allowed {
			return result
		}
	}

	if result := g.checkPositionLimitsLocked(signal, refPrice, account, positions); !result.Allowed {
		return result
	}

	if result := g.checkConcentrationLocked(tradeValue, positions); !result.Allowed {
		return result
	}

	if result := g.checkFrequencyLocked(signal.Symbol); !result.Allowed {
		return result
	}

	if result := g.checkDrawdownLocked(account.Equity); !result.Allowed {
		return result
	}

	if signal.Side == models.OrderSideSell {
		if result := g.checkDailyLossLocked(signal, refPrice, positions); !result.Allowed {
			return result
		}
	}

	return CheckResult{
		Allowed: true,
		Detail: map[string]string{
			"reference_price": refPrice.String(),
			"trade_value":     tradeValue.String(),
		},
	}
}

func (g *Gate) checkEmergencyStopLocked() CheckResult {
	if !g.stopped {
		return CheckResult{Allowed: true}
	}
	elapsed := g.clock.Now().Sub(g.stopTime)
	return reject(CheckEmergencyStop, fmt.Sprintf("emergency stop active: %s", g.stopReason), map[string]string{
		"emergency_stop": "true",
		"stop_reason":    g.stopReason,
		"stop_time":      g.stopTime.Format(time.RFC3339),
		"elapsed":        elapsed.String(),
	})
}

func (g *Gate) checkValidation(ctx context.Context, signal models.Signal) (decimal.Decimal, CheckResult) {
	switch {
	case signal.Symbol == "":
		return decimal.Zero, reject(CheckValidation, "symbol is empty", nil)
	case signal.Quantity <= 0:
		return decimal.Zero, reject(CheckValidation, "quantity must be positive", map[string]string{
			"quantity": fmt.Sprintf("%d", signal.Quantity),
		})
	case signal.Side != models.OrderSideBuy && signal.Side != models.OrderSideSell:
		return decimal.Zero, reject(CheckValidation, "invalid side", map[string]string{
			"side": string(signal.Side),
		})
	case signal.LimitPrice != nil && !signal.LimitPrice.IsPositive():
		return decimal.Zero, reject(CheckValidation, "limit price must be positive", map[string]string{
			"limit_price": signal.LimitPrice.String(),
		})
	}

	if signal.LimitPrice != nil {
		return *signal.LimitPrice, CheckResult{Allowed: true}
	}

	price, err := g.market.GetCurrentPrice(ctx, signal.Symbol)
	if err != nil {
		return decimal.Zero, reject(CheckValidation, "reference price unavailable", map[string]string{
			"symbol": signal.Symbol,
			"error":  err.Error(),
		})
	}
	return price, CheckResult{Allowed: true}
}

func (g *Gate) checkCashLocked(tradeValue decimal.Decimal, account models.AccountSnapshot) CheckResult {
	if tradeValue.GreaterThan(g.limits.MaxTradeValue) {
		return reject(CheckCash, "trade value exceeds max trade value limit", map[string]string{
			"trade_value":     tradeValue.String(),
			"max_trade_value": g.limits.MaxTradeValue.String(),
		})
	}

	commission := g.commissions.Commission(tradeValue)
	required := tradeValue.Add(commission).Add(g.limits.MinCashReserve)
	if required.GreaterThan(account.Cash) {
		return reject(CheckCash, "insufficient cash after reserve", map[string]string{
			"required":         required.String(),
			"cash":             account.Cash.String(),
			"commission":       commission.String(),
			"min_cash_reserve": g.limits.MinCashReserve.String(),
		})
	}
	return CheckResult{Allowed: true}
}

func (g *Gate) checkPositionLimitsLocked(signal models.Signal, refPrice decimal.Decimal, account models.AccountSnapshot, positions map[string]models.Position) CheckResult {
	position := positions[signal.Symbol]

	postQuantity := position.Quantity
	if signal.Side == models.OrderSideBuy {
		postQuantity += signal.Quantity
	} else {
		if signal.Quantity > position.Quantity {
			return reject(CheckPositionLimit, "sell exceeds current holdings", map[string]string{
				"quantity": fmt.Sprintf("%d", signal.Quantity),
				"held":     fmt.Sprintf("%d", position.Quantity),
			})
		}
		postQuantity -= signal.Quantity
	}

	postValue := models.TradeValue(refPrice, postQuantity)
	if postValue.GreaterThan(g.limits.MaxPositionValue) {
		return reject(CheckPositionLimit, "post-trade position exceeds max position value", map[string]string{
			"post_trade_value":   postValue.String(),
			"max_position_value": g.limits.MaxPositionValue.String(),
		})
	}

	if account.Equity.IsPositive() {
		ratio := postValue.Div(account.Equity)
		if ratio.GreaterThan(g.limits.MaxPositionRatio) {
			return reject(CheckPositionLimit, "post-trade position ratio exceeds limit", map[string]string{
				"post_trade_ratio":   ratio.String(),
				"max_position_ratio": g.limits.MaxPositionRatio.String(),
			})
		}
	}
	return CheckResult{Allowed: true}
}

// checkConcentrationLocked skips itself when the portfolio carries no market
// value, so the first position taken is never concentration-capped. This
// mirrors the historical behavior and is deliberate.
func (g *Gate) checkConcentrationLocked(tradeValue decimal.Decimal, positions map[string]models.Position) CheckResult {
	totalMarketValue := decimal.Zero
	for _, position := range positions {
		totalMarketValue = totalMarketValue.Add(position.MarketValue)
	}

	if totalMarketValue.IsZero() {
		return CheckResult{Allowed: true}
	}

	concentration := tradeValue.Div(totalMarketValue.Add(tradeValue))
	if concentration.GreaterThan(g.limits.MaxSectorConcentration) {
		return reject(CheckConcentration, "trade concentration exceeds limit", map[string]string{
			"concentration":            concentration.String(),
			"max_sector_concentration": g.limits.MaxSectorConcentration.String(),
		})
	}
	return CheckResult{Allowed: true}
}

func (g *Gate) checkFrequencyLocked(symbol string) CheckResult {
	if g.dailyTradeCount >= g.limits.MaxDailyTrades {
		return reject(CheckFrequency, "daily trade limit reached", map[string]string{
			"daily_trade_count": fmt.Sprintf("%d", g.dailyTradeCount),
			"max_daily_trades":  fmt.Sprintf("%d", g.limits.MaxDailyTrades),
		})
	}
	if g.tradesBySymbol[symbol] >= g.limits.MaxOrderFrequency {
		return reject(CheckFrequency, "symbol order frequency limit reached", map[string]string{
			"symbol":              symbol,
			"symbol_trade_count":  fmt.Sprintf("%d", g.tradesBySymbol[symbol]),
			"max_order_frequency": fmt.Sprintf("%d", g.limits.MaxOrderFrequency),
		})
	}
	return CheckResult{Allowed: true}
}

func (g *Gate) checkDrawdownLocked(equity decimal.Decimal) CheckResult {
	if equity.GreaterThan(g.peakEquity) {
		g.peakEquity = equity
	}
	if g.peakEquity.IsPositive() {
		g.currentDrawdown = g.peakEquity.Sub(equity).Div(g.peakEquity)
	}
	if g.currentDrawdown.GreaterThan(g.limits.MaxDrawdown) {
		return reject(CheckDrawdown, "max drawdown exceeded", map[string]string{
			"current_drawdown": g.currentDrawdown.String(),
			"max_drawdown":     g.limits.MaxDrawdown.String(),
			"peak_equity":      g.peakEquity.String(),
			"equity":           equity.String(),
		})
	}
	return CheckResult{Allowed: true}
}

func (g *Gate) checkDailyLossLocked(signal models.Signal, refPrice decimal.Decimal, positions map[string]models.Position) CheckResult {
	position := positions[signal.Symbol]
	estimatedPnL := refPrice.Sub(position.AverageCost).Mul(decimal.NewFromInt(signal.Quantity))
	projected := g.dailyPnL.Add(estimatedPnL)

	if projected.IsNegative() && projected.Abs().GreaterThan(g.limits.MaxDailyLoss) {
		return reject(CheckDailyLoss, "daily loss limit would be exceeded", map[string]string{
			"projected_daily_pnl": projected.String(),
			"estimated_pnl":       estimatedPnL.String(),
			"max_daily_loss":      g.limits.MaxDailyLoss.String(),
		})
	}
	return CheckResult{Allowed: true}
}

// RecordTrade attributes a confirmed fill to the daily counters. Callers must
// invoke it exactly once per executed fill, after the ledger confirms it.
func (g *Gate) RecordTrade(symbol string, side models.OrderSide, quantity int64, price, realizedPnL decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()

	g.dailyPnL = g.dailyPnL.Add(realizedPnL)
	g.dailyTradeCount++
	g.tradesBySymbol[symbol]++

	g.logger.Debug("Trade recorded",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
		zap.String("realized_pnl", realizedPnL.String()),
		zap.Int("daily_trade_count", g.dailyTradeCount),
	)
}

// EmergencyStop halts all trading until Resume. Idempotent: a second call
// while stopped keeps the original reason and trigger time.
func (g *Gate) EmergencyStop(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		g.logger.Warn("Emergency stop already active",
			zap.String("active_reason", g.stopReason),
			zap.String("ignored_reason", reason),
		)
		return
	}

	g.limitsSnapshot = g.limits
	g.stopped = true
	g.stopReason = reason
	g.stopTime = g.clock.Now()

	g.logger.Error("Emergency stop triggered", zap.String("reason", reason))
}

// Resume leaves the stopped state, restoring the limits snapshotted when the
// stop was triggered. No-op when not stopped.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.stopped {
		g.logger.Info("Resume requested while not stopped")
		return
	}

	g.limits = g.limitsSnapshot
	g.stopped = false
	g.stopReason = ""
	g.stopTime = time.Time{}

	g.logger.Info("Resumed from emergency stop")
}

// Status returns a consistent read-only snapshot of the gate state.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	bySymbol := make(map[string]int, len(g.tradesBySymbol))
	for symbol, count := range g.tradesBySymbol {
		bySymbol[symbol] = count
	}

	return Status{
		EmergencyStopActive: g.stopped,
		EmergencyStopReason: g.stopReason,
		EmergencyStopTime:   g.stopTime,
		DailyPnL:            g.dailyPnL,
		DailyTradeCount:     g.dailyTradeCount,
		TradesBySymbol:      bySymbol,
		PeakEquity:          g.peakEquity,
		CurrentDrawdown:     g.currentDrawdown,
		Limits:              g.limits,
	}
}

// UpdateLimits replaces the active limits, an operator action. Limits
// changed while the emergency stop is active are discarded on Resume, which
// restores the pre-stop snapshot.
func (g *Gate) UpdateLimits(limits models.RiskLimits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
	g.logger.Info("Risk limits updated")
}

// Limits returns the currently active limits.
func (g *Gate) Limits() models.RiskLimits {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits
}

// rolloverLocked resets the daily counters on a date change. The reset is
// suppressed while the emergency stop is active so the stop persists across
// day boundaries.
func (g *Gate) rolloverLocked() {
	now := g.clock.Now()
	if sameDay(now, g.day) {
		return
	}
	if g.stopped {
		return
	}

	g.logger.Info("Daily risk counters reset",
		zap.String("previous_day", g.day.Format("2006-01-02")),
		zap.String("new_day", now.Format("2006-01-02")),
	)

	g.day = now
	g.dailyPnL = decimal.Zero
	g.dailyTradeCount = 0
	g.tradesBySymbol = make(map[string]int)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
