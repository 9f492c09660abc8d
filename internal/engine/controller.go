package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/1cbyc/risk-ledger-go/internal/ledger"
	"github.com/1cbyc/risk-ledger-go/internal/models"
	"github.com/1cbyc/risk-ledger-go/internal/riskgate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeDecision is the outcome of one risk-gated execution attempt. A gate
// rejection is a normal outcome: Executed is false, Check carries the reason
// and Err stays nil.
type TradeDecision struct {
	Signal    models.Signal           `json:"signal"`
	Executed  bool                    `json:"executed"`
	Check     riskgate.CheckResult    `json:"check"`
	Order     *models.Order           `json:"order,omitempty"`
	Execution *ledger.ExecutionResult `json:"execution,omitempty"`
	Err       error                   `json:"-"`
}

// StrategyStats accumulates per-strategy trade attribution in fill order.
type StrategyStats struct {
	Trades      int             `json:"trades"`
	Volume      decimal.Decimal `json:"volume"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Controller orchestrates one account: it serializes the
// check -> execute -> record_trade pipeline so no two signals can pass the
// cash check against the same stale snapshot.
type Controller struct {
	gate   *riskgate.Gate
	book   *ledger.Ledger
	logger *zap.Logger

	mu          sync.Mutex
	attribution map[string]*StrategyStats
}

func NewController(gate *riskgate.Gate, book *ledger.Ledger, logger *zap.Logger) *Controller {
	return &Controller{
		gate:        gate,
		book:        book,
		logger:      logger,
		attribution: make(map[string]*StrategyStats),
	}
}

// SubmitSignal runs the full risk-gated execution pipeline for one signal.
// Only one signal is in flight at a time; callers racing each other are
// serialized here.
func (c *Controller) SubmitSignal(ctx context.Context, signal models.Signal) TradeDecision {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	account := c.book.AccountInfo()
	positions := c.book.Positions()

	check := c.gate.Check(ctx, signal, account, positions)
	if !check.Allowed {
		c.logger.Info("Signal rejected by risk gate",
			zap.String("signal_id", signal.ID),
			zap.String("symbol", signal.Symbol),
			zap.String("check", string(check.Check)),
			zap.String("reason", check.Reason),
		)
		return TradeDecision{Signal: signal, Check: check}
	}

	orderType := models.OrderTypeMarket
	if signal.LimitPrice != nil {
		orderType = models.OrderTypeLimit
	}
	order := c.book.Submit(signal, orderType)

	execution, err := c.book.Execute(ctx, order.ID)
	if err != nil {
		// The gate already validated this trade; a ledger refusal here
		// means the snapshot went stale between check and execute.
		c.logger.Warn("Ledger refused trade after risk gate pass",
			zap.String("signal_id", signal.ID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		final, _ := c.book.Order(order.ID)
		return TradeDecision{Signal: signal, Check: check, Order: &final, Err: err}
	}

	c.gate.RecordTrade(signal.Symbol, signal.Side, execution.FilledQuantity, execution.FilledPrice, execution.RealizedPnL)
	c.recordAttributionLocked(signal.StrategyID, execution)

	final, _ := c.book.Order(order.ID)
	return TradeDecision{
		Signal:    signal,
		Executed:  true,
		Check:     check,
		Order:     &final,
		Execution: execution,
	}
}

func (c *Controller) recordAttributionLocked(strategyID string, execution *ledger.ExecutionResult) {
	stats, exists := c.attribution[strategyID]
	if !exists {
		stats = &StrategyStats{Volume: decimal.Zero, RealizedPnL: decimal.Zero}
		c.attribution[strategyID] = stats
	}
	stats.Trades++
	stats.Volume = stats.Volume.Add(models.TradeValue(execution.FilledPrice, execution.FilledQuantity))
	stats.RealizedPnL = stats.RealizedPnL.Add(execution.RealizedPnL)
}

// Attribution returns a copy of the per-strategy statistics.
func (c *Controller) Attribution() map[string]StrategyStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	attribution := make(map[string]StrategyStats, len(c.attribution))
	for id, stats := range c.attribution {
		attribution[id] = *stats
	}
	return attribution
}

// EmergencyStop halts trading through the gate.
func (c *Controller) EmergencyStop(reason string) {
	c.gate.EmergencyStop(reason)
}

// Resume restores trading after an emergency stop.
func (c *Controller) Resume() {
	c.gate.Resume()
}

// RiskStatus exposes the gate snapshot for monitoring collaborators.
func (c *Controller) RiskStatus() riskgate.Status {
	return c.gate.Status()
}

// AccountInfo exposes the ledger account snapshot.
func (c *Controller) AccountInfo() models.AccountSnapshot {
	return c.book.AccountInfo()
}

// Positions exposes the ledger positions.
func (c *Controller) Positions() map[string]models.Position {
	return c.book.Positions()
}

// IsRiskRejection reports whether a decision failed the gate rather than
// erroring in the ledger.
func IsRiskRejection(decision TradeDecision) bool {
	return !decision.Executed && decision.Err == nil && !decision.Check.Allowed
}

// IsLedgerAnomaly reports whether the ledger refused a trade the gate had
// already passed, the stale-snapshot signature.
func IsLedgerAnomaly(decision TradeDecision) bool {
	return decision.Err != nil &&
		(errors.Is(decision.Err, ledger.ErrInsufficientFunds) || errors.Is(decision.Err, ledger.ErrInsufficientPosition))
}
