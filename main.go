package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/1cbyc/risk-ledger-go/internal/engine"
	"github.com/1cbyc/risk-ledger-go/internal/ledger"
	"github.com/1cbyc/risk-ledger-go/internal/marketdata"
	"github.com/1cbyc/risk-ledger-go/internal/models"
	"github.com/1cbyc/risk-ledger-go/internal/riskcalc"
	"github.com/1cbyc/risk-ledger-go/internal/riskgate"
	"github.com/1cbyc/risk-ledger-go/internal/strategies"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	var (
		initialCash = flag.Float64("cash", 1000000.0, "Initial account cash")
		duration    = flag.Duration("duration", 5*time.Minute, "Simulation duration")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	logger.Info("Starting risk-gated execution ledger", zap.Float64("initial_cash", *initialCash))

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	simulator := marketdata.NewSimulator(logger)
	setupSymbols(simulator, logger)

	limits := models.RiskLimits{
		MaxTradeValue:          decimal.NewFromFloat(50000),
		MinCashReserve:         decimal.NewFromFloat(100000),
		MaxPositionValue:       decimal.NewFromFloat(200000),
		MaxPositionRatio:       decimal.NewFromFloat(0.25),
		MaxSectorConcentration: decimal.NewFromFloat(0.4),
		MaxDailyTrades:         200,
		MaxOrderFrequency:      50,
		MaxDrawdown:            decimal.NewFromFloat(0.15),
		MaxDailyLoss:           decimal.NewFromFloat(20000),
	}
	commissions := models.CommissionSchedule{
		Rate:    decimal.NewFromFloat(0.001),
		Minimum: decimal.NewFromFloat(1),
	}

	gate := riskgate.New(limits, commissions, simulator, riskgate.SystemClock(), logger)
	book := ledger.New(decimal.NewFromFloat(*initialCash), commissions, simulator, logger)
	controller := engine.NewController(gate, book, logger)

	strategy := strategies.NewMomentumStrategy("momentum_001", 10, 30, decimal.NewFromFloat(25000))

	simulator.Start(200 * time.Millisecond)
	go runStrategyLoop(ctx, controller, simulator, strategy, book, logger)
	go printStatus(ctx, controller, logger)

	handleShutdown(ctx, controller, simulator, book, logger)
}

func setupLogger(level string) *zap.Logger {
	var config zap.Config
	switch level {
	case "debug":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config = zap.NewProductionConfig()
	}

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	return logger
}

func setupSymbols(simulator *marketdata.Simulator, logger *zap.Logger) {
	symbols := map[string]struct {
		basePrice  float64
		volatility float64
	}{
		"AAPL":  {150.0, 0.02},
		"GOOGL": {2800.0, 0.025},
		"MSFT":  {300.0, 0.018},
		"TSLA":  {800.0, 0.04},
		"NVDA":  {600.0, 0.03},
	}

	for symbol, data := range symbols {
		simulator.AddSymbol(symbol, decimal.NewFromFloat(data.basePrice), decimal.NewFromFloat(data.volatility))
		logger.Info("Symbol configured", zap.String("symbol", symbol), zap.Float64("base_price", data.basePrice))
	}
}

func runStrategyLoop(ctx context.Context, controller *engine.Controller, simulator *marketdata.Simulator, strategy *strategies.MomentumStrategy, book *ledger.Ledger, logger *zap.Logger) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		positions := book.Positions()
		for _, symbol := range simulator.Symbols() {
			price, err := simulator.GetCurrentPrice(ctx, symbol)
			if err != nil {
				continue
			}
			strategy.Observe(symbol, price)
			book.MarkPrice(symbol, price)

			signal, err := strategy.Evaluate(symbol, positions[symbol])
			if err != nil || signal == nil {
				continue
			}

			decision := controller.SubmitSignal(ctx, *signal)
			if engine.IsLedgerAnomaly(decision) {
				logger.Warn("Ledger anomaly", zap.String("symbol", symbol), zap.Error(decision.Err))
			}
		}
	}
}

func printStatus(ctx context.Context, controller *engine.Controller, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		account := controller.AccountInfo()
		status := controller.RiskStatus()

		logger.Info("Account status",
			zap.String("cash", account.Cash.String()),
			zap.String("equity", account.Equity.String()),
			zap.String("daily_pnl", status.DailyPnL.String()),
			zap.Int("daily_trades", status.DailyTradeCount),
			zap.String("drawdown", status.CurrentDrawdown.String()),
			zap.Bool("emergency_stop", status.EmergencyStopActive),
		)

		for symbol, position := range controller.Positions() {
			if position.Quantity == 0 {
				continue
			}
			logger.Info("Position",
				zap.String("symbol", symbol),
				zap.Int64("quantity", position.Quantity),
				zap.String("average_cost", position.AverageCost.String()),
				zap.String("market_value", position.MarketValue.String()),
				zap.String("unrealized_pnl", position.UnrealizedPnL.String()),
			)
		}
	}
}

func handleShutdown(ctx context.Context, controller *engine.Controller, simulator *marketdata.Simulator, book *ledger.Ledger, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("Simulation completed")
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	simulator.Stop()

	account := controller.AccountInfo()
	logger.Info("Final account summary",
		zap.String("initial_cash", book.InitialCash().String()),
		zap.String("final_equity", account.Equity.String()),
		zap.String("return", account.Equity.Sub(book.InitialCash()).String()),
		zap.Int("total_trades", len(book.Trades())),
	)

	for strategyID, stats := range controller.Attribution() {
		logger.Info("Strategy attribution",
			zap.String("strategy_id", strategyID),
			zap.Int("trades", stats.Trades),
			zap.String("volume", stats.Volume.String()),
			zap.String("realized_pnl", stats.RealizedPnL.String()),
		)
	}

	printRiskReport(simulator, logger)
	logger.Info("Shutdown complete")
}

func printRiskReport(simulator *marketdata.Simulator, logger *zap.Logger) {
	// The run context is already done at shutdown; the report reads
	// in-memory history only.
	ctx := context.Background()
	for _, symbol := range simulator.Symbols() {
		returns, err := simulator.GetHistoricalReturns(ctx, symbol, 0)
		if err != nil || len(returns) < riskcalc.MinObservations {
			continue
		}

		metrics, err := riskcalc.Compute(returns, nil, 0.02)
		if err != nil {
			logger.Warn("Risk metrics unavailable", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		logger.Info("Risk metrics",
			zap.String("symbol", symbol),
			zap.Float64("volatility", metrics.Volatility),
			zap.Float64("sharpe", metrics.SharpeRatio),
			zap.Float64("max_drawdown", metrics.MaxDrawdown),
			zap.Float64("var_95", metrics.VaR95),
			zap.Float64("es_95", metrics.ES95),
			zap.String("risk_level", string(metrics.Level)),
		)
	}
}
