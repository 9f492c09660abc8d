// Package riskcalc computes portfolio risk and performance metrics over
// caller-supplied daily return series. Every function is a stateless
// transform; malformed input surfaces as a typed error, never as a zeroed
// metric.
package riskcalc

import (
	"math"
	"math/rand"
	"sort"

	"github.com/montanaflynn/stats"
)

const (
	// TradingDays is the annualization base.
	TradingDays = 252
	// MinObservations is the smallest sample any calculation accepts.
	MinObservations = 30
	// DefaultSimulations is the Monte Carlo draw count when the caller
	// passes zero.
	DefaultSimulations = 10000
)

func validateSample(returns []float64) error {
	if len(returns) < MinObservations {
		return ErrInsufficientSample
	}
	return nil
}

func validateConfidence(confidence float64) error {
	if confidence <= 0 || confidence >= 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// AnnualizedVolatility is the sample standard deviation of daily returns
// scaled by sqrt(252).
func AnnualizedVolatility(returns []float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, err
	}
	return sd * math.Sqrt(TradingDays), nil
}

// AnnualizedReturn compounds the daily series and rescales the cumulative
// growth to a 252-day year.
func AnnualizedReturn(returns []float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	if cumulative <= 0 {
		return 0, ErrDegenerateSeries
	}
	return math.Pow(cumulative, TradingDays/float64(len(returns))) - 1, nil
}

// SharpeRatio is (mean - riskFree/252) / stdev * sqrt(252). riskFree is the
// annual risk-free rate.
func SharpeRatio(returns []float64, riskFree float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	mean, err := stats.Mean(returns)
	if err != nil {
		return 0, err
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, err
	}
	if sd == 0 {
		return 0, ErrDegenerateSeries
	}
	return (mean - riskFree/TradingDays) / sd * math.Sqrt(TradingDays), nil
}

// SortinoRatio divides annualized excess return by the annualized standard
// deviation of the below-zero returns.
func SortinoRatio(returns []float64, riskFree float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	mean, err := stats.Mean(returns)
	if err != nil {
		return 0, err
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0, ErrDegenerateSeries
	}
	downsideDev, err := stats.StandardDeviationSample(downside)
	if err != nil {
		return 0, err
	}
	if downsideDev == 0 {
		return 0, ErrDegenerateSeries
	}

	excess := mean*TradingDays - riskFree
	return excess / (downsideDev * math.Sqrt(TradingDays)), nil
}

// MaxDrawdown tracks the running peak of the cumulative product of (1+r)
// and reports the largest peak-to-trough decline as a positive fraction.
func MaxDrawdown(returns []float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}

	cumulative := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		dd := (peak - cumulative) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD, nil
}

// CalmarRatio is annualized return over max drawdown.
func CalmarRatio(returns []float64) (float64, error) {
	annual, err := AnnualizedReturn(returns)
	if err != nil {
		return 0, err
	}
	maxDD, err := MaxDrawdown(returns)
	if err != nil {
		return 0, err
	}
	if maxDD == 0 {
		return 0, ErrDegenerateSeries
	}
	return annual / maxDD, nil
}

// HistoricalVaR is the (1-confidence) percentile of the return
// distribution; a negative number by convention.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * (1 - confidence)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx], nil
}

// ExpectedShortfall is the mean of the returns at or below the VaR
// threshold for the same confidence.
func ExpectedShortfall(returns []float64, confidence float64) (float64, error) {
	varValue, err := HistoricalVaR(returns, confidence)
	if err != nil {
		return 0, err
	}

	sum := 0.0
	count := 0
	for _, r := range returns {
		if r <= varValue {
			sum += r
			count++
		}
	}
	if count == 0 {
		return varValue, nil
	}
	return sum / float64(count), nil
}

// MonteCarloVaR draws N(mean, std) daily returns over the horizon,
// compounds each path and takes the (1-confidence) percentile of the
// simulated cumulative returns. simulations <= 0 uses DefaultSimulations.
func MonteCarloVaR(returns []float64, confidence float64, horizon, simulations int) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if horizon <= 0 {
		horizon = 1
	}
	if simulations <= 0 {
		simulations = DefaultSimulations
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return 0, err
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, err
	}

	simulated := make([]float64, simulations)
	for i := 0; i < simulations; i++ {
		cumulative := 1.0
		for d := 0; d < horizon; d++ {
			cumulative *= 1 + mean + sd*rand.NormFloat64()
		}
		simulated[i] = cumulative - 1
	}

	sort.Float64s(simulated)
	idx := int(math.Floor(float64(simulations) * (1 - confidence)))
	if idx >= simulations {
		idx = simulations - 1
	}
	return simulated[idx], nil
}

// Beta is cov(returns, benchmark) / var(benchmark).
func Beta(returns, benchmark []float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	if len(returns) != len(benchmark) {
		return 0, ErrDimensionMismatch
	}

	covariance, err := stats.Covariance(returns, benchmark)
	if err != nil {
		return 0, err
	}
	variance, err := stats.VarS(benchmark)
	if err != nil {
		return 0, err
	}
	if variance == 0 {
		return 0, ErrDegenerateBenchmark
	}
	return covariance / variance, nil
}

// TrackingError is the annualized standard deviation of the active return
// (portfolio minus benchmark).
func TrackingError(returns, benchmark []float64) (float64, error) {
	if err := validateSample(returns); err != nil {
		return 0, err
	}
	if len(returns) != len(benchmark) {
		return 0, ErrDimensionMismatch
	}

	active := make([]float64, len(returns))
	for i := range returns {
		active[i] = returns[i] - benchmark[i]
	}
	sd, err := stats.StandardDeviationSample(active)
	if err != nil {
		return 0, err
	}
	return sd * math.Sqrt(TradingDays), nil
}

// InformationRatio is annualized mean active return over tracking error.
func InformationRatio(returns, benchmark []float64) (float64, error) {
	te, err := TrackingError(returns, benchmark)
	if err != nil {
		return 0, err
	}
	if te == 0 {
		return 0, ErrDegenerateSeries
	}

	active := make([]float64, len(returns))
	for i := range returns {
		active[i] = returns[i] - benchmark[i]
	}
	mean, err := stats.Mean(active)
	if err != nil {
		return 0, err
	}
	return mean * TradingDays / te, nil
}

// Metrics is the full derived risk/performance record for one return
// series. Benchmark-relative fields are zero when no benchmark was given.
type Metrics struct {
	Volatility       float64 `json:"volatility"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	VaR95            float64 `json:"var_95"`
	VaR99            float64 `json:"var_99"`
	ES95             float64 `json:"es_95"`
	ES99             float64 `json:"es_99"`
	Beta             float64 `json:"beta"`
	TrackingError    float64 `json:"tracking_error"`
	InformationRatio float64 `json:"information_ratio"`
	Level            Level   `json:"risk_level"`
}

// Compute derives the full Metrics record. benchmark may be nil; riskFree is
// annual. Sortino and Calmar fall back to zero only when the series has no
// downside or no drawdown at all, which cannot be mistaken for a computed
// ratio on a series that has both.
func Compute(returns, benchmark []float64, riskFree float64) (*Metrics, error) {
	volatility, err := AnnualizedVolatility(returns)
	if err != nil {
		return nil, err
	}
	annual, err := AnnualizedReturn(returns)
	if err != nil {
		return nil, err
	}
	sharpe, err := SharpeRatio(returns, riskFree)
	if err != nil {
		return nil, err
	}
	maxDD, err := MaxDrawdown(returns)
	if err != nil {
		return nil, err
	}
	var95, err := HistoricalVaR(returns, 0.95)
	if err != nil {
		return nil, err
	}
	var99, err := HistoricalVaR(returns, 0.99)
	if err != nil {
		return nil, err
	}
	es95, err := ExpectedShortfall(returns, 0.95)
	if err != nil {
		return nil, err
	}
	es99, err := ExpectedShortfall(returns, 0.99)
	if err != nil {
		return nil, err
	}

	metrics := &Metrics{
		Volatility:       volatility,
		AnnualizedReturn: annual,
		SharpeRatio:      sharpe,
		MaxDrawdown:      maxDD,
		VaR95:            var95,
		VaR99:            var99,
		ES95:             es95,
		ES99:             es99,
	}

	if sortino, err := SortinoRatio(returns, riskFree); err == nil {
		metrics.SortinoRatio = sortino
	}
	if calmar, err := CalmarRatio(returns); err == nil {
		metrics.CalmarRatio = calmar
	}

	if benchmark != nil {
		beta, err := Beta(returns, benchmark)
		if err != nil {
			return nil, err
		}
		te, err := TrackingError(returns, benchmark)
		if err != nil {
			return nil, err
		}
		metrics.Beta = beta
		metrics.TrackingError = te
		if ir, err := InformationRatio(returns, benchmark); err == nil {
			metrics.InformationRatio = ir
		}
	}

	metrics.Level = Classify(volatility, maxDD, var95)
	return metrics, nil
}
