package riskcalc

import "math"

// PortfolioVaR is the covariance-based decomposition of portfolio risk.
// Component VaR values sum to the total VaR.
type PortfolioVaR struct {
	Volatility   float64   `json:"volatility"`
	VaR          float64   `json:"var"`
	MarginalVaR  []float64 `json:"marginal_var"`
	ComponentVaR []float64 `json:"component_var"`
}

// ComputePortfolioVaR calculates portfolio volatility sqrt(w'Σw) and the
// parametric VaR |z * vol| at the given confidence, plus per-asset marginal
// and component VaR.
func ComputePortfolioVaR(weights []float64, covariance [][]float64, confidence float64) (*PortfolioVaR, error) {
	n := len(weights)
	if n == 0 || len(covariance) != n {
		return nil, ErrDimensionMismatch
	}
	for _, row := range covariance {
		if len(row) != n {
			return nil, ErrDimensionMismatch
		}
	}
	if err := validateConfidence(confidence); err != nil {
		return nil, err
	}

	// sigmaW = Σw, variance = w'Σw
	sigmaW := make([]float64, n)
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigmaW[i] += covariance[i][j] * weights[j]
		}
		variance += weights[i] * sigmaW[i]
	}
	if variance <= 0 {
		return nil, ErrNonPositiveDefinite
	}

	volatility := math.Sqrt(variance)
	z := math.Abs(normInv(1 - confidence))
	totalVaR := z * volatility

	marginal := make([]float64, n)
	component := make([]float64, n)
	for i := 0; i < n; i++ {
		marginal[i] = z * sigmaW[i] / volatility
		component[i] = marginal[i] * weights[i]
	}

	return &PortfolioVaR{
		Volatility:   volatility,
		VaR:          totalVaR,
		MarginalVaR:  marginal,
		ComponentVaR: component,
	}, nil
}

// normInv is the inverse standard normal CDF (Acklam's rational
// approximation, relative error below 1.15e-9).
func normInv(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}

// Level buckets a risk profile for downstream gating and reporting.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Classify maps annualized volatility, max drawdown and daily VaR@95 onto a
// Level through a weighted three-tier score per factor.
func Classify(volatility, maxDrawdown, var95 float64) Level {
	score := 0.4*tierScore(volatility, 0.15, 0.25, 0.40) +
		0.3*tierScore(maxDrawdown, 0.10, 0.20, 0.35) +
		0.3*tierScore(math.Abs(var95), 0.02, 0.04, 0.07)

	switch {
	case score <= 0.75:
		return LevelLow
	case score <= 1.5:
		return LevelMedium
	case score <= 2.25:
		return LevelHigh
	default:
		return LevelCritical
	}
}

func tierScore(value, t1, t2, t3 float64) float64 {
	switch {
	case value < t1:
		return 0
	case value < t2:
		return 1
	case value < t3:
		return 2
	default:
		return 3
	}
}
