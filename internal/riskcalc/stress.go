package riskcalc

import "github.com/montanaflynn/stats"

// StressScenario scales every return in a series by Factor, modeling a
// regime where daily moves are amplified.
type StressScenario struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

// Named stress scenarios. Factors follow the magnitude ordering used for
// regulatory-style what-if runs.
var DefaultScenarios = map[string]StressScenario{
	"moderate_selloff": {Name: "moderate_selloff", Factor: 1.5},
	"severe_crash":     {Name: "severe_crash", Factor: 2.5},
	"flash_crash":      {Name: "flash_crash", Factor: 4.0},
}

// StressResult is the risk profile of a return series under a shocked
// regime.
type StressResult struct {
	Scenario     string  `json:"scenario"`
	VaR95        float64 `json:"var_95"`
	ES95         float64 `json:"es_95"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	ExpectedLoss float64 `json:"expected_loss"`
}

// StressTest multiplies each return by the scenario factor and recomputes
// VaR, ES and drawdown under the shocked series. ExpectedLoss is the
// annualized mean of the shocked series when negative, zero otherwise.
func StressTest(returns []float64, scenario StressScenario) (*StressResult, error) {
	if err := validateSample(returns); err != nil {
		return nil, err
	}

	shocked := make([]float64, len(returns))
	for i, r := range returns {
		shocked[i] = r * scenario.Factor
	}

	var95, err := HistoricalVaR(shocked, 0.95)
	if err != nil {
		return nil, err
	}
	es95, err := ExpectedShortfall(shocked, 0.95)
	if err != nil {
		return nil, err
	}
	maxDD, err := MaxDrawdown(shocked)
	if err != nil {
		return nil, err
	}

	mean, err := stats.Mean(shocked)
	if err != nil {
		return nil, err
	}
	expectedLoss := 0.0
	if mean < 0 {
		expectedLoss = -mean * TradingDays
	}

	return &StressResult{
		Scenario:     scenario.Name,
		VaR95:        var95,
		ES95:         es95,
		MaxDrawdown:  maxDD,
		ExpectedLoss: expectedLoss,
	}, nil
}

// StressTestNamed runs a scenario from DefaultScenarios.
func StressTestNamed(returns []float64, name string) (*StressResult, error) {
	scenario, ok := DefaultScenarios[name]
	if !ok {
		return nil, ErrUnknownScenario
	}
	return StressTest(returns, scenario)
}
