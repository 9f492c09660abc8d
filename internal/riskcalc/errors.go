package riskcalc

import "errors"

var (
	ErrInsufficientSample  = errors.New("insufficient sample size")
	ErrInvalidConfidence   = errors.New("confidence must be between 0 and 1 exclusive")
	ErrDimensionMismatch   = errors.New("series dimension mismatch")
	ErrDegenerateSeries    = errors.New("degenerate series")
	ErrDegenerateBenchmark = errors.New("benchmark variance is zero")
	ErrNonPositiveDefinite = errors.New("covariance matrix is not positive definite")
	ErrUnknownScenario     = errors.New("unknown stress scenario")
)
