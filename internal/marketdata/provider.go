package marketdata

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrUnknownSymbol    = errors.New("unknown symbol")
)

// Provider is the abstract market-data collaborator the core depends on.
// Implementations may block on I/O; callers pass a context and treat a
// failed lookup as a rejection, never as a zero price.
type Provider interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetHistoricalReturns(ctx context.Context, symbol string, window int) ([]float64, error)
}
