package ledger

import "errors"

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrUnknownOrder         = errors.New("unknown order")
	ErrOrderTerminal        = errors.New("order already in terminal status")
)
