package broker

import "errors"

// Every error returned by the engine wraps exactly one of these, so callers
// branch with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrOrderNotFound        = errors.New("order not found")
)
