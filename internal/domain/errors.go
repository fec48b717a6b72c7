package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrNoData marks a remote response that carried no usable quote envelope.
	ErrNoData = errors.New("no data")
)

type InvalidSymbolError struct {
	Symbol string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %q", e.Symbol)
}

func (e *InvalidSymbolError) Unwrap() error { return ErrInvalidSymbol }
