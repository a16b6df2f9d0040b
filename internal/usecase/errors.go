package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPrice is returned when the provider answers without a usable price.
	ErrInvalidPrice = errors.New("no usable price")
	// ErrSignalClosed is returned when a resolved signal is sealed again.
	ErrSignalClosed = errors.New("signal already resolved")
)

// RejectionError reports a scored result that did not pass acceptance.
type RejectionError struct {
	Reason     error
	Confidence int
	Strength   float64
	Rationale  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("signal rejected: %v (confidence=%d strength=%.1f)", e.Reason, e.Confidence, e.Strength)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// TransportError wraps a failed call to a collaborator, either the market data
// provider or the ledger. Op names the failed call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
