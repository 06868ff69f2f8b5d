package paywatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the payment-request lifecycle. Callers should test
// with errors.Is since returned errors wrap these with context.
var (
	// ErrInvalidArgument indicates bad creation input (empty payer
	// reference, non-positive amount, malformed configuration).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates an unknown payment-request id.
	ErrNotFound = errors.New("payment request not found")

	// ErrConflictingState indicates an illegal state transition, such as
	// confirming a request that has already expired.
	ErrConflictingState = errors.New("conflicting payment state")

	// ErrEngineClosed is returned by operations invoked after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// GatewayError wraps a transport or RPC failure from the LedgerGateway.
// It is never returned from the steady-state verification path; it is
// delivered to the registered gateway-error hooks instead.
type GatewayError struct {
	// Op is the gateway operation that failed ("listSignatures" or
	// "getTransaction").
	Op string
	// Signature is set for per-transaction fetch failures.
	Signature string
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("ledger gateway %s %s: %v", e.Op, e.Signature, e.Err)
	}
	return fmt.Sprintf("ledger gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
