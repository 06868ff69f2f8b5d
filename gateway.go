package paywatch

import (
	"context"
	"time"
)

// SignatureInfo is one entry from the treasury address's signature history.
type SignatureInfo struct {
	// Signature is the opaque transaction reference.
	Signature string

	// BlockTime is the ledger-reported execution time, or nil when the
	// ledger has not reported one yet. Transactions without a block time
	// are treated as not yet final and skipped during matching.
	BlockTime *time.Time
}

// BalanceDelta is one account's balance immediately before and after a
// transaction, in minimal units.
type BalanceDelta struct {
	Pre  uint64
	Post uint64
}

// TransactionDetail is the engine's view of a single ledger transaction.
type TransactionDetail struct {
	Signature string

	// Succeeded is false when the ledger reports the transaction as
	// failed or errored.
	Succeeded bool

	BlockTime *time.Time

	// Balances maps account address to its pre/post balances. Addresses
	// are compared by exact string identity.
	Balances map[string]BalanceDelta
}

// Delta returns the net balance change at the given address and whether the
// address appears in the transaction's account list at all.
func (d TransactionDetail) Delta(address string) (int64, bool) {
	b, ok := d.Balances[address]
	if !ok {
		return 0, false
	}
	return int64(b.Post) - int64(b.Pre), true
}

// LedgerGateway is the ledger RPC surface the engine consumes. Production
// deployments use the gateway/solanarpc implementation; tests substitute a
// fake. Both calls may fail with transport errors, which the engine treats
// as "not yet confirmed" rather than propagating.
type LedgerGateway interface {
	// ListRecentSignatures returns up to limit recent transaction
	// signatures involving address, most recent first.
	ListRecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error)

	// GetTransaction fetches full detail for one signature. It returns
	// (nil, nil) when the ledger does not know the transaction; the
	// engine skips such entries.
	GetTransaction(ctx context.Context, signature string) (*TransactionDetail, error)
}
