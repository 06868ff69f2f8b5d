package paywatch

// MatchEngine decides whether any transaction in a candidate batch satisfies
// a payment request. Implementations must be pure over their inputs; the
// reconciler owns all state changes.
//
// Custom matching strategies (for example a reference-field check against
// transaction memos) are plugged in by composition via WithMatchEngine.
type MatchEngine interface {
	// Match scans txs in the given order (most recent first, as returned
	// by the gateway) and returns the reference of the first satisfying
	// transaction. Anomalous transactions are skipped, never an error.
	Match(req PaymentRequest, txs []TransactionDetail) (txRef string, ok bool)
}

// AmountMatcher is the default MatchEngine: a transaction satisfies a
// request when the net balance delta at the treasury address is within
// Tolerance of the expected amount.
//
// Matching is amount-based only. Two simultaneously pending requests with
// identical expected amounts are not distinguishable by this strategy; the
// first verify pass to observe a qualifying transaction claims it.
type AmountMatcher struct {
	// TreasuryAddress is the shared receiving address, compared against
	// transaction account lists by exact string identity.
	TreasuryAddress string

	// Tolerance is the exclusive bound on the absolute difference between
	// the observed delta and the expected amount, in minimal units. It
	// absorbs fee-induced variance from the source wallet.
	Tolerance uint64
}

func (m AmountMatcher) Match(req PaymentRequest, txs []TransactionDetail) (string, bool) {
	for _, tx := range txs {
		if !m.qualifies(req, tx) {
			continue
		}
		return tx.Signature, true
	}
	return "", false
}

func (m AmountMatcher) qualifies(req PaymentRequest, tx TransactionDetail) bool {
	// A missing block time means the ledger has not finalized the
	// transaction; treat it as not yet confirmed rather than an error.
	if tx.BlockTime == nil {
		return false
	}
	// Transfers must postdate the request. Strictly earlier transactions
	// can never satisfy it, whatever their amount.
	if tx.BlockTime.Before(req.CreatedAt) {
		return false
	}
	if !tx.Succeeded {
		return false
	}
	delta, ok := tx.Delta(m.TreasuryAddress)
	if !ok {
		return false
	}
	diff := delta - int64(req.ExpectedAmount)
	if diff < 0 {
		diff = -diff
	}
	return diff < int64(m.Tolerance)
}
