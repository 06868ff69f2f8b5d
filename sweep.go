package paywatch

import "time"

// Sweep deletes terminal (confirmed or expired) records whose age since
// creation exceeds retention, returning copies of the deleted records.
//
// A single pass with no side effects beyond deletion: pending records are
// never touched regardless of age, so a stuck-but-live request survives any
// retention setting. Holding the ledger lock for the pass means a sweep can
// never observe, or race with, a half-written transition.
func (l *PaymentLedger) Sweep(retention time.Duration) []PaymentRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clk.Now().Add(-retention)
	var removed []PaymentRequest
	for id, req := range l.records {
		if !req.Status.Terminal() {
			continue
		}
		if !req.CreatedAt.Before(cutoff) {
			continue
		}
		removed = append(removed, *req)
		delete(l.records, id)
	}
	return removed
}
