package paywatch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/google/uuid"
)

// Outcome is a requested terminal transition for a payment request.
type Outcome struct {
	Status Status

	// TxRef and ConfirmedAt apply when Status is StatusConfirmed.
	TxRef       string
	ConfirmedAt time.Time
}

// PaymentLedger is the in-process store of payment-request records. It owns
// all state transitions: records are mutated only under the ledger's lock
// and handed out as copies.
//
// This implementation is suitable for single-instance deployments. The
// engine depends on it through plain method calls, so a database-backed
// store can replace it later without touching the reconciliation logic.
type PaymentLedger struct {
	mu      sync.Mutex
	records map[string]*PaymentRequest

	clk      clock.Clock
	treasury string
	timeout  time.Duration

	// notifyExpired is invoked outside the lock whenever a lazy expiry
	// check transitions a record. Set by the engine to feed its hooks.
	notifyExpired func(PaymentRequest)
}

// NewPaymentLedger creates an empty ledger for one treasury address.
// timeout is the payment window applied to every new request.
func NewPaymentLedger(clk clock.Clock, treasury string, timeout time.Duration) *PaymentLedger {
	return &PaymentLedger{
		records:  make(map[string]*PaymentRequest),
		clk:      clk,
		treasury: treasury,
		timeout:  timeout,
	}
}

// Create stores a new pending payment request and returns a copy of it.
func (l *PaymentLedger) Create(payerRef string, amount uint64, metadata map[string]string) (PaymentRequest, error) {
	if payerRef == "" {
		return PaymentRequest{}, fmt.Errorf("payer reference is required: %w", ErrInvalidArgument)
	}
	if amount == 0 {
		return PaymentRequest{}, fmt.Errorf("expected amount must be positive: %w", ErrInvalidArgument)
	}

	now := l.clk.Now()
	req := &PaymentRequest{
		ID:             uuid.NewString(),
		PayerRef:       payerRef,
		Address:        l.treasury,
		ExpectedAmount: amount,
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(l.timeout),
	}
	if len(metadata) > 0 {
		req.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			req.Metadata[k] = v
		}
	}

	l.mu.Lock()
	l.records[req.ID] = req
	l.mu.Unlock()

	return *req, nil
}

// Get returns a copy of the record for id. A pending record past its expiry
// instant is transitioned to expired before being returned; expiry is
// checked lazily on every read rather than by a background timer.
func (l *PaymentLedger) Get(id string) (PaymentRequest, error) {
	l.mu.Lock()
	req, ok := l.records[id]
	if !ok {
		l.mu.Unlock()
		return PaymentRequest{}, fmt.Errorf("payment request %q: %w", id, ErrNotFound)
	}

	expired := l.expireLocked(req)
	out := *req
	l.mu.Unlock()

	if expired && l.notifyExpired != nil {
		l.notifyExpired(out)
	}
	return out, nil
}

// Transition applies a terminal outcome to the record for id.
//
// Re-applying an outcome the record already carries is a no-op returning the
// stored result. Confirming a record that has already expired (or expiring a
// confirmed one) fails with ErrConflictingState: expiry is final once
// applied, while a confirmation that lands before the expiry check wins.
func (l *PaymentLedger) Transition(id string, outcome Outcome) (PaymentRequest, error) {
	req, _, err := l.transition(id, outcome)
	return req, err
}

// transition additionally reports whether this call performed the state
// change, letting callers fire one-shot notifications exactly once.
func (l *PaymentLedger) transition(id string, outcome Outcome) (PaymentRequest, bool, error) {
	if !outcome.Status.Terminal() {
		return PaymentRequest{}, false, fmt.Errorf("transition to %q: %w", outcome.Status, ErrInvalidArgument)
	}
	if outcome.Status == StatusConfirmed && outcome.TxRef == "" {
		return PaymentRequest{}, false, fmt.Errorf("confirmation requires a transaction reference: %w", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.records[id]
	if !ok {
		return PaymentRequest{}, false, fmt.Errorf("payment request %q: %w", id, ErrNotFound)
	}

	if req.Status == outcome.Status {
		// Idempotent: keep the originally stored result.
		return *req, false, nil
	}
	if req.Status.Terminal() {
		return PaymentRequest{}, false, fmt.Errorf("payment request %q is %s, cannot transition to %s: %w",
			id, req.Status, outcome.Status, ErrConflictingState)
	}

	req.Status = outcome.Status
	if outcome.Status == StatusConfirmed {
		req.MatchedTxRef = outcome.TxRef
		req.ConfirmedAt = outcome.ConfirmedAt
		if req.ConfirmedAt.IsZero() {
			req.ConfirmedAt = l.clk.Now()
		}
	}
	return *req, true, nil
}

// ListPending returns copies of all pending, unexpired records for payerRef
// ordered by creation time ascending. The slice is recomputed on each call.
func (l *PaymentLedger) ListPending(payerRef string) []PaymentRequest {
	l.mu.Lock()

	now := l.clk.Now()
	var out []PaymentRequest
	var expired []PaymentRequest
	for _, req := range l.records {
		if req.PayerRef != payerRef {
			continue
		}
		if l.expireLocked(req) {
			expired = append(expired, *req)
			continue
		}
		if req.Status == StatusPending && now.Before(req.ExpiresAt) {
			out = append(out, *req)
		}
	}
	l.mu.Unlock()

	if l.notifyExpired != nil {
		for _, req := range expired {
			l.notifyExpired(req)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of records currently held, in any state.
func (l *PaymentLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// expireLocked transitions a pending record past its expiry instant to
// expired. Must be called with the ledger lock held. Returns true when the
// record transitioned in this call.
func (l *PaymentLedger) expireLocked(req *PaymentRequest) bool {
	if req.Status != StatusPending {
		return false
	}
	if !l.clk.Now().After(req.ExpiresAt) {
		return false
	}
	req.Status = StatusExpired
	return true
}
