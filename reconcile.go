package paywatch

import (
	"context"
	"errors"
	"time"
)

// Reconciler performs one verification pass for a payment request: pull
// recent history from the LedgerGateway, apply the MatchEngine, update the
// PaymentLedger.
type Reconciler struct {
	ledger  *PaymentLedger
	gateway LedgerGateway
	matcher MatchEngine

	treasury string
	window   int

	hooks *hookSet
}

// NewReconciler wires a reconciler against an existing ledger and gateway.
// Engines construct their own; this is exported for callers embedding the
// reconciler in their own scheduling.
func NewReconciler(ledger *PaymentLedger, gateway LedgerGateway, matcher MatchEngine, treasury string, window int) *Reconciler {
	return &Reconciler{
		ledger:   ledger,
		gateway:  gateway,
		matcher:  matcher,
		treasury: treasury,
		window:   window,
		hooks:    &hookSet{},
	}
}

// Verify reports whether the request is confirmed, running a full
// reconciliation pass if it is still pending.
//
// Gateway failures degrade to false rather than surfacing: the caller's
// steady-state polling loop should not have to distinguish "no payment yet"
// from "RPC flaked", and the failure is delivered to the gateway-error hooks
// instead. ErrNotFound propagates.
func (r *Reconciler) Verify(ctx context.Context, id string) (bool, error) {
	_, confirmed, err := r.verify(ctx, id)
	return confirmed, err
}

// verify is Verify plus a snapshot of the record, which the confirmation
// watcher uses to tell a terminal expiry from "keep polling".
func (r *Reconciler) verify(ctx context.Context, id string) (PaymentRequest, bool, error) {
	start := r.ledger.clk.Now()

	req, err := r.ledger.Get(id)
	if err != nil {
		return PaymentRequest{}, false, err
	}

	switch req.Status {
	case StatusConfirmed:
		// Idempotent fast path.
		r.observe(id, true, start)
		return req, true, nil
	case StatusExpired:
		r.observe(id, false, start)
		return req, false, nil
	}

	txs, gerr := r.fetchRecent(ctx)
	if gerr != nil {
		r.hooks.gatewayError(GatewayErrorContext{
			RequestID: id,
			PayerRef:  req.PayerRef,
			Err:       gerr,
			Timestamp: r.ledger.clk.Now(),
		})
		r.observe(id, false, start)
		return req, false, nil
	}

	txRef, ok := r.matcher.Match(req, txs)
	if !ok {
		r.observe(id, false, start)
		return req, false, nil
	}

	confirmed, won, err := r.ledger.transition(id, Outcome{
		Status:      StatusConfirmed,
		TxRef:       txRef,
		ConfirmedAt: r.ledger.clk.Now(),
	})
	if errors.Is(err, ErrConflictingState) {
		// The record expired between our read and the match. Expiry is
		// final once applied, so the confirmation loses the race.
		req, rerr := r.ledger.Get(id)
		if rerr != nil {
			return PaymentRequest{}, false, rerr
		}
		r.observe(id, false, start)
		return req, false, nil
	}
	if err != nil {
		return PaymentRequest{}, false, err
	}

	if won {
		r.hooks.confirmed(ConfirmContext{Request: confirmed})
	}
	r.observe(id, true, start)
	return confirmed, true, nil
}

// fetchRecent pulls the bounded signature window for the treasury address
// and resolves each signature to transaction detail, preserving the
// gateway's most-recent-first ordering. Unknown transactions are skipped.
func (r *Reconciler) fetchRecent(ctx context.Context) ([]TransactionDetail, *GatewayError) {
	sigs, err := r.gateway.ListRecentSignatures(ctx, r.treasury, r.window)
	if err != nil {
		return nil, &GatewayError{Op: "listSignatures", Err: err}
	}

	txs := make([]TransactionDetail, 0, len(sigs))
	for _, sig := range sigs {
		detail, err := r.gateway.GetTransaction(ctx, sig.Signature)
		if err != nil {
			return nil, &GatewayError{Op: "getTransaction", Signature: sig.Signature, Err: err}
		}
		if detail == nil {
			continue
		}
		txs = append(txs, *detail)
	}
	return txs, nil
}

func (r *Reconciler) observe(id string, confirmed bool, start time.Time) {
	r.hooks.verified(VerifyContext{
		RequestID: id,
		Confirmed: confirmed,
		Duration:  r.ledger.clk.Now().Sub(start),
	})
}
