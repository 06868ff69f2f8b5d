package paywatch

import (
	"context"
	"sync"
	"time"
)

// fakeGateway is an in-memory LedgerGateway for tests. Signatures are
// returned in insertion-reversed order (most recent first), mirroring the
// real RPC contract.
type fakeGateway struct {
	mu      sync.Mutex
	txs     []*TransactionDetail
	listErr error
	getErr  error

	listCalls int
	getCalls  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

// addTransfer records a successful transaction moving the treasury balance
// from pre to post at the given block time.
func (g *fakeGateway) addTransfer(sig, treasury string, at time.Time, pre, post uint64) {
	g.add(&TransactionDetail{
		Signature: sig,
		Succeeded: true,
		BlockTime: &at,
		Balances:  map[string]BalanceDelta{treasury: {Pre: pre, Post: post}},
	})
}

func (g *fakeGateway) add(tx *TransactionDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txs = append(g.txs, tx)
}

func (g *fakeGateway) ListRecentSignatures(_ context.Context, _ string, limit int) ([]SignatureInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}
	var out []SignatureInfo
	for i := len(g.txs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, SignatureInfo{Signature: g.txs[i].Signature, BlockTime: g.txs[i].BlockTime})
	}
	return out, nil
}

func (g *fakeGateway) GetTransaction(_ context.Context, signature string) (*TransactionDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.getErr != nil {
		return nil, g.getErr
	}
	for _, tx := range g.txs {
		if tx.Signature == signature {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}
