// Package solanarpc implements paywatch.LedgerGateway over a Solana
// JSON-RPC endpoint using the gagliardetto/solana-go client.
package solanarpc

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/paywatch/paywatch"
)

// Gateway translates the engine's gateway contract into Solana RPC calls.
// It reads signature history and transaction meta only and never submits
// transactions, so any standard RPC node works.
type Gateway struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

// New creates a gateway against the given RPC endpoint, observing at
// confirmed commitment.
func New(endpoint string) *Gateway {
	return NewWithClient(rpc.New(endpoint))
}

// NewWithClient wraps an existing RPC client, for callers sharing one client
// across subsystems or injecting custom transports.
func NewWithClient(client *rpc.Client) *Gateway {
	return &Gateway{
		client:     client,
		commitment: rpc.CommitmentConfirmed,
	}
}

// ListRecentSignatures returns up to limit signatures involving address,
// most recent first, as reported by getSignaturesForAddress.
func (g *Gateway) ListRecentSignatures(ctx context.Context, address string, limit int) ([]paywatch.SignatureInfo, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	sigs, err := g.client.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: g.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress: %w", err)
	}

	out := make([]paywatch.SignatureInfo, 0, len(sigs))
	for _, sig := range sigs {
		info := paywatch.SignatureInfo{Signature: sig.Signature.String()}
		if sig.BlockTime != nil {
			t := sig.BlockTime.Time()
			info.BlockTime = &t
		}
		out = append(out, info)
	}
	return out, nil
}

// GetTransaction resolves one signature to the engine's transaction view.
// Transactions the node does not know return (nil, nil) so the engine skips
// them, as do transactions whose payload cannot be decoded.
func (g *Gateway) GetTransaction(ctx context.Context, signature string) (*paywatch.TransactionDetail, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	res, err := g.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     g.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getTransaction: %w", err)
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, nil
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil || tx == nil {
		// Undecodable payload is a data-shape anomaly, not a transport
		// failure; skip it.
		return nil, nil
	}

	detail := &paywatch.TransactionDetail{
		Signature: signature,
		Succeeded: res.Meta.Err == nil,
		Balances:  make(map[string]paywatch.BalanceDelta),
	}
	if res.BlockTime != nil {
		t := res.BlockTime.Time()
		detail.BlockTime = &t
	}

	// Balance arrays are indexed by the full account list: static message
	// keys followed by addresses loaded from lookup tables.
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, res.Meta.LoadedAddresses.Writable...)
	keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)

	for i, key := range keys {
		if i >= len(res.Meta.PreBalances) || i >= len(res.Meta.PostBalances) {
			break
		}
		detail.Balances[key.String()] = paywatch.BalanceDelta{
			Pre:  res.Meta.PreBalances[i],
			Post: res.Meta.PostBalances[i],
		}
	}
	return detail, nil
}
