package paywatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// watcher tests run against the real clock with short intervals; the mock
// clock cannot race timer registration against goroutine scheduling.

func newWatchEngine(t *testing.T, gateway LedgerGateway, timeout, poll time.Duration) *Engine {
	t.Helper()
	e, err := New(gateway, Config{
		TreasuryAddress: testTreasury,
		PaymentTimeout:  timeout,
		PollInterval:    poll,
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func awaitResult(t *testing.T, ch <-chan WatchResult) WatchResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch result")
		return WatchResult{}
	}
}

func TestWatchUnknownIDFailsSynchronously(t *testing.T) {
	e := newWatchEngine(t, newFakeGateway(), time.Minute, time.Minute)

	_, err := e.WatchPaymentConfirmation("nope", func(WatchResult) {})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWatchConfirmsOnFirstCheck(t *testing.T) {
	gateway := newFakeGateway()
	// Poll interval is deliberately enormous: confirmation must come from
	// the immediate first verification, not a timer tick.
	e := newWatchEngine(t, gateway, time.Minute, time.Hour)

	req, err := e.CreatePaymentRequest("u1", 1_000_000_000, nil)
	require.NoError(t, err)
	gateway.addTransfer("sig-pay", testTreasury, req.CreatedAt.Add(time.Millisecond), 0, 1_000_000_000)

	results := make(chan WatchResult, 2)
	w, err := e.WatchPaymentConfirmation(req.ID, func(res WatchResult) {
		results <- res
	})
	require.NoError(t, err)

	res := awaitResult(t, results)
	require.Equal(t, StatusConfirmed, res.Status)
	require.Equal(t, req.ID, res.ID)
	require.Equal(t, "u1", res.PayerRef)
	require.Equal(t, "sig-pay", res.TxRef)
	require.False(t, res.ConfirmedAt.IsZero())

	<-w.Done()
	got, ok := w.Result()
	require.True(t, ok)
	require.Equal(t, res, got)

	select {
	case extra := <-results:
		t.Fatalf("handler invoked more than once: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchConfirmsAfterPolling(t *testing.T) {
	gateway := newFakeGateway()
	e := newWatchEngine(t, gateway, time.Minute, 10*time.Millisecond)

	req, err := e.CreatePaymentRequest("u1", 500_000, nil)
	require.NoError(t, err)

	results := make(chan WatchResult, 1)
	_, err = e.WatchPaymentConfirmation(req.ID, func(res WatchResult) {
		results <- res
	})
	require.NoError(t, err)

	// Let a few empty passes elapse before the payment lands.
	time.Sleep(30 * time.Millisecond)
	gateway.addTransfer("sig-late", testTreasury, time.Now(), 0, 500_000)

	res := awaitResult(t, results)
	require.Equal(t, StatusConfirmed, res.Status)
	require.Equal(t, "sig-late", res.TxRef)
}

func TestWatchExpires(t *testing.T) {
	e := newWatchEngine(t, newFakeGateway(), 50*time.Millisecond, 10*time.Millisecond)

	req, err := e.CreatePaymentRequest("u1", 500_000, nil)
	require.NoError(t, err)

	results := make(chan WatchResult, 1)
	_, err = e.WatchPaymentConfirmation(req.ID, func(res WatchResult) {
		results <- res
	})
	require.NoError(t, err)

	res := awaitResult(t, results)
	require.Equal(t, StatusExpired, res.Status)
	require.Equal(t, req.ExpiresAt, res.ExpiresAt)
	require.NoError(t, res.Err)
}

func TestWatchFailsWhenRecordDisappears(t *testing.T) {
	gateway := newFakeGateway()
	e := newWatchEngine(t, gateway, time.Minute, 10*time.Millisecond)

	req, err := e.CreatePaymentRequest("u1", 500_000, nil)
	require.NoError(t, err)

	results := make(chan WatchResult, 1)
	_, err = e.WatchPaymentConfirmation(req.ID, func(res WatchResult) {
		results <- res
	})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	e.ledger.mu.Lock()
	delete(e.ledger.records, req.ID)
	e.ledger.mu.Unlock()

	res := awaitResult(t, results)
	require.ErrorIs(t, res.Err, ErrNotFound)
	require.Empty(t, res.Status)
}

// gatedGateway blocks signature listing until released, letting tests hold a
// verification in flight.
type gatedGateway struct {
	*fakeGateway
	release chan struct{}
}

func (g *gatedGateway) ListRecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	<-g.release
	return g.fakeGateway.ListRecentSignatures(ctx, address, limit)
}

func TestWatchCancelDiscardsInFlightResult(t *testing.T) {
	gateway := &gatedGateway{fakeGateway: newFakeGateway(), release: make(chan struct{})}
	e := newWatchEngine(t, gateway, time.Minute, time.Hour)

	req, err := e.CreatePaymentRequest("u1", 500_000, nil)
	require.NoError(t, err)
	gateway.addTransfer("sig-pay", testTreasury, time.Now(), 0, 500_000)

	var handlerCalls atomic.Int32
	w, err := e.WatchPaymentConfirmation(req.ID, func(WatchResult) {
		handlerCalls.Add(1)
	})
	require.NoError(t, err)

	// The first verification is now blocked inside the gateway. Cancel,
	// then let it complete: its result must be discarded.
	w.Cancel()
	close(gateway.release)

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	require.Equal(t, int32(0), handlerCalls.Load())
	_, ok := w.Result()
	require.False(t, ok)
}

func TestCloseStopsAllWatches(t *testing.T) {
	gateway := newFakeGateway()
	e, err := New(gateway, Config{
		TreasuryAddress: testTreasury,
		PaymentTimeout:  time.Minute,
		PollInterval:    10 * time.Millisecond,
	})
	require.NoError(t, err)

	var handlerCalls atomic.Int32
	for i := 0; i < 3; i++ {
		req, err := e.CreatePaymentRequest("u1", 500_000, nil)
		require.NoError(t, err)
		_, err = e.WatchPaymentConfirmation(req.ID, func(WatchResult) {
			handlerCalls.Add(1)
		})
		require.NoError(t, err)
	}

	e.Close()
	e.Close() // idempotent

	require.Equal(t, int32(0), handlerCalls.Load())

	_, err = e.CreatePaymentRequest("u1", 500_000, nil)
	require.ErrorIs(t, err, ErrEngineClosed)
}
