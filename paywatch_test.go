package paywatch

import (
	"context"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{TreasuryAddress: testTreasury})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(newFakeGateway(), Config{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := Config{TreasuryAddress: testTreasury}.withDefaults()
	require.NoError(t, err)
	require.Equal(t, DefaultPaymentTimeout, cfg.PaymentTimeout)
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
	require.Equal(t, DefaultMatchTolerance, cfg.MatchTolerance)
	require.Equal(t, DefaultSignatureWindow, cfg.SignatureWindow)

	cfg, err = Config{
		TreasuryAddress: testTreasury,
		PaymentTimeout:  time.Hour,
		PollInterval:    time.Second,
		MatchTolerance:  5,
		SignatureWindow: 25,
	}.withDefaults()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.PaymentTimeout)
	require.Equal(t, time.Second, cfg.PollInterval)
	require.Equal(t, uint64(5), cfg.MatchTolerance)
	require.Equal(t, 25, cfg.SignatureWindow)
}

type engineFixture struct {
	engine  *Engine
	gateway *fakeGateway
	mock    *clock.Mock
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()
	mock := clock.NewMock()
	gateway := newFakeGateway()
	opts = append([]Option{WithClock(mock)}, opts...)
	e, err := New(gateway, Config{TreasuryAddress: testTreasury}, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return &engineFixture{engine: e, gateway: gateway, mock: mock}
}

func TestEngineCreateReturnsAddressAndExpiry(t *testing.T) {
	f := newEngineFixture(t)

	req, err := f.engine.CreatePaymentRequest("u1", 1_000_000_000, nil)
	require.NoError(t, err)
	require.Equal(t, testTreasury, req.Address)
	require.Equal(t, f.engine.TreasuryAddress(), req.Address)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, req.CreatedAt.Add(DefaultPaymentTimeout), req.ExpiresAt)
}

func TestEngineCheckStatusUnknown(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.CheckPaymentStatus(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEngineExpiryIsFinal(t *testing.T) {
	var expirations []string
	f := newEngineFixture(t, WithOnExpiredHook(func(ctx ExpireContext) {
		expirations = append(expirations, ctx.Request.ID)
	}))

	req, err := f.engine.CreatePaymentRequest("u1", 700_000, nil)
	require.NoError(t, err)

	f.mock.Add(DefaultPaymentTimeout + time.Second)
	confirmed, err := f.engine.CheckPaymentStatus(context.Background(), req.ID)
	require.NoError(t, err)
	require.False(t, confirmed)
	require.Equal(t, []string{req.ID}, expirations)

	// A perfectly matching payment after expiry never flips the record.
	f.gateway.addTransfer("sig-late", testTreasury, f.mock.Now(), 0, 700_000)
	for i := 0; i < 3; i++ {
		confirmed, err = f.engine.CheckPaymentStatus(context.Background(), req.ID)
		require.NoError(t, err)
		require.False(t, confirmed)
	}
}

func TestEngineListPendingPayments(t *testing.T) {
	f := newEngineFixture(t)

	first, _ := f.engine.CreatePaymentRequest("u1", 500, nil)
	f.mock.Add(time.Minute)
	second, _ := f.engine.CreatePaymentRequest("u1", 500, nil)

	got := f.engine.ListPendingPayments("u1")
	require.Len(t, got, 2)
	require.Equal(t, []string{first.ID, second.ID}, []string{got[0].ID, got[1].ID})
}

func TestEngineSweep(t *testing.T) {
	var sweeps []SweepContext
	f := newEngineFixture(t, WithOnSweptHook(func(ctx SweepContext) {
		sweeps = append(sweeps, ctx)
	}))

	confirmedReq, _ := f.engine.CreatePaymentRequest("u1", 500, nil)
	_, err := f.engine.ledger.Transition(confirmedReq.ID, Outcome{Status: StatusConfirmed, TxRef: "sig-1"})
	require.NoError(t, err)
	pendingReq, _ := f.engine.CreatePaymentRequest("u1", 600, nil)

	f.mock.Add(25 * time.Hour)
	removed := f.engine.SweepExpiredPayments(24 * time.Hour)
	require.Equal(t, 1, removed)
	require.Len(t, sweeps, 1)
	require.Equal(t, confirmedReq.ID, sweeps[0].Removed[0].ID)

	_, err = f.engine.ledger.Get(pendingReq.ID)
	require.NoError(t, err)
}

func TestEngineConfirmedHookAndZapStyleConsumers(t *testing.T) {
	var confirmed []ConfirmContext
	f := newEngineFixture(t, WithOnConfirmedHook(func(ctx ConfirmContext) {
		confirmed = append(confirmed, ctx)
	}))

	req, _ := f.engine.CreatePaymentRequest("u1", 700_000, nil)
	f.mock.Add(time.Minute)
	f.gateway.addTransfer("sig-pay", testTreasury, f.mock.Now(), 0, 700_000)

	ok, err := f.engine.CheckPaymentStatus(context.Background(), req.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, confirmed, 1)
	require.Equal(t, "sig-pay", confirmed[0].Request.MatchedTxRef)
}

func TestEngineCustomMatchEngine(t *testing.T) {
	// A strategy that refuses everything: even a perfect transfer must not
	// confirm, proving the matcher is injected by composition.
	refuse := matchFunc(func(PaymentRequest, []TransactionDetail) (string, bool) {
		return "", false
	})
	f := newEngineFixture(t, WithMatchEngine(refuse))

	req, _ := f.engine.CreatePaymentRequest("u1", 700_000, nil)
	f.mock.Add(time.Minute)
	f.gateway.addTransfer("sig-pay", testTreasury, f.mock.Now(), 0, 700_000)

	ok, err := f.engine.CheckPaymentStatus(context.Background(), req.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

type matchFunc func(PaymentRequest, []TransactionDetail) (string, bool)

func (f matchFunc) Match(req PaymentRequest, txs []TransactionDetail) (string, bool) {
	return f(req, txs)
}
