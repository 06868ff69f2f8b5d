// Package paywatch reconciles incoming transfers on a Solana-style ledger
// against previously issued payment requests, using a single shared treasury
// address and no third-party notification service.
//
// The engine tracks every request from creation through confirmation or
// expiry: callers create a request, hand the returned address and amount to
// the payer, and either poll CheckPaymentStatus or register a confirmation
// watch that polls the ledger gateway until the transfer lands or the
// request times out.
package paywatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
)

// Defaults for the optional configuration knobs.
const (
	DefaultPaymentTimeout  = 30 * time.Minute
	DefaultPollInterval    = 15 * time.Second
	DefaultMatchTolerance  = uint64(1000)
	DefaultSignatureWindow = 10
)

// Config carries the engine configuration. TreasuryAddress is required;
// every other field falls back to its default when left zero.
type Config struct {
	// TreasuryAddress is the shared receiving address all payment
	// requests direct transfers to.
	TreasuryAddress string

	// PaymentTimeout is how long a request stays payable after creation.
	PaymentTimeout time.Duration

	// PollInterval is the delay between watcher verification passes.
	PollInterval time.Duration

	// MatchTolerance is the exclusive bound, in minimal units, on the
	// difference between an observed balance delta and the expected
	// amount. Absorbs fee-induced variance from the source wallet.
	MatchTolerance uint64

	// SignatureWindow is the number of recent signatures fetched per
	// verification pass.
	SignatureWindow int
}

func (c Config) withDefaults() (Config, error) {
	if c.TreasuryAddress == "" {
		return c, fmt.Errorf("treasury address is required: %w", ErrInvalidArgument)
	}
	if c.PaymentTimeout == 0 {
		c.PaymentTimeout = DefaultPaymentTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MatchTolerance == 0 {
		c.MatchTolerance = DefaultMatchTolerance
	}
	if c.SignatureWindow == 0 {
		c.SignatureWindow = DefaultSignatureWindow
	}
	if c.PaymentTimeout < 0 || c.PollInterval < 0 || c.SignatureWindow < 0 {
		return c, fmt.Errorf("durations and limits must be positive: %w", ErrInvalidArgument)
	}
	return c, nil
}

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithClock injects the clock used for timestamps, expiry checks and watch
// scheduling. Tests pass clock.NewMock() for deterministic time.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		e.clk = clk
	}
}

// WithMatchEngine replaces the default AmountMatcher with a custom matching
// strategy.
func WithMatchEngine(m MatchEngine) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// Engine is the caller-facing surface of the payment-request lifecycle and
// ledger-reconciliation core.
type Engine struct {
	cfg     Config
	clk     clock.Clock
	matcher MatchEngine
	hooks   hookSet

	ledger     *PaymentLedger
	reconciler *Reconciler

	mu      sync.Mutex
	watches map[*Watch]struct{}
	closed  bool
}

// New creates an engine over the given ledger gateway.
func New(gateway LedgerGateway, cfg Config, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, fmt.Errorf("ledger gateway is required: %w", ErrInvalidArgument)
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		clk:     clock.New(),
		watches: make(map[*Watch]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.matcher == nil {
		e.matcher = AmountMatcher{
			TreasuryAddress: cfg.TreasuryAddress,
			Tolerance:       cfg.MatchTolerance,
		}
	}

	e.ledger = NewPaymentLedger(e.clk, cfg.TreasuryAddress, cfg.PaymentTimeout)
	e.ledger.notifyExpired = func(req PaymentRequest) {
		e.hooks.expired(ExpireContext{Request: req})
	}
	e.reconciler = NewReconciler(e.ledger, gateway, e.matcher, cfg.TreasuryAddress, cfg.SignatureWindow)
	e.reconciler.hooks = &e.hooks
	return e, nil
}

// TreasuryAddress returns the shared receiving address.
func (e *Engine) TreasuryAddress() string {
	return e.cfg.TreasuryAddress
}

// CreatePaymentRequest issues a new pending request for payerRef over amount
// minimal units. metadata is stored opaquely and returned with the record.
func (e *Engine) CreatePaymentRequest(payerRef string, amount uint64, metadata map[string]string) (PaymentRequest, error) {
	if e.isClosed() {
		return PaymentRequest{}, ErrEngineClosed
	}
	return e.ledger.Create(payerRef, amount, metadata)
}

// CheckPaymentStatus runs one verification pass and reports whether the
// request is confirmed. Returns ErrNotFound for an unknown id; gateway
// failures degrade to false and surface through the gateway-error hooks.
func (e *Engine) CheckPaymentStatus(ctx context.Context, id string) (bool, error) {
	if e.isClosed() {
		return false, ErrEngineClosed
	}
	return e.reconciler.Verify(ctx, id)
}

// WatchPaymentConfirmation starts a confirmation watch for id. The handler
// receives the terminal outcome exactly once, unless the watch is cancelled
// first. An unknown id fails synchronously with ErrNotFound.
func (e *Engine) WatchPaymentConfirmation(id string, handler WatchHandler) (*Watch, error) {
	if _, err := e.ledger.Get(id); err != nil {
		return nil, err
	}

	w := newWatch(id)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.watches[w] = struct{}{}
	e.mu.Unlock()

	go e.runWatch(w, handler)
	return w, nil
}

// ListPendingPayments returns payerRef's pending, unexpired requests ordered
// by creation time ascending.
func (e *Engine) ListPendingPayments(payerRef string) []PaymentRequest {
	return e.ledger.ListPending(payerRef)
}

// SweepExpiredPayments deletes terminal records older than retention and
// returns how many were removed. The engine never sweeps on its own
// schedule; callers invoke this periodically.
func (e *Engine) SweepExpiredPayments(retention time.Duration) int {
	removed := e.ledger.Sweep(retention)
	if len(removed) > 0 || len(e.hooks.onSwept) > 0 {
		e.hooks.swept(SweepContext{Retention: retention, Removed: removed})
	}
	return len(removed)
}

// Close cancels every live watch and waits for their goroutines to stop.
// Handlers of cancelled watches are not invoked. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	live := make([]*Watch, 0, len(e.watches))
	for w := range e.watches {
		live = append(live, w)
	}
	e.mu.Unlock()

	for _, w := range live {
		w.Cancel()
	}
	for _, w := range live {
		<-w.Done()
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) forgetWatch(w *Watch) {
	e.mu.Lock()
	delete(e.watches, w)
	e.mu.Unlock()
}
