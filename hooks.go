package paywatch

import (
	"time"
)

// ============================================================================
// Hook Context Types
// ============================================================================

// GatewayErrorContext is passed to gateway-error hooks. Gateway failures are
// never surfaced from the steady-state verification path; this side channel
// is how operators detect sustained outages.
type GatewayErrorContext struct {
	RequestID string
	PayerRef  string
	Err       *GatewayError
	Timestamp time.Time
}

// ConfirmContext is passed to confirmation hooks after a request reaches
// StatusConfirmed.
type ConfirmContext struct {
	Request PaymentRequest
}

// ExpireContext is passed to expiry hooks after a request reaches
// StatusExpired.
type ExpireContext struct {
	Request PaymentRequest
}

// VerifyContext is passed to after-verify hooks on every completed
// verification pass, confirmed or not.
type VerifyContext struct {
	RequestID string
	Confirmed bool
	Duration  time.Duration
}

// SweepContext is passed to sweep hooks after each reclamation pass.
type SweepContext struct {
	Retention time.Duration
	Removed   []PaymentRequest
}

// ============================================================================
// Hook Function Types
// ============================================================================

// OnGatewayErrorHook is called when a LedgerGateway call fails during
// verification. The verify pass itself degrades to "not yet confirmed" and
// is retried on the next poll tick.
type OnGatewayErrorHook func(GatewayErrorContext)

// OnConfirmedHook is called once when a request transitions to confirmed.
type OnConfirmedHook func(ConfirmContext)

// OnExpiredHook is called once when a request transitions to expired,
// whichever read performed the lazy expiry check.
type OnExpiredHook func(ExpireContext)

// AfterVerifyHook is called after every verification pass with its duration.
type AfterVerifyHook func(VerifyContext)

// OnSweptHook is called after each sweep pass with the removed records.
type OnSweptHook func(SweepContext)

// hookSet holds all registered hooks. Hooks run synchronously on the calling
// goroutine; slow consumers should hand off internally.
type hookSet struct {
	onGatewayError []OnGatewayErrorHook
	onConfirmed    []OnConfirmedHook
	onExpired      []OnExpiredHook
	afterVerify    []AfterVerifyHook
	onSwept        []OnSweptHook
}

func (h *hookSet) gatewayError(ctx GatewayErrorContext) {
	for _, hook := range h.onGatewayError {
		hook(ctx)
	}
}

func (h *hookSet) confirmed(ctx ConfirmContext) {
	for _, hook := range h.onConfirmed {
		hook(ctx)
	}
}

func (h *hookSet) expired(ctx ExpireContext) {
	for _, hook := range h.onExpired {
		hook(ctx)
	}
}

func (h *hookSet) verified(ctx VerifyContext) {
	for _, hook := range h.afterVerify {
		hook(ctx)
	}
}

func (h *hookSet) swept(ctx SweepContext) {
	for _, hook := range h.onSwept {
		hook(ctx)
	}
}

// ============================================================================
// Hook Registration Options
// ============================================================================

// WithOnGatewayErrorHook registers a hook for gateway failures.
func WithOnGatewayErrorHook(hook OnGatewayErrorHook) Option {
	return func(e *Engine) {
		e.hooks.onGatewayError = append(e.hooks.onGatewayError, hook)
	}
}

// WithOnConfirmedHook registers a hook for confirmed requests.
func WithOnConfirmedHook(hook OnConfirmedHook) Option {
	return func(e *Engine) {
		e.hooks.onConfirmed = append(e.hooks.onConfirmed, hook)
	}
}

// WithOnExpiredHook registers a hook for expired requests.
func WithOnExpiredHook(hook OnExpiredHook) Option {
	return func(e *Engine) {
		e.hooks.onExpired = append(e.hooks.onExpired, hook)
	}
}

// WithAfterVerifyHook registers a hook observing every verification pass.
func WithAfterVerifyHook(hook AfterVerifyHook) Option {
	return func(e *Engine) {
		e.hooks.afterVerify = append(e.hooks.afterVerify, hook)
	}
}

// WithOnSweptHook registers a hook observing sweep passes.
func WithOnSweptHook(hook OnSweptHook) Option {
	return func(e *Engine) {
		e.hooks.onSwept = append(e.hooks.onSwept, hook)
	}
}
