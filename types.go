package paywatch

import "time"

// Status is the lifecycle state of a payment request. Transitions are
// monotonic: pending -> confirmed or pending -> expired, nothing leaves a
// terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusExpired
}

// PaymentRequest is one expected incoming transfer to the treasury address.
// Records are owned by the PaymentLedger; callers always receive copies.
type PaymentRequest struct {
	// ID is the opaque request identifier, unique for the process lifetime.
	ID string

	// PayerRef identifies the party expected to pay. Caller-supplied and
	// not validated beyond being non-empty.
	PayerRef string

	// Address is the shared treasury receiving address the payer should
	// transfer to. The same for every request of an engine.
	Address string

	// ExpectedAmount is the transfer amount in the ledger's minimal unit
	// (lamports for Solana). Always positive.
	ExpectedAmount uint64

	Status Status

	CreatedAt time.Time
	ExpiresAt time.Time

	// ConfirmedAt and MatchedTxRef are set only when Status is confirmed.
	ConfirmedAt  time.Time
	MatchedTxRef string

	// Metadata is an opaque caller-supplied payload, never interpreted by
	// the engine.
	Metadata map[string]string
}

// WatchResult is the terminal outcome delivered by a confirmation watch.
// Exactly one result is delivered per watch unless it is cancelled first.
type WatchResult struct {
	ID       string
	PayerRef string
	Status   Status

	// ConfirmedAt and TxRef are set when Status is confirmed.
	ConfirmedAt time.Time
	TxRef       string

	// ExpiresAt is set when Status is expired.
	ExpiresAt time.Time

	// Err is set when the watch failed fatally (for example the request id
	// was deleted by a sweep mid-watch). Status is empty in that case.
	Err error
}

// WatchHandler receives the terminal outcome of a confirmation watch.
type WatchHandler func(WatchResult)
