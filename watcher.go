package paywatch

import (
	"context"
	"sync"
)

// Watch is a live confirmation watch for one payment request. It polls the
// reconciler until the request confirms, expires, or fails fatally, then
// delivers the terminal outcome to the registered handler exactly once.
//
// States: Watching -> {Confirmed, Expired, Failed}, all terminal. The first
// verification runs immediately on start, not after the first poll interval.
type Watch struct {
	id string

	cancelOnce sync.Once
	cancelCh   chan struct{}

	deliverOnce sync.Once

	mu     sync.Mutex
	result *WatchResult

	done chan struct{}
}

func newWatch(id string) *Watch {
	return &Watch{
		id:       id,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the watched payment-request id.
func (w *Watch) ID() string {
	return w.id
}

// Cancel stops the watch without invoking the handler. At most one in-flight
// verification may still complete after Cancel returns; its result is
// discarded. Safe to call any number of times.
func (w *Watch) Cancel() {
	w.cancelOnce.Do(func() {
		close(w.cancelCh)
	})
}

// Done returns a channel closed when the watch has stopped, whether a
// terminal outcome was delivered or the watch was cancelled.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Result returns the delivered terminal outcome. ok is false while the watch
// is still running and forever after a cancellation that preempted delivery.
func (w *Watch) Result() (WatchResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.result == nil {
		return WatchResult{}, false
	}
	return *w.result, true
}

func (w *Watch) cancelled() bool {
	select {
	case <-w.cancelCh:
		return true
	default:
		return false
	}
}

func (w *Watch) deliver(handler WatchHandler, res WatchResult) {
	w.deliverOnce.Do(func() {
		w.mu.Lock()
		w.result = &res
		w.mu.Unlock()
		if handler != nil {
			handler(res)
		}
	})
}

// runWatch drives one watch to a terminal state. Runs on its own goroutine;
// multiple watches for different requests proceed fully in parallel.
func (e *Engine) runWatch(w *Watch, handler WatchHandler) {
	defer close(w.done)
	defer e.forgetWatch(w)

	for {
		req, confirmed, err := e.reconciler.verify(context.Background(), w.id)

		// Cancellation discards the result of the verification that was
		// already in flight when Cancel was called.
		if w.cancelled() {
			return
		}

		switch {
		case err != nil:
			// Fatal: the steady-state gateway-degradation path never
			// returns an error, so anything here (NotFound after a
			// sweep, an illegal transition) terminates the watch.
			w.deliver(handler, WatchResult{ID: w.id, PayerRef: req.PayerRef, Err: err})
			return

		case confirmed:
			w.deliver(handler, WatchResult{
				ID:          req.ID,
				PayerRef:    req.PayerRef,
				Status:      StatusConfirmed,
				ConfirmedAt: req.ConfirmedAt,
				TxRef:       req.MatchedTxRef,
			})
			return

		case req.Status == StatusExpired:
			w.deliver(handler, WatchResult{
				ID:        req.ID,
				PayerRef:  req.PayerRef,
				Status:    StatusExpired,
				ExpiresAt: req.ExpiresAt,
			})
			return
		}

		timer := e.clk.Timer(e.cfg.PollInterval)
		select {
		case <-timer.C:
		case <-w.cancelCh:
			timer.Stop()
			return
		}
	}
}
