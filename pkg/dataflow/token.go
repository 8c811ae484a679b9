package dataflow

import "sync/atomic"

// CancelToken signals cooperative cancellation to an in-flight computation.
// Workers poll Cancelled() at convenient points and return early when it
// reports true; the engine never terminates a worker forcibly.
//
// Each dispatch gets a fresh token. Cancelling an old token has no effect
// on a computation started after it.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns a token in the not-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel flips the token. It is safe to call from any goroutine and is
// idempotent.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}
