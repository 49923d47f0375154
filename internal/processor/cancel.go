package processor

import "sync/atomic"

// CancelToken is the cooperative cancellation flag shared by every worker of
// a run. Workers only poll it between phases.
type CancelToken struct {
	flag atomic.Bool
}

// Cancel requests cancellation. Calling it more than once is harmless.
func (t *CancelToken) Cancel() {
	t.flag.Store(true)
}

// Canceled reports whether cancellation was requested. A nil token never is.
func (t *CancelToken) Canceled() bool {
	return t != nil && t.flag.Load()
}

// Reset clears the flag. Only the run guard calls this, between runs.
func (t *CancelToken) Reset() {
	t.flag.Store(false)
}
