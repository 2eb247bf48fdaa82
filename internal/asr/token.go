package asr

import "sync/atomic"

// CancelToken is a one-way flag shared between a caller and one session.
// The session consults it at its cooperative checkpoints; cancellation is
// best-effort and never preemptive. A token binds to the first session that
// runs with it and is rejected by any other.
type CancelToken struct {
	requested atomic.Bool
	owner     atomic.Pointer[Session]
}

// NewCancelToken returns an unset, unbound token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Request sets the flag. Calling it again is a no-op; the flag is never
// cleared once set.
func (t *CancelToken) Request() {
	t.requested.Store(true)
}

// Requested reports whether cancellation was asked for. Cheap and
// side-effect free.
func (t *CancelToken) Requested() bool {
	return t.requested.Load()
}

func (t *CancelToken) bind(s *Session) error {
	if t.owner.CompareAndSwap(nil, s) {
		return nil
	}
	if t.owner.Load() == s {
		return nil
	}
	return ErrTokenReused
}
