package sdoclient

import "time"

// Timer is the one-shot, idempotently re-armable timeout facility the
// state machine needs (the "Timeout Arm" component). It is the
// event-loop/timer-facility collaborator the transaction core is bound
// to, kept as an interface rather than hardwired to [time.Timer] so
// tests can substitute a fake clock and exercise the timeout scenario
// without a real sleep.
//
// Grounded on the restartTimeoutTimer/timeoutHandler idiom in the
// heartbeat consumer: time.AfterFunc on first arm, Reset on every
// subsequent one.
type Timer interface {
	// Start arms the timer to fire fn after d, replacing any previously
	// armed deadline.
	Start(d time.Duration, fn func())
	// Stop disarms the timer. Safe to call when already disarmed.
	Stop()
}

// realTimer is the default [Timer], backed by [time.Timer].
type realTimer struct {
	t *time.Timer
}

// NewTimer returns the default [Timer], backed by [time.AfterFunc].
func NewTimer() Timer {
	return &realTimer{}
}

func (r *realTimer) Start(d time.Duration, fn func()) {
	if r.t == nil {
		r.t = time.AfterFunc(d, fn)
		return
	}
	r.t.Reset(d)
}

func (r *realTimer) Stop() {
	if r.t != nil {
		r.t.Stop()
	}
}
