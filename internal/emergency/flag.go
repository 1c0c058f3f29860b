// File: internal/emergency/flag.go
package emergency

import "sync/atomic"

// Flag is the process-wide abort flag. It is a single atomic word so the
// watcher can always set it even when the orchestrator is stuck; no lock is
// ever taken on the read or write path.
//
// The asymmetry is deliberate: Trip is available to the whole engine, Reset
// only to an explicit operator action outside a run. The flag never
// auto-clears.
type Flag struct {
	tripped atomic.Bool
	reason  atomic.Pointer[string]
}

// NewFlag returns a cleared flag.
func NewFlag() *Flag {
	return &Flag{}
}

// Trip sets the flag. The first reason wins; later trips keep it.
func (f *Flag) Trip(reason string) {
	if f.tripped.CompareAndSwap(false, true) {
		f.reason.Store(&reason)
	}
}

// Set reports whether the flag is tripped. Lock-free.
func (f *Flag) Set() bool {
	return f.tripped.Load()
}

// Reason returns why the flag was tripped, or "" when it is clear.
func (f *Flag) Reason() string {
	if r := f.reason.Load(); r != nil {
		return *r
	}
	return ""
}

// Reset clears the flag. Operator action only; the engine itself never
// calls this during a run.
func (f *Flag) Reset() {
	f.reason.Store(nil)
	f.tripped.Store(false)
}
