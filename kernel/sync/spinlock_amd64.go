// Package sync provides synchronization primitives for code that must run
// before the Go runtime's own scheduler is usable, and for the kernel
// scheduler's own internal bookkeeping.
package sync

import "sync/atomic"

var (
	// yieldFn is invoked by Spinlock.Acquire while busy-waiting so the
	// scheduler can run other ready threads instead of spinning the CPU.
	// It is nil until kernel/sched installs it.
	yieldFn func()
)

// SetYieldFn installs the function Spinlock.Acquire calls while busy-waiting
// for a contended lock. The scheduler calls this once it can usefully
// context-switch away from the waiting thread.
func SetYieldFn(fn func()) {
	yieldFn = fn
}

// Spinlock implements a lock where each thread trying to acquire it
// busy-waits until the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// thread. Re-acquiring a lock already held by the current thread deadlocks.
func (l *Spinlock) Acquire() {
	archAcquireSpinlock(&l.state, 1)
}

// TryToAcquire attempts to acquire the lock and returns true if it could be
// acquired, or false if it is already held.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock, allowing other threads to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archAcquireSpinlock is the arch-specific spin loop; it calls yieldFn (when
// installed) after attemptsBeforeYielding failed CAS attempts.
func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32)
