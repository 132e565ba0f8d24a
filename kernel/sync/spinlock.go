// Package sync provides the synchronization primitives used by the kernel
// core. Unlike the standard library's sync package, these primitives are
// safe to use from interrupt context and therefore must never rely on
// goroutine scheduling, channels or anything else that assumes the Go
// runtime scheduler is available.
package sync

import (
	"sync/atomic"
	"tsukuyomi/kernel/cpu"
)

var (
	// disableInterruptsFn, enableInterruptsFn and interruptsEnabledFn are
	// substituted by tests to avoid executing privileged instructions
	// outside ring 0.
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
	interruptsEnabledFn = cpu.InterruptsEnabled
	pauseFn             = cpu.Pause
)

// SetInterruptHooks overrides the functions Spinlock uses to query and
// change the calling CPU's interrupt-enable state, and the function it spins
// on while contended. It exists so that other packages' tests (notably proc,
// whose Table.Lock is a Spinlock exercised by nearly every Table method) can
// drive a Spinlock on a hosted test binary without executing privileged CLI,
// STI or PAUSE instructions. Passing a nil argument leaves that hook
// unchanged.
func SetInterruptHooks(disable, enable func(), enabled func() bool, pause func()) {
	if disable != nil {
		disableInterruptsFn = disable
	}
	if enable != nil {
		enableInterruptsFn = enable
	}
	if enabled != nil {
		interruptsEnabledFn = enabled
	}
	if pause != nil {
		pauseFn = pause
	}
}

// Spinlock is a binary lock that busy-waits until it can be acquired. It is
// safe to take from both process and interrupt context: Acquire disables
// interrupts on the calling CPU for the duration of the critical section and
// Release restores whatever interrupt state was in effect before Acquire was
// called. This is what makes it safe for an interrupt handler (e.g. the
// timer tick driving a process-table scan) and ordinary kernel code to
// contend for the same lock without deadlocking the CPU against itself.
//
// Spinlock is not reentrant: acquiring a lock already held by the calling
// context deadlocks it.
type Spinlock struct {
	state uint32

	// irqWasEnabled records whether interrupts were enabled at the point
	// Acquire disabled them, so Release knows whether to re-enable them.
	irqWasEnabled bool
}

// Acquire blocks until the lock can be acquired, disabling interrupts for
// the duration of the critical section.
func (l *Spinlock) Acquire() {
	wasEnabled := interruptsEnabledFn()
	disableInterruptsFn()

	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		pauseFn()
	}

	l.irqWasEnabled = wasEnabled
}

// TryToAcquire attempts to acquire the lock without blocking. It returns
// true if the lock was acquired, in which case interrupts are disabled
// exactly as they would be after a call to Acquire. It returns false if the
// lock was already held, in which case the interrupt state is left
// untouched.
func (l *Spinlock) TryToAcquire() bool {
	wasEnabled := interruptsEnabledFn()
	disableInterruptsFn()

	if !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		if wasEnabled {
			enableInterruptsFn()
		}
		return false
	}

	l.irqWasEnabled = wasEnabled
	return true
}

// Release relinquishes a held lock and re-enables interrupts iff they were
// enabled at the time the matching Acquire/TryToAcquire call was made.
// Calling Release while the lock is free has no effect other than
// (incorrectly) restoring interrupt state; callers must pair every Release
// with a prior successful Acquire.
func (l *Spinlock) Release() {
	wasEnabled := l.irqWasEnabled
	atomic.StoreUint32(&l.state, 0)
	if wasEnabled {
		enableInterruptsFn()
	}
}

// Held returns true if the lock is currently held by someone. It exists for
// assertions (e.g. "this must be called with the process table lock held")
// and must not be used to implement double-checked locking.
func (l *Spinlock) Held() bool {
	return atomic.LoadUint32(&l.state) != 0
}
