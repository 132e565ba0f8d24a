package proc

// callerLock is the minimal interface Sleep needs from whatever lock a
// blocking driver (a TTY/UART ring buffer, wait-for-child) is holding when
// it calls Sleep. sync.Spinlock satisfies it.
type callerLock interface {
	Acquire()
	Release()
}

// Sleep puts p to sleep on channel, following the hand-off protocol
// spec.md §4.4 describes to avoid lost wake-ups: if callerLock is not
// t.Lock itself, t.Lock is acquired and callerLock released (in that
// order) before p is marked sleeping, and the reverse happens on the way
// back out. c is the CPU p is currently running on; Sleep returns once p
// has been woken and rescheduled.
func (t *Table) Sleep(c *CPU, p *Process, channel uint64, caller callerLock) {
	isTableLock := caller == callerLock(&t.Lock)
	if !isTableLock {
		t.Lock.Acquire()
		caller.Release()
	}

	p.WaitChannel = channel
	p.State = StateSleeping
	switchContextFn(&p.context, c.schedulerContext)

	p.WaitChannel = 0

	if !isTableLock {
		t.Lock.Release()
		caller.Acquire()
	}
}

// Awaken promotes every sleeping process waiting on channel to runnable.
// Spurious or duplicate wakes are harmless: a process not actually
// sleeping on that channel is simply not found by the scan.
func (t *Table) Awaken(channel uint64) {
	t.Lock.Acquire()
	defer t.Lock.Release()
	t.wakeupLocked(channel)
}

// wakeupLocked is Awaken's body for callers that already hold t.Lock, such
// as Exit waking a parent it is still holding the table lock for.
func (t *Table) wakeupLocked(channel uint64) {
	t.Each(func(p *Process) {
		if p.State == StateSleeping && p.WaitChannel == channel {
			p.State = StateRunnable
		}
	})
}
