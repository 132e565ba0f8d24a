package proc

import "unsafe"

type lifecycleError struct{ msg string }

func (e *lifecycleError) Error() string { return e.msg }

// channelFor is the wait-channel value used for "a child of p changed
// state" notifications: by spec.md convention, the address of the process
// record itself.
func channelFor(p *Process) uint64 {
	return uint64(uintptr(unsafe.Pointer(p)))
}

// Exit marks p a zombie, records its exit status, wakes its parent (if
// still live) on the channel equal to the parent's own process-record
// address, then switches away. switch_context must never return here:
// spec.md calls a return from this switch a fatal invariant violation, so
// the trap/syscall path that calls Exit must never execute any code after
// it.
func (t *Table) Exit(c *CPU, p *Process, status int32) {
	t.Lock.Acquire()
	p.ExitStatus = status
	p.State = StateZombie
	if parent := t.Lookup(p.Parent); parent != nil {
		t.wakeupLocked(channelFor(parent))
	}

	switchContextFn(&p.context, c.schedulerContext)
	panic(&lifecycleError{"switch_context returned after Exit"})
}

// Wait scans for a child of p; if one is a zombie it is reaped (its PID
// and status returned, its slot freed) immediately. If p has children but
// none are zombies, Wait blocks via Sleep until Awaken(channelFor(p))
// fires, then rescans. If p has no children at all, it returns NoChild
// without blocking. Reclaiming a reaped zombie's pages, page table, kernel
// stack and FD table is left undone on purpose: spec.md §9 documents this
// as an inherited open question rather than a defined teardown.
func (t *Table) Wait(c *CPU, p *Process) (pid int32, status int32) {
	t.Lock.Acquire()
	for {
		haveChild := false
		var reaped *Process
		t.Each(func(candidate *Process) {
			if reaped != nil || !candidate.IsChildOf(p) {
				return
			}
			haveChild = true
			if candidate.State == StateZombie {
				reaped = candidate
			}
		})

		if reaped != nil {
			pid, status = reaped.PID, reaped.ExitStatus
			ref := reaped.ref
			*reaped = Process{}
			reaped.ref = ref
			t.Lock.Release()
			return pid, status
		}
		if !haveChild {
			t.Lock.Release()
			return NoChild, 0
		}

		t.Sleep(c, p, channelFor(p), &t.Lock)
	}
}
