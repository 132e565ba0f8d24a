package proc

// Run executes the scheduler loop forever: enable interrupts, acquire the
// process table lock, scan every slot once switching into each runnable
// process in turn, then release the lock and repeat. It never returns.
func (t *Table) Run(c *CPU) {
	for {
		t.scanOnce(c)
	}
}

// scanOnce performs exactly one acquire/scan/release cycle. It is the body
// of Run, split out so tests can drive the scheduler deterministically
// instead of looping forever.
func (t *Table) scanOnce(c *CPU) {
	enableInterruptsFn()

	t.Lock.Acquire()
	defer t.Lock.Release()

	for i := range t.slots {
		p := &t.slots[i]
		if p.State != StateRunnable {
			continue
		}

		p.State = StateRunning
		c.Current = p
		c.GDT.SetKernelStack(p.KernelStackTop)
		activatePageTableFn(p.PML4Phys)

		switchContextFn(&c.schedulerContext, p.context)

		// p ran and yielded/slept/exited back to us; the kernel's own
		// address space is active again only once we explicitly
		// restore it, since exec/fork may have left p's table active.
		activatePageTableFn(kernelPML4PhysFn())
		c.Current = nil
	}
}

// kernelPML4PhysFn lets tests supply a fake "kernel" page table root
// instead of reading the real captured one.
var kernelPML4PhysFn = func() uintptr { return 0 }

// SetKernelPML4Source installs the function the scheduler calls to find
// the kernel master PML4 to restore after a process yields.
func SetKernelPML4Source(fn func() uintptr) { kernelPML4PhysFn = fn }

// Yield voluntarily gives up the CPU: the calling process (which must be
// Running) is demoted to Runnable and control switches back to the
// scheduler context. It returns once this process is rescheduled.
func (t *Table) Yield(c *CPU, p *Process) {
	t.Lock.Acquire()
	p.State = StateRunnable
	switchContextFn(&p.context, c.schedulerContext)
	t.Lock.Release()
}
