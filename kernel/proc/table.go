package proc

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/sync"
)

var (
	errTableFull = &kernel.Error{Module: "proc", Message: "process table full"}
	errNoSuchRef = &kernel.Error{Module: "proc", Message: "stale or invalid process reference"}
)

// Table is the single process-table singleton: a fixed arena of
// MaxProcesses slots guarded by one spinlock (spec.md §5: "The process
// table lock globally orders all state transitions of process records").
type Table struct {
	Lock  sync.Spinlock
	slots [MaxProcesses]Process
	nextPID int32
}

// Init resets the table to all-unused slots. It exists mainly for tests;
// the zero Table is already empty and usable.
func (t *Table) Init() {
	*t = Table{}
}

// Alloc finds a free slot, marks it StateEmbryo, assigns it a fresh PID and
// bumps its generation so that any stale Ref pointing at this slot's prior
// tenant is detectable. The table lock must not already be held by the
// caller.
func (t *Table) Alloc() (*Process, *kernel.Error) {
	t.Lock.Acquire()
	defer t.Lock.Release()

	for i := range t.slots {
		p := &t.slots[i]
		if p.State == StateUnused {
			gen := p.ref.Generation + 1
			t.nextPID++

			*p = Process{}
			p.ref = Ref{Index: int32(i), Generation: gen}
			p.State = StateEmbryo
			p.PID = t.nextPID
			p.Parent = NoParent
			p.CWD = "/"

			if err := initKernelStack(p); err != nil {
				p.State = StateUnused
				return nil, err
			}
			return p, nil
		}
	}
	return nil, errTableFull
}

// free returns p to StateUnused. It is used to unwind a partially
// constructed process (e.g. fork failing to build a new address space)
// rather than leaving a permanently stuck Embryo slot.
func (t *Table) free(p *Process) {
	t.Lock.Acquire()
	p.State = StateUnused
	t.Lock.Release()
}

// Lookup resolves a Ref to its *Process, or nil if the reference is stale
// (the slot has since been reused by a different process). Callers must
// hold t.Lock.
func (t *Table) Lookup(ref Ref) *Process {
	if ref.Index < 0 || int(ref.Index) >= len(t.slots) {
		return nil
	}
	p := &t.slots[ref.Index]
	if p.ref.Generation != ref.Generation || p.State == StateUnused {
		return nil
	}
	return p
}

// Each calls fn once for every in-use slot. fn must not call back into any
// Table method that acquires t.Lock. Callers must hold t.Lock.
func (t *Table) Each(fn func(*Process)) {
	for i := range t.slots {
		if t.slots[i].State != StateUnused {
			fn(&t.slots[i])
		}
	}
}
