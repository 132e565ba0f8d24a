package proc

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/vmm"
)

// Fork creates a new process that is a deep copy of parent: a fresh PML4
// seeded with the kernel half, a page-by-page copy of every present user
// mapping below the kernel stack region (the user stack falls out of this
// same walk, since it too sits below that boundary), a value copy of the
// file-descriptor table and CWD, and a verbatim copy of the trap frame with
// the child's return register zeroed so it observes fork returning 0
// (spec.md §4.4 Fork). It returns the child's PID; the parent keeps running
// and never blocks.
func (t *Table) Fork(parent *Process) (int32, *kernel.Error) {
	child, err := t.Alloc()
	if err != nil {
		return 0, err
	}

	child.Name = parent.Name
	child.Parent = parent.Ref()

	pml4, err := vmm.NewAddressSpace()
	if err != nil {
		t.free(child)
		return 0, err
	}
	child.PML4Phys = pml4

	copyAddressSpace(parent, child)

	child.Files = parent.Files
	child.CWD = parent.CWD
	*child.TrapFrame = *parent.TrapFrame
	child.TrapFrame.RAX = 0

	t.Lock.Acquire()
	child.State = StateRunnable
	t.Lock.Release()

	return child.PID, nil
}

// copyAddressSpace duplicates every present user-half leaf mapping of
// parent's table into child's, mapping each in "panic" mode (the child's
// table is freshly allocated, so a collision is a bug, never an expected
// overwrite). A page-allocator failure here is out-of-memory, not a
// property of the fork itself, so it panics rather than unwinding as a
// failed fork (spec.md §4.2, §7).
func copyAddressSpace(parent, child *Process) {
	parentMapper := vmm.ForPML4(parent.PML4Phys)
	childMapper := vmm.ForPML4(child.PML4Phys)

	parentMapper.Walk(KernelStackVirtBase, func(virt, srcPhys uintptr) {
		frame, err := frameAllocFn()
		if err != nil {
			panic(err)
		}

		base := offsetMapBaseFn()
		kernel.Memcopy(base+srcPhys, base+frame.Address(), uintptr(mem.PageSize))
		childMapper.Map(virt, frame.Address(), vmm.AccessUser, vmm.ModePanic)
	})
}
