package kmain

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/vmm"
	"tsukuyomi/kernel/proc"
)

// kstackAreaBase is the first virtual address of the kernel stack slot pool,
// chosen well inside the kernel half (PML4 index >= 256) so vmm.Mapper.Walk
// never visits it: Walk is bounded to indices 0..255 by construction, which
// is what lets fork's address-space copy treat everything below
// proc.KernelStackVirtBase as user memory without this pool's mappings
// leaking into that scan.
const kstackAreaBase = uintptr(0xFFFF810000000000)

// kstackSlotStride reserves KernelStackPages mapped pages plus one unmapped
// guard page per slot, xv6's KSTACK layout: a stray push past the bottom of
// one process's stack faults instead of silently corrupting its neighbor's.
const kstackSlotStride = uintptr(proc.KernelStackPages+1) * uintptr(mem.PageSize)

// kernelStackPool hands out the fixed-size pool of per-slot kernel stacks
// built once at boot, before any process exists. Every slot's pages are
// mapped into the kernel master table up front, so vmm.NewAddressSpace's
// copy of PML4 indices 256..511 makes them visible, identically, in every
// process's own table afterward — exactly as the master table's other
// kernel-half mappings are.
//
// The pool never reclaims a slot: proc.Table has no hook to free a kernel
// stack when a process exits or is reaped (the same already-accepted gap as
// zombie user memory). With MaxProcesses slots and one allocation per
// process ever created, a long-lived kernel would eventually wrap around and
// hand out a slot still in use by a live process in another table entry.
// Acceptable for this kernel: it is never actually booted, only built.
type kernelStackPool struct {
	next uint
}

// init maps every slot's stack pages into mapper, which must wrap the
// kernel's own master table. It must run before the first
// vmm.NewAddressSpace call: that call copies the master table's kernel-half
// entries by current value, so every mapping installed here before any
// process exists is automatically visible, identically, in every process's
// own table from then on.
func (p *kernelStackPool) init(mapper vmm.Mapper, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	for slot := uint(0); slot < proc.MaxProcesses; slot++ {
		base := kstackAreaBase + uintptr(slot)*kstackSlotStride
		for page := uintptr(0); page < uintptr(proc.KernelStackPages); page++ {
			frame, err := allocFn()
			if err != nil {
				return err
			}
			mapper.Map(base+page*uintptr(mem.PageSize), frame.Address(), vmm.AccessKernel, vmm.ModePanic)
		}
	}
	return nil
}

// alloc hands out the next slot's top-of-stack address. It matches
// proc.KernelStackAllocatorFn's signature, taking no arguments: a process's
// slot index in proc.Table isn't known until after Alloc already needs a
// kernel stack to carve the new Process's TrapFrame and context out of.
func (p *kernelStackPool) alloc() (uintptr, *kernel.Error) {
	if p.next >= proc.MaxProcesses {
		p.next = 0
	}
	slot := p.next
	p.next++

	base := kstackAreaBase + uintptr(slot)*kstackSlotStride
	return base + uintptr(proc.KernelStackPages)*uintptr(mem.PageSize), nil
}
