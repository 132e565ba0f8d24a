package vmm

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/bootinfo"
	"tsukuyomi/kernel/cpu"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/pmm"
	"unsafe"
)

var (
	// offsetMapBaseFn, frameAllocFn, readCR3Fn and flushTLBEntryFn are
	// substituted by tests so page table construction and teardown can be
	// exercised against plain Go-allocated memory instead of real physical
	// frames and privileged instructions.
	offsetMapBaseFn = bootinfo.OffsetMapBase
	frameAllocFn    FrameAllocatorFn
	readCR3Fn       = cpu.ReadCR3
	flushTLBEntryFn = cpu.FlushTLBEntry

	// kernelPML4Phys is captured once by CaptureKernelMaster and never
	// mutated afterwards; every process's PML4 is seeded from it.
	kernelPML4Phys uintptr

	errMisalignedMap  = &kernel.Error{Module: "vmm", Message: "map address not page-aligned"}
	errAlreadyMapped  = &kernel.Error{Module: "vmm", Message: "virtual address already mapped"}
	errKernelNotReady = &kernel.Error{Module: "vmm", Message: "kernel master PML4 not yet captured"}
)

// FrameAllocatorFn allocates a single zeroed physical frame for use as an
// intermediate or leaf page table.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers the allocator the Mapper uses to materialize
// missing intermediate page tables.
func SetFrameAllocator(fn FrameAllocatorFn) {
	frameAllocFn = fn
}

// SetOffsetMapBase overrides the function a Mapper uses to reach physical
// memory through the bootloader's offset map. It exists so that other
// packages' tests (notably proc's fork/exec, which drive a real Mapper
// against a parent and child address space) can run without a bootloader
// info block present.
func SetOffsetMapBase(fn func() uintptr) { offsetMapBaseFn = fn }

// SetTLBFlush overrides the function Map calls to invalidate a single
// virtual address's TLB entry.
func SetTLBFlush(fn func(uintptr)) { flushTLBEntryFn = fn }

// SetCR3Reader overrides the function ForCurrent uses to read the
// currently active page table root.
func SetCR3Reader(fn func() uintptr) { readCR3Fn = fn }

// Access selects the privilege level a mapping is visible to.
type Access uint8

const (
	// AccessKernel restricts a mapping to ring 0.
	AccessKernel Access = iota
	// AccessUser additionally sets FlagUser, making the mapping reachable
	// from ring 3.
	AccessUser
)

// Mode controls what Map does when a leaf mapping already exists.
type Mode uint8

const (
	// ModePanic treats an already-present leaf as a fatal invariant
	// violation.
	ModePanic Mode = iota
	// ModeOverwrite replaces an already-present leaf unconditionally.
	ModeOverwrite
)

// Mapper wraps the physical address of a top-level page table (PML4) and
// provides translation and construction operations against it.
type Mapper struct {
	pml4Phys uintptr
}

// ForCurrent returns a Mapper wrapping the page table currently active on
// this CPU (as reported by CR3).
func ForCurrent() Mapper {
	return Mapper{pml4Phys: readCR3Fn()}
}

// ForPML4 returns a Mapper wrapping an arbitrary top-level table, active or
// not. It is used to build or inspect a process's address space while the
// kernel's own table remains active in CR3.
func ForPML4(pml4Phys uintptr) Mapper {
	return Mapper{pml4Phys: pml4Phys}
}

// PML4 returns the physical address of the table this Mapper wraps.
func (m Mapper) PML4() uintptr {
	return m.pml4Phys
}

// CaptureKernelMaster records the currently active PML4 as the kernel's
// master table. It must be called exactly once, during boot, before any
// process address space is created. Every later NewAddressSpace call seeds
// its kernel half (PML4 indices 256..511) from this table, and the master
// itself must never be mutated afterwards: new kernel mappings created once
// a process exists are not automatically visible to that process.
func CaptureKernelMaster() {
	kernelPML4Phys = readCR3Fn()
}

// KernelMasterPML4 returns the physical address CaptureKernelMaster recorded.
// The scheduler uses it to restore the kernel's own table after a process
// yields or exits.
func KernelMasterPML4() uintptr {
	return kernelPML4Phys
}

// entryPtr returns a pointer to the idx'th entry of the table whose physical
// address is tableAddr, reached through the bootloader's offset map.
func entryPtr(tableAddr uintptr, idx uintptr) *pageTableEntry {
	return (*pageTableEntry)(unsafe.Pointer(offsetMapBaseFn() + tableAddr + idx*8))
}

func index(virt uintptr, level int) uintptr {
	return (virt >> pageLevelShifts[level]) & pageLevelIndexMask
}

// Translate walks m's table for virt and returns the physical address it
// resolves to along with the size of the page that produced the mapping. ok
// is false if virt is not mapped at all.
func (m Mapper) Translate(virt uintptr) (phys uintptr, pageSize mem.Size, ok bool) {
	tableAddr := m.pml4Phys

	for level := 0; level < pageLevels; level++ {
		pte := entryPtr(tableAddr, index(virt, level))
		if !pte.HasFlags(FlagPresent) {
			return 0, 0, false
		}

		// PS bit is only meaningful at the PDPT (level 1) and PD
		// (level 2) levels; PML4 entries always point at a PDPT and PT
		// entries (level 3) are always 4 KiB leaves.
		switch {
		case level == 1 && pte.HasFlags(FlagHugePage):
			return pte.Frame().Address() + (virt & (uintptr(Size1G) - 1)), Size1G, true
		case level == 2 && pte.HasFlags(FlagHugePage):
			return pte.Frame().Address() + (virt & (uintptr(Size2M) - 1)), Size2M, true
		case level == pageLevels-1:
			return pte.Frame().Address() + (virt & uintptr(mem.PageSize-1)), mem.PageSize, true
		}

		tableAddr = pte.Frame().Address()
	}

	return 0, 0, false
}

// Map installs a 4 KiB mapping from virt to phys in m's table, allocating
// any missing intermediate tables along the way. Both addresses must
// already be page-aligned; a misaligned call is a fatal invariant violation.
// If the leaf is already present, ModePanic treats that as fatal while
// ModeOverwrite replaces it unconditionally.
func (m Mapper) Map(virt, phys uintptr, access Access, mode Mode) {
	if virt&uintptr(mem.PageSize-1) != 0 || phys&uintptr(mem.PageSize-1) != 0 {
		panic(errMisalignedMap)
	}

	flags := FlagPresent | FlagRW
	if access == AccessUser {
		flags |= FlagUser
	}

	tableAddr := m.pml4Phys
	for level := 0; level < pageLevels-1; level++ {
		pte := entryPtr(tableAddr, index(virt, level))

		if !pte.HasFlags(FlagPresent) {
			frame, err := frameAllocFn()
			if err != nil {
				panic(err)
			}
			kernel.Memset(offsetMapBaseFn()+frame.Address(), 0, uintptr(mem.PageSize))

			*pte = 0
			pte.SetFrame(frame)
			// Intermediate entries always carry FlagUser so a user
			// mapping further down the tree remains reachable even
			// when the table above it was allocated by kernel code.
			pte.SetFlags(FlagPresent | FlagRW | FlagUser)
		}

		tableAddr = pte.Frame().Address()
	}

	leaf := entryPtr(tableAddr, index(virt, pageLevels-1))
	if leaf.HasFlags(FlagPresent) && mode == ModePanic {
		panic(errAlreadyMapped)
	}

	*leaf = 0
	leaf.SetFrame(pmm.FrameFromAddress(phys))
	leaf.SetFlags(flags)

	flushTLBEntryFn(virt)
}

// Walk calls fn once for every present 4 KiB leaf mapping in m's table at a
// virtual address strictly below limit, restricted to PML4 indices 0..255
// (the user half). It is fork's building block for deep-copying a process's
// address space: huge-page leaves are skipped since Map never creates one.
func (m Mapper) Walk(limit uintptr, fn func(virt, phys uintptr)) {
	for pml4i := uintptr(0); pml4i < 256; pml4i++ {
		pml4e := entryPtr(m.pml4Phys, pml4i)
		if !pml4e.HasFlags(FlagPresent) {
			continue
		}
		pdptAddr := pml4e.Frame().Address()

		for pdpti := uintptr(0); pdpti < 512; pdpti++ {
			pdpte := entryPtr(pdptAddr, pdpti)
			if !pdpte.HasFlags(FlagPresent) || pdpte.HasFlags(FlagHugePage) {
				continue
			}
			pdAddr := pdpte.Frame().Address()

			for pdi := uintptr(0); pdi < 512; pdi++ {
				pde := entryPtr(pdAddr, pdi)
				if !pde.HasFlags(FlagPresent) || pde.HasFlags(FlagHugePage) {
					continue
				}
				ptAddr := pde.Frame().Address()

				for pti := uintptr(0); pti < 512; pti++ {
					pte := entryPtr(ptAddr, pti)
					if !pte.HasFlags(FlagPresent) {
						continue
					}
					virt := (pml4i << 39) | (pdpti << 30) | (pdi << 21) | (pti << 12)
					if virt >= limit {
						continue
					}
					fn(virt, pte.Frame().Address())
				}
			}
		}
	}
}

// NewAddressSpace allocates a fresh PML4 and copies the kernel half
// (indices 256..511) from the captured master table into it, satisfying the
// invariant that every process maps the kernel identically to the kernel's
// own table. It returns an error if CaptureKernelMaster has not been called
// yet, and panics if the frame allocator cannot supply the new PML4.
func NewAddressSpace() (uintptr, *kernel.Error) {
	if kernelPML4Phys == 0 {
		return 0, errKernelNotReady
	}

	frame, err := frameAllocFn()
	if err != nil {
		panic(err)
	}
	pml4Phys := frame.Address()
	kernel.Memset(offsetMapBaseFn()+pml4Phys, 0, uintptr(mem.PageSize))

	for idx := uintptr(256); idx < 512; idx++ {
		src := entryPtr(kernelPML4Phys, idx)
		dst := entryPtr(pml4Phys, idx)
		*dst = *src
	}

	return pml4Phys, nil
}
