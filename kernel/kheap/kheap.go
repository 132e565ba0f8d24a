// Package kheap implements the kernel's own dynamic memory allocator: a
// bump allocator over a fixed virtual address window, mapping physical
// frames into that window on demand as the bump pointer advances past the
// last already-mapped page. It exists so kernel code (the process table,
// the path utility, VFS glue) has a place to allocate small, long-lived
// blocks without going through a general-purpose allocator that this
// freestanding binary does not have available.
package kheap

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/pmm"
	"tsukuyomi/kernel/mem/vmm"
	"tsukuyomi/kernel/sync"
)

var (
	mu sync.Spinlock

	windowStart uintptr
	windowEnd   uintptr
	brk         uintptr // next unused byte
	mappedEnd   uintptr // end of the highest page mapped so far (exclusive)

	mapper Mapper

	errWindowExhausted = &kernel.Error{Module: "kheap", Message: "kernel heap window exhausted"}
	errNotInitialized  = &kernel.Error{Module: "kheap", Message: "kernel heap used before Init"}
)

// Mapper is the subset of vmm.Mapper that kheap needs. It is declared here
// (rather than depending on the concrete type) purely so tests can supply a
// fake without constructing a real page table.
type Mapper interface {
	Map(virt, phys uintptr, access vmm.Access, mode vmm.Mode)
}

// FrameAllocatorFn allocates a single zeroed physical frame.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

var frameAllocFn FrameAllocatorFn

// Init reserves [windowStartAddr, windowStartAddr+size) as the kernel heap's
// virtual address window. No physical memory is mapped until Alloc actually
// needs it. size is rounded up to a page boundary.
func Init(windowStartAddr uintptr, size mem.Size, m Mapper, allocFn FrameAllocatorFn) {
	size = (size + mem.PageSize - 1) &^ (mem.PageSize - 1)

	windowStart = windowStartAddr
	windowEnd = windowStartAddr + uintptr(size)
	brk = windowStartAddr
	mappedEnd = windowStartAddr
	mapper = m
	frameAllocFn = allocFn
}

// Alloc returns size bytes of zeroed, page-backed kernel memory as a raw
// pointer. Allocations are never freed individually; the window only grows.
func Alloc(size uintptr) (uintptr, *kernel.Error) {
	mu.Acquire()
	defer mu.Release()

	if windowStart == 0 {
		return 0, errNotInitialized
	}

	addr := brk
	newBrk := brk + size
	if newBrk > windowEnd {
		return 0, errWindowExhausted
	}

	for mappedEnd < newBrk {
		frame, err := frameAllocFn()
		if err != nil {
			panic(err)
		}
		mapper.Map(mappedEnd, frame.Address(), vmm.AccessKernel, vmm.ModePanic)
		mappedEnd += uintptr(mem.PageSize)
	}

	brk = newBrk
	return addr, nil
}

// Used returns the number of bytes handed out so far. It exists for
// diagnostics.
func Used() uintptr {
	mu.Acquire()
	defer mu.Release()

	return brk - windowStart
}
