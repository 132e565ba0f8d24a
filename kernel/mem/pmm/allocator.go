package pmm

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/bootinfo"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/sync"
	"unsafe"
)

var (
	errOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

	// offsetMapBaseFn and visitMemRegionsFn are substituted by tests so the
	// allocator can run against a synthetic memory map instead of a real
	// bootloader-supplied one.
	offsetMapBaseFn   = bootinfo.OffsetMapBase
	visitMemRegionsFn = bootinfo.VisitMemRegions
)

// Allocator hands out and reclaims physical page frames. Free frames are
// kept on a singly-linked LIFO list: the first 8 bytes of every free frame
// store the (kernel-visible) pointer to the next free frame, so the list
// costs no memory beyond the frames it already owns.
//
// All operations are protected by a single Spinlock, making Allocator safe
// to call from interrupt context (e.g. a page fault handler reclaiming a
// frame) as well as ordinary process context.
type Allocator struct {
	mu sync.Spinlock

	freeList  uintptr // kernel-visible address of the first free frame, or 0
	freeCount uint64

	// kernelStartFrame and kernelEndFrame bound the frame range occupied
	// by the running kernel image; Init excludes them from the free
	// list regardless of what the memory map reports.
	kernelStartFrame, kernelEndFrame Frame
}

// Init populates the free list from the bootloader-supplied memory map,
// excluding any region (or portion of a region) outside of [kernelStart,
// kernelEnd) that is not reported as available, and excluding the frames
// occupied by the running kernel image itself even when the bootloader
// lumps them into an "available" region.
func (a *Allocator) Init(kernelStart, kernelEnd uintptr) {
	pageSizeMinus1 := uintptr(mem.PageSize - 1)
	a.kernelStartFrame = FrameFromAddress(kernelStart)
	a.kernelEndFrame = FrameFromAddress((kernelEnd+pageSizeMinus1)&^pageSizeMinus1) - 1

	offsetMapBase := offsetMapBaseFn()

	visitMemRegionsFn(func(region *bootinfo.MemoryMapEntry) bool {
		if region.Type != bootinfo.MemAvailable || region.Length < uint64(mem.PageSize) {
			return true
		}

		pageMask := uint64(mem.PageSize - 1)
		startFrame := Frame(((region.PhysAddress + pageMask) &^ pageMask) >> mem.PageShift)
		endFrame := Frame(((region.PhysAddress+region.Length)&^pageMask)>>mem.PageShift) - 1

		for f := startFrame; f <= endFrame; f++ {
			if f >= a.kernelStartFrame && f <= a.kernelEndFrame {
				continue
			}
			a.pushLocked(offsetMapBase + f.Address())
		}
		return true
	})
}

// pushLocked links frameAddr (a kernel-visible pointer to the start of a
// free frame) onto the head of the free list. The caller must hold a.mu.
func (a *Allocator) pushLocked(frameAddr uintptr) {
	*(*uintptr)(unsafe.Pointer(frameAddr)) = a.freeList
	a.freeList = frameAddr
	a.freeCount++
}

// AllocFrame removes a frame from the free list and returns its physical
// frame number. It returns InvalidFrame and an error if no frames remain.
func (a *Allocator) AllocFrame() (Frame, *kernel.Error) {
	a.mu.Acquire()
	defer a.mu.Release()

	if a.freeList == 0 {
		return InvalidFrame, errOutOfMemory
	}

	frameAddr := a.freeList
	a.freeList = *(*uintptr)(unsafe.Pointer(frameAddr))
	a.freeCount--

	return FrameFromAddress(frameAddr - offsetMapBaseFn()), nil
}

// AllocFrameZeroed behaves like AllocFrame but also zeroes out the
// allocated frame's contents before returning it.
func (a *Allocator) AllocFrameZeroed() (Frame, *kernel.Error) {
	f, err := a.AllocFrame()
	if err != nil {
		return f, err
	}

	kernel.Memset(offsetMapBaseFn()+f.Address(), 0, uintptr(mem.PageSize))
	return f, nil
}

// FreeFrame returns a previously allocated frame to the free list. Freeing
// a frame that was never allocated, or freeing it twice, silently corrupts
// the free list; callers are responsible for tracking ownership.
func (a *Allocator) FreeFrame(f Frame) {
	a.mu.Acquire()
	defer a.mu.Release()

	a.pushLocked(offsetMapBaseFn() + f.Address())
}

// FreeCount returns the number of frames currently on the free list. It
// exists for diagnostics and tests; nothing in the allocator relies on the
// count beyond maintaining it.
func (a *Allocator) FreeCount() uint64 {
	a.mu.Acquire()
	defer a.mu.Release()

	return a.freeCount
}
