package proc

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/bootinfo"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/pmm"
)

// userHalfTop is one past the last canonical 48-bit user-space address.
// KernelStackVirtBase and UserStackPage sit at fixed offsets below it,
// identically in every process's page table.
const userHalfTop = uintptr(0x0000800000000000)

// KernelStackVirtBase lies KernelStackPages pages below userHalfTop. Fork's
// address-space copy stops below this address. No kernel stack is mapped
// here: initKernelStack takes a fresh one for every slot from the allocator
// installed with SetKernelStackAllocator, so kernel stacks are never part
// of the user image being duplicated.
const KernelStackVirtBase = userHalfTop - KernelStackPages*uintptr(mem.PageSize)

// UserStackPage is the fixed virtual address of the single page every
// process's user stack occupies; exec initializes RSP to the top of it.
const UserStackPage = KernelStackVirtBase - uintptr(mem.PageSize)

// FrameAllocatorFn allocates a single zeroed physical frame. fork uses it
// to duplicate user pages; exec uses it to back freshly loaded ELF
// segments.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

var (
	frameAllocFn FrameAllocatorFn

	// offsetMapBaseFn is substituted by tests so fork/exec's raw page
	// copies can run against plain Go-allocated memory instead of the
	// bootloader's offset map.
	offsetMapBaseFn = bootinfo.OffsetMapBase
)

// SetFrameAllocator installs the function fork and exec use to obtain
// fresh physical frames.
func SetFrameAllocator(fn FrameAllocatorFn) { frameAllocFn = fn }

// SetOffsetMapBase overrides the function fork and exec use to turn a
// physical frame into a kernel-reachable address. It exists so that other
// packages' tests (notably syscall, which drives Exec indirectly through
// Dispatch) can run these raw page copies against plain Go-allocated
// memory instead of calling into bootinfo with no boot information block
// installed.
func SetOffsetMapBase(fn func() uintptr) { offsetMapBaseFn = fn }
