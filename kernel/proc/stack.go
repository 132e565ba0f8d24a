package proc

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/trap"
)

var errNoKernelStack = &kernel.Error{Module: "proc", Message: "failed to allocate a kernel stack"}

// KernelStackAllocatorFn reserves a fresh 4-page kernel stack for a new
// process and returns the virtual address one past its top (spec.md data
// model: "4 contiguous pages mapped into every process's virtual space at
// a fixed high virtual range"). The real kernel implementation allocates
// physical frames from pmm and maps them with vmm at a per-slot virtual
// offset; tests substitute a plain Go-allocated buffer.
type KernelStackAllocatorFn func() (top uintptr, err *kernel.Error)

var allocKernelStackFn KernelStackAllocatorFn

// SetKernelStackAllocator installs the function Alloc uses to back new
// processes' kernel stacks.
func SetKernelStackAllocator(fn KernelStackAllocatorFn) { allocKernelStackFn = fn }

// initKernelStack allocates p's kernel stack and carves its initial
// TrapFrame and callee-saved context out of the top of it, seeding the
// context so the process's first activation runs forkRet.
func initKernelStack(p *Process) *kernel.Error {
	if allocKernelStackFn == nil {
		return errNoKernelStack
	}
	top, err := allocKernelStackFn()
	if err != nil {
		return err
	}

	p.KernelStackTop = top
	p.TrapFrame, p.context = layoutKernelStack(top)
	*p.TrapFrame = trap.TrapFrame{}
	seedFirstRun(p.context)
	return nil
}
