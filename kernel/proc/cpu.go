package proc

import (
	"tsukuyomi/kernel/cpu"
	"tsukuyomi/kernel/trap"
)

// CPU bundles the per-logical-CPU state the scheduler loop owns: its GDT
// and TSS, the callee-saved context the scheduler itself switches out of
// when it activates a process, and the process currently running (nil when
// the scheduler "thread" itself is executing). Spec.md's data model calls
// this the "CPU state" record; it is a single logical CPU in this kernel
// (multi-CPU scheduling is a named non-goal).
type CPU struct {
	GDT              trap.CPUState
	schedulerContext *callerSavedContext
	Current          *Process
}

// KernelStackPages is the fixed size (in 4 KiB pages) of every process's
// kernel stack, per spec.md's data model ("Kernel stack. 4 contiguous
// pages").
const KernelStackPages = 4

var (
	enableInterruptsFn  = cpu.EnableInterrupts
	activatePageTableFn = cpu.WriteCR3
	switchContextFn     = switchContext
)

