package proc

import (
	"unsafe"

	"tsukuyomi/kernel/trap"
)

// switchContext saves the callee-saved registers of the currently running
// context onto its own stack, stores the resulting stack pointer through
// oldPtrPtr, switches the stack pointer to newPtr, and returns by popping
// the callee-saved registers that were saved there the last time this
// context was switched out (or, for a never-yet-run process, by falling
// into forkRet via the context's seeded return address). Implemented in
// context_amd64.s.
func switchContext(oldPtrPtr **callerSavedContext, newPtr *callerSavedContext)

// trapFrameSize and callerContextSize describe the layout
// spec.md's data model fixes for every process's kernel stack: "the stack
// top holds (growing downward): trap frame -> saved return address ->
// callee-save context block." Both regions are carved out of the same
// backing memory rather than separately heap-allocated, since the
// context's RIP field doubles as the real x86 return address that
// switch_context's RET instruction consumes.
var (
	trapFrameSize     = unsafe.Sizeof(trap.TrapFrame{})
	callerContextSize = unsafe.Sizeof(callerSavedContext{})
)

// layoutKernelStack carves a TrapFrame and a callee-saved context out of
// the memory just below stackTop, in that order from the top down, and
// returns pointers into that same memory.
func layoutKernelStack(stackTop uintptr) (tf *trap.TrapFrame, ctx *callerSavedContext) {
	tfAddr := stackTop - trapFrameSize
	ctxAddr := tfAddr - callerContextSize
	return (*trap.TrapFrame)(unsafe.Pointer(tfAddr)), (*callerSavedContext)(unsafe.Pointer(ctxAddr))
}

// seedFirstRun points ctx's saved return address at the shared fork-return
// trampoline so the process's very first activation releases the
// process-table lock and falls through into the trap-return epilogue.
func seedFirstRun(ctx *callerSavedContext) {
	*ctx = callerSavedContext{RIP: trap.ForkRetAddr()}
}
