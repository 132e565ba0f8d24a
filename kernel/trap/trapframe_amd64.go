// Package trap installs the GDT, TSS and IDT, and dispatches every trap
// (hardware interrupt, CPU exception or `int 0x40` system call) to the
// handler registered for its vector.
package trap

import "tsukuyomi/kernel/kfmt"

// Regs is the snapshot of general-purpose registers the common trampoline
// saves on entry, listed from the lowest stack address up: the reverse of
// the order the trampoline pushes them.
type Regs struct {
	DS, ES                         uint64
	R15, R14, R13, R12, R11, R10   uint64
	R9, R8                         uint64
	RBP, RDI, RSI, RDX, RCX, RBX   uint64
	RAX                            uint64
}

// Frame is the portion of the trap frame the CPU itself pushes when
// entering a trap: the error code (normalized to 0 by the stub for vectors
// that do not supply one), the faulting vector, and the iretq frame.
type Frame struct {
	Vector    uint64
	ErrorCode uint64

	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// TrapFrame is the complete, ABI-visible state saved on a process's kernel
// stack across a trap. Its address is what the process record's trap_frame
// pointer refers to, and exec/fork rewrite or copy it verbatim.
type TrapFrame struct {
	Regs
	Frame
}

// Print dumps the trap frame to the kernel log for fatal-trap diagnostics.
func (t *TrapFrame) Print() {
	kfmt.Printf("RAX = %16x RBX = %16x\n", t.RAX, t.RBX)
	kfmt.Printf("RCX = %16x RDX = %16x\n", t.RCX, t.RDX)
	kfmt.Printf("RSI = %16x RDI = %16x\n", t.RSI, t.RDI)
	kfmt.Printf("RBP = %16x\n", t.RBP)
	kfmt.Printf("R8  = %16x R9  = %16x\n", t.R8, t.R9)
	kfmt.Printf("R10 = %16x R11 = %16x\n", t.R10, t.R11)
	kfmt.Printf("R12 = %16x R13 = %16x\n", t.R12, t.R13)
	kfmt.Printf("R14 = %16x R15 = %16x\n", t.R14, t.R15)
	kfmt.Printf("\n")
	kfmt.Printf("vector = %d error_code = %x\n", t.Vector, t.ErrorCode)
	kfmt.Printf("RIP = %16x CS  = %16x\n", t.RIP, t.CS)
	kfmt.Printf("RSP = %16x SS  = %16x\n", t.RSP, t.SS)
	kfmt.Printf("RFL = %16x\n", t.RFlags)
}
