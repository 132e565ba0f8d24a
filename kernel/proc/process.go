// Package proc implements the process table, the round-robin scheduler,
// sleep/wake channels and the fork/exec/exit/wait process lifecycle
// operations described by the kernel's process and memory core.
package proc

import (
	"tsukuyomi/kernel/trap"
	"tsukuyomi/kernel/vfs"
)

// State is one of a process's lifecycle states.
type State uint8

const (
	StateUnused State = iota
	StateEmbryo
	StateRunnable
	StateRunning
	StateZombie
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateUnused:
		return "unused"
	case StateEmbryo:
		return "embryo"
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateZombie:
		return "zombie"
	case StateSleeping:
		return "sleeping"
	default:
		return "invalid"
	}
}

// MaxProcesses bounds the process table's arena. Named per SPEC_FULL.md §3
// rather than left as a magic number.
const MaxProcesses = 64

// MaxOpenFiles is the number of file-descriptor slots a process carries.
const MaxOpenFiles = 16

// MaxCWDLength is the largest CWD string a process record stores.
const MaxCWDLength = 256

// Ref is a weak, generation-checked reference to a process-table slot: a
// stale parent reference that lands on a reused slot is detected by
// comparing Generation rather than trusting the Index alone (spec.md §9,
// "Cyclic references").
type Ref struct {
	Index      int32
	Generation uint32
}

// NoParent is the zero value of Ref and never refers to a live process: a
// generation of 0 never matches a slot's generation, which starts at 1 the
// first time it is allocated.
var NoParent = Ref{}

// NoChild is the sentinel PID returned by Wait when the caller has no
// children.
const NoChild = -1

// callerSavedContext is the block of callee-saved registers switch_context
// preserves across a context switch. Its layout must match the push/pop
// order in context_amd64.s exactly, since the first activation of a
// process sets Context.RIP to forkRet without ever executing a real
// function prologue.
type callerSavedContext struct {
	R15, R14, R13, R12 uint64
	RBX, RBP           uint64
	RIP                uintptr
}

// Process is one process-table slot. Exactly one field combination is
// meaningful per State; fields outside that combination are left at
// whatever stale value a previous tenant of the slot wrote, per spec.md §9
// (the caller must never trust them without checking Generation first).
type Process struct {
	ref Ref

	Name   string
	State  State
	PID    int32
	Parent Ref

	PML4Phys uintptr

	TrapFrame *trap.TrapFrame
	context   *callerSavedContext

	// KernelStackTop is the virtual address one past the end of this
	// process's 4-page kernel stack (spec.md data model: "mapped into
	// every process's virtual space at a fixed high virtual range").
	KernelStackTop uintptr

	ExitStatus int32

	Files [MaxOpenFiles]vfs.Handle

	WaitChannel uint64

	CWD string
}

// Ref returns this slot's current (index, generation) pair.
func (p *Process) Ref() Ref { return p.ref }

// IsChildOf reports whether p's parent reference still points at parent's
// current incarnation (not a reused, unrelated slot).
func (p *Process) IsChildOf(parent *Process) bool {
	return p.Parent == parent.ref
}
