package trap

import (
	"tsukuyomi/kernel/cpu"
	"tsukuyomi/kernel/kfmt"
)

// HandlerFunc is invoked with the full trap frame for vectors that have an
// explicitly registered handler (keyboard, UART, syscall).
type HandlerFunc func(*TrapFrame)

var handlers [256]HandlerFunc

// RegisterHandler installs fn as the handler for vector. It panics if a
// handler is already registered, since a silent overwrite would hide a
// wiring bug at startup.
func RegisterHandler(vector Vector, fn HandlerFunc) {
	if handlers[vector] != nil {
		panic(&dispatchError{"handler already registered for vector"})
	}
	handlers[vector] = fn
}

// yieldFn is set by the scheduler once it exists; until then the timer
// handler simply returns to the interrupted process. It lets trap stay free
// of an import on the process package.
var yieldFn func() = func() {}

// SetYieldFunc installs the scheduler's reschedule entrypoint, called after
// every timer tick.
func SetYieldFunc(fn func()) { yieldFn = fn }

type dispatchError struct{ msg string }

func (e *dispatchError) Error() string { return e.msg }

// Dispatch is called by the common assembly trampoline with the trap frame
// built on the current kernel stack. It routes the trap per its vector:
// GP and page faults are always fatal, the timer reschedules, devices with
// a registered handler are invoked and acknowledged, and any other vector is
// an unconditional panic naming the vector.
func Dispatch(frame *TrapFrame) {
	switch Vector(frame.Vector) {
	case VectorGPFault:
		kfmt.Printf("general protection fault, error_code=%x\n", frame.ErrorCode)
		frame.Print()
		panic(&dispatchError{"general protection fault"})

	case VectorPageFault:
		kfmt.Printf("page fault at cr2=%x, error_code=%x\n", readCR2Fn(), frame.ErrorCode)
		frame.Print()
		panic(&dispatchError{"page fault"})

	case VectorTimer:
		sendEOI(VectorTimer)
		yieldFn()

	case VectorKeyboard:
		if h := handlers[VectorKeyboard]; h != nil {
			h(frame)
		}
		sendEOI(VectorKeyboard)

	case VectorUART:
		if h := handlers[VectorUART]; h != nil {
			h(frame)
		}
		sendEOI(VectorUART)

	case VectorSyscall:
		if h := handlers[VectorSyscall]; h != nil {
			h(frame)
			return
		}
		panic(&dispatchError{"syscall vector fired with no handler registered"})

	default:
		kfmt.Printf("unhandled trap vector %d\n", frame.Vector)
		panic(&dispatchError{"unhandled trap vector"})
	}
}

var readCR2Fn = cpu.ReadCR2
