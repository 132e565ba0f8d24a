package trap

// firstRunHook is called exactly once, the first time a freshly created
// process is switched onto the CPU (spec.md §4.4: "the first time a
// process is switched in, its saved return address points at a small
// trampoline (fork_ret) that releases the process-table lock held by the
// scheduler across the switch"). The trap package cannot reference the
// process table directly (that would be an import cycle the wrong way),
// so the scheduler registers the release as a closure at startup.
var firstRunHook func()

// SetFirstRunHook installs the function forkRet calls before falling
// through into the ordinary trap-return epilogue.
func SetFirstRunHook(fn func()) { firstRunHook = fn }

func firstRunHookCall() {
	if firstRunHook != nil {
		firstRunHook()
	}
}

// ForkRetAddr returns the entry point a freshly forked process's saved
// context should set as its return address, implemented in
// forkret_amd64.s.
func ForkRetAddr() uintptr
