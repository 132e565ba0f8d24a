// Package syscall implements the system-call surface that links userspace
// to the process table and the virtual file system: the number table, the
// `rdi`/`rsi`/`rdx`/`r10` argument convention, user-pointer validation, and
// the dispatch registered against the trap layer's syscall vector.
package syscall

import (
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/mem/vmm"
	"tsukuyomi/kernel/path"
	"tsukuyomi/kernel/proc"
	"tsukuyomi/kernel/trap"
	"tsukuyomi/kernel/vfs"
)

// Number identifies a syscall by the value the caller places in rax.
type Number uint64

const (
	Read       Number = 0
	Write      Number = 1
	Open       Number = 2
	Close      Number = 3
	Getdirents Number = 4
	Setcwd     Number = 56
	Fork       Number = 57
	Execve     Number = 59
	Exit       Number = 60
	Wait       Number = 61
)

// errSentinel is the `(u64)-1` value every failing syscall returns in rax.
// No errno is exposed: a process that needs to distinguish failure modes
// has nothing finer-grained than this to inspect.
const errSentinel = ^uint64(0)

var (
	errBadPointer  = &kernel.Error{Module: "syscall", Message: "pointer argument is not a valid user address"}
	errBadFD       = &kernel.Error{Module: "syscall", Message: "file descriptor out of range or not open"}
	errPathTooLong = &kernel.Error{Module: "syscall", Message: "path exceeds the maximum length"}
)

type dispatchError struct{ msg string }

func (e *dispatchError) Error() string { return e.msg }

// Handler closes over the process table, the single logical CPU's state,
// and the namespace root every open/setcwd resolves against. Spec.md
// describes a single-CPU kernel (multi-CPU scheduling is a named
// non-goal), so one Handler instance is installed for the kernel's
// lifetime.
type Handler struct {
	Table *proc.Table
	CPU   *proc.CPU
	Root  *vfs.Root
}

// NewHandler builds a Handler over the given process table, CPU state and
// namespace root.
func NewHandler(tbl *proc.Table, cpu *proc.CPU, root *vfs.Root) *Handler {
	return &Handler{Table: tbl, CPU: cpu, Root: root}
}

// Install registers Dispatch as the handler for the trap layer's syscall
// vector. It is called exactly once, at boot.
func (h *Handler) Install() {
	trap.RegisterHandler(trap.VectorSyscall, h.Dispatch)
}

// Dispatch is the trap.HandlerFunc invoked on every `int 0x40`. It reads
// the syscall number from rax, routes to the matching operation, and
// writes that operation's result back into rax — except for exit, which
// never returns, and execve, which on success has already replaced frame
// wholesale and must not have rax overwritten afterward.
func (h *Handler) Dispatch(frame *trap.TrapFrame) {
	p := h.CPU.Current
	if p == nil {
		panic(&dispatchError{"syscall trap fired with no current process"})
	}

	switch Number(frame.RAX) {
	case Read:
		frame.RAX = h.sysRead(p, frame)
	case Write:
		frame.RAX = h.sysWrite(p, frame)
	case Open:
		frame.RAX = h.sysOpen(p, frame)
	case Close:
		frame.RAX = h.sysClose(p, frame)
	case Getdirents:
		frame.RAX = h.sysGetdirents(p, frame)
	case Setcwd:
		frame.RAX = h.sysSetcwd(p, frame)
	case Fork:
		frame.RAX = h.sysFork(p)
	case Execve:
		h.sysExecve(p, frame)
	case Exit:
		h.Table.Exit(h.CPU, p, int32(frame.RDI))
	case Wait:
		frame.RAX = h.sysWait(p)
	default:
		frame.RAX = errSentinel
	}
}

// validUserPtr reports whether addr's high bit is clear, the spec's test
// for "lies in the user half of the canonical address space". A zero
// pointer passes this check; callers that dereference it still go through
// Translate, which fails it for want of a mapping.
func validUserPtr(addr uint64) bool {
	return addr&(1<<63) == 0
}

func (h *Handler) sysRead(p *proc.Process, frame *trap.TrapFrame) uint64 {
	fd, userBuf, count := frame.RDI, frame.RSI, frame.RDX
	if !validUserPtr(userBuf) {
		return errSentinel
	}
	handle, err := fdHandle(p, fd)
	if err != nil {
		return errSentinel
	}

	buf := make([]byte, count)
	n, err := handle.Read(buf)
	if err != nil {
		return errSentinel
	}
	if err := copyOut(vmm.ForPML4(p.PML4Phys), userBuf, buf[:n]); err != nil {
		return errSentinel
	}
	return uint64(n)
}

func (h *Handler) sysWrite(p *proc.Process, frame *trap.TrapFrame) uint64 {
	fd, userBuf, count := frame.RDI, frame.RSI, frame.RDX
	if !validUserPtr(userBuf) {
		return errSentinel
	}
	handle, err := fdHandle(p, fd)
	if err != nil {
		return errSentinel
	}

	buf := make([]byte, count)
	if err := copyIn(vmm.ForPML4(p.PML4Phys), buf, userBuf); err != nil {
		return errSentinel
	}
	n, err := handle.Write(buf)
	if err != nil {
		return errSentinel
	}
	return uint64(n)
}

func (h *Handler) sysOpen(p *proc.Process, frame *trap.TrapFrame) uint64 {
	pathPtr := frame.RDI
	if !validUserPtr(pathPtr) {
		return errSentinel
	}
	rel, err := copyInString(vmm.ForPML4(p.PML4Phys), pathPtr, path.MaxLength)
	if err != nil {
		return errSentinel
	}

	handle, err := h.Root.Open(path.Resolve(p.CWD, rel))
	if err != nil {
		return errSentinel
	}

	for i := range p.Files {
		if !p.Files[i].Valid() {
			p.Files[i] = handle
			return uint64(i)
		}
	}
	handle.Close()
	return errSentinel
}

func (h *Handler) sysClose(p *proc.Process, frame *trap.TrapFrame) uint64 {
	fd := frame.RDI
	if fd >= uint64(proc.MaxOpenFiles) || !p.Files[fd].Valid() {
		return errSentinel
	}
	p.Files[fd].Close()
	return 0
}

func (h *Handler) sysGetdirents(p *proc.Process, frame *trap.TrapFrame) uint64 {
	fd, userBuf, count := frame.RDI, frame.RSI, frame.RDX
	if !validUserPtr(userBuf) {
		return errSentinel
	}
	handle, err := fdHandle(p, fd)
	if err != nil {
		return errSentinel
	}

	buf := make([]byte, count)
	n, err := handle.GetDirents(buf)
	if err != nil {
		return errSentinel
	}
	if err := copyOut(vmm.ForPML4(p.PML4Phys), userBuf, buf[:n]); err != nil {
		return errSentinel
	}
	return uint64(n)
}

// sysSetcwd resolves path and confirms it is actually openable before
// committing it, per the contract's "resolve, verify openable; update
// CWD". The handle opened to verify is discarded immediately.
func (h *Handler) sysSetcwd(p *proc.Process, frame *trap.TrapFrame) uint64 {
	pathPtr := frame.RDI
	if !validUserPtr(pathPtr) {
		return errSentinel
	}
	rel, err := copyInString(vmm.ForPML4(p.PML4Phys), pathPtr, path.MaxLength)
	if err != nil {
		return errSentinel
	}

	resolved := path.Resolve(p.CWD, rel)
	handle, err := h.Root.Open(resolved)
	if err != nil {
		return errSentinel
	}
	handle.Close()

	p.CWD = resolved
	return 0
}

func (h *Handler) sysFork(p *proc.Process) uint64 {
	childPID, err := h.Table.Fork(p)
	if err != nil {
		return errSentinel
	}
	return uint64(childPID)
}

// sysExecve rewrites frame in place via proc.Exec on success, so unlike
// every other syscall it must not have frame.RAX assigned afterward: doing
// so would stomp the freshly loaded entry state with an unrelated value
// (frame and p.TrapFrame are the same trap frame, since a syscall always
// runs on the current process's own kernel stack).
func (h *Handler) sysExecve(p *proc.Process, frame *trap.TrapFrame) {
	pathPtr := frame.RDI
	if !validUserPtr(pathPtr) {
		frame.RAX = errSentinel
		return
	}
	rel, err := copyInString(vmm.ForPML4(p.PML4Phys), pathPtr, path.MaxLength)
	if err != nil {
		frame.RAX = errSentinel
		return
	}

	if err := proc.Exec(p, path.Resolve(p.CWD, rel)); err != nil {
		frame.RAX = errSentinel
	}
}

func (h *Handler) sysWait(p *proc.Process) uint64 {
	pid, _ := h.Table.Wait(h.CPU, p)
	if pid == proc.NoChild {
		return errSentinel
	}
	return uint64(pid)
}

// fdHandle validates fd against p's descriptor table and returns the open
// handle it names.
func fdHandle(p *proc.Process, fd uint64) (*vfs.Handle, *kernel.Error) {
	if fd >= uint64(proc.MaxOpenFiles) {
		return nil, errBadFD
	}
	h := &p.Files[fd]
	if !h.Valid() {
		return nil, errBadFD
	}
	return h, nil
}
