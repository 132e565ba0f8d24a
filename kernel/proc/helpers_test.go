package proc

import (
	"os"
	"testing"
	"unsafe"

	"tsukuyomi/kernel"
	"tsukuyomi/kernel/sync"
)

// TestMain installs interrupt hooks that never touch real hardware for the
// whole package: most Table methods this package exports acquire Lock, and
// a hosted test binary runs in ring 3, where the real CLI/STI instructions
// sync.Spinlock defaults to would fault.
func TestMain(m *testing.M) {
	sync.SetInterruptHooks(
		func() {},
		func() {},
		func() bool { return true },
		func() {},
	)
	os.Exit(m.Run())
}

// kstackPool hands out plain Go-allocated backing memory for a process's
// kernel stack, retaining a reference to each slice so the backing array
// outlives the uintptr conversion.
type kstackPool struct {
	bufs [][]byte
}

func (p *kstackPool) alloc() (uintptr, *kernel.Error) {
	buf := make([]byte, 4096)
	p.bufs = append(p.bufs, buf)
	return uintptr(unsafe.Pointer(&buf[0])) + uintptr(len(buf)), nil
}

// withFakeKernelStacks installs a kstackPool as the kernel-stack allocator
// and a no-op switch/activate/enable set, restoring the prior hooks on
// return. It is the baseline fixture nearly every test in this package
// needs just to call Table.Alloc.
func withFakeKernelStacks(t *testing.T) func() {
	t.Helper()
	prevAlloc := allocKernelStackFn
	prevSwitch := switchContextFn
	prevActivate := activatePageTableFn
	prevEnable := enableInterruptsFn

	pool := &kstackPool{}
	SetKernelStackAllocator(pool.alloc)
	switchContextFn = func(oldPtrPtr **callerSavedContext, newPtr *callerSavedContext) {}
	activatePageTableFn = func(uintptr) {}
	enableInterruptsFn = func() {}

	return func() {
		allocKernelStackFn = prevAlloc
		switchContextFn = prevSwitch
		activatePageTableFn = prevActivate
		enableInterruptsFn = prevEnable
	}
}

// mustAlloc allocates a process, failing the test on error.
func mustAlloc(t *testing.T, tbl *Table) *Process {
	t.Helper()
	p, err := tbl.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	return p
}

// findByPID scans tbl under its own lock for the process with the given
// PID, or nil if none is found.
func findByPID(tbl *Table, pid int32) *Process {
	var found *Process
	tbl.Lock.Acquire()
	tbl.Each(func(p *Process) {
		if p.PID == pid {
			found = p
		}
	})
	tbl.Lock.Release()
	return found
}
