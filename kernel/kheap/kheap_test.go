package kheap

import (
	"testing"
	"tsukuyomi/kernel"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/pmm"
	"tsukuyomi/kernel/mem/vmm"
	"tsukuyomi/kernel/sync"
)

// init keeps the heap's Spinlock from executing privileged CLI, STI and
// PAUSE instructions on the host.
func init() {
	sync.SetInterruptHooks(func() {}, func() {}, func() bool { return false }, func() {})
}

type fakeMapper struct {
	mapped []uintptr
}

func (f *fakeMapper) Map(virt, phys uintptr, access vmm.Access, mode vmm.Mode) {
	f.mapped = append(f.mapped, virt)
}

func fakeFrameAllocator() FrameAllocatorFn {
	var next uintptr = 0x1000
	return func() (pmm.Frame, *kernel.Error) {
		f := pmm.FrameFromAddress(next)
		next += uintptr(mem.PageSize)
		return f, nil
	}
}

func TestAllocMapsPagesOnDemand(t *testing.T) {
	m := &fakeMapper{}
	Init(0xffff900000000000, 3*mem.PageSize, m, fakeFrameAllocator())

	addr1, err := Alloc(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr1 != 0xffff900000000000 {
		t.Fatalf("expected first allocation at window start; got %x", addr1)
	}
	if len(m.mapped) != 1 {
		t.Fatalf("expected one page mapped for a 100-byte alloc; got %d", len(m.mapped))
	}

	addr2, err := Alloc(uintptr(mem.PageSize))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr2 != addr1+100 {
		t.Fatalf("expected bump allocation to follow the prior one; got %x", addr2)
	}
	if len(m.mapped) < 2 {
		t.Fatalf("expected a second page to be mapped once the bump pointer crossed into it")
	}
}

func TestAllocFailsOnceWindowExhausted(t *testing.T) {
	m := &fakeMapper{}
	Init(0xffff900000000000, mem.PageSize, m, fakeFrameAllocator())

	if _, err := Alloc(uintptr(mem.PageSize)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Alloc(1); err == nil {
		t.Fatal("expected an error once the window is exhausted")
	}
}

func TestUsedTracksBumpPointer(t *testing.T) {
	m := &fakeMapper{}
	Init(0xffff900000000000, 2*mem.PageSize, m, fakeFrameAllocator())

	Alloc(42)
	Alloc(8)

	if got, want := Used(), uintptr(50); got != want {
		t.Fatalf("expected Used() == %d; got %d", want, got)
	}
}
