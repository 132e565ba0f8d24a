// Package kmain is the kernel's entry point: the single Go symbol rt0
// assembly jumps to once it has built a minimal GDT and stack, and the
// place every other package's Init/Set* seam gets wired together into a
// running system.
package kmain

import (
	"unsafe"

	"tsukuyomi/kernel"
	"tsukuyomi/kernel/bootinfo"
	"tsukuyomi/kernel/kfmt"
	"tsukuyomi/kernel/kheap"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/pmm"
	"tsukuyomi/kernel/mem/vmm"
	"tsukuyomi/kernel/proc"
	"tsukuyomi/kernel/syscall"
	"tsukuyomi/kernel/trap"
	"tsukuyomi/kernel/vfs"
)

// initPath is the bootloader module Kmain execs as PID 1. There is no
// configuration layer this early in boot; the path is a fixed convention,
// mirroring how a real init binary's location is a kernel build-time
// constant rather than something read from disk.
const initPath = "/boot/init"

// kheapWindowBase and kheapWindowSize bound the kernel heap's virtual
// address window, placed well inside the kernel half so it never collides
// with the per-process kernel stack pool kstackAreaBase reserves further up.
const (
	kheapWindowBase = uintptr(0xFFFF800000000000)
	kheapWindowSize = mem.Size(64 << 20) // 64 MiB
)

var (
	allocator pmm.Allocator
	table     proc.Table
	cpuState  proc.CPU
	stacks    kernelStackPool
	root      *vfs.Root

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol visible from the rt0 initialization code. It
// is invoked after rt0 has loaded a bootstrap GDT and set up a minimal stack
// large enough to run Go code. multibootInfoPtr, kernelStart and kernelEnd
// are the values rt0 receives from the bootloader and the linker script
// respectively.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	bootinfo.SetInfoPtr(multibootInfoPtr)
	kfmt.Printf("tsukuyomi: booting\n")

	allocator.Init(kernelStart, kernelEnd)
	kfmt.Printf("tsukuyomi: %d frames free\n", allocator.FreeCount())

	vmm.SetFrameAllocator(allocator.AllocFrameZeroed)
	vmm.CaptureKernelMaster()
	master := vmm.ForCurrent()

	if err := stacks.init(master, allocator.AllocFrameZeroed); err != nil {
		kfmt.Panic(err)
	}

	kheap.Init(kheapWindowBase, kheapWindowSize, master, allocator.AllocFrameZeroed)

	cpuState.GDT.Init()
	trap.InstallIDT()
	trap.RemapPIC()

	proc.SetFrameAllocator(allocator.AllocFrameZeroed)
	proc.SetOffsetMapBase(bootinfo.OffsetMapBase)
	proc.SetKernelStackAllocator(stacks.alloc)
	proc.SetKernelPML4Source(vmm.KernelMasterPML4)

	root = vfs.NewRoot()
	proc.SetFileOpener(root.Open)

	trap.SetFirstRunHook(func() { table.Lock.Release() })

	offsetMapBase := bootinfo.OffsetMapBase()
	bootinfo.VisitModules(offsetMapBase, func(mod *bootinfo.Module) bool {
		data := unsafe.Slice((*byte)(unsafe.Pointer(mod.Addr)), int(mod.Size))
		root.RegisterModule(mod.Path, data)
		kfmt.Printf("tsukuyomi: module %s (%d bytes)\n", mod.Path, mod.Size)
		return true
	})

	syscall.NewHandler(&table, &cpuState, root).Install()

	initProc, err := table.Alloc()
	if err != nil {
		kfmt.Panic(err)
	}
	pml4, err := vmm.NewAddressSpace()
	if err != nil {
		kfmt.Panic(err)
	}
	initProc.PML4Phys = pml4
	if err := proc.Exec(initProc, initPath); err != nil {
		kfmt.Panic(err)
	}

	kfmt.Printf("tsukuyomi: entering scheduler\n")
	table.Run(&cpuState)

	kfmt.Panic(errKmainReturned)
}
