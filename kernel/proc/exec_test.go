package proc

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"tsukuyomi/kernel"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/vmm"
	"tsukuyomi/kernel/trap"
	"tsukuyomi/kernel/vfs"
)

// buildELF64 assembles the smallest valid ELF64 executable debug/elf will
// parse: a file header followed by a single PT_LOAD program header and its
// segment bytes. memsz may exceed len(data) to exercise zero-fill.
func buildELF64(entry, vaddr uint64, data []byte, memsz uint64) []byte {
	const ehdrSize, phdrSize = 64, 56
	offset := uint64(ehdrSize + phdrSize)

	var ident [16]byte
	copy(ident[:4], []byte{0x7f, 'E', 'L', 'F'})
	ident[4] = 2 // ELFCLASS64
	ident[5] = 1 // little-endian
	ident[6] = 1 // EI_VERSION

	buf := new(bytes.Buffer)
	buf.Write(ident[:])
	binary.Write(buf, binary.LittleEndian, uint16(2))  // e_type = ET_EXEC
	binary.Write(buf, binary.LittleEndian, uint16(62)) // e_machine = EM_X86_64
	binary.Write(buf, binary.LittleEndian, uint32(1))  // e_version
	binary.Write(buf, binary.LittleEndian, entry)
	binary.Write(buf, binary.LittleEndian, uint64(ehdrSize)) // e_phoff
	binary.Write(buf, binary.LittleEndian, uint64(0))        // e_shoff
	binary.Write(buf, binary.LittleEndian, uint32(0))        // e_flags
	binary.Write(buf, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(buf, binary.LittleEndian, uint16(phdrSize))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // e_phnum
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))

	binary.Write(buf, binary.LittleEndian, uint32(1)) // p_type = PT_LOAD
	binary.Write(buf, binary.LittleEndian, uint32(5)) // p_flags = R|X
	binary.Write(buf, binary.LittleEndian, offset)    // p_offset
	binary.Write(buf, binary.LittleEndian, vaddr)     // p_vaddr
	binary.Write(buf, binary.LittleEndian, vaddr)     // p_paddr
	binary.Write(buf, binary.LittleEndian, uint64(len(data)))
	binary.Write(buf, binary.LittleEndian, memsz)
	binary.Write(buf, binary.LittleEndian, uint64(mem.PageSize)) // p_align

	buf.Write(data)
	return buf.Bytes()
}

func withFakeFileOpener(image []byte, kind vfs.Kind) func() {
	prev := openFileFn
	openFileFn = func(path string) (vfs.Handle, *kernel.Error) {
		return vfs.NewHandle(kind, vfs.NewModuleFile(image)), nil
	}
	return func() { openFileFn = prev }
}

func newExecTestProcess(t *testing.T, tbl *Table) *Process {
	t.Helper()
	p := mustAlloc(t, tbl)
	pml4, err := vmm.NewAddressSpace()
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	p.PML4Phys = pml4
	return p
}

func TestExecLoadsSegmentsAndRewritesTrapFrame(t *testing.T) {
	defer withFakeKernelStacks(t)()
	pool := &forkFramePool{}
	defer withFakeAddressSpaces(t, pool)()

	const vaddr = uintptr(0x0000000000400000)
	payload := []byte("hello kernel")
	image := buildELF64(uint64(vaddr)+8, uint64(vaddr), payload, uint64(len(payload))+16)
	defer withFakeFileOpener(image, vfs.KindModuleFile)()

	var tbl Table
	tbl.Init()
	p := newExecTestProcess(t, &tbl)

	if err := Exec(p, "/boot/init"); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if p.TrapFrame.RIP != uint64(vaddr)+8 {
		t.Fatalf("expected RIP at entry, got %x", p.TrapFrame.RIP)
	}
	if p.TrapFrame.CS != uint64(trap.UserCodeSelector) || p.TrapFrame.SS != uint64(trap.UserDataSelector) {
		t.Fatalf("expected user-mode selectors, got CS=%x SS=%x", p.TrapFrame.CS, p.TrapFrame.SS)
	}
	if p.TrapFrame.RFlags&(1<<9) == 0 {
		t.Fatal("expected interrupts to be enabled in the freshly loaded trap frame")
	}
	if p.TrapFrame.RSP != uint64(UserStackPage)+uint64(mem.PageSize) {
		t.Fatalf("expected RSP at the top of the fixed user stack page, got %x", p.TrapFrame.RSP)
	}
	if p.State != StateRunnable {
		t.Fatalf("expected Exec to mark the process Runnable, got %v", p.State)
	}

	phys, _, ok := vmm.ForPML4(p.PML4Phys).Translate(vaddr)
	if !ok {
		t.Fatal("expected the PT_LOAD segment's page to be mapped")
	}
	got := unsafe.Slice((*byte)(unsafe.Pointer(phys)), len(payload))
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected the segment's file bytes to be copied in, got %q", got)
	}

	zeroFillByte := *(*byte)(unsafe.Pointer(phys + uintptr(len(payload))))
	if zeroFillByte != 0 {
		t.Fatalf("expected bytes beyond Filesz but within Memsz to be zero, got %x", zeroFillByte)
	}
}

func TestExecRejectsNonModuleFileSource(t *testing.T) {
	defer withFakeKernelStacks(t)()
	pool := &forkFramePool{}
	defer withFakeAddressSpaces(t, pool)()
	defer withFakeFileOpener(nil, vfs.KindFAT16File)()

	var tbl Table
	tbl.Init()
	p := newExecTestProcess(t, &tbl)

	if err := Exec(p, "/disk/init"); err == nil {
		t.Fatal("expected Exec to reject a non-module file source")
	}
}

func TestExecRejectsMalformedELF(t *testing.T) {
	defer withFakeKernelStacks(t)()
	pool := &forkFramePool{}
	defer withFakeAddressSpaces(t, pool)()
	defer withFakeFileOpener([]byte("not an elf file"), vfs.KindModuleFile)()

	var tbl Table
	tbl.Init()
	p := newExecTestProcess(t, &tbl)

	if err := Exec(p, "/boot/garbage"); err == nil {
		t.Fatal("expected Exec to reject a malformed ELF image")
	}
}

func TestExecRejectsSegmentExtendingPastTheFile(t *testing.T) {
	defer withFakeKernelStacks(t)()
	pool := &forkFramePool{}
	defer withFakeAddressSpaces(t, pool)()

	image := buildELF64(0x400000, 0x400000, []byte("short"), 4096)
	// Truncate the file so the PT_LOAD segment's recorded Filesz runs past
	// the end of the actual image.
	image = image[:len(image)-3]
	defer withFakeFileOpener(image, vfs.KindModuleFile)()

	var tbl Table
	tbl.Init()
	p := newExecTestProcess(t, &tbl)

	if err := Exec(p, "/boot/truncated"); err == nil {
		t.Fatal("expected Exec to reject a PT_LOAD segment that extends past the file")
	}
}

func TestExecFailsCleanlyWithNoOpenerInstalled(t *testing.T) {
	defer withFakeKernelStacks(t)()
	pool := &forkFramePool{}
	defer withFakeAddressSpaces(t, pool)()

	prev := openFileFn
	openFileFn = nil
	defer func() { openFileFn = prev }()

	var tbl Table
	tbl.Init()
	p := newExecTestProcess(t, &tbl)

	if err := Exec(p, "/boot/init"); err == nil {
		t.Fatal("expected Exec to fail when no file opener is installed")
	}
}
