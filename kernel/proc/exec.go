package proc

import (
	"bytes"
	"debug/elf"
	"unsafe"

	"tsukuyomi/kernel"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/vmm"
	"tsukuyomi/kernel/trap"
	"tsukuyomi/kernel/vfs"
)

var (
	errExecNoOpener      = &kernel.Error{Module: "proc", Message: "exec: no file opener installed"}
	errExecBadELF        = &kernel.Error{Module: "proc", Message: "exec: malformed ELF64 image"}
	errExecSourceKind    = &kernel.Error{Module: "proc", Message: "exec: file source has no loader"}
	errExecSegmentBounds = &kernel.Error{Module: "proc", Message: "exec: PT_LOAD segment extends past the file"}

	// rflagsIF is the interrupt-enable bit exec sets in a freshly loaded
	// process's trap frame so it resumes with interrupts on, exactly as
	// if it had just returned from a system call.
	rflagsIF uint64 = 1 << 9
)

// FileOpenerFn resolves a path to an open file: the one point of contact
// between the process core and the out-of-scope VFS dispatcher (spec.md
// §1). The kernel wires this to a *vfs.Root at boot.
type FileOpenerFn func(path string) (vfs.Handle, *kernel.Error)

var openFileFn FileOpenerFn

// SetFileOpener installs the function Exec uses to resolve a path.
func SetFileOpener(fn FileOpenerFn) { openFileFn = fn }

// Exec replaces p's user image with the ELF64 executable at path: every
// PT_LOAD segment is mapped into p's current page table in overwrite mode,
// replacing whatever the previous image had there, the trap frame is
// rewritten to enter user mode at the entry point with user selectors and
// interrupts enabled, and p is marked runnable. Today the only loadable
// file source is a bootloader module (spec.md §4.4: "Map an alternate
// loader implementation for each file source; currently only
// bootloader-module files are loadable").
func Exec(p *Process, path string) *kernel.Error {
	if openFileFn == nil {
		return errExecNoOpener
	}
	handle, err := openFileFn(path)
	if err != nil {
		return err
	}
	defer handle.Close()

	if handle.Kind() != vfs.KindModuleFile {
		return errExecSourceKind
	}

	image, err := readAll(&handle)
	if err != nil {
		return err
	}

	f, ferr := elf.NewFile(bytes.NewReader(image))
	if ferr != nil || f.Class != elf.ELFCLASS64 {
		return errExecBadELF
	}

	mapper := vmm.ForPML4(p.PML4Phys)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(mapper, prog, image); err != nil {
			return err
		}
	}
	mapUserStack(mapper)

	*p.TrapFrame = trap.TrapFrame{}
	p.TrapFrame.RIP = f.Entry
	p.TrapFrame.CS = uint64(trap.UserCodeSelector)
	p.TrapFrame.SS = uint64(trap.UserDataSelector)
	p.TrapFrame.RFlags = rflagsIF
	p.TrapFrame.RSP = uint64(UserStackPage) + uint64(mem.PageSize)

	p.State = StateRunnable
	return nil
}

// loadSegment allocates one zeroed frame per page covered by prog's memory
// range, maps each into mapper with user access in overwrite mode, and
// copies the segment's file bytes in; bytes beyond Filesz but within
// Memsz are left zero (the allocator already hands back zeroed frames).
func loadSegment(mapper vmm.Mapper, prog *elf.Prog, image []byte) *kernel.Error {
	fileStart := uintptr(prog.Vaddr)
	fileEnd := fileStart + uintptr(prog.Filesz)
	if uint64(len(image)) < prog.Off+prog.Filesz {
		return errExecSegmentBounds
	}

	pageMask := uintptr(mem.PageSize - 1)
	start := fileStart &^ pageMask
	end := (fileStart + uintptr(prog.Memsz) + pageMask) &^ pageMask

	for virt := start; virt < end; virt += uintptr(mem.PageSize) {
		frame, err := frameAllocFn()
		if err != nil {
			panic(err)
		}
		dst := offsetMapBaseFn() + frame.Address()
		kernel.Memset(dst, 0, uintptr(mem.PageSize))
		mapper.Map(virt, frame.Address(), vmm.AccessUser, vmm.ModeOverwrite)

		copyStart := max(virt, fileStart)
		copyEnd := min(virt+uintptr(mem.PageSize), fileEnd)
		if copyEnd <= copyStart {
			continue
		}

		srcOff := prog.Off + uint64(copyStart-fileStart)
		n := uintptr(copyEnd - copyStart)
		src := uintptr(unsafe.Pointer(&image[srcOff]))
		kernel.Memcopy(src, dst+(copyStart-virt), n)
	}
	return nil
}

// mapUserStack backs the fixed user stack page with a freshly zeroed frame,
// overwriting whatever the previous image had mapped there. Unlike PT_LOAD
// segments this page has no file content to copy in: a fresh stack starts
// zero-filled. Its only failure mode is page-allocator exhaustion, which is
// fatal (spec.md §4.2, §7), so it panics rather than returning an error.
func mapUserStack(mapper vmm.Mapper) {
	frame, err := frameAllocFn()
	if err != nil {
		panic(err)
	}
	kernel.Memset(offsetMapBaseFn()+frame.Address(), 0, uintptr(mem.PageSize))
	mapper.Map(UserStackPage, frame.Address(), vmm.AccessUser, vmm.ModeOverwrite)
}

// readAll drains h via repeated Read calls. Every loadable file source
// today is a bootloader module already resident in memory, so this never
// needs to stream more than a couple of iterations.
func readAll(h *vfs.Handle) ([]byte, *kernel.Error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := h.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}
