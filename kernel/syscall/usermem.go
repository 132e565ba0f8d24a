package syscall

import (
	"unsafe"

	"tsukuyomi/kernel"
	"tsukuyomi/kernel/bootinfo"
	"tsukuyomi/kernel/mem"
	"tsukuyomi/kernel/mem/vmm"
)

// offsetMapBaseFn is substituted by tests so copyIn/copyOut/copyInString
// can run against plain Go-allocated memory instead of the bootloader's
// offset map, the same seam proc's fork and exec use for the same reason.
var offsetMapBaseFn = bootinfo.OffsetMapBase

// SetOffsetMapBase overrides the function user-memory copies use to reach
// a physical frame's kernel-addressable alias.
func SetOffsetMapBase(fn func() uintptr) { offsetMapBaseFn = fn }

// copyOut copies src into the calling process's address space at the user
// virtual address dst, crossing page boundaries as needed. It fails if any
// page the copy touches has no present mapping in mapper.
func copyOut(mapper vmm.Mapper, dst uint64, src []byte) *kernel.Error {
	addr := uintptr(dst)
	for len(src) > 0 {
		phys, _, ok := mapper.Translate(addr)
		if !ok {
			return errBadPointer
		}

		pageOff := addr % uintptr(mem.PageSize)
		n := uintptr(mem.PageSize) - pageOff
		if n > uintptr(len(src)) {
			n = uintptr(len(src))
		}

		kernel.Memcopy(uintptr(unsafe.Pointer(&src[0])), offsetMapBaseFn()+phys, n)
		src = src[n:]
		addr += n
	}
	return nil
}

// copyIn is copyOut's mirror: it fills dst from the user virtual address
// src in the calling process's address space.
func copyIn(mapper vmm.Mapper, dst []byte, src uint64) *kernel.Error {
	addr := uintptr(src)
	for len(dst) > 0 {
		phys, _, ok := mapper.Translate(addr)
		if !ok {
			return errBadPointer
		}

		pageOff := addr % uintptr(mem.PageSize)
		n := uintptr(mem.PageSize) - pageOff
		if n > uintptr(len(dst)) {
			n = uintptr(len(dst))
		}

		kernel.Memcopy(offsetMapBaseFn()+phys, uintptr(unsafe.Pointer(&dst[0])), n)
		dst = dst[n:]
		addr += n
	}
	return nil
}

// copyInString reads a NUL-terminated string out of user memory starting
// at addr, one byte at a time so it never reads past a page boundary it
// hasn't translated. It fails if no NUL terminator appears within maxLen
// bytes, or if any byte it touches falls outside a mapped page.
func copyInString(mapper vmm.Mapper, addr uint64, maxLen int) (string, *kernel.Error) {
	buf := make([]byte, 0, 64)
	a := uintptr(addr)
	for i := 0; i < maxLen; i++ {
		phys, _, ok := mapper.Translate(a)
		if !ok {
			return "", errBadPointer
		}
		b := *(*byte)(unsafe.Pointer(offsetMapBaseFn() + phys))
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
		a++
	}
	return "", errPathTooLong
}
