package trap

import "unsafe"

// Segment selectors. The GDT has a fixed 7-slot layout: null, kernel code,
// kernel data, user code, user data, and a 16-byte TSS descriptor occupying
// slots 5 and 6. User-mode selectors OR in the RPL=3 bits.
const (
	selNull = iota
	selKernelCode
	selKernelData
	selUserCode
	selUserData
	selTSSLo
	_ // selTSSHi, the upper half of the 16-byte TSS descriptor
)

const (
	// KernelCodeSelector and KernelDataSelector are loaded into CS/SS
	// while running in ring 0.
	KernelCodeSelector = selKernelCode << 3
	KernelDataSelector = selKernelData << 3

	// UserCodeSelector and UserDataSelector are the selectors a trap
	// frame must carry to return to ring 3; bits 0-1 (RPL) are set to 3.
	UserCodeSelector = (selUserCode << 3) | 3
	UserDataSelector = (selUserData << 3) | 3

	tssSelector = selTSSLo << 3
)

// TaskStateSegment mirrors the amd64 TSS layout. Only rsp0 (the stack
// pointer loaded on a ring 3 -> ring 0 transition) is used by this kernel;
// the IST slots are left zeroed.
type TaskStateSegment struct {
	reserved0 uint32
	RSP0      uint64
	rsp1      uint64
	rsp2      uint64
	reserved1 uint64
	ist       [7]uint64
	reserved2 uint64
	reserved3 uint16
	ioMapBase uint16
}

// CPUState bundles the per-CPU descriptor tables referenced by spec §3's
// "CPU state" record: a GDT, its one TSS, and (added by the scheduler
// package) the currently running process and scheduler context pointer.
type CPUState struct {
	gdt [7]uint64
	tss TaskStateSegment
}

// Init builds this CPU's GDT (null, kernel code/data, user code/data, and
// the TSS descriptor pair) and loads it, along with the TSS itself via ltr.
func (c *CPUState) Init() {
	c.gdt[selNull] = 0
	c.gdt[selKernelCode] = gdtEntry(0x9a, 0xa) // present, ring0, code, long mode
	c.gdt[selKernelData] = gdtEntry(0x92, 0xc) // present, ring0, data
	c.gdt[selUserCode] = gdtEntry(0xfa, 0xa)   // present, ring3, code, long mode
	c.gdt[selUserData] = gdtEntry(0xf2, 0xc)   // present, ring3, data

	tssBase := uintptr(unsafe.Pointer(&c.tss))
	tssLimit := uint32(unsafe.Sizeof(c.tss) - 1)
	lo, hi := tssDescriptor(tssBase, tssLimit)
	c.gdt[selTSSLo] = lo
	c.gdt[selTSSLo+1] = hi

	loadGDT(uintptr(unsafe.Pointer(&c.gdt[0])), uint16(len(c.gdt)*8-1))
	loadTR(tssSelector)
}

// SetKernelStack updates rsp0 so that the next ring3->ring0 transition on
// this CPU lands on the given process's kernel stack top.
func (c *CPUState) SetKernelStack(rsp0 uintptr) {
	c.tss.RSP0 = uint64(rsp0)
}

// gdtEntry packs a flat (base=0, limit=0xfffff) segment descriptor; in long
// mode the base and limit of code/data segments are ignored by the CPU but
// still conventionally set to a maximal flat mapping. access and flags
// follow the standard x86 descriptor byte layout.
func gdtEntry(access uint8, flags uint8) uint64 {
	const limit = 0xfffff
	return uint64(limit&0xffff) |
		uint64(access)<<40 |
		uint64(limit>>16&0xf)<<48 |
		uint64(flags&0xf)<<52
}

// tssDescriptor builds the two 8-byte halves of a 16-byte TSS descriptor
// (system descriptors need a full 64-bit base, unlike code/data segments).
func tssDescriptor(base uintptr, limit uint32) (lo, hi uint64) {
	b := uint64(base)
	lo = uint64(limit&0xffff) |
		(b&0xffffff)<<16 |
		0x89<<40 | // present, ring0, 64-bit TSS (available)
		uint64(limit>>16&0xf)<<48 |
		(b>>24&0xff)<<56
	hi = b >> 32
	return lo, hi
}

// loadGDT and loadTR are implemented in vectors_amd64.s.
func loadGDT(base uintptr, limit uint16)
func loadTR(selector uint16)
