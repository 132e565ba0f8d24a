// Package cpu provides access to the handful of privileged x86_64
// instructions the kernel core needs: interrupt masking, port I/O, control
// register access, TLB invalidation and the CPUID instruction. Each function
// below is declared without a body; its implementation lives in the
// corresponding .s file as a single instruction (or a short trap-free
// sequence) that Go itself cannot express.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling (STI).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (CLI).
func DisableInterrupts()

// InterruptsEnabled returns true if the IF flag is currently set in RFLAGS.
func InterruptsEnabled() bool

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// Pause issues the PAUSE instruction, hinting to the CPU that the current
// code is spinning on a lock. It reduces power draw and avoids a memory-order
// mis-speculation penalty on exit from the spin loop.
func Pause()

// FlushTLBEntry flushes a single TLB entry for a particular virtual address
// (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// WriteCR3 sets the root page table (PML4) physical address and flushes the
// non-global TLB entries.
func WriteCR3(pml4PhysAddr uintptr)

// ReadCR3 returns the physical address of the currently active PML4.
func ReadCR3() uintptr

// ReadCR2 returns the value stored in the CR2 register (the faulting address
// after a page fault).
func ReadCR2() uint64

// PortByteIn reads a single byte from the given I/O port.
func PortByteIn(port uint16) uint8

// PortByteOut writes a single byte to the given I/O port.
func PortByteOut(port uint16, value uint8)

// ID returns information about the CPU and its features. It is implemented
// as a CPUID instruction with EAX=leaf and returns the values in EAX, EBX,
// ECX and EDX.
func ID(leaf uint32) (eax, ebx, ecx, edx uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
