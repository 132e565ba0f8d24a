// +build amd64

package vmm

import "tsukuyomi/kernel/mem"

const (
	// pageLevels is the number of page table levels on amd64: PML4, PDPT,
	// PD and PT.
	pageLevels = 4

	// pageLevelIndexBits is the number of virtual address bits consumed by
	// each level's index; every level has 512 entries.
	pageLevelIndexBits = 9
	pageLevelIndexMask = uintptr(1<<pageLevelIndexBits) - 1

	// Size2M and Size1G are the two huge page sizes the PS bit can select,
	// at the PD and PDPT levels respectively.
	Size2M = mem.Size(2 * 1024 * 1024)
	Size1G = mem.Size(1024 * 1024 * 1024)
)

// pageLevelShifts gives the bit offset of each level's index field within a
// virtual address, ordered PML4 (most significant) to PT (least).
var pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
