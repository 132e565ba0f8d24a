package vfs

import "tsukuyomi/kernel"

// FAT16Provider is implemented by the FAT16 driver (out of scope for this
// core per spec.md §1: ATA PIO, GPT discovery and FAT16 directory lookup
// all live outside the process/memory core). Mounting one lets Open resolve
// paths that fall outside the bootloader module registry.
type FAT16Provider interface {
	// OpenFile resolves path (already cleaned and made absolute by
	// kernel/path) to a File, or returns an error if it does not exist or
	// names a directory.
	OpenFile(path string) (File, *kernel.Error)
}
