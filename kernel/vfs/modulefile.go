package vfs

import "tsukuyomi/kernel"

var errModuleNoDirents = &kernel.Error{Module: "vfs", Message: "module file has no directory entries"}

// ModuleFile is a read-only file backed by a bootloader-supplied module
// image already resident in memory (spec §6: "a list of pre-loaded module
// files, each exposing a kernel-addressable memory image"). It is the only
// loadable file source exec can use in this spec.
type ModuleFile struct {
	data   []byte
	offset int
}

// NewModuleFile wraps a module's in-memory image. The slice is not copied:
// it is expected to alias the bootloader-reserved region for the lifetime
// of the kernel.
func NewModuleFile(data []byte) *ModuleFile {
	return &ModuleFile{data: data}
}

// Data returns the module's full backing image, for exec's ELF loader.
func (f *ModuleFile) Data() []byte { return f.data }

func (f *ModuleFile) Read(buf []byte) (int, *kernel.Error) {
	if f.offset >= len(f.data) {
		return 0, nil
	}
	n := copy(buf, f.data[f.offset:])
	f.offset += n
	return n, nil
}

// Write always fails: module images are read-only.
func (f *ModuleFile) Write(buf []byte) (int, *kernel.Error) {
	return 0, &kernel.Error{Module: "vfs", Message: "module files are read-only"}
}

func (f *ModuleFile) GetDirents(buf []byte) (int, *kernel.Error) {
	return 0, errModuleNoDirents
}
