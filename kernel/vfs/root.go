package vfs

import "tsukuyomi/kernel"

// Root resolves paths into open Handles. It is deliberately small: the
// dispatch logic a full VFS would need (mount table, inode cache,
// directory traversal) is out of scope; this core only needs enough of a
// namespace to open bootloader modules and, if one is mounted, delegate to
// a FAT16 disk image.
type Root struct {
	modules map[string]*ModuleFile
	fat16   FAT16Provider
	console Tty
}

// NewRoot creates an empty namespace. Modules are registered with
// RegisterModule; a disk-backed file system is attached with MountFAT16.
func NewRoot() *Root {
	return &Root{modules: make(map[string]*ModuleFile)}
}

// RegisterModule makes a bootloader module file openable at path (its
// bootinfo-reported path, e.g. "/boot/sh").
func (r *Root) RegisterModule(path string, data []byte) {
	r.modules[path] = NewModuleFile(data)
}

// MountFAT16 attaches a FAT16 disk image provider. Paths that do not match a
// registered module fall through to it.
func (r *Root) MountFAT16(p FAT16Provider) { r.fat16 = p }

// SetConsole registers the TTY reachable as "/dev/console".
func (r *Root) SetConsole(t Tty) { r.console = t }

// Open resolves an already-cleaned absolute path into a Handle.
// "/dev/console" resolves to the registered console before anything else;
// bootloader modules are checked next since they require no driver; a
// mounted FAT16 image is consulted only if no module matches.
func (r *Root) Open(path string) (Handle, *kernel.Error) {
	if path == "/dev/console" && r.console != nil {
		return NewHandle(KindTty, NewTtyFile(r.console)), nil
	}
	if m, ok := r.modules[path]; ok {
		return NewHandle(KindModuleFile, m), nil
	}
	if r.fat16 != nil {
		if f, err := r.fat16.OpenFile(path); err == nil {
			return NewHandle(KindFAT16File, f), nil
		}
	}
	if r.isModuleDirectory(path) {
		return Handle{}, errNotADirectory
	}
	return Handle{}, errUnknownPath
}

// isModuleDirectory reports whether path is a directory implied by the
// registered module namespace (e.g. "/boot" when "/boot/sh" is registered),
// rather than simply unknown. The module registry is a flat path-to-file
// map with no directory nodes of its own, so this is the only sense in
// which "a directory" exists for it.
func (r *Root) isModuleDirectory(path string) bool {
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	for modPath := range r.modules {
		if len(modPath) > len(prefix) && modPath[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
