package vfs

import "tsukuyomi/kernel"

var errTtyNoDirents = &kernel.Error{Module: "vfs", Message: "tty has no directory entries"}

// TtyFile adapts a Tty driver (out of scope; supplied by whatever console
// or serial implementation the boot binary links in) to the File interface
// an open-file handle wraps.
type TtyFile struct {
	tty Tty
}

// NewTtyFile wraps an already-initialized Tty as a File.
func NewTtyFile(t Tty) *TtyFile { return &TtyFile{tty: t} }

// Read is not meaningful for an output-only console TTY in this spec (the
// keyboard driver feeds input through its own ring buffer and handler, not
// through this file); it always reports zero bytes read.
func (f *TtyFile) Read(buf []byte) (int, *kernel.Error) { return 0, nil }

func (f *TtyFile) Write(buf []byte) (int, *kernel.Error) {
	n, err := f.tty.Write(buf)
	if err != nil {
		return n, &kernel.Error{Module: "vfs", Message: err.Error()}
	}
	return n, nil
}

func (f *TtyFile) GetDirents(buf []byte) (int, *kernel.Error) {
	return 0, errTtyNoDirents
}
