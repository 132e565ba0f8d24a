package vfs

import (
	"testing"
	"tsukuyomi/kernel"
)

type fakeTty struct {
	written []byte
	x, y    uint16
}

func (f *fakeTty) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}
func (f *fakeTty) WriteByte(b byte) error { f.written = append(f.written, b); return nil }
func (f *fakeTty) Position() (uint16, uint16) { return f.x, f.y }
func (f *fakeTty) SetPosition(x, y uint16)    { f.x, f.y = x, y }
func (f *fakeTty) Clear()                     { f.written = nil }

type fakeFAT16 struct {
	files map[string][]byte
}

func (f *fakeFAT16) OpenFile(path string) (File, *kernel.Error) {
	data, ok := f.files[path]
	if !ok {
		return nil, &kernel.Error{Module: "vfs", Message: "not found"}
	}
	return NewModuleFile(data), nil
}

func TestRootOpenFallsBackToFAT16(t *testing.T) {
	root := NewRoot()
	root.MountFAT16(&fakeFAT16{files: map[string][]byte{"/etc/motd": []byte("hi")}})

	h, err := root.Open("/etc/motd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Kind() != KindFAT16File {
		t.Fatalf("expected KindFAT16File, got %v", h.Kind())
	}
}

func TestHandleReadWriteThroughModuleFile(t *testing.T) {
	h := NewHandle(KindModuleFile, NewModuleFile([]byte("hello world")))
	buf := make([]byte, 5)

	n, err := h.Read(buf)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = %d, %v, %q", n, err, buf)
	}

	if _, err := h.Write(buf); err == nil {
		t.Fatal("expected write to a module file to fail")
	}
}

func TestHandleCloseInvalidatesIt(t *testing.T) {
	h := NewHandle(KindModuleFile, NewModuleFile([]byte("x")))
	h.Close()

	if h.Valid() {
		t.Fatal("expected handle to be invalid after Close")
	}
	if _, err := h.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected Read on a closed handle to fail")
	}
}

func TestRootOpenResolvesRegisteredModule(t *testing.T) {
	root := NewRoot()
	root.RegisterModule("/boot/sh", []byte("binary"))

	h, err := root.Open("/boot/sh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Kind() != KindModuleFile {
		t.Fatalf("expected KindModuleFile, got %v", h.Kind())
	}
}

func TestRootOpenConsole(t *testing.T) {
	root := NewRoot()
	root.SetConsole(&fakeTty{})

	h, err := root.Open("/dev/console")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Kind() != KindTty {
		t.Fatalf("expected KindTty, got %v", h.Kind())
	}
}

func TestRootOpenUnknownPathFails(t *testing.T) {
	root := NewRoot()
	if _, err := root.Open("/nope"); err == nil {
		t.Fatal("expected an error for an unregistered path")
	}
}

func TestRootOpenDirectoryFailsDistinctly(t *testing.T) {
	root := NewRoot()
	root.RegisterModule("/boot/sh", []byte("binary"))

	_, err := root.Open("/boot")
	if err == nil {
		t.Fatal("expected an error opening a directory as a file")
	}
	if err != errNotADirectory {
		t.Fatalf("expected errNotADirectory, got %v", err)
	}
}

func TestDirEntryNameString(t *testing.T) {
	var d DirEntry
	copy(d.Name[:], "ls")

	if got, want := d.NameString(), "ls"; got != want {
		t.Fatalf("NameString() = %q, want %q", got, want)
	}
}
