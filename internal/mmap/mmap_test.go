package mmap

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenAndBytes(t *testing.T) {
	want := []byte("annbind mapping test payload")
	m, err := Open(writeTemp(t, want))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if !bytes.Equal(m.Bytes(), want) {
		t.Errorf("mapped bytes differ: %q", m.Bytes())
	}
	if m.Size() != len(want) {
		t.Errorf("Size: got %d want %d", m.Size(), len(want))
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenEmptyFile(t *testing.T) {
	m, err := Open(writeTemp(t, nil))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.Size() != 0 {
		t.Errorf("expected empty mapping, got %d bytes", m.Size())
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestReadAt(t *testing.T) {
	m, err := Open(writeTemp(t, []byte("0123456789")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	buf := make([]byte, 4)
	n, err := m.ReadAt(buf, 3)
	if err != nil || n != 4 {
		t.Fatalf("ReadAt: n=%d err=%v", n, err)
	}
	if string(buf) != "3456" {
		t.Errorf("got %q", buf)
	}

	// A read past the tail truncates and reports EOF.
	n, err = m.ReadAt(buf, 8)
	if n != 2 || !errors.Is(err, io.EOF) {
		t.Errorf("tail read: n=%d err=%v", n, err)
	}
	if string(buf[:n]) != "89" {
		t.Errorf("got %q", buf[:n])
	}

	if _, err := m.ReadAt(buf, 10); !errors.Is(err, io.EOF) {
		t.Errorf("offset at size: err=%v", err)
	}
	if _, err := m.ReadAt(buf, -1); !errors.Is(err, io.EOF) {
		t.Errorf("negative offset: err=%v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	m, err := Open(writeTemp(t, []byte("x")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if m.Bytes() != nil {
		t.Error("Bytes after Close must be nil")
	}
	if _, err := m.ReadAt(make([]byte, 1), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadAt after Close: err=%v", err)
	}
}
