package device

import (
	"path/filepath"
	"testing"

	"github.com/gokernel/xvfs/internal/layout"
)

func TestFileReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.xvfs")
	f, err := OpenFile(path, 8)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	want := make([]byte, layout.BlockSize)
	for i := range want {
		want[i] = byte(i * 3)
	}
	if err := f.WriteBlock(5, want); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got := make([]byte, layout.BlockSize)
	if err := f.ReadBlock(5, got); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestFilePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.xvfs")
	f, err := OpenFile(path, 4)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	buf := make([]byte, layout.BlockSize)
	buf[0] = 0xAB
	if err := f.WriteBlock(1, buf); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := OpenFile(path, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	got := make([]byte, layout.BlockSize)
	if err := f2.ReadBlock(1, got); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if got[0] != 0xAB {
		t.Fatalf("got[0] = %x, want 0xAB", got[0])
	}
}

func TestFileOpenExistingInfersSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.xvfs")
	f, err := OpenFile(path, 6)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := OpenFile(path, 0)
	if err != nil {
		t.Fatalf("reopen with numBlocks=0: %v", err)
	}
	defer f2.Close()
	if got := f2.NumBlocks(); got != 6 {
		t.Fatalf("NumBlocks() = %d, want 6 (inferred from existing file size)", got)
	}
}

func TestFileExclusiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.xvfs")
	f1, err := OpenFile(path, 2)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f1.Close()

	if _, err := OpenFile(path, 2); err == nil {
		t.Fatal("expected second OpenFile to fail on the held lock")
	}
}
