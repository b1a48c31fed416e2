package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(dir, "portal.log", 1, 2)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	defer fw.Close()

	fw.maxSize = 16
	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fw.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	fw.compress = fw.archive

	for i := 0; i < 5; i++ {
		if _, err := fw.Write([]byte("0123456789abcdef\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	archives, _ := filepath.Glob(filepath.Join(dir, "portal.log.*.gz"))
	if len(archives) != 2 {
		t.Fatalf("expected 2 archives after pruning, got %v", archives)
	}
	data, err := os.ReadFile(fw.Path())
	if err != nil {
		t.Fatalf("read active file: %v", err)
	}
	if strings.Count(string(data), "\n") != 1 {
		t.Fatalf("expected active file to hold one line, got %q", data)
	}
}

func TestFileWriterClosedWriteFails(t *testing.T) {
	fw, err := NewFileWriter(t.TempDir(), "portal.log", 1, 1)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := fw.Write([]byte("x")); err == nil {
		t.Fatalf("expected write after close to fail")
	}
}
