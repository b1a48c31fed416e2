package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileWriter appends log lines to dir/filename and rotates the file once it
// would grow past maxSize. Rotated files are gzipped and only the newest
// maxFiles archives are kept.
type FileWriter struct {
	mu          sync.Mutex
	dir         string
	filename    string
	maxSize     int64
	maxFiles    int
	currentFile *os.File
	currentSize int64
	now         func() time.Time
	// compress runs synchronously in tests.
	compress func(path string)
}

// NewFileWriter creates the log directory if needed and opens the current
// file for appending.
func NewFileWriter(dir, filename string, maxSizeMB, maxFiles int) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	fw := &FileWriter{
		dir:      dir,
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
		now:      time.Now,
	}
	fw.compress = func(path string) { go fw.archive(path) }
	if err := fw.openFile(); err != nil {
		return nil, err
	}
	return fw, nil
}

// Path returns the path of the active log file.
func (fw *FileWriter) Path() string {
	return filepath.Join(fw.dir, fw.filename)
}

func (fw *FileWriter) openFile() error {
	f, err := os.OpenFile(fw.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	fw.currentFile = f
	fw.currentSize = info.Size()
	return nil
}

func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.currentFile == nil {
		return 0, os.ErrClosed
	}
	if fw.currentSize > 0 && fw.currentSize+int64(len(p)) > fw.maxSize {
		if err := fw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := fw.currentFile.Write(p)
	fw.currentSize += int64(n)
	return n, err
}

func (fw *FileWriter) rotate() error {
	if err := fw.currentFile.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}
	rotated := fmt.Sprintf("%s.%s", fw.Path(), fw.now().Format("20060102-150405.000"))
	if err := os.Rename(fw.Path(), rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	fw.compress(rotated)
	return fw.openFile()
}

func (fw *FileWriter) archive(path string) {
	if err := gzipFile(path); err == nil {
		os.Remove(path)
	}
	fw.prune()
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// prune removes the oldest archives beyond maxFiles. Archive names embed a
// sortable timestamp, so lexical order is age order.
func (fw *FileWriter) prune() {
	matches, err := filepath.Glob(fw.Path() + ".*.gz")
	if err != nil || len(matches) <= fw.maxFiles {
		return
	}
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-fw.maxFiles] {
		os.Remove(path)
	}
}

// Close closes the active file. Further writes fail with os.ErrClosed.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.currentFile == nil {
		return nil
	}
	err := fw.currentFile.Close()
	fw.currentFile = nil
	return err
}
