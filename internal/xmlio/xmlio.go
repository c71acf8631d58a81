// Package xmlio opens and creates the XML files exchanged with the engine.
// Files ending in .gz are compressed transparently.
package xmlio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// IsCompressed reports whether path names a gzip file.
func IsCompressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

// Open opens path for reading, decompressing it when it is a .gz file.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !IsCompressed(path) {
		return f, nil
	}
	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
	}
	return &readCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
}

// Create creates path for writing, making parent directories as needed and
// compressing when it is a .gz file. Close flushes every layer.
func Create(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	if !IsCompressed(path) {
		return &writeCloser{Writer: bw, flush: bw, file: f}, nil
	}
	zw := gzip.NewWriter(bw)
	return &writeCloser{Writer: zw, gz: zw, flush: bw, file: f}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type writeCloser struct {
	io.Writer
	gz    *gzip.Writer
	flush *bufio.Writer
	file  *os.File
}

func (w *writeCloser) Close() error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.file.Close()
			return err
		}
	}
	if err := w.flush.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
