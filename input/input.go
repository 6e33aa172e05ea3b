// Package input opens plain or gzip-compressed input files.
package input

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// file closes both the decompressor and the underlying file.
type file struct {
	io.Reader
	closers []io.Closer
}

func (f *file) Close() (err error) {
	for _, c := range f.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return
}

// Open opens a file for reading. Files ending with .gz or starting with
// the gzip magic number are decompressed transparently.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	magic, _ := br.Peek(2)
	if strings.HasSuffix(path, ".gz") || (len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &file{Reader: zr, closers: []io.Closer{zr, f}}, nil
	}
	return &file{Reader: br, closers: []io.Closer{f}}, nil
}
