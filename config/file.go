// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"io"
	"io/fs"
	"os"
	"sync"
)

// FileReader is an io.Reader that opens its file on first read.
type FileReader struct {
	path string
	open func(string) (fs.File, error)

	openOnce sync.Once
	openErr  error
	file     io.ReadCloser
}

// NewFileReader returns a FileReader for the file at path on the local filesystem.
func NewFileReader(path string) *FileReader {
	return &FileReader{
		path: path,
		open: func(name string) (fs.File, error) {
			return os.Open(name)
		},
	}
}

// NewFSFileReader returns a FileReader for the file at path within fsys.
func NewFSFileReader(fsys fs.FS, path string) *FileReader {
	return &FileReader{
		path: path,
		open: fsys.Open,
	}
}

// Read implements the io.Reader interface.
func (r *FileReader) Read(b []byte) (int, error) {
	r.openOnce.Do(func() {
		r.file, r.openErr = r.open(r.path)
	})
	if r.openErr != nil {
		return 0, r.openErr
	}
	return r.file.Read(b)
}

// Close implements the io.Closer interface.
func (r *FileReader) Close() error {
	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil
	return err
}
