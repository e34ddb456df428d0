// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is one archive as the front end holds it: random-access
// bytes, a fixed size, and a name that (with the size) identifies the
// archive for volume id derivation.
type Source interface {
	io.ReaderAt
	Size() int64
	Name() string
}

// FileSource serves an archive from the local file system.
type FileSource struct {
	file *os.File
	size int64
	name string
}

// OpenFileSource opens path as an archive source. The caller owns the
// source and must Close it after the volume is closed.
func OpenFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sizing archive: %w", err)
	}
	return &FileSource{file: file, size: info.Size(), name: filepath.Base(path)}, nil
}

func (s *FileSource) ReadAt(p []byte, offset int64) (int, error) {
	return s.file.ReadAt(p, offset)
}

func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) Name() string {
	return s.name
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}

// BytesSource serves an archive from memory. Useful in tests and for
// archives that already arrived as a buffer.
type BytesSource struct {
	reader *bytes.Reader
	name   string
}

// NewBytesSource wraps data as a source named name.
func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{reader: bytes.NewReader(data), name: name}
}

func (s *BytesSource) ReadAt(p []byte, offset int64) (int, error) {
	return s.reader.ReadAt(p, offset)
}

func (s *BytesSource) Size() int64 {
	return s.reader.Size()
}

func (s *BytesSource) Name() string {
	return s.name
}
