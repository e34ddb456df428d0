// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/volumefs/volumefs/protocol"
)

// tarDriver parses compressed tarballs. The compression stream is
// strictly sequential: metadata load is one full pass over the member
// headers, and member reads restart the stream when they need to seek
// backward. That makes tarballs the worst case for the chunk puller —
// useful as a reference driver precisely because it leans on
// sequential pulls the way zip leans on random access.
type tarDriver struct {
	name      string
	magic     []byte
	newStream func(r io.Reader) (io.Reader, func() error, error)
}

// TarZstd returns the driver for zstd-compressed tarballs.
func TarZstd() Driver {
	return &tarDriver{
		name:  "tar.zst",
		magic: []byte{0x28, 0xb5, 0x2f, 0xfd},
		newStream: func(r io.Reader) (io.Reader, func() error, error) {
			decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, nil, err
			}
			return decoder, func() error { decoder.Close(); return nil }, nil
		},
	}
}

// TarLZ4 returns the driver for lz4-compressed tarballs.
func TarLZ4() Driver {
	return &tarDriver{
		name:  "tar.lz4",
		magic: []byte{0x04, 0x22, 0x4d, 0x18},
		newStream: func(r io.Reader) (io.Reader, func() error, error) {
			return lz4.NewReader(r), func() error { return nil }, nil
		},
	}
}

func (d *tarDriver) Name() string {
	return d.name
}

func (d *tarDriver) Detect(magic []byte) bool {
	return bytes.HasPrefix(magic, d.magic)
}

func (d *tarDriver) Open(_ context.Context, source Source) (Volume, error) {
	stream, closeStream, err := d.newStream(io.NewSectionReader(source, 0, source.Size()))
	if err != nil {
		return nil, err
	}
	defer closeStream()

	root := protocol.NewRoot()
	sizes := make(map[string]int64)
	reader := tar.NewReader(stream)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scanning tar members: %w", err)
		}
		name := strings.Trim(header.Name, "/")
		if name == "" || name == "." {
			continue
		}
		switch header.Typeflag {
		case tar.TypeDir:
			root.Insert(name, &protocol.Entry{
				IsDirectory:      true,
				ModificationTime: header.ModTime.Unix(),
			})
		case tar.TypeReg:
			root.Insert(name, &protocol.Entry{
				Size:             header.Size,
				ModificationTime: header.ModTime.Unix(),
			})
			sizes[name] = header.Size
		}
	}

	return &tarVolume{driver: d, source: source, root: root, sizes: sizes}, nil
}

type tarVolume struct {
	driver *tarDriver
	source Source
	root   *protocol.Entry
	sizes  map[string]int64
}

func (v *tarVolume) Metadata() *protocol.Entry {
	return v.root
}

func (v *tarVolume) Open(_ context.Context, path string) (File, error) {
	name := strings.Trim(path, "/")
	size, ok := v.sizes[name]
	if !ok {
		return nil, fmt.Errorf("no such file in archive: %s", path)
	}
	return &tarFile{volume: v, name: name, size: size}, nil
}

// tarFile reads one member of a compressed tarball. The stream is
// positioned at f.position within the member; backward seeks restart
// decompression from the top of the archive.
type tarFile struct {
	volume      *tarVolume
	name        string
	size        int64
	stream      io.Reader
	closeStream func() error
	position    int64
}

func (f *tarFile) Read(_ context.Context, offset, length int64) ([]byte, bool, error) {
	if offset >= f.size || length == 0 {
		return []byte{}, offset < f.size, nil
	}
	if length > f.size-offset {
		length = f.size - offset
	}

	if f.stream == nil || offset < f.position {
		if err := f.reopen(); err != nil {
			return nil, false, err
		}
	}
	if offset > f.position {
		if _, err := io.CopyN(io.Discard, f.stream, offset-f.position); err != nil {
			return nil, false, fmt.Errorf("seeking %s to offset %d: %w", f.name, offset, err)
		}
		f.position = offset
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(f.stream, data); err != nil {
		return nil, false, fmt.Errorf("reading %s at offset %d: %w", f.name, offset, err)
	}
	f.position += length
	return data, f.position < f.size, nil
}

// reopen restarts decompression and walks the tar stream to this
// member's content.
func (f *tarFile) reopen() error {
	if err := f.Close(); err != nil {
		return err
	}
	stream, closeStream, err := f.volume.driver.newStream(
		io.NewSectionReader(f.volume.source, 0, f.volume.source.Size()))
	if err != nil {
		return err
	}

	reader := tar.NewReader(stream)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			closeStream()
			return fmt.Errorf("member %s vanished from archive", f.name)
		}
		if err != nil {
			closeStream()
			return fmt.Errorf("seeking to member %s: %w", f.name, err)
		}
		if header.Typeflag == tar.TypeReg && strings.Trim(header.Name, "/") == f.name {
			break
		}
	}

	f.stream = reader
	f.closeStream = closeStream
	f.position = 0
	return nil
}

func (f *tarFile) Close() error {
	if f.closeStream == nil {
		return nil
	}
	err := f.closeStream()
	f.stream = nil
	f.closeStream = nil
	return err
}
