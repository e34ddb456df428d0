// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/volumefs/volumefs/protocol"
)

// zipDriver parses zip archives. Zip is the primary reference format:
// its central directory sits at the end of the archive, so parsing
// exercises non-sequential chunk pulls (the reader seeks backward from
// the archive tail before touching member data).
type zipDriver struct{}

// Zip returns the zip driver.
func Zip() Driver {
	return zipDriver{}
}

func (zipDriver) Name() string {
	return "zip"
}

func (zipDriver) Detect(magic []byte) bool {
	// Local file header of the first member, or the end-of-central-
	// directory record of an empty archive.
	return bytes.HasPrefix(magic, []byte("PK\x03\x04")) ||
		bytes.HasPrefix(magic, []byte("PK\x05\x06"))
}

func (zipDriver) Open(_ context.Context, source Source) (Volume, error) {
	reader, err := zip.NewReader(source, source.Size())
	if err != nil {
		return nil, err
	}

	root := protocol.NewRoot()
	members := make(map[string]*zip.File, len(reader.File))
	for _, member := range reader.File {
		name := strings.Trim(member.Name, "/")
		if name == "" {
			continue
		}
		if member.FileInfo().IsDir() {
			root.Insert(name, &protocol.Entry{
				IsDirectory:      true,
				ModificationTime: member.Modified.Unix(),
			})
			continue
		}
		root.Insert(name, &protocol.Entry{
			Size:             int64(member.UncompressedSize64),
			ModificationTime: member.Modified.Unix(),
		})
		members[name] = member
	}

	return &zipVolume{root: root, members: members}, nil
}

type zipVolume struct {
	root    *protocol.Entry
	members map[string]*zip.File
}

func (v *zipVolume) Metadata() *protocol.Entry {
	return v.root
}

func (v *zipVolume) Open(_ context.Context, path string) (File, error) {
	member, ok := v.members[strings.Trim(path, "/")]
	if !ok {
		return nil, fmt.Errorf("no such file in archive: %s", path)
	}
	return &zipFile{member: member}, nil
}

// zipFile reads one zip member. Decompression is sequential, so a
// backward seek reopens the member's stream and a forward seek
// discards the gap.
type zipFile struct {
	member   *zip.File
	stream   io.ReadCloser
	position int64
}

func (f *zipFile) Read(_ context.Context, offset, length int64) ([]byte, bool, error) {
	size := int64(f.member.UncompressedSize64)
	if offset >= size || length == 0 {
		return []byte{}, offset < size, nil
	}
	if length > size-offset {
		length = size - offset
	}

	if f.stream == nil || offset < f.position {
		if err := f.reopen(); err != nil {
			return nil, false, err
		}
	}
	if offset > f.position {
		if _, err := io.CopyN(io.Discard, f.stream, offset-f.position); err != nil {
			return nil, false, fmt.Errorf("seeking %s to offset %d: %w", f.member.Name, offset, err)
		}
		f.position = offset
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(f.stream, data); err != nil {
		return nil, false, fmt.Errorf("reading %s at offset %d: %w", f.member.Name, offset, err)
	}
	f.position += length
	return data, f.position < size, nil
}

func (f *zipFile) reopen() error {
	if f.stream != nil {
		f.stream.Close()
	}
	stream, err := f.member.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.member.Name, err)
	}
	f.stream = stream
	f.position = 0
	return nil
}

func (f *zipFile) Close() error {
	if f.stream == nil {
		return nil
	}
	err := f.stream.Close()
	f.stream = nil
	return err
}
