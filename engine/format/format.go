// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package format defines the archive reader plug-in interface the
// engine parses volumes with, and ships reference drivers for zip,
// tar+zstd, and tar+lz4. The bridge protocol itself is
// format-agnostic: drivers see only a [Source] — a sized io.ReaderAt
// whose reads the engine turns into chunk pulls — and never learn
// where the bytes come from.
package format

import (
	"context"
	"fmt"
	"io"

	"github.com/volumefs/volumefs/protocol"
)

// Source is the raw archive as the engine sees it: random-access
// reads backed by front-end chunk pulls, bounded by the archive size
// fixed at metadata load.
type Source interface {
	io.ReaderAt
	Size() int64
}

// File reads decompressed content of one archive member. Reads are
// positional; drivers may satisfy backward seeks by restarting their
// decompression stream. A File is used by one session actor at a time
// and needs no internal locking.
type File interface {
	// Read returns up to length bytes starting at offset, and whether
	// more data exists past the returned bytes. Reading at or past end
	// of file is not an error: it yields a short or empty result with
	// hasMore false.
	Read(ctx context.Context, offset, length int64) (data []byte, hasMore bool, err error)

	// Close releases the member's decompression state.
	Close() error
}

// Volume is one parsed archive.
type Volume interface {
	// Metadata returns the archive's directory tree. The root entry
	// has the empty name.
	Metadata() *protocol.Entry

	// Open prepares one member for reading. The path is
	// slash-separated, with or without a leading slash.
	Open(ctx context.Context, path string) (File, error)
}

// Driver recognizes and parses one archive format.
type Driver interface {
	// Name identifies the format in logs and errors ("zip", "tar.zst").
	Name() string

	// Detect reports whether the archive's leading bytes match this
	// format. magic holds up to [MagicLength] bytes — fewer when the
	// archive is shorter.
	Detect(magic []byte) bool

	// Open parses the archive structure. Drivers pull whatever ranges
	// they need through source; a failure here fails the session's
	// metadata load.
	Open(ctx context.Context, source Source) (Volume, error)
}

// MagicLength is how many leading bytes Detect receives.
const MagicLength = 8

// Registry holds the drivers an engine tries, in order.
type Registry struct {
	drivers []Driver
}

// NewRegistry builds a registry from the given drivers.
func NewRegistry(drivers ...Driver) *Registry {
	return &Registry{drivers: drivers}
}

// Default returns a registry with the reference drivers: zip,
// tar+zstd, and tar+lz4.
func Default() *Registry {
	return NewRegistry(Zip(), TarZstd(), TarLZ4())
}

// ByName returns the reference driver with the given name. It backs
// the daemon's format allowlist.
func ByName(name string) (Driver, bool) {
	switch name {
	case "zip":
		return Zip(), true
	case "tar.zst":
		return TarZstd(), true
	case "tar.lz4":
		return TarLZ4(), true
	}
	return nil, false
}

// Open detects the archive's format from its leading bytes and parses
// it with the matching driver.
func (r *Registry) Open(ctx context.Context, source Source) (Volume, error) {
	magicLength := int64(MagicLength)
	if size := source.Size(); size < magicLength {
		magicLength = size
	}
	magic := make([]byte, magicLength)
	if magicLength > 0 {
		if _, err := source.ReadAt(magic, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading archive magic: %w", err)
		}
	}

	for _, driver := range r.drivers {
		if driver.Detect(magic) {
			volume, err := driver.Open(ctx, source)
			if err != nil {
				return nil, fmt.Errorf("parsing %s archive: %w", driver.Name(), err)
			}
			return volume, nil
		}
	}
	return nil, fmt.Errorf("unrecognized archive format (magic %x)", magic)
}
