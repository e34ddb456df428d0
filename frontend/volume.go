// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"fmt"

	"github.com/volumefs/volumefs/protocol"
)

// Volume is one mounted archive session. Created by [Client.Mount];
// valid until Close.
type Volume struct {
	client   *Client
	source   Source
	id       string
	metadata *protocol.Entry
}

// ID returns the volume's file system id.
func (v *Volume) ID() string {
	return v.id
}

// Metadata returns the archive's directory tree as parsed by the
// engine at mount time. The root entry has the empty name.
func (v *Volume) Metadata() *protocol.Entry {
	return v.metadata
}

// ArchiveSize returns the compressed archive's size in bytes. Read
// requests are bounded by it: offset+length past the archive size is
// rejected by the engine as out of range.
func (v *Volume) ArchiveSize() int64 {
	return v.source.Size()
}

// Open opens one archive member for reading. The returned file is
// backed by an engine-side handle keyed by the open request's id.
func (v *Volume) Open(ctx context.Context, path string) (*File, error) {
	request := &protocol.Message{
		Operation:    protocol.OpOpenFile,
		FileSystemID: v.id,
		FilePath:     path,
		ArchiveSize:  v.source.Size(),
	}
	if _, err := v.client.peer.Call(ctx, request); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &File{volume: v, openRequestID: request.RequestID, path: path}, nil
}

// Close ends the session. It notifies the engine with the
// fire-and-forget close-volume message, fails every request still
// pending for the session, and stops answering its chunk pulls.
// Idempotent on the engine side; calling it twice locally is harmless
// but the second notification addresses an unknown session.
func (v *Volume) Close() error {
	v.client.forget(v.id)
	v.client.peer.CancelSession(v.id, protocol.Errorf(protocol.CodeInvalidSession,
		"volume %s closed", v.id))
	return v.client.peer.Send(&protocol.Message{
		Operation:    protocol.OpCloseVolume,
		FileSystemID: v.id,
		RequestID:    protocol.CloseVolumeRequestID,
	})
}

// File is an open archive member. Reads are stateless on this side:
// every Read names its own offset, and the engine's handle does the
// stream bookkeeping.
type File struct {
	volume        *Volume
	openRequestID int64
	path          string
}

// Path returns the member path this file was opened with.
func (f *File) Path() string {
	return f.path
}

// Read returns up to length decompressed bytes starting at offset,
// and whether more data exists past them. Reading at or past end of
// file yields a short or empty result with hasMore false — not an
// error.
func (f *File) Read(ctx context.Context, offset, length int64) ([]byte, bool, error) {
	response, err := f.volume.client.peer.Call(ctx, &protocol.Message{
		Operation:     protocol.OpReadFile,
		FileSystemID:  f.volume.id,
		OpenRequestID: f.openRequestID,
		Offset:        offset,
		Length:        length,
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading %s at offset %d: %w", f.path, offset, err)
	}
	return response.ReadFileData, response.HasMoreData, nil
}

// ReadAll drains the file from the beginning in readLength-sized
// requests. readLength ≤ 0 selects the chunk response cap. Request
// bounds are clamped to the archive size, which caps how far into a
// member the protocol can read.
func (f *File) ReadAll(ctx context.Context, readLength int64) ([]byte, error) {
	if readLength <= 0 {
		readLength = DefaultChunkResponseCap
	}
	archiveSize := f.volume.ArchiveSize()
	var content []byte
	for offset := int64(0); ; {
		length := readLength
		if remaining := archiveSize - offset; length > remaining {
			length = remaining
		}
		if length <= 0 {
			return content, fmt.Errorf("reading %s: archive size %d exhausted with more data promised", f.path, archiveSize)
		}
		data, hasMore, err := f.Read(ctx, offset, length)
		if err != nil {
			return content, err
		}
		content = append(content, data...)
		offset += int64(len(data))
		if !hasMore {
			return content, nil
		}
		if len(data) == 0 {
			return content, fmt.Errorf("reading %s: empty result with more data promised at offset %d", f.path, offset)
		}
	}
}

// Close releases the engine-side handle. Further reads through this
// file fail with an invalid-handle error from the engine.
func (f *File) Close(ctx context.Context) error {
	_, err := f.volume.client.peer.Call(ctx, &protocol.Message{
		Operation:     protocol.OpCloseFile,
		FileSystemID:  f.volume.id,
		OpenRequestID: f.openRequestID,
	})
	if err != nil {
		return fmt.Errorf("closing %s: %w", f.path, err)
	}
	return nil
}
