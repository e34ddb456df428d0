// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/volumefs/volumefs/bridge"
	"github.com/volumefs/volumefs/protocol"
)

// SourceReader adapts the front end's byte-range service to
// io.ReaderAt so archive parsers can consume the raw archive without
// ever holding it whole. Every ReadAt becomes one or more read-chunk
// pulls over the bridge.
//
// At most one pull may be outstanding per session: the decompression
// state behind a session is sequential and must not be fed out-of-order
// byte windows. A second pull attempted while one is in flight is a
// programming error and fails with CodeProtocolViolation rather than
// queueing.
type SourceReader struct {
	// ctx bounds every pull with the session's lifetime. ReadAt cannot
	// take a context (io.ReaderAt), so the session actor binds it at
	// construction; close-volume cancels in-flight pulls through the
	// peer's registry regardless.
	ctx context.Context

	peer         *bridge.Peer
	fileSystemID string
	size         int64

	mu       sync.Mutex
	inFlight bool
}

// NewSourceReader builds a reader for one session's archive bytes.
// size is the archive size fixed at metadata load.
func NewSourceReader(ctx context.Context, peer *bridge.Peer, fileSystemID string, size int64) *SourceReader {
	return &SourceReader{ctx: ctx, peer: peer, fileSystemID: fileSystemID, size: size}
}

// Size returns the archive size in bytes.
func (r *SourceReader) Size() int64 {
	return r.size
}

// ReadAt fills p with archive bytes starting at offset. Reads beyond
// the archive size are clamped and return io.EOF with the partial
// count, matching io.ReaderAt semantics. A single ReadAt may issue
// several pulls when the front end truncates responses to its chunk
// cap (signalled by has_more_data).
func (r *SourceReader) ReadAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("source reader: negative offset %d", offset)
	}
	if offset >= r.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	clamped := false
	if offset+want > r.size {
		want = r.size - offset
		clamped = true
	}

	read := int64(0)
	for read < want {
		buffer, hasMore, err := r.pull(offset+read, want-read)
		if err != nil {
			return int(read), err
		}
		if len(buffer) == 0 {
			if hasMore {
				return int(read), fmt.Errorf("source reader: empty chunk with has_more_data set at offset %d", offset+read)
			}
			return int(read), io.ErrUnexpectedEOF
		}
		if int64(len(buffer)) > want-read {
			return int(read), fmt.Errorf("source reader: front end returned %d bytes for a %d byte pull",
				len(buffer), want-read)
		}
		copy(p[read:], buffer)
		read += int64(len(buffer))
		if read < want && !hasMore {
			return int(read), io.ErrUnexpectedEOF
		}
	}

	if clamped {
		return int(read), io.EOF
	}
	return int(read), nil
}

// pull issues one read-chunk request, enforcing the single-pull gate.
func (r *SourceReader) pull(offset, length int64) ([]byte, bool, error) {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return nil, false, protocol.Errorf(protocol.CodeProtocolViolation,
			"read-chunk already outstanding for session %q", r.fileSystemID)
	}
	r.inFlight = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
	}()

	response, err := r.peer.Call(r.ctx, &protocol.Message{
		Operation:    protocol.OpReadChunk,
		FileSystemID: r.fileSystemID,
		Offset:       offset,
		Length:       length,
	})
	if err != nil {
		return nil, false, err
	}
	return response.ChunkBuffer, response.HasMoreData, nil
}
