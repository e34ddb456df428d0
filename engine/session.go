// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/volumefs/volumefs/engine/format"
	"github.com/volumefs/volumefs/protocol"
)

// sessionState tracks a volume session's lifecycle.
type sessionState int

const (
	// stateAwaitingMetadata is the initial state: the archive
	// structure is being parsed and only the triggering read-metadata
	// request is in flight.
	stateAwaitingMetadata sessionState = iota

	// stateReady accepts open-file, read-file, and close-file.
	stateReady

	// stateClosed rejects everything. A closed session is removed from
	// the engine's table; the constant exists so an operation that
	// held the session lock across the close observes the transition.
	stateClosed
)

// handleState tracks one file handle's lifecycle.
type handleState int

const (
	handleOpening handleState = iota
	handleOpen
	handleClosing
	handleClosed
)

// session is the engine-side state of one archive volume. All field
// access after construction happens under mu: message handlers for one
// session execute one at a time, including while they suspend on chunk
// pulls. Handlers for different sessions never contend.
type session struct {
	id          string
	archiveSize int64
	source      *SourceReader
	logger      *slog.Logger

	mu      sync.Mutex
	state   sessionState
	volume  format.Volume
	handles map[int64]*fileHandle
}

// fileHandle is one open archive member, keyed in the session's table
// by the id of the open-file request that created it.
type fileHandle struct {
	openRequestID int64
	path          string
	state         handleState
	file          format.File
}

// loadMetadata parses the archive and moves the session to Ready.
// Runs with the session lock held, in AwaitingMetadata.
func (s *session) loadMetadata(ctx context.Context, registry *format.Registry) (*protocol.Entry, error) {
	volume, err := registry.Open(ctx, s.source)
	if err != nil {
		s.state = stateClosed
		return nil, err
	}
	s.volume = volume
	s.state = stateReady
	return volume.Metadata(), nil
}

// openFile creates a handle for path, keyed by the open-file request
// id. Runs with the session lock held, in Ready.
func (s *session) openFile(ctx context.Context, requestID int64, path string) error {
	if _, exists := s.handles[requestID]; exists {
		return protocol.Errorf(protocol.CodeProtocolViolation,
			"open request id %d already names a handle", requestID)
	}

	handle := &fileHandle{openRequestID: requestID, path: path, state: handleOpening}
	s.handles[requestID] = handle

	file, err := s.volume.Open(ctx, path)
	if err != nil {
		// The handle never reaches Open; it is removed immediately.
		delete(s.handles, requestID)
		return err
	}
	handle.file = file
	handle.state = handleOpen
	return nil
}

// readFile reads from the handle created by openRequestID. Runs with
// the session lock held, in Ready.
func (s *session) readFile(ctx context.Context, openRequestID, offset, length int64) ([]byte, bool, error) {
	handle, ok := s.handles[openRequestID]
	if !ok || handle.state != handleOpen {
		return nil, false, protocol.Errorf(protocol.CodeInvalidHandle,
			"no open handle for open request %d", openRequestID)
	}
	if offset+length > s.archiveSize {
		return nil, false, protocol.Errorf(protocol.CodeOutOfRange,
			"offset %d + length %d exceeds archive size %d", offset, length, s.archiveSize)
	}
	return handle.file.Read(ctx, offset, length)
}

// closeFile releases the handle created by openRequestID and removes
// it from the table. Runs with the session lock held, in Ready.
func (s *session) closeFile(openRequestID int64) error {
	handle, ok := s.handles[openRequestID]
	if !ok || handle.state != handleOpen {
		return protocol.Errorf(protocol.CodeInvalidHandle,
			"no open handle for open request %d", openRequestID)
	}

	handle.state = handleClosing
	err := handle.file.Close()
	handle.state = handleClosed
	delete(s.handles, openRequestID)
	if err != nil {
		s.logger.Warn("releasing file handle", "path", handle.path, "error", err)
	}
	return nil
}

// close releases every handle and marks the session Closed. Runs with
// the session lock held. Idempotent.
func (s *session) close() {
	if s.state == stateClosed {
		return
	}
	for id, handle := range s.handles {
		if handle.file != nil {
			if err := handle.file.Close(); err != nil {
				s.logger.Warn("releasing file handle on close", "path", handle.path, "error", err)
			}
		}
		delete(s.handles, id)
	}
	s.state = stateClosed
}
