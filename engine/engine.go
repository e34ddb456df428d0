// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/volumefs/volumefs/bridge"
	"github.com/volumefs/volumefs/engine/format"
	"github.com/volumefs/volumefs/protocol"
)

// Engine serves the decompression side of one bridge connection. It
// implements [bridge.Handler]: the peer hands it every inbound request
// and notification, and it answers through the same peer.
//
// Construct one Engine per connection. Sessions are keyed by file
// system id within that connection; the id namespace is the front
// end's.
type Engine struct {
	registry *format.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New builds an engine. A nil registry selects the reference drivers
// ([format.Default]); a nil logger selects slog.Default().
func New(registry *format.Registry, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = format.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// HandleMessage dispatches one front-end request or notification.
// Runs on its own goroutine per message (the peer's dispatch model);
// per-session serialization happens on the session lock.
func (e *Engine) HandleMessage(ctx context.Context, peer *bridge.Peer, message *protocol.Message) {
	if !message.Operation.FrontEndOrigin() {
		e.logger.Warn("protocol violation: engine-origin operation received as request",
			"operation", message.Operation,
			"file_system_id", message.FileSystemID,
		)
		e.respondError(peer, message, protocol.Errorf(protocol.CodeProtocolViolation,
			"operation %s cannot be addressed to the engine", message.Operation))
		return
	}

	switch message.Operation {
	case protocol.OpReadMetadata:
		e.handleReadMetadata(ctx, peer, message)
	case protocol.OpOpenFile:
		e.handleOpenFile(ctx, peer, message)
	case protocol.OpReadFile:
		e.handleReadFile(ctx, peer, message)
	case protocol.OpCloseFile:
		e.handleCloseFile(peer, message)
	case protocol.OpCloseVolume:
		e.handleCloseVolume(peer, message)
	}
}

// handleReadMetadata creates the session on first contact and answers
// with the parsed directory tree. A read-metadata for an already-Ready
// session re-serves the cached tree; one for a session still loading
// is a protocol violation (the front end cannot have two metadata
// requests outstanding for one volume).
func (e *Engine) handleReadMetadata(ctx context.Context, peer *bridge.Peer, message *protocol.Message) {
	e.mu.Lock()
	existing, ok := e.sessions[message.FileSystemID]
	if ok {
		e.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		switch existing.state {
		case stateReady:
			e.respond(peer, &protocol.Message{
				Operation:    protocol.OpReadMetadataDone,
				FileSystemID: message.FileSystemID,
				RequestID:    message.RequestID,
				Metadata:     existing.volume.Metadata(),
			})
		case stateAwaitingMetadata:
			e.respondError(peer, message, protocol.Errorf(protocol.CodeProtocolViolation,
				"metadata load already in progress for session %q", message.FileSystemID))
		default:
			e.respondError(peer, message, protocol.Errorf(protocol.CodeInvalidSession,
				"session %q is closed", message.FileSystemID))
		}
		return
	}

	created := &session{
		id:          message.FileSystemID,
		archiveSize: message.ArchiveSize,
		source:      NewSourceReader(ctx, peer, message.FileSystemID, message.ArchiveSize),
		logger:      e.logger.With("file_system_id", message.FileSystemID),
		handles:     make(map[int64]*fileHandle),
	}
	e.sessions[message.FileSystemID] = created
	created.mu.Lock()
	e.mu.Unlock()
	defer created.mu.Unlock()

	metadata, err := created.loadMetadata(ctx, e.registry)
	if err != nil {
		// The session never reaches Ready: discard it so a later
		// read-metadata can retry from scratch.
		e.removeSession(message.FileSystemID)
		created.logger.Info("metadata load failed", "error", err)
		e.respondError(peer, message, err)
		return
	}

	created.logger.Info("volume session ready", "archive_size", created.archiveSize)
	e.respond(peer, &protocol.Message{
		Operation:    protocol.OpReadMetadataDone,
		FileSystemID: message.FileSystemID,
		RequestID:    message.RequestID,
		Metadata:     metadata,
	})
}

func (e *Engine) handleOpenFile(ctx context.Context, peer *bridge.Peer, message *protocol.Message) {
	s, err := e.readySession(message.FileSystemID)
	if err != nil {
		e.respondError(peer, message, err)
		return
	}
	defer s.mu.Unlock()

	if err := s.openFile(ctx, message.RequestID, message.FilePath); err != nil {
		e.respondError(peer, message, err)
		return
	}
	s.logger.Debug("file opened", "path", message.FilePath, "open_request_id", message.RequestID)
	e.respond(peer, &protocol.Message{
		Operation:    protocol.OpOpenFileDone,
		FileSystemID: message.FileSystemID,
		RequestID:    message.RequestID,
	})
}

func (e *Engine) handleReadFile(ctx context.Context, peer *bridge.Peer, message *protocol.Message) {
	s, err := e.readySession(message.FileSystemID)
	if err != nil {
		e.respondError(peer, message, err)
		return
	}
	defer s.mu.Unlock()

	data, hasMore, err := s.readFile(ctx, message.OpenRequestID, message.Offset, message.Length)
	if err != nil {
		e.respondError(peer, message, err)
		return
	}
	e.respond(peer, &protocol.Message{
		Operation:    protocol.OpReadFileDone,
		FileSystemID: message.FileSystemID,
		RequestID:    message.RequestID,
		ReadFileData: data,
		HasMoreData:  hasMore,
	})
}

func (e *Engine) handleCloseFile(peer *bridge.Peer, message *protocol.Message) {
	s, err := e.readySession(message.FileSystemID)
	if err != nil {
		e.respondError(peer, message, err)
		return
	}
	defer s.mu.Unlock()

	if err := s.closeFile(message.OpenRequestID); err != nil {
		e.respondError(peer, message, err)
		return
	}
	s.logger.Debug("file closed", "open_request_id", message.OpenRequestID)
	e.respond(peer, &protocol.Message{
		Operation:    protocol.OpCloseFileDone,
		FileSystemID: message.FileSystemID,
		RequestID:    message.RequestID,
	})
}

// handleCloseVolume tears down a session. Fire-and-forget and
// idempotent: closing an unknown session is a no-op, and no response
// is ever sent. Pending chunk pulls are failed first so any request
// handler suspended on the source unblocks and releases the session
// lock.
func (e *Engine) handleCloseVolume(peer *bridge.Peer, message *protocol.Message) {
	e.mu.Lock()
	s, ok := e.sessions[message.FileSystemID]
	e.mu.Unlock()
	if !ok {
		e.logger.Debug("close-volume for unknown session", "file_system_id", message.FileSystemID)
		return
	}

	peer.CancelSession(message.FileSystemID, protocol.Errorf(protocol.CodeInvalidSession,
		"session %q is closed", message.FileSystemID))

	s.mu.Lock()
	s.close()
	s.mu.Unlock()
	e.removeSession(message.FileSystemID)
	s.logger.Info("volume session closed")
}

// Close releases every session. Called by the connection owner after
// the peer's serve loop returns (transport loss or shutdown).
func (e *Engine) Close() {
	e.mu.Lock()
	sessions := make([]*session, 0, len(e.sessions))
	for id, s := range e.sessions {
		sessions = append(sessions, s)
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		s.close()
		s.mu.Unlock()
	}
}

// readySession returns the session locked, or a classified error when
// it does not exist or is not Ready. On success the caller owns the
// session lock.
func (e *Engine) readySession(fileSystemID string) (*session, error) {
	e.mu.Lock()
	s, ok := e.sessions[fileSystemID]
	e.mu.Unlock()
	if !ok {
		return nil, protocol.Errorf(protocol.CodeInvalidSession,
			"no session %q", fileSystemID)
	}

	s.mu.Lock()
	if s.state != stateReady {
		state := s.state
		s.mu.Unlock()
		if state == stateAwaitingMetadata {
			return nil, protocol.Errorf(protocol.CodeInvalidSession,
				"session %q has no metadata yet", fileSystemID)
		}
		return nil, protocol.Errorf(protocol.CodeInvalidSession,
			"session %q is closed", fileSystemID)
	}
	return s, nil
}

func (e *Engine) removeSession(fileSystemID string) {
	e.mu.Lock()
	delete(e.sessions, fileSystemID)
	e.mu.Unlock()
}

// respond sends a success response, logging delivery failures. A
// failed write means the transport is going down; the serve loop
// surfaces that separately.
func (e *Engine) respond(peer *bridge.Peer, message *protocol.Message) {
	if err := peer.Send(message); err != nil && !errors.Is(err, bridge.ErrPeerClosed) {
		e.logger.Error("sending response", "operation", message.Operation, "error", err)
	}
}

// respondError answers a request with its failure operation. Errors
// already classified keep their taxonomy code on the wire; anything
// else travels as its plain text.
func (e *Engine) respondError(peer *bridge.Peer, request *protocol.Message, cause error) {
	wire := cause.Error()
	var classified *protocol.Error
	if errors.As(cause, &classified) {
		wire = classified.WireString()
	}
	e.respond(peer, &protocol.Message{
		Operation:    request.Operation.FailureResponse(),
		FileSystemID: request.FileSystemID,
		RequestID:    request.RequestID,
		Error:        wire,
	})
}
