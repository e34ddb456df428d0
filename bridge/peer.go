// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/volumefs/volumefs/lib/codec"
	"github.com/volumefs/volumefs/protocol"
)

// Handler receives inbound requests and notifications. Responses are
// routed to the suspended Call that issued the matching request and
// never reach the Handler.
//
// HandleMessage runs on its own goroutine per message, so a handler
// may itself issue Calls on the peer (the engine's metadata handler
// pulls archive chunks while the original read-metadata request is
// still being served). Serialization per session is the handler's
// responsibility.
type Handler interface {
	HandleMessage(ctx context.Context, peer *Peer, message *protocol.Message)
}

// ErrPeerClosed is returned by Call and Send after the peer has shut
// down. The close reason, if any, is wrapped alongside it.
var ErrPeerClosed = errors.New("bridge: peer closed")

// Peer is one side of a bridge connection. It owns the transport, the
// pending-request registry, and per-session request id allocation.
type Peer struct {
	transport io.ReadWriteCloser
	handler   Handler
	logger    *slog.Logger

	// writeMu serializes frame writes; responses from concurrent
	// handler goroutines must not interleave mid-frame.
	writeMu sync.Mutex

	mu          sync.Mutex
	pending     map[pendingKey]*pendingCall
	sessions    map[string]*sessionIDs
	closed      bool
	closeReason error

	handlers sync.WaitGroup
}

// pendingKey identifies one pending request. Request ids are unique
// only within a session, so the session id is part of the key.
type pendingKey struct {
	fileSystemID string
	requestID    int64
}

// pendingCall is a registered waiter. The done channel is buffered so
// the serve loop never blocks on delivery.
type pendingCall struct {
	operation protocol.Operation
	done      chan callResult
}

type callResult struct {
	response *protocol.Message
	err      error
}

// sessionIDs tracks request id state for one session: the next
// candidate for allocation and the set of inbound request ids whose
// handlers have not yet responded. Skipping in-service inbound ids is
// what keeps the two sides from issuing colliding ids (the remote's
// request 1 is still live here while we allocate our request 2).
type sessionIDs struct {
	next      int64
	inService map[int64]struct{}
}

// requestIDBase is the first id allocated in a fresh session.
const requestIDBase int64 = 1

// NewPeer wraps transport. The handler receives inbound requests and
// notifications. If logger is nil, slog.Default() is used.
func NewPeer(transport io.ReadWriteCloser, handler Handler, logger *slog.Logger) *Peer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Peer{
		transport: transport,
		handler:   handler,
		logger:    logger,
		pending:   make(map[pendingKey]*pendingCall),
		sessions:  make(map[string]*sessionIDs),
	}
}

// Logger returns the peer's structured logger.
func (p *Peer) Logger() *slog.Logger {
	return p.logger
}

// Serve reads frames off the transport and routes them until the
// transport fails, the remote side closes, or ctx is cancelled. It
// returns nil on clean remote close, ctx.Err() on cancellation, and
// the transport error otherwise. All outstanding Calls are failed
// before Serve returns, and handler goroutines are drained.
func (p *Peer) Serve(ctx context.Context) error {
	defer p.handlers.Wait()

	// Unblock the blocking ReadFrame when the context is cancelled by
	// tearing down the transport.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			p.shutdown(ctx.Err())
		case <-watchDone:
		}
	}()

	for {
		frame, err := protocol.ReadFrame(p.transport)
		if err != nil {
			if ctx.Err() != nil {
				p.shutdown(ctx.Err())
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				p.shutdown(fmt.Errorf("%w: remote side closed the transport", ErrPeerClosed))
				return nil
			}
			p.shutdown(fmt.Errorf("transport read: %w", err))
			return fmt.Errorf("bridge: transport read: %w", err)
		}

		message, err := protocol.Decode(frame)
		if err != nil {
			// Fatal to this message only: the frame boundary is intact,
			// so the stream stays usable.
			diagnostic, diagErr := codec.Diagnose(frame)
			if diagErr != nil {
				diagnostic = fmt.Sprintf("%x", frame)
			}
			p.logger.Warn("dropping undecodable message", "error", err, "envelope", diagnostic)
			continue
		}

		p.dispatch(ctx, message)
	}
}

// dispatch routes one inbound message: responses resolve pending
// calls inline; requests and notifications go to the handler on their
// own goroutine.
func (p *Peer) dispatch(ctx context.Context, message *protocol.Message) {
	if message.Operation.IsResponse() {
		p.resolve(message)
		return
	}

	if message.Operation.IsRequest() {
		p.reserveInbound(message.FileSystemID, message.RequestID)
	}

	p.handlers.Add(1)
	go func() {
		defer p.handlers.Done()
		p.handler.HandleMessage(ctx, p, message)
	}()
}

// Call sends a request and suspends until the matching response
// arrives, the session is cancelled, the peer shuts down, or ctx is
// done. The request id is allocated here and written into message;
// callers that need it (open-file handles are keyed by it) read
// message.RequestID after Call returns.
//
// If ctx expires, the pending entry is consumed immediately — a late
// real response for the same id is then discarded as a protocol
// violation, per the cancellation model.
func (p *Peer) Call(ctx context.Context, message *protocol.Message) (*protocol.Message, error) {
	if !message.Operation.IsRequest() {
		return nil, fmt.Errorf("bridge: %s is not a request operation", message.Operation)
	}

	call := &pendingCall{
		operation: message.Operation,
		done:      make(chan callResult, 1),
	}

	p.mu.Lock()
	if p.closed {
		reason := p.closeReason
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrPeerClosed, reason)
	}
	message.RequestID = p.allocateRequestIDLocked(message.FileSystemID)
	key := pendingKey{message.FileSystemID, message.RequestID}
	p.pending[key] = call
	p.mu.Unlock()

	if err := p.writeMessage(message); err != nil {
		p.abandon(key)
		return nil, err
	}

	select {
	case result := <-call.done:
		return result.response, result.err
	case <-ctx.Done():
		p.abandon(key)
		return nil, ctx.Err()
	}
}

// Send writes a response or notification. Sending a response releases
// the in-service reservation of the request id it answers.
func (p *Peer) Send(message *protocol.Message) error {
	if message.Operation.IsRequest() {
		return fmt.Errorf("bridge: %s must be sent via Call", message.Operation)
	}
	if err := p.writeMessage(message); err != nil {
		return err
	}
	if message.Operation.IsResponse() {
		p.releaseInbound(message.FileSystemID, message.RequestID)
	}
	return nil
}

// CancelSession fails every pending request for the session with
// cause and forgets the session's id allocation state. Used on
// close-volume and when a session is torn down by its owner.
func (p *Peer) CancelSession(fileSystemID string, cause error) {
	p.mu.Lock()
	var cancelled []*pendingCall
	for key, call := range p.pending {
		if key.fileSystemID == fileSystemID {
			cancelled = append(cancelled, call)
			delete(p.pending, key)
		}
	}
	delete(p.sessions, fileSystemID)
	p.mu.Unlock()

	for _, call := range cancelled {
		call.done <- callResult{err: cause}
	}
}

// Close tears down the transport and fails all pending requests.
// Idempotent.
func (p *Peer) Close() error {
	p.shutdown(ErrPeerClosed)
	return nil
}

// shutdown marks the peer closed, fails every pending call with
// reason, and closes the transport. Only the first call has effect.
func (p *Peer) shutdown(reason error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.closeReason = reason
	abandoned := make([]*pendingCall, 0, len(p.pending))
	for _, call := range p.pending {
		abandoned = append(abandoned, call)
	}
	p.pending = make(map[pendingKey]*pendingCall)
	p.sessions = make(map[string]*sessionIDs)
	p.mu.Unlock()

	for _, call := range abandoned {
		call.done <- callResult{err: fmt.Errorf("%w: %v", ErrPeerClosed, reason)}
	}
	p.transport.Close()
}

// writeMessage encodes and writes one frame under the write lock.
func (p *Peer) writeMessage(message *protocol.Message) error {
	payload, err := message.Encode()
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := protocol.WriteFrame(p.transport, payload); err != nil {
		return fmt.Errorf("bridge: transport write: %w", err)
	}
	return nil
}
