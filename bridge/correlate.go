// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "github.com/volumefs/volumefs/protocol"

// resolve delivers an inbound response to the pending call it
// answers. A response with no matching pending entry — never sent,
// already resolved, or abandoned after a caller timeout — is a
// protocol violation: it is logged at Warn and discarded, and the
// session is left alone.
func (p *Peer) resolve(response *protocol.Message) {
	key := pendingKey{response.FileSystemID, response.RequestID}

	p.mu.Lock()
	call, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("protocol violation: response for unknown request",
			"file_system_id", response.FileSystemID,
			"request_id", response.RequestID,
			"operation", response.Operation,
		)
		return
	}

	call.done <- callResult{response: response, err: responseError(call.operation, response)}
}

// responseError classifies a response against the request that awaits
// it. The success operation resolves cleanly; the failure operations
// carry a classified error; any other operation answering this id is
// a violation, which fails the waiter rather than leaving it suspended
// forever.
func responseError(request protocol.Operation, response *protocol.Message) error {
	switch response.Operation {
	case request.SuccessResponse():
		return nil
	case protocol.OpFileSystemError:
		return protocol.ParseWireError(response.Error)
	case protocol.OpReadChunkError:
		return protocol.Errorf(protocol.CodeSourceReadError, "front end could not supply the requested byte range")
	default:
		return protocol.Errorf(protocol.CodeProtocolViolation,
			"%s answered by %s", request, response.Operation)
	}
}

// abandon consumes a pending entry without delivering to it, used when
// the caller gave up (context cancellation) or the send failed. If the
// response arrives later it will be treated as a protocol violation.
func (p *Peer) abandon(key pendingKey) {
	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()
}

// allocateRequestIDLocked hands out the next request id for a
// session: monotonically increasing from the base, skipping any id
// that is still pending locally or being served for the remote side.
// Wraparound back to the base is handled for correctness even though
// an int64 counter cannot reach it within a session's lifetime.
// Callers hold p.mu.
func (p *Peer) allocateRequestIDLocked(fileSystemID string) int64 {
	session := p.sessionLocked(fileSystemID)
	for {
		candidate := session.next
		session.next++
		if session.next <= 0 {
			session.next = requestIDBase
		}
		if candidate <= 0 {
			continue
		}
		if _, taken := p.pending[pendingKey{fileSystemID, candidate}]; taken {
			continue
		}
		if _, taken := session.inService[candidate]; taken {
			continue
		}
		return candidate
	}
}

// reserveInbound marks an inbound request id as live until its
// response is sent, keeping the allocator from issuing the same id in
// the opposite direction.
func (p *Peer) reserveInbound(fileSystemID string, requestID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	session := p.sessionLocked(fileSystemID)
	session.inService[requestID] = struct{}{}
	// Inbound ids also advance the allocation cursor, so a fresh
	// local request never trails behind ids the remote has already
	// used.
	if requestID >= session.next {
		session.next = requestID + 1
	}
}

// releaseInbound clears an in-service reservation once the response
// for it has been written.
func (p *Peer) releaseInbound(fileSystemID string, requestID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session, ok := p.sessions[fileSystemID]; ok {
		delete(session.inService, requestID)
	}
}

// sessionLocked returns the id state for a session, creating it on
// first use. Callers hold p.mu.
func (p *Peer) sessionLocked(fileSystemID string) *sessionIDs {
	session, ok := p.sessions[fileSystemID]
	if !ok {
		session = &sessionIDs{next: requestIDBase, inService: make(map[int64]struct{})}
		p.sessions[fileSystemID] = session
	}
	return session
}
