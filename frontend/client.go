// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/volumefs/volumefs/bridge"
	"github.com/volumefs/volumefs/protocol"
)

// DefaultChunkResponseCap bounds the bytes carried by one
// read-chunk-done. Longer pulls are answered in cap-sized pieces with
// has_more_data set, so a metadata pass over a multi-gigabyte archive
// never forces a matching allocation on either side.
const DefaultChunkResponseCap = 512 * 1024

// Client is the front end's side of one bridge connection. It mounts
// archives as volume sessions and answers the engine's chunk pulls
// from their sources.
type Client struct {
	// ChunkResponseCap overrides DefaultChunkResponseCap when set
	// before Serve.
	ChunkResponseCap int64

	peer   *bridge.Peer
	logger *slog.Logger

	mu      sync.Mutex
	volumes map[string]*Volume
}

// NewClient wraps transport. If logger is nil, slog.Default() is used.
func NewClient(transport io.ReadWriteCloser, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		logger:  logger,
		volumes: make(map[string]*Volume),
	}
	client.peer = bridge.NewPeer(transport, client, logger)
	return client
}

// Serve runs the connection's read loop until the transport fails or
// ctx is cancelled. Must be running for any Mount or file operation to
// complete.
func (c *Client) Serve(ctx context.Context) error {
	return c.peer.Serve(ctx)
}

// Close tears down the connection, failing everything in flight.
func (c *Client) Close() error {
	return c.peer.Close()
}

// Mount starts a volume session for source: it registers the volume
// for chunk service, asks the engine for metadata, and returns the
// Ready volume. The source must stay usable until the volume is
// closed.
func (c *Client) Mount(ctx context.Context, source Source) (*Volume, error) {
	volume := &Volume{
		client: c,
		source: source,
		id:     VolumeID(source.Name(), source.Size()),
	}

	c.mu.Lock()
	if _, exists := c.volumes[volume.id]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("frontend: volume %s already mounted", volume.id)
	}
	c.volumes[volume.id] = volume
	c.mu.Unlock()

	response, err := c.peer.Call(ctx, &protocol.Message{
		Operation:    protocol.OpReadMetadata,
		FileSystemID: volume.id,
		ArchiveSize:  source.Size(),
	})
	if err != nil {
		c.forget(volume.id)
		return nil, fmt.Errorf("reading metadata for %s: %w", source.Name(), err)
	}

	volume.metadata = response.Metadata
	c.logger.Info("volume mounted",
		"file_system_id", volume.id,
		"archive", source.Name(),
		"archive_size", source.Size(),
	)
	return volume, nil
}

// HandleMessage serves the engine's requests. The only engine-origin
// request is read-chunk; anything else addressed to the front end is
// a protocol violation answered with that request's failure operation.
func (c *Client) HandleMessage(_ context.Context, _ *bridge.Peer, message *protocol.Message) {
	if message.Operation != protocol.OpReadChunk {
		c.logger.Warn("protocol violation: unexpected operation addressed to front end",
			"operation", message.Operation,
			"file_system_id", message.FileSystemID,
		)
		if message.Operation.IsRequest() {
			c.send(&protocol.Message{
				Operation:    protocol.OpFileSystemError,
				FileSystemID: message.FileSystemID,
				RequestID:    message.RequestID,
				Error: protocol.Errorf(protocol.CodeProtocolViolation,
					"operation %s cannot be addressed to the front end", message.Operation).WireString(),
			})
		}
		return
	}
	c.handleReadChunk(message)
}

// handleReadChunk answers one pull from the volume's source, clamping
// the response to the chunk cap and signalling has_more_data when the
// pull was truncated.
func (c *Client) handleReadChunk(message *protocol.Message) {
	c.mu.Lock()
	volume, ok := c.volumes[message.FileSystemID]
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("read-chunk for unknown volume", "file_system_id", message.FileSystemID)
		c.send(&protocol.Message{
			Operation:    protocol.OpReadChunkError,
			FileSystemID: message.FileSystemID,
			RequestID:    message.RequestID,
		})
		return
	}

	size := volume.source.Size()
	if message.Offset+message.Length > size {
		c.logger.Warn("read-chunk out of range",
			"file_system_id", message.FileSystemID,
			"offset", message.Offset,
			"length", message.Length,
			"archive_size", size,
		)
		c.send(&protocol.Message{
			Operation:    protocol.OpReadChunkError,
			FileSystemID: message.FileSystemID,
			RequestID:    message.RequestID,
		})
		return
	}

	serve := message.Length
	responseCap := c.ChunkResponseCap
	if responseCap <= 0 {
		responseCap = DefaultChunkResponseCap
	}
	if serve > responseCap {
		serve = responseCap
	}

	buffer := make([]byte, serve)
	n, err := volume.source.ReadAt(buffer, message.Offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == serve) {
		c.logger.Warn("source read failed",
			"file_system_id", message.FileSystemID,
			"offset", message.Offset,
			"error", err,
		)
		c.send(&protocol.Message{
			Operation:    protocol.OpReadChunkError,
			FileSystemID: message.FileSystemID,
			RequestID:    message.RequestID,
		})
		return
	}

	c.send(&protocol.Message{
		Operation:    protocol.OpReadChunkDone,
		FileSystemID: message.FileSystemID,
		RequestID:    message.RequestID,
		ChunkBuffer:  buffer[:n],
		HasMoreData:  serve < message.Length,
	})
}

// forget drops a volume from the chunk service table.
func (c *Client) forget(fileSystemID string) {
	c.mu.Lock()
	delete(c.volumes, fileSystemID)
	c.mu.Unlock()
}

// send writes a response, logging failures. A failed write means the
// transport is going down and Serve will surface it.
func (c *Client) send(message *protocol.Message) {
	if err := c.peer.Send(message); err != nil && !errors.Is(err, bridge.ErrPeerClosed) {
		c.logger.Error("sending response", "operation", message.Operation, "error", err)
	}
}
