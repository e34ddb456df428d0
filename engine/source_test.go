// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/volumefs/volumefs/bridge"
	"github.com/volumefs/volumefs/lib/testutil"
	"github.com/volumefs/volumefs/protocol"
)

// newSourceHarness wires a SourceReader against the given front-end
// handler over an in-memory pipe.
func newSourceHarness(t *testing.T, front bridge.Handler, size int64) *SourceReader {
	t.Helper()
	frontConn, engineConn := net.Pipe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	frontPeer := bridge.NewPeer(frontConn, front, logger)
	enginePeer := bridge.NewPeer(engineConn, discardMessages{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go frontPeer.Serve(ctx)
	go enginePeer.Serve(ctx)
	t.Cleanup(func() {
		frontPeer.Close()
		enginePeer.Close()
	})
	return NewSourceReader(ctx, enginePeer, "vol", size)
}

type discardMessages struct{}

func (discardMessages) HandleMessage(context.Context, *bridge.Peer, *protocol.Message) {}

// handlerFunc adapts a function to bridge.Handler.
type handlerFunc func(ctx context.Context, peer *bridge.Peer, message *protocol.Message)

func (f handlerFunc) HandleMessage(ctx context.Context, peer *bridge.Peer, message *protocol.Message) {
	f(ctx, peer, message)
}

// patternArchive builds deterministic archive bytes for range checks.
func patternArchive(size int) []byte {
	archive := make([]byte, size)
	for i := range archive {
		archive[i] = byte(i % 251)
	}
	return archive
}

func TestSourceReaderClampsAtArchiveEnd(t *testing.T) {
	archive := patternArchive(100)
	server := newChunkServer(archive)
	reader := newSourceHarness(t, server, int64(len(archive)))

	buffer := make([]byte, 40)
	n, err := reader.ReadAt(buffer, 80)
	if err != io.EOF {
		t.Fatalf("ReadAt past end: err = %v, want io.EOF", err)
	}
	if n != 20 || !bytes.Equal(buffer[:n], archive[80:]) {
		t.Fatalf("ReadAt past end: n = %d, data mismatch", n)
	}

	if _, err := reader.ReadAt(buffer, 100); err != io.EOF {
		t.Fatalf("ReadAt at end: err = %v, want io.EOF", err)
	}
	if _, err := reader.ReadAt(buffer, 200); err != io.EOF {
		t.Fatalf("ReadAt beyond end: err = %v, want io.EOF", err)
	}
}

func TestSourceReaderFollowsHasMoreData(t *testing.T) {
	archive := patternArchive(64)
	server := newChunkServer(archive)
	server.responseCap = 8
	reader := newSourceHarness(t, server, int64(len(archive)))

	buffer := make([]byte, 20)
	n, err := reader.ReadAt(buffer, 5)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 20 || !bytes.Equal(buffer, archive[5:25]) {
		t.Fatalf("ReadAt: n = %d, data mismatch", n)
	}
	if pulls := server.pulls.Load(); pulls != 3 {
		t.Fatalf("pull count = %d, want 3 with an 8 byte cap", pulls)
	}
}

func TestSourceReaderSinglePullGate(t *testing.T) {
	archive := patternArchive(32)
	release := make(chan struct{})
	blocked := make(chan struct{}, 1)
	front := handlerFunc(func(_ context.Context, peer *bridge.Peer, message *protocol.Message) {
		if message.Operation != protocol.OpReadChunk {
			return
		}
		blocked <- struct{}{}
		<-release
		peer.Send(&protocol.Message{
			Operation:    protocol.OpReadChunkDone,
			FileSystemID: message.FileSystemID,
			RequestID:    message.RequestID,
			ChunkBuffer:  archive[message.Offset : message.Offset+message.Length],
		})
	})
	reader := newSourceHarness(t, front, int64(len(archive)))

	firstResult := make(chan error, 1)
	go func() {
		buffer := make([]byte, 8)
		_, err := reader.ReadAt(buffer, 0)
		firstResult <- err
	}()
	testutil.RequireReceive(t, blocked, 5*time.Second, "first pull reaching the front end")

	// A second read while the first pull is suspended must fail fast
	// rather than queue behind it.
	_, err := reader.ReadAt(make([]byte, 8), 16)
	if !protocol.IsCode(err, protocol.CodeProtocolViolation) {
		t.Fatalf("concurrent ReadAt = %v, want protocol-violation", err)
	}

	close(release)
	if err := testutil.RequireReceive(t, firstResult, 5*time.Second, "first read completing"); err != nil {
		t.Fatalf("first ReadAt: %v", err)
	}
}

func TestSourceReaderShortChunkWithoutMoreData(t *testing.T) {
	// A front end that returns a short chunk while denying more data
	// exists cannot satisfy the read; the reader must not spin.
	front := handlerFunc(func(_ context.Context, peer *bridge.Peer, message *protocol.Message) {
		if message.Operation != protocol.OpReadChunk {
			return
		}
		peer.Send(&protocol.Message{
			Operation:    protocol.OpReadChunkDone,
			FileSystemID: message.FileSystemID,
			RequestID:    message.RequestID,
			ChunkBuffer:  make([]byte, 4),
			HasMoreData:  false,
		})
	})
	reader := newSourceHarness(t, front, 100)

	n, err := reader.ReadAt(make([]byte, 10), 0)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadAt = %v, want io.ErrUnexpectedEOF", err)
	}
	if n != 4 {
		t.Fatalf("partial count = %d, want 4", n)
	}
}

func TestSourceReaderSurfacesChunkError(t *testing.T) {
	server := newChunkServer(patternArchive(32))
	server.fail.Store(true)
	reader := newSourceHarness(t, server, 32)

	_, err := reader.ReadAt(make([]byte, 8), 0)
	if !protocol.IsCode(err, protocol.CodeSourceReadError) {
		t.Fatalf("ReadAt = %v, want source-read-error", err)
	}
}
