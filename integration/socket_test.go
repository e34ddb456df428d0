// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"

	"github.com/volumefs/volumefs/bridge"
	"github.com/volumefs/volumefs/engine"
	"github.com/volumefs/volumefs/frontend"
	"github.com/volumefs/volumefs/lib/testutil"
)

// TestUnixSocketBridge runs the daemon's topology for real: an engine
// accepting bridge connections on a unix socket, with two front ends
// connecting as separate clients.
func TestUnixSocketBridge(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "engine.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", socketPath, err)
	}
	t.Cleanup(func() { listener.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			eng := engine.New(nil, logger)
			peer := bridge.NewPeer(conn, eng, logger)
			go func() {
				peer.Serve(ctx)
				eng.Close()
			}()
		}
	}()

	archive := buildZipArchive(t)
	for _, name := range []string{"first", "second"} {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			t.Fatalf("%s client dial: %v", name, err)
		}
		client := frontend.NewClient(conn, logger)
		go client.Serve(ctx)
		t.Cleanup(func() { client.Close() })

		volume, err := client.Mount(ctx, frontend.NewBytesSource(name+".zip", archive))
		if err != nil {
			t.Fatalf("%s client mount: %v", name, err)
		}
		file, err := volume.Open(ctx, "docs/readme.md")
		if err != nil {
			t.Fatalf("%s client open: %v", name, err)
		}
		data, err := file.ReadAll(ctx, 0)
		if err != nil {
			t.Fatalf("%s client read: %v", name, err)
		}
		if string(data) != archiveMembers["docs/readme.md"] {
			t.Fatalf("%s client content = %q", name, data)
		}
		if err := file.Close(ctx); err != nil {
			t.Fatalf("%s client close file: %v", name, err)
		}
		if err := volume.Close(); err != nil {
			t.Fatalf("%s client close volume: %v", name, err)
		}
	}
}
