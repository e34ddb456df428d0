// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Volumefs-engine is the isolated decompression daemon. It listens on
// a unix socket for bridge connections from front ends, runs one
// engine per connection, and serves volume sessions: archive metadata,
// file handles, and decompressed reads, pulling raw archive bytes back
// from the front end in chunks.
//
// The daemon never touches storage itself — every archive byte it sees
// arrives over the bridge from the connection that asked for it.
package main
