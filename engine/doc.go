// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the decompression side of the VolumeFS
// bridge. The engine holds no storage access: every archive byte it
// parses arrives through read-chunk pulls answered by the front end.
//
// The package is organized around the session lifecycle:
//
//   - engine.go: the bridge.Handler that dispatches front-end requests
//     to sessions
//   - session.go: the per-volume state machine (AwaitingMetadata →
//     Ready → Closed) and its file handle table
//   - source.go: the chunked source reader, an io.ReaderAt whose reads
//     become serialized read-chunk pulls
//
// Archive format support is pluggable: the engine hands a
// [format.Source] to the configured [format.Registry] and serves
// whatever directory tree and file readers the matching driver
// produces. Sessions are fully independent — each has its own lock and
// there is no cross-session coordination.
package engine
