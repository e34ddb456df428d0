// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package frontend implements the storage side of the VolumeFS
// bridge: the side that can read the raw archive and wants its
// contents served back as a file system.
//
// A [Client] owns one bridge connection to an engine. Mounting a
// [Source] starts a volume session: the client issues read-metadata
// and receives the archive's directory tree, answering the engine's
// read-chunk pulls from the source as the engine parses. File access
// goes through [Volume.Open] and [File.Read]; the decompressed bytes
// stream back in response-sized pieces so neither side ever buffers a
// whole archive member.
//
// Volume identifiers are BLAKE3 keyed digests of the source's
// identity, opaque to the engine and stable for the session's
// lifetime.
package frontend
