// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Volumefs is the command-line front end. It mounts a local archive as
// a volume session on a running volumefs-engine daemon and exposes the
// result: "meta" prints the directory tree, "ls" lists one directory,
// and "cat" streams a member's decompressed content to stdout.
//
// The archive bytes stay on this side of the socket; the engine pulls
// the ranges it needs while parsing and decompressing.
package main
