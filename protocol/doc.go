// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire format of the VolumeFS bridge: the
// message exchange between a storage-owning front end and an isolated
// decompression engine that together expose a compressed archive as a
// file system.
//
// The package is organized around the shape of a message:
//
//   - operation.go: the closed Operation enumeration, request/response
//     pairing, and per-side origin rules
//   - message.go: the typed Message envelope and its CBOR encoding
//   - metadata.go: the recursive directory entry record carried by
//     read-metadata-done
//   - errors.go: the error taxonomy shared by both sides
//   - frame.go: length-prefixed framing for byte-stream transports
//
// Both sides import this single package for the operation and key set;
// constants are never hand-duplicated, so the two runtimes cannot
// drift apart on the enumeration.
//
// Every message is a flat CBOR map with string keys. Three keys are
// mandatory on all messages: "operation", "file_system_id", and
// "request_id". The remaining keys are fixed per operation. 64-bit
// quantities (archive size, byte offsets, request ids) travel as
// decimal strings; in Go they are plain int64 the moment they leave
// the codec — only the wire keeps the string shape.
package protocol
