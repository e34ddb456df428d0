// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes VolumeFS's CBOR configuration. All wire
// envelopes are encoded through this package so that encoder and
// decoder options (deterministic encoding, string-keyed map defaults)
// are set in exactly one place. Consumers import lib/codec, never
// fxamacker/cbor directly.
package codec
