// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// volumeIDKey is the BLAKE3 keyed-hash domain for volume identifiers.
// The ASCII domain name, zero-padded to the required 32 bytes, keeps
// the key inspectable in hex dumps; BLAKE3 keyed mode treats it as an
// opaque value. Fixed constant — changing it changes every volume id.
var volumeIDKey = [32]byte{
	'v', 'o', 'l', 'u', 'm', 'e', 'f', 's', '.', 'v', 'o', 'l', 'u', 'm', 'e', '.',
	'i', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// VolumeID derives the file system id for an archive from its name
// and size. The id is opaque to the engine; hashing rather than using
// the name directly keeps the wire id fixed-width and free of path
// characters, and the size input distinguishes same-named archives.
func VolumeID(name string, size int64) string {
	hasher, err := blake3.NewKeyed(volumeIDKey[:])
	if err != nil {
		// NewKeyed fails only on a wrong key length, which is
		// impossible with the fixed array above.
		panic("frontend: volume id hasher: " + err.Error())
	}
	hasher.WriteString(name)
	var sizeBytes [8]byte
	binary.LittleEndian.PutUint64(sizeBytes[:], uint64(size))
	hasher.Write(sizeBytes[:])

	digest := hasher.Sum(nil)
	return hex.EncodeToString(digest[:16])
}
