// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderLength is the fixed size of a frame header: a 4-byte
// big-endian payload length.
const frameHeaderLength = 4

// MaxFrameLength is the maximum allowed envelope size. 16 MiB leaves
// ample headroom above the 512 KiB chunk response cap; anything larger
// indicates a corrupt length prefix, after which the stream cannot be
// resynchronized.
const MaxFrameLength = 16 * 1024 * 1024

// WriteFrame writes one length-prefixed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return fmt.Errorf("frame length %d exceeds maximum %d", len(payload), MaxFrameLength)
	}
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload from r. Errors from
// ReadFrame are stream-fatal: a short read or an oversized length
// leaves the reader at an unknown position, so the transport must be
// torn down. Recoverable per-message problems (bad envelope contents)
// surface from [Decode] instead.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	payloadLength := binary.BigEndian.Uint32(header[:])
	if payloadLength > MaxFrameLength {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", payloadLength, MaxFrameLength)
	}
	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m *Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame and decodes it. Framing errors and
// decode errors are both returned; callers that need to distinguish
// them (drop the message vs. drop the connection) should use
// [ReadFrame] and [Decode] separately.
func ReadMessage(r io.Reader) (*Message, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(payload)
}
