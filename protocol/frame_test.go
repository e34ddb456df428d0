// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var stream bytes.Buffer

	first := &Message{Operation: OpReadMetadata, FileSystemID: "a", RequestID: 1, ArchiveSize: 1000}
	second := &Message{Operation: OpReadChunk, FileSystemID: "a", RequestID: 2, Offset: 0, Length: 512}
	if err := WriteMessage(&stream, first); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := WriteMessage(&stream, second); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := ReadMessage(&stream)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Operation != OpReadMetadata || got.ArchiveSize != 1000 {
		t.Fatalf("first message = %+v", got)
	}
	got, err = ReadMessage(&stream)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Operation != OpReadChunk || got.Length != 512 {
		t.Fatalf("second message = %+v", got)
	}
	if _, err := ReadMessage(&stream); err != io.EOF {
		t.Fatalf("read past end = %v, want io.EOF", err)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameLength+1)
	_, err := ReadFrame(bytes.NewReader(header[:]))
	if err == nil {
		t.Fatal("oversized frame length accepted")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var stream bytes.Buffer
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], 100)
	stream.Write(header[:])
	stream.Write([]byte("short"))

	_, err := ReadFrame(&stream)
	if err == nil {
		t.Fatal("truncated payload accepted")
	}
}
