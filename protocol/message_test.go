// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/volumefs/volumefs/lib/codec"
)

// sampleTree builds a small two-level metadata tree.
func sampleTree() *Entry {
	root := NewRoot()
	root.Insert("docs/readme.txt", &Entry{Size: 128, ModificationTime: 1700000000})
	root.Insert("x.bin", &Entry{Size: 4096})
	return root
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		message Message
	}{
		{"read-metadata", Message{
			Operation: OpReadMetadata, FileSystemID: "a", RequestID: 1, ArchiveSize: 1000,
		}},
		{"read-metadata-done", Message{
			Operation: OpReadMetadataDone, FileSystemID: "a", RequestID: 1, Metadata: sampleTree(),
		}},
		{"read-chunk", Message{
			Operation: OpReadChunk, FileSystemID: "a", RequestID: 2, Offset: 512, Length: 1024,
		}},
		{"read-chunk-done", Message{
			Operation: OpReadChunkDone, FileSystemID: "a", RequestID: 2,
			ChunkBuffer: []byte{0xde, 0xad}, HasMoreData: true,
		}},
		{"read-chunk-done empty buffer", Message{
			Operation: OpReadChunkDone, FileSystemID: "a", RequestID: 2, ChunkBuffer: []byte{},
		}},
		{"read-chunk-error", Message{
			Operation: OpReadChunkError, FileSystemID: "a", RequestID: 2,
		}},
		{"close-volume", Message{
			Operation: OpCloseVolume, FileSystemID: "a", RequestID: CloseVolumeRequestID,
		}},
		{"open-file", Message{
			Operation: OpOpenFile, FileSystemID: "a", RequestID: 3,
			FilePath: "/docs/readme.txt", ArchiveSize: 1000,
		}},
		{"open-file-done", Message{
			Operation: OpOpenFileDone, FileSystemID: "a", RequestID: 3,
		}},
		{"close-file", Message{
			Operation: OpCloseFile, FileSystemID: "a", RequestID: 5, OpenRequestID: 3,
		}},
		{"close-file-done", Message{
			Operation: OpCloseFileDone, FileSystemID: "a", RequestID: 5,
		}},
		{"read-file", Message{
			Operation: OpReadFile, FileSystemID: "a", RequestID: 4,
			OpenRequestID: 3, Offset: 0, Length: 100,
		}},
		{"read-file-done", Message{
			Operation: OpReadFileDone, FileSystemID: "a", RequestID: 4,
			ReadFileData: bytes.Repeat([]byte{7}, 100), HasMoreData: false,
		}},
		{"file-system-error", Message{
			Operation: OpFileSystemError, FileSystemID: "a", RequestID: 3,
			Error: "invalid-handle: no handle for open request 3",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.message.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(*decoded, tt.message) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *decoded, tt.message)
			}
		})
	}
}

func TestDecodeLargeQuantitiesAsDecimalStrings(t *testing.T) {
	// Values above 2^53 are exactly representable as decimal strings
	// but not as doubles; the codec must not lose precision.
	const archiveSize = int64(1)<<62 + 12345
	message := Message{Operation: OpReadMetadata, FileSystemID: "big", RequestID: 1, ArchiveSize: archiveSize}

	encoded, err := message.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var envelope map[string]any
	if err := codec.Unmarshal(encoded, &envelope); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if got, want := envelope["archive_size"], "4611686018427400249"; got != want {
		t.Fatalf("archive_size on the wire = %v (%T), want decimal string %q", got, got, want)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ArchiveSize != archiveSize {
		t.Fatalf("ArchiveSize = %d, want %d", decoded.ArchiveSize, archiveSize)
	}
}

func TestDecodeRejectsMissingMandatoryKeys(t *testing.T) {
	tests := []struct {
		name     string
		envelope map[string]any
		wantCode Code
	}{
		{
			"missing operation",
			map[string]any{"file_system_id": "a", "request_id": "1"},
			CodeMalformedMessage,
		},
		{
			"unknown operation",
			map[string]any{"operation": "format-volume", "file_system_id": "a", "request_id": "1"},
			CodeUnknownOperation,
		},
		{
			"missing file_system_id",
			map[string]any{"operation": "read-metadata", "request_id": "1", "archive_size": "10"},
			CodeMalformedMessage,
		},
		{
			"missing request_id",
			map[string]any{"operation": "read-metadata", "file_system_id": "a", "archive_size": "10"},
			CodeMalformedMessage,
		},
		{
			"read-chunk without offset",
			map[string]any{"operation": "read-chunk", "file_system_id": "a", "request_id": "2", "length": int64(10)},
			CodeMalformedMessage,
		},
		{
			"read-chunk with numeric offset",
			map[string]any{"operation": "read-chunk", "file_system_id": "a", "request_id": "2", "offset": int64(0), "length": int64(10)},
			CodeMalformedMessage,
		},
		{
			"read-chunk with string length",
			map[string]any{"operation": "read-chunk", "file_system_id": "a", "request_id": "2", "offset": "0", "length": "10"},
			CodeMalformedMessage,
		},
		{
			"request_id not a decimal string",
			map[string]any{"operation": "read-chunk-error", "file_system_id": "a", "request_id": "two"},
			CodeMalformedMessage,
		},
		{
			"open-file without path",
			map[string]any{"operation": "open-file", "file_system_id": "a", "request_id": "3", "archive_size": "10"},
			CodeMalformedMessage,
		},
		{
			"read-file-done without flag",
			map[string]any{"operation": "read-file-done", "file_system_id": "a", "request_id": "4", "read_file_data": []byte{1}},
			CodeMalformedMessage,
		},
		{
			"file-system-error without error",
			map[string]any{"operation": "file-system-error", "file_system_id": "a", "request_id": "3"},
			CodeMalformedMessage,
		},
		{
			"negative length",
			map[string]any{"operation": "read-chunk", "file_system_id": "a", "request_id": "2", "offset": "0", "length": int64(-1)},
			CodeMalformedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.Marshal(tt.envelope)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			_, err = Decode(encoded)
			if !IsCode(err, tt.wantCode) {
				t.Fatalf("Decode error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestDecodeIgnoresUnknownKeys(t *testing.T) {
	envelope := map[string]any{
		"operation":      "open-file-done",
		"file_system_id": "a",
		"request_id":     "3",
		"future_key":     "future value",
	}
	encoded, err := codec.Marshal(envelope)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Operation != OpOpenFileDone || decoded.RequestID != 3 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestOperationClassification(t *testing.T) {
	requests := []Operation{OpReadMetadata, OpReadChunk, OpOpenFile, OpCloseFile, OpReadFile}
	for _, op := range requests {
		if !op.IsRequest() || op.IsResponse() {
			t.Errorf("%s: want request classification", op)
		}
		if op.SuccessResponse() == "" {
			t.Errorf("%s: no success response", op)
		}
	}

	if got := OpReadChunk.FailureResponse(); got != OpReadChunkError {
		t.Errorf("read-chunk failure response = %s", got)
	}
	if got := OpOpenFile.FailureResponse(); got != OpFileSystemError {
		t.Errorf("open-file failure response = %s", got)
	}
	if OpCloseVolume.IsRequest() || OpCloseVolume.IsResponse() {
		t.Error("close-volume must be a notification")
	}
	if Operation("defragment").Valid() {
		t.Error("unknown operation reported valid")
	}

	frontEnd := []Operation{OpReadMetadata, OpOpenFile, OpCloseFile, OpReadFile, OpReadChunkDone, OpReadChunkError, OpCloseVolume}
	for _, op := range frontEnd {
		if !op.FrontEndOrigin() {
			t.Errorf("%s: want front-end origin", op)
		}
	}
	engine := []Operation{OpReadMetadataDone, OpOpenFileDone, OpCloseFileDone, OpReadFileDone, OpReadChunk, OpFileSystemError}
	for _, op := range engine {
		if op.FrontEndOrigin() {
			t.Errorf("%s: want engine origin", op)
		}
	}
}

func TestParseWireError(t *testing.T) {
	parsed := ParseWireError("invalid-handle: no handle for open request 9")
	if parsed.Code != CodeInvalidHandle || parsed.Detail != "no handle for open request 9" {
		t.Fatalf("parsed = %+v", parsed)
	}

	bare := ParseWireError("out-of-range")
	if bare.Code != CodeOutOfRange {
		t.Fatalf("bare code parsed = %+v", bare)
	}

	freeForm := ParseWireError("central directory signature not found")
	if freeForm.Code != "" || freeForm.Detail != "central directory signature not found" {
		t.Fatalf("free-form parsed = %+v", freeForm)
	}
}

func TestEntryInsertLookup(t *testing.T) {
	root := NewRoot()
	root.Insert("a/b/c.txt", &Entry{Size: 10})
	root.Insert("a/d.txt", &Entry{Size: 20})

	if e := root.Lookup("a/b/c.txt"); e == nil || e.Size != 10 || e.IsDirectory {
		t.Fatalf("Lookup a/b/c.txt = %+v", e)
	}
	if e := root.Lookup("/a/b/"); e == nil || !e.IsDirectory {
		t.Fatalf("Lookup /a/b/ = %+v", e)
	}
	if e := root.Lookup("a/missing"); e != nil {
		t.Fatalf("Lookup a/missing = %+v, want nil", e)
	}
	if e := root.Lookup(""); e != root {
		t.Fatal("empty path must return the root")
	}
	if len(root.Entries["a"].Entries) != 2 {
		t.Fatalf("directory a has %d children, want 2", len(root.Entries["a"].Entries))
	}
}
