// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"strconv"

	"github.com/volumefs/volumefs/lib/codec"
)

// Envelope keys. String constants shared by encode and decode; the
// two directions must never drift apart on key names.
const (
	keyOperation     = "operation"
	keyFileSystemID  = "file_system_id"
	keyRequestID     = "request_id"
	keyArchiveSize   = "archive_size"
	keyMetadata      = "metadata"
	keyOffset        = "offset"
	keyLength        = "length"
	keyChunkBuffer   = "chunk_buffer"
	keyFilePath      = "file_path"
	keyOpenRequestID = "open_request_id"
	keyReadFileData  = "read_file_data"
	keyHasMoreData   = "has_more_data"
	keyError         = "error"
)

// Message is the typed form of one wire envelope. Which fields are
// meaningful depends on Operation; Encode writes only the keys the
// operation defines and Decode fails if a mandatory one is missing.
type Message struct {
	Operation    Operation
	FileSystemID string
	RequestID    int64

	// ArchiveSize accompanies read-metadata and open-file so the
	// engine can bound chunk pulls without a separate negotiation.
	ArchiveSize int64

	// Metadata is the directory tree in read-metadata-done.
	Metadata *Entry

	// Offset and Length scope read-chunk and read-file requests.
	Offset int64
	Length int64

	// ChunkBuffer carries raw archive bytes in read-chunk-done.
	ChunkBuffer []byte

	// FilePath names the archive member in open-file.
	FilePath string

	// OpenRequestID identifies the file handle in read-file and
	// close-file: it is the id of the open-file request that created
	// the handle.
	OpenRequestID int64

	// ReadFileData carries decompressed bytes in read-file-done.
	ReadFileData []byte

	// HasMoreData reports, on read-file-done and read-chunk-done,
	// whether more data exists beyond the returned bytes.
	HasMoreData bool

	// Error is the "code: detail" string in file-system-error.
	Error string
}

// Encode renders the message as a CBOR envelope. It fails with
// CodeUnknownOperation for operations outside the enumeration and
// CodeMalformedMessage when a field the operation requires is absent.
func (m *Message) Encode() ([]byte, error) {
	if !m.Operation.Valid() {
		return nil, Errorf(CodeUnknownOperation, "cannot encode operation %q", m.Operation)
	}

	envelope := map[string]any{
		keyOperation:    string(m.Operation),
		keyFileSystemID: m.FileSystemID,
		keyRequestID:    strconv.FormatInt(m.RequestID, 10),
	}

	switch m.Operation {
	case OpReadMetadata:
		envelope[keyArchiveSize] = strconv.FormatInt(m.ArchiveSize, 10)
	case OpReadMetadataDone:
		if m.Metadata == nil {
			return nil, Errorf(CodeMalformedMessage, "read-metadata-done without metadata")
		}
		envelope[keyMetadata] = m.Metadata
	case OpReadChunk:
		envelope[keyOffset] = strconv.FormatInt(m.Offset, 10)
		envelope[keyLength] = m.Length
	case OpReadChunkDone:
		buffer := m.ChunkBuffer
		if buffer == nil {
			buffer = []byte{}
		}
		envelope[keyChunkBuffer] = buffer
		envelope[keyHasMoreData] = m.HasMoreData
	case OpOpenFile:
		envelope[keyFilePath] = m.FilePath
		envelope[keyArchiveSize] = strconv.FormatInt(m.ArchiveSize, 10)
	case OpCloseFile:
		envelope[keyOpenRequestID] = strconv.FormatInt(m.OpenRequestID, 10)
	case OpReadFile:
		envelope[keyOpenRequestID] = strconv.FormatInt(m.OpenRequestID, 10)
		envelope[keyOffset] = strconv.FormatInt(m.Offset, 10)
		envelope[keyLength] = m.Length
	case OpReadFileDone:
		data := m.ReadFileData
		if data == nil {
			data = []byte{}
		}
		envelope[keyReadFileData] = data
		envelope[keyHasMoreData] = m.HasMoreData
	case OpFileSystemError:
		envelope[keyError] = m.Error
	case OpReadChunkError, OpCloseVolume, OpOpenFileDone, OpCloseFileDone:
		// No additional keys.
	}

	return codec.Marshal(envelope)
}

// Decode parses a CBOR envelope into a typed Message. Failures are
// classified: CodeUnknownOperation when the operation value is not in
// the enumeration, CodeMalformedMessage for everything else (missing
// mandatory key, wrong value shape, unparseable envelope).
func Decode(data []byte) (*Message, error) {
	var fields map[string]codec.RawMessage
	if err := codec.Unmarshal(data, &fields); err != nil {
		return nil, Errorf(CodeMalformedMessage, "envelope is not a CBOR map: %v", err)
	}

	operationName, err := stringField(fields, keyOperation)
	if err != nil {
		return nil, err
	}
	operation := Operation(operationName)
	if !operation.Valid() {
		return nil, Errorf(CodeUnknownOperation, "operation %q", operationName)
	}

	message := &Message{Operation: operation}
	if message.FileSystemID, err = stringField(fields, keyFileSystemID); err != nil {
		return nil, err
	}
	if message.RequestID, err = decimalField(fields, keyRequestID); err != nil {
		return nil, err
	}

	switch operation {
	case OpReadMetadata:
		message.ArchiveSize, err = decimalField(fields, keyArchiveSize)
	case OpReadMetadataDone:
		message.Metadata, err = metadataField(fields, keyMetadata)
	case OpReadChunk:
		if message.Offset, err = decimalField(fields, keyOffset); err != nil {
			return nil, err
		}
		message.Length, err = integerField(fields, keyLength)
	case OpReadChunkDone:
		if message.ChunkBuffer, err = bytesField(fields, keyChunkBuffer); err != nil {
			return nil, err
		}
		message.HasMoreData, err = optionalBoolField(fields, keyHasMoreData)
	case OpOpenFile:
		if message.FilePath, err = stringField(fields, keyFilePath); err != nil {
			return nil, err
		}
		message.ArchiveSize, err = decimalField(fields, keyArchiveSize)
	case OpCloseFile:
		message.OpenRequestID, err = decimalField(fields, keyOpenRequestID)
	case OpReadFile:
		if message.OpenRequestID, err = decimalField(fields, keyOpenRequestID); err != nil {
			return nil, err
		}
		if message.Offset, err = decimalField(fields, keyOffset); err != nil {
			return nil, err
		}
		message.Length, err = integerField(fields, keyLength)
	case OpReadFileDone:
		if message.ReadFileData, err = bytesField(fields, keyReadFileData); err != nil {
			return nil, err
		}
		message.HasMoreData, err = boolField(fields, keyHasMoreData)
	case OpFileSystemError:
		message.Error, err = stringField(fields, keyError)
	case OpReadChunkError, OpCloseVolume, OpOpenFileDone, OpCloseFileDone:
		// No additional keys.
	}
	if err != nil {
		return nil, err
	}

	if message.Offset < 0 {
		return nil, Errorf(CodeMalformedMessage, "%s: negative offset %d", operation, message.Offset)
	}
	if message.Length < 0 {
		return nil, Errorf(CodeMalformedMessage, "%s: negative length %d", operation, message.Length)
	}
	return message, nil
}

// stringField extracts a mandatory string value.
func stringField(fields map[string]codec.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", Errorf(CodeMalformedMessage, "missing key %q", key)
	}
	var value string
	if err := codec.Unmarshal(raw, &value); err != nil {
		return "", Errorf(CodeMalformedMessage, "key %q is not a string: %v", key, err)
	}
	return value, nil
}

// decimalField extracts a mandatory 64-bit integer carried as a
// decimal string (the wire shape for quantities that may exceed the
// safe-integer range of non-systems hosts).
func decimalField(fields map[string]codec.RawMessage, key string) (int64, error) {
	text, err := stringField(fields, key)
	if err != nil {
		return 0, err
	}
	value, parseErr := strconv.ParseInt(text, 10, 64)
	if parseErr != nil {
		return 0, Errorf(CodeMalformedMessage, "key %q is not a decimal string: %q", key, text)
	}
	return value, nil
}

// integerField extracts a mandatory native CBOR integer.
func integerField(fields map[string]codec.RawMessage, key string) (int64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, Errorf(CodeMalformedMessage, "missing key %q", key)
	}
	var value int64
	if err := codec.Unmarshal(raw, &value); err != nil {
		return 0, Errorf(CodeMalformedMessage, "key %q is not an integer: %v", key, err)
	}
	return value, nil
}

// bytesField extracts a mandatory byte string.
func bytesField(fields map[string]codec.RawMessage, key string) ([]byte, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, Errorf(CodeMalformedMessage, "missing key %q", key)
	}
	var value []byte
	if err := codec.Unmarshal(raw, &value); err != nil {
		return nil, Errorf(CodeMalformedMessage, "key %q is not a byte buffer: %v", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// boolField extracts a mandatory boolean.
func boolField(fields map[string]codec.RawMessage, key string) (bool, error) {
	raw, ok := fields[key]
	if !ok {
		return false, Errorf(CodeMalformedMessage, "missing key %q", key)
	}
	var value bool
	if err := codec.Unmarshal(raw, &value); err != nil {
		return false, Errorf(CodeMalformedMessage, "key %q is not a boolean: %v", key, err)
	}
	return value, nil
}

// optionalBoolField extracts a boolean that defaults to false when the
// key is absent.
func optionalBoolField(fields map[string]codec.RawMessage, key string) (bool, error) {
	if _, ok := fields[key]; !ok {
		return false, nil
	}
	return boolField(fields, key)
}

// metadataField extracts the mandatory directory tree.
func metadataField(fields map[string]codec.RawMessage, key string) (*Entry, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, Errorf(CodeMalformedMessage, "missing key %q", key)
	}
	var entry Entry
	if err := codec.Unmarshal(raw, &entry); err != nil {
		return nil, Errorf(CodeMalformedMessage, "key %q is not a metadata record: %v", key, err)
	}
	return &entry, nil
}
