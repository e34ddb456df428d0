// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Operation identifies the kind of a bridge message. The set is
// closed: decoding a message whose operation is not listed here fails
// with [CodeUnknownOperation]. The string values are wire constants —
// changing them breaks protocol compatibility.
type Operation string

const (
	// OpReadMetadata asks the engine to parse the archive's structure
	// and return the full directory tree. First message of every
	// session; carries the archive size so the engine can bound its
	// chunk pulls.
	OpReadMetadata Operation = "read-metadata"

	// OpReadMetadataDone answers read-metadata with the parsed
	// directory tree.
	OpReadMetadataDone Operation = "read-metadata-done"

	// OpReadChunk is the engine's pull for raw archive bytes it does
	// not hold. At most one may be outstanding per session.
	OpReadChunk Operation = "read-chunk"

	// OpReadChunkDone answers read-chunk with a byte buffer. The
	// has_more_data flag tells the engine that the range was truncated
	// to the response cap and a follow-up pull at an increased offset
	// will yield more.
	OpReadChunkDone Operation = "read-chunk-done"

	// OpReadChunkError answers read-chunk when the front end could not
	// supply the requested byte range.
	OpReadChunkError Operation = "read-chunk-error"

	// OpCloseVolume tears down a session. Fire-and-forget: it carries
	// request id -1 and is never answered.
	OpCloseVolume Operation = "close-volume"

	// OpOpenFile opens one path inside the archive for reading. The
	// request's id becomes the handle key for subsequent read-file and
	// close-file messages.
	OpOpenFile Operation = "open-file"

	// OpOpenFileDone confirms an open-file request.
	OpOpenFileDone Operation = "open-file-done"

	// OpCloseFile releases an open file handle.
	OpCloseFile Operation = "close-file"

	// OpCloseFileDone confirms that the engine released the handle's
	// internal decompression state.
	OpCloseFileDone Operation = "close-file-done"

	// OpReadFile reads decompressed bytes from an open handle.
	OpReadFile Operation = "read-file"

	// OpReadFileDone answers read-file with decompressed bytes. A
	// has_more_data of false means the read reached end of file.
	OpReadFileDone Operation = "read-file-done"

	// OpFileSystemError is the failure answer to any request other
	// than read-chunk. The error field carries the taxonomy code and
	// detail in "code: detail" form (see [ParseWireError]).
	OpFileSystemError Operation = "file-system-error"
)

// CloseVolumeRequestID is the reserved request id carried by
// close-volume messages. No response is ever correlated against it.
const CloseVolumeRequestID int64 = -1

// successResponse pairs each request operation with the operation
// that answers it on success.
var successResponse = map[Operation]Operation{
	OpReadMetadata: OpReadMetadataDone,
	OpReadChunk:    OpReadChunkDone,
	OpOpenFile:     OpOpenFileDone,
	OpCloseFile:    OpCloseFileDone,
	OpReadFile:     OpReadFileDone,
}

// responseOperations is the set of operations that resolve a pending
// request rather than opening a new one.
var responseOperations = map[Operation]bool{
	OpReadMetadataDone: true,
	OpReadChunkDone:    true,
	OpReadChunkError:   true,
	OpOpenFileDone:     true,
	OpCloseFileDone:    true,
	OpReadFileDone:     true,
	OpFileSystemError:  true,
}

// Valid reports whether op is a member of the closed enumeration.
func (op Operation) Valid() bool {
	if _, isRequest := successResponse[op]; isRequest {
		return true
	}
	return responseOperations[op] || op == OpCloseVolume
}

// IsRequest reports whether op expects a correlated response.
func (op Operation) IsRequest() bool {
	_, ok := successResponse[op]
	return ok
}

// IsResponse reports whether op resolves a pending request.
func (op Operation) IsResponse() bool {
	return responseOperations[op]
}

// SuccessResponse returns the operation that answers op on success.
// Only meaningful for request operations.
func (op Operation) SuccessResponse() Operation {
	return successResponse[op]
}

// FailureResponse returns the operation that answers op on failure:
// read-chunk-error for chunk pulls, file-system-error for everything
// else.
func (op Operation) FailureResponse() Operation {
	if op == OpReadChunk {
		return OpReadChunkError
	}
	return OpFileSystemError
}

// FrontEndOrigin reports whether op is sent by the front end (the
// side that owns storage). Direction is implied by the operation, not
// carried on the wire: the front end issues the file system requests
// and answers chunk pulls; the engine issues chunk pulls and answers
// everything else.
func (op Operation) FrontEndOrigin() bool {
	switch op {
	case OpReadMetadata, OpOpenFile, OpCloseFile, OpReadFile,
		OpReadChunkDone, OpReadChunkError, OpCloseVolume:
		return true
	}
	return false
}
