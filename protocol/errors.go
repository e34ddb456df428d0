// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a bridge error. Codes cross the wire inside
// file-system-error messages as the prefix of the error field, so the
// receiving side can recover the classification with errors.As.
type Code string

const (
	// CodeMalformedMessage marks an envelope missing a mandatory key
	// for its operation, or carrying one of the wrong shape. Fatal to
	// that single message only: it is logged and dropped, the session
	// is unaffected.
	CodeMalformedMessage Code = "malformed-message"

	// CodeUnknownOperation marks an operation value outside the closed
	// enumeration. Same handling as a malformed message.
	CodeUnknownOperation Code = "unknown-operation"

	// CodeProtocolViolation marks a response for a request that was
	// never sent or already completed, or a second chunk pull issued
	// while one is outstanding. The violating message is discarded and
	// logged; the session is not closed.
	CodeProtocolViolation Code = "protocol-violation"

	// CodeInvalidSession marks a message addressed to a closed or
	// nonexistent session.
	CodeInvalidSession Code = "invalid-session"

	// CodeInvalidHandle marks an operation referencing an unknown or
	// closed file handle. Fails that request only.
	CodeInvalidHandle Code = "invalid-handle"

	// CodeSourceReadError marks a failure of the front end to supply
	// requested archive bytes. Delivered as read-chunk-error; the
	// engine decides whether to retry or fail the triggering request.
	CodeSourceReadError Code = "source-read-error"

	// CodeOutOfRange marks a request whose offset+length exceeds the
	// archive size. Fails the specific request; the session remains
	// usable.
	CodeOutOfRange Code = "out-of-range"
)

// Error is a classified bridge error. All failures surfaced by the
// protocol layer are *Error values so callers can branch on the code:
//
//	var bridgeErr *protocol.Error
//	if errors.As(err, &bridgeErr) && bridgeErr.Code == protocol.CodeInvalidHandle { ... }
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Errorf constructs a classified error with a formatted detail string.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is (or wraps) a *Error with the given code.
func IsCode(err error, code Code) bool {
	var bridgeErr *Error
	return errors.As(err, &bridgeErr) && bridgeErr.Code == code
}

// WireString renders the error in the "code: detail" form carried by
// the file-system-error message's error field.
func (e *Error) WireString() string {
	return e.Error()
}

// knownCodes lists every code that may appear as a wire prefix.
var knownCodes = []Code{
	CodeMalformedMessage,
	CodeUnknownOperation,
	CodeProtocolViolation,
	CodeInvalidSession,
	CodeInvalidHandle,
	CodeSourceReadError,
	CodeOutOfRange,
}

// ParseWireError recovers a classified error from the error field of a
// file-system-error message. A string without a recognized code prefix
// becomes a CodeSourceReadError-free generic: the detail is preserved
// and the code is left empty so callers do not mistake an engine's
// free-form failure for a specific taxonomy member.
func ParseWireError(wire string) *Error {
	for _, code := range knownCodes {
		prefix := string(code) + ": "
		if strings.HasPrefix(wire, prefix) {
			return &Error{Code: code, Detail: wire[len(prefix):]}
		}
		if wire == string(code) {
			return &Error{Code: code}
		}
	}
	return &Error{Detail: wire}
}
