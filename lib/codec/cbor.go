// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. The same envelope always
// produces identical bytes, which keeps wire traces diffable and
// makes golden-file tests stable.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown envelope keys are silently ignored so that adding a new
// operation's keys never breaks an older peer (the protocol is
// format-stable: new operations add keys, never repurpose them).
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// The envelope is a string-keyed map. When the decode target
		// is any (metadata subtrees decoded for display), the CBOR
		// default map type is map[interface{}]interface{}; force
		// map[string]any so decoded values interoperate with
		// encoding/json and ordinary Go code. Struct field decoding
		// is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. The protocol envelope
// decodes to map[string]RawMessage first so that per-operation key
// validation can distinguish "key absent" from "key has zero value"
// before committing to a typed decode.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. Used in log output when a malformed envelope is dropped.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
