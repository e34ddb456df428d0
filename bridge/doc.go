// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge implements the request/response machinery both sides
// of the VolumeFS protocol share: per-session request id allocation,
// the correlation registry that pairs a pending request with the
// response that resolves it, and the serve loop that reads frames off
// a transport and routes them.
//
// A [Peer] wraps one reliable, ordered byte stream. The front end and
// the engine each construct a Peer over their end of the transport and
// hand it a [Handler] for inbound requests; responses never reach the
// Handler — they resolve the suspended [Peer.Call] that issued the
// matching request.
//
// Correlation is keyed by (file system id, request id). A pending
// request is resolved or failed exactly once: the registry entry is
// consumed on delivery, and any later message reusing the pair is a
// protocol violation that is logged and discarded. Request ids are
// allocated monotonically per session and skip ids that are either
// pending locally or currently being served for the remote side, so
// the two sides never issue colliding ids within one session.
package bridge
