// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package service is the Unix-socket RPC layer both camdelegate apps
// are built on.
//
// A [SocketServer] accepts connections on one socket path and routes
// each by the "action" field of the first CBOR value the client writes.
// Two handler shapes exist:
//
//   - [ActionFunc]: one request, one response, then the connection
//     closes. Used for every fire-and-forget remote call.
//   - [StreamFunc]: the handler owns the connection after the request
//     and may keep it open indefinitely. Used for the bound-service
//     lifetime ("bind") and for capture frames ("frames").
//
// A [ServiceClient] performs one request-response exchange per Call and
// opens streams with OpenStream. Failures the server reports come back
// as [*ServiceError] carrying the action, an optional machine-readable
// code, and the message; anything else (dial, write, or read failure)
// is a plain error, so callers can tell "the server said no" apart from
// "the server never answered".
//
// There is no caller authentication beyond filesystem permissions on
// the socket. Servers that want to know who connected can enable
// [SocketServer.RecordPeers] and read [PeerFromContext].
package service
