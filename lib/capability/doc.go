// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability is the Capability Service: the server process that
// owns the camera and holds the permissions, and the client's view of
// it.
//
// [Server] answers the capability socket:
//
//   - "bind" holds a stream open for as long as a client is bound, so
//     the client sees the server going away as end of stream.
//   - "permission-handle" mints a single-use request handle for one
//     permission; "send-handle" consumes it and launches the prompt
//     flow, returning before the prompt is shown. A handle that was
//     already consumed, expired, or never existed fails with code
//     "canceled".
//   - "permission-status" reads the grant store.
//   - "connect-capture-stream" starts a camera session toward the
//     caller's render target and returns at once; any failure after
//     that is only visible as missing frames.
//   - "start-foreground" and "status" report on the service itself.
//
// [Dialer] binds to a server and [Client] makes the remote calls,
// mapping server error codes back onto the protocol sentinels and any
// call that never got an answer onto [protocol.TransportError].
package capability
