// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the vocabulary the Client and Server apps
// share: socket action names, CBOR request and response types,
// permission identifiers, and the error taxonomy.
//
// Three sockets carry the protocol:
//
//   - The capability socket, served by the Server app. A client binds
//     by holding a "bind" stream open; every other action is one
//     request-response exchange on its own connection.
//   - The callback socket, served by the Client app. It accepts only
//     the "completion-signal" variant, which is routed to the pending
//     callback registration and never confused with any other entry
//     into the app.
//   - The render-target socket, served by the Client app's surface.
//     The Server dials it and streams capture frames with the "frames"
//     action.
//
// Remote calls are fire-and-forget from the caller's point of view:
// "send-handle" returns as soon as the Server has launched the prompt
// handler, and "connect-capture-stream" returns once the capture
// session has been started. Their effects arrive later as separate
// notifications (a completion signal, frames on the surface).
package protocol
