// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by camdelegate tests.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes and so cannot live under a deep
// t.TempDir(). [RequireReceive] and [RequireClosed] wrap the
// select-with-timeout pattern used to wait for asynchronous callbacks
// (connection observers, completion signals, frames) without letting a
// broken test hang forever.
//
// Helpers call t.Fatalf on failure.
package testutil
