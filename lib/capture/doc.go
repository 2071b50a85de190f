// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture is the server's camera.
//
// A [Camera] opens a [Source] device on behalf of a client render
// target and runs a [Session] on its own goroutine: a repeating capture
// at the configured frame rate, each frame compressed (LZ4 or zstd)
// and stamped with a BLAKE3 keyed digest, then sent down a "frames"
// stream to the target's socket. The camera refuses to open without a
// camera grant and reports a host with no devices.
//
// The only Source shipped is [TestPattern], a synthetic device; the
// pixel pipeline of a real camera is out of scope.
package capture
