// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Camdelegate-server hosts the capability service: it owns the camera,
// asks the user for consent on behalf of clients, and streams frames
// into render targets that clients hand it. Permission decisions
// persist in a grant file under the state directory.
//
// Prompts are answered on the terminal when the server runs attached
// to one, or from a JSONC policy file (--policy) otherwise.
package main
