// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt runs the server side of a delegated permission
// request.
//
// A [Handler] takes one [Request]: a permission identifier and an
// optional completion reference. It shows a consent prompt through a
// [Prompter], records a grant or denial in the grant store, and fires
// the completion reference when the flow ends, whichever way it ends.
// The reference says only that the flow finished; clients that need
// the outcome query the permission state afterwards.
//
// Handler keeps no state between runs: each Run builds its own
// [signal.Once] around the request's reference. [Launcher] puts one
// Run at a time on screen, the way a platform shows one consent dialog
// at a time.
//
// Prompters:
//
//   - [PolicyPrompter] answers from a JSONC policy file, for headless
//     servers and tests.
//   - [TerminalPrompter] shows an interactive consent dialog.
package prompt
