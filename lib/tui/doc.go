// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui provides the terminal user interfaces of both camdelegate
// apps. Built on bubbletea (Elm architecture):
//
//   - [Consent] is the server's permission consent dialog. It ends with
//     allow, deny, or a dismissal that carries no answer.
//   - [Panel] is the client's control panel: one key per app action,
//     a status block, and the tail of a [LogBuffer]. The panel only
//     renders; its actions hand work to the client's event loop.
//
// Both share [Theme] and the key conventions in [ConsentKeys] and
// [PanelKeys].
package tui
