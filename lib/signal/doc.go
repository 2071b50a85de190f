// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package signal implements the one-shot completion signal that chains
// delegated permission requests.
//
// A completion reference ([protocol.CompletionReference]) names the
// callback socket of the app that armed it plus a random token.
// Invoking it means "that prompt flow finished" and nothing more; it
// never says whether the permission was granted.
//
// The receiving side is a [Registry]: a single slot holding at most one
// pending callback. The broker arms the slot before issuing the remote
// call whose completion will trigger it, so a fast completion can never
// arrive ahead of its registration. When the signal arrives the
// registry posts onto the event loop, consumes and clears the slot,
// then runs the callback. A signal with no matching registration is
// logged and dropped.
//
// The sending side is [Once]: it clears its reference before handing it
// to a [Deliverer], so however many teardown paths race to fire it,
// at most one delivery happens.
package signal
