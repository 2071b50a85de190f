// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Camdelegate-client binds to the capability service, asks it for the
// camera and notification permissions, and has it stream the camera
// into a render target the client owns. The client never opens the
// camera itself.
//
// On a terminal it runs a control panel whose keys start each step.
// Without one, or with --steps, it runs a fixed sequence of steps and
// exits.
package main
