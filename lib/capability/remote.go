// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"

	"github.com/hartmanng/camdelegate/lib/protocol"
)

// Remote is the capability surface as the client sees it once bound.
// Every call is a single round trip; results that take user
// interaction (a prompt) surface later through a completion signal.
type Remote interface {
	// PermissionRequestHandle mints a single-use handle that starts
	// the prompt flow for permission when sent.
	PermissionRequestHandle(ctx context.Context, permission string) (RequestHandle, error)

	// ConnectCaptureStream attaches the capture feed to target. A
	// failure past the server's acknowledgement shows up only as an
	// absence of frames.
	ConnectCaptureStream(ctx context.Context, target protocol.RenderTarget) error

	// PermissionStatus re-queries the consent state of permission.
	PermissionStatus(ctx context.Context, permission string) (protocol.PermissionState, error)

	// StartForeground asks the service to run as a foreground service.
	StartForeground(ctx context.Context) error

	// Status describes the service.
	Status(ctx context.Context) (protocol.StatusResponse, error)
}

// RequestHandle is a minted permission-request handle.
type RequestHandle interface {
	Permission() string

	// Send invokes the handle. It fails with protocol.ErrHandleCanceled
	// once the handle has been consumed or has expired, and with an
	// error wrapping protocol.ErrTransport when the call never reached
	// the service.
	Send(ctx context.Context, invocation Invocation) error
}

// Invocation is what a handle is sent with.
type Invocation struct {
	// Code is passed through untouched; callers use
	// protocol.RequestCode.
	Code int

	// Completion, when non-nil, is fired by the prompt handler when
	// its flow ends.
	Completion *protocol.CompletionReference

	Launch protocol.LaunchOptions
}
