// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Capability socket actions.
const (
	ActionStatus               = "status"
	ActionBind                 = "bind"
	ActionPermissionHandle     = "permission-handle"
	ActionSendHandle           = "send-handle"
	ActionPermissionStatus     = "permission-status"
	ActionConnectCaptureStream = "connect-capture-stream"
	ActionStartForeground      = "start-foreground"
)

// ActionCompletionSignal is the only action on the Client's callback
// socket.
const ActionCompletionSignal = "completion-signal"

// ActionFrames is the streaming action on a render-target socket.
const ActionFrames = "frames"

// Permission identifiers requested through the broker.
const (
	PermissionPostNotifications = "android.permission.POST_NOTIFICATIONS"
	PermissionCamera            = "android.permission.CAMERA"
)

// RequestCode is the numeric code passed when sending a request
// handle. The handshake never interprets it.
const RequestCode = 0

// CompletionExtraKey is the key under which a completion reference
// travels in a send-handle payload.
const CompletionExtraKey = "callback"

// PermissionState is the server-side consent state of one permission.
type PermissionState string

const (
	PermissionUnset   PermissionState = "unset"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// CompletionReference is the opaque, single-use reference a prompt
// handler invokes when its flow finishes. Invoking it means "done",
// never "granted": callers re-query PermissionStatus for the outcome.
type CompletionReference struct {
	// SocketPath is the callback socket of the app that armed the
	// reference.
	SocketPath string `cbor:"socket_path"`

	// Token identifies the registration the signal is meant for.
	Token string `cbor:"token"`
}

// LaunchOptions mirrors the platform launch options passed alongside a
// send-handle call.
type LaunchOptions struct {
	// AllowBackgroundStart asks the Server to show its prompt even if
	// the request arrives while the Server has no foreground UI.
	AllowBackgroundStart bool `cbor:"allow_background_start,omitempty"`
}

// StatusResponse is the result of the "status" action.
type StatusResponse struct {
	Service       string `cbor:"service"`
	PlatformLevel int    `cbor:"platform_level"`
	Foreground    bool   `cbor:"foreground"`
	BoundClients  int    `cbor:"bound_clients"`
	OpenHandles   int    `cbor:"open_handles"`

	// PendingPrompts counts consent prompts queued or showing.
	PendingPrompts int     `cbor:"pending_prompts"`
	UptimeSeconds  float64 `cbor:"uptime_seconds"`
}

// BindAck is the first message the Server writes on a "bind" stream.
type BindAck struct {
	Session string `cbor:"session"`
	Service string `cbor:"service"`
}

// PermissionHandleRequest asks for a request handle for one
// permission.
type PermissionHandleRequest struct {
	Permission string `cbor:"permission"`
}

// PermissionHandleResponse carries the minted handle.
type PermissionHandleResponse struct {
	Handle     string `cbor:"handle"`
	Permission string `cbor:"permission"`
}

// SendHandleRequest invokes a previously minted request handle.
type SendHandleRequest struct {
	Handle string `cbor:"handle"`
	Code   int    `cbor:"code"`

	// Extras is the optional payload. A completion reference rides
	// under CompletionExtraKey.
	Extras map[string]CompletionReference `cbor:"extras,omitempty"`

	Launch LaunchOptions `cbor:"launch"`
}

// Completion returns the completion reference carried in the payload,
// or nil when none was supplied. A reference missing its socket path
// or token is ErrMalformedRequest.
func (r SendHandleRequest) Completion() (*CompletionReference, error) {
	reference, ok := r.Extras[CompletionExtraKey]
	if !ok {
		return nil, nil
	}
	if reference.SocketPath == "" || reference.Token == "" {
		return nil, fmt.Errorf("completion reference %+v incomplete: %w", reference, ErrMalformedRequest)
	}
	return &reference, nil
}

// PermissionStatusRequest queries the consent state of a permission.
type PermissionStatusRequest struct {
	Permission string `cbor:"permission"`
}

// PermissionStatusResponse reports the consent state.
type PermissionStatusResponse struct {
	Permission string          `cbor:"permission"`
	State      PermissionState `cbor:"state"`
}

// RenderTarget names a Client-side surface the Server can stream to.
type RenderTarget struct {
	SocketPath string `cbor:"socket_path"`
}

// ConnectCaptureStreamRequest attaches the capture feed to a render
// target.
type ConnectCaptureStreamRequest struct {
	Target RenderTarget `cbor:"target"`
}

// CompletionSignalRequest is the message a completion reference
// delivers. It carries nothing beyond the token.
type CompletionSignalRequest struct {
	Token string `cbor:"token"`
}

// FramesRequest opens a frame stream on a render target. Frames follow
// on the same connection until either side closes it.
type FramesRequest struct {
	Device string `cbor:"device"`
	Width  int    `cbor:"width"`
	Height int    `cbor:"height"`
}
