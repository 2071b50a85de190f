// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every component handles these at the boundary where
// they occur (log, disable an affordance, leave a chain stalled); none
// of them is fatal.
var (
	// ErrNotBound: a remote operation was attempted while the
	// capability service connection is unbound. No remote call is
	// made.
	ErrNotBound = errors.New("capability service not bound")

	// ErrTransport: a remote call could not be delivered or its reply
	// was lost. Wrapped by TransportError.
	ErrTransport = errors.New("transport failure")

	// ErrHandleCanceled: a request handle was already consumed,
	// expired, or never existed.
	ErrHandleCanceled = errors.New("request handle canceled")

	// ErrMalformedRequest: a prompt was requested without a permission
	// identifier.
	ErrMalformedRequest = errors.New("malformed permission request")

	// ErrAlreadyArmed: the pending callback registration was armed
	// again before its signal arrived.
	ErrAlreadyArmed = errors.New("completion callback already armed")

	// ErrChainInFlight: a permission chain was started while another
	// is outstanding.
	ErrChainInFlight = errors.New("permission request chain already in flight")

	// ErrSurfaceInvalid: the render target is not attachable.
	ErrSurfaceInvalid = errors.New("render target is not attachable")
)

// Wire error codes this protocol adds to socket responses.
const (
	CodeCanceled         = "canceled"
	CodeMalformedRequest = "malformed-request"
)

// SentinelForCode maps a wire error code to the sentinel it stands
// for, or nil when the code has no sentinel.
func SentinelForCode(code string) error {
	switch code {
	case CodeCanceled:
		return ErrHandleCanceled
	case CodeMalformedRequest:
		return ErrMalformedRequest
	default:
		return nil
	}
}

// CodeForError returns the wire code for err, or "" when err carries
// no protocol meaning.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, ErrHandleCanceled):
		return CodeCanceled
	case errors.Is(err, ErrMalformedRequest):
		return CodeMalformedRequest
	default:
		return ""
	}
}

// TransportError records a remote call that never produced a server
// response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrTransport, e.Err)
}

// Unwrap exposes both ErrTransport and the underlying cause to
// errors.Is.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
