// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestCodeRoundTrip(t *testing.T) {
	for _, sentinel := range []error{ErrHandleCanceled, ErrMalformedRequest} {
		wrapped := fmt.Errorf("send-handle: %w", sentinel)
		code := CodeForError(wrapped)
		if code == "" {
			t.Fatalf("CodeForError(%v) = empty", wrapped)
		}
		if got := SentinelForCode(code); got != sentinel {
			t.Errorf("SentinelForCode(%q) = %v, want %v", code, got, sentinel)
		}
	}
}

func TestCodeForUnrelatedError(t *testing.T) {
	if code := CodeForError(errors.New("disk full")); code != "" {
		t.Errorf("CodeForError(unrelated) = %q, want empty", code)
	}
	if sentinel := SentinelForCode("internal"); sentinel != nil {
		t.Errorf("SentinelForCode(internal) = %v, want nil", sentinel)
	}
}

func TestTransportErrorMatchesBoth(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "unix", Err: errors.New("connection refused")}
	err := fmt.Errorf("permission-handle: %w", &TransportError{Op: "permission-handle", Err: cause})

	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is(err, ErrTransport) = false")
	}
	var opError *net.OpError
	if !errors.As(err, &opError) {
		t.Error("errors.As did not reach the underlying *net.OpError")
	}
	if errors.Is(err, ErrHandleCanceled) {
		t.Error("transport error matched ErrHandleCanceled")
	}
}

func TestSendHandleCompletion(t *testing.T) {
	request := SendHandleRequest{Handle: "h"}
	completion, err := request.Completion()
	if err != nil || completion != nil {
		t.Fatalf("Completion() without extras = %+v, %v; want nil, nil", completion, err)
	}

	request.Extras = map[string]CompletionReference{
		CompletionExtraKey: {SocketPath: "/tmp/cb.sock", Token: "t-1"},
	}
	completion, err = request.Completion()
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}
	if completion == nil || completion.Token != "t-1" {
		t.Fatalf("Completion() = %+v, want token t-1", completion)
	}
}

func TestSendHandleCompletionRejectsIncompleteReference(t *testing.T) {
	tests := []struct {
		name      string
		reference CompletionReference
	}{
		{"no socket path", CompletionReference{Token: "t-1"}},
		{"no token", CompletionReference{SocketPath: "/tmp/cb.sock"}},
		{"empty", CompletionReference{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			request := SendHandleRequest{
				Handle: "h",
				Extras: map[string]CompletionReference{CompletionExtraKey: test.reference},
			}
			completion, err := request.Completion()
			if !errors.Is(err, ErrMalformedRequest) {
				t.Fatalf("Completion() error = %v, want ErrMalformedRequest", err)
			}
			if completion != nil {
				t.Errorf("Completion() = %+v, want nil", completion)
			}
		})
	}
}
