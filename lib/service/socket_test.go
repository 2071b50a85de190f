// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hartmanng/camdelegate/lib/codec"
	"github.com/hartmanng/camdelegate/lib/logging"
	"github.com/hartmanng/camdelegate/lib/testutil"
)

// startServer runs server until the test ends and waits for it to
// listen.
func startServer(t *testing.T, server *SocketServer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Serve to return"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "waiting for server to listen")
}

func newTestServer(t *testing.T) *SocketServer {
	t.Helper()
	return NewSocketServer(filepath.Join(testutil.SocketDir(t), "test.sock"), logging.Discard())
}

type echoRequest struct {
	Action string `cbor:"action"`
	Text   string `cbor:"text"`
}

type echoResponse struct {
	Text string `cbor:"text"`
}

func TestCallRoundTrip(t *testing.T) {
	server := newTestServer(t)
	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request echoRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return echoResponse{Text: request.Text}, nil
	})
	startServer(t, server)

	client := NewServiceClient(server.SocketPath())
	var response echoResponse
	if err := client.Call(context.Background(), "echo", map[string]any{"text": "hello"}, &response); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.Text != "hello" {
		t.Errorf("Text = %q, want %q", response.Text, "hello")
	}
}

func TestCallNilResult(t *testing.T) {
	server := newTestServer(t)
	server.Handle("noop", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	startServer(t, server)

	if err := NewServiceClient(server.SocketPath()).Call(context.Background(), "noop", nil, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestCallErrorCodes(t *testing.T) {
	errSpecial := errors.New("special failure")

	server := newTestServer(t)
	server.SetErrorCoder(func(err error) string {
		if errors.Is(err, errSpecial) {
			return "special"
		}
		return ""
	})
	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errSpecial
	})
	server.Handle("plain-fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("no code")
	})
	startServer(t, server)
	client := NewServiceClient(server.SocketPath())

	tests := []struct {
		action   string
		wantCode string
	}{
		{"fail", "special"},
		{"plain-fail", ""},
		{"missing", CodeUnknownAction},
	}
	for _, test := range tests {
		t.Run(test.action, func(t *testing.T) {
			err := client.Call(context.Background(), test.action, nil, nil)
			var serviceErr *ServiceError
			if !errors.As(err, &serviceErr) {
				t.Fatalf("Call error = %v, want *ServiceError", err)
			}
			if serviceErr.Code != test.wantCode {
				t.Errorf("Code = %q, want %q", serviceErr.Code, test.wantCode)
			}
			if serviceErr.Action != test.action {
				t.Errorf("Action = %q, want %q", serviceErr.Action, test.action)
			}
		})
	}
}

func TestMissingActionRejected(t *testing.T) {
	server := newTestServer(t)
	startServer(t, server)

	conn, err := net.DialTimeout("unix", server.SocketPath(), 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := codec.NewEncoder(conn).Encode(map[string]any{"text": "no action"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.OK || response.Code != CodeInvalidRequest {
		t.Errorf("response = %+v, want invalid-request failure", response)
	}
}

func TestCallDialFailureIsNotServiceError(t *testing.T) {
	client := NewServiceClient(filepath.Join(testutil.SocketDir(t), "absent.sock"))
	err := client.Call(context.Background(), "echo", nil, nil)
	if err == nil {
		t.Fatal("Call to absent socket succeeded")
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Errorf("dial failure surfaced as *ServiceError: %v", err)
	}
}

func TestStreamExchange(t *testing.T) {
	server := newTestServer(t)
	handlerDone := make(chan error, 1)
	server.HandleStream("count", func(ctx context.Context, raw []byte, stream *Stream) error {
		if err := stream.Accept(echoResponse{Text: "ready"}); err != nil {
			handlerDone <- err
			return err
		}
		for i := range 3 {
			if err := stream.Send(map[string]int{"n": i}); err != nil {
				handlerDone <- err
				return err
			}
		}
		// Wait for the client to hang up.
		var ignored any
		err := stream.Receive(&ignored)
		handlerDone <- err
		return nil
	})
	startServer(t, server)

	var ack echoResponse
	stream, err := NewServiceClient(server.SocketPath()).OpenStream(context.Background(), "count", nil, &ack)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if ack.Text != "ready" {
		t.Errorf("ack = %q, want ready", ack.Text)
	}
	for want := range 3 {
		var message map[string]int
		if err := stream.Receive(&message); err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if message["n"] != want {
			t.Errorf("n = %d, want %d", message["n"], want)
		}
	}
	stream.Close()

	err = testutil.RequireReceive(t, handlerDone, 5*time.Second, "waiting for handler to observe close")
	if !errors.Is(err, io.EOF) {
		t.Errorf("handler Receive after client close = %v, want EOF", err)
	}
}

func TestStreamReject(t *testing.T) {
	server := newTestServer(t)
	server.HandleStream("closed", func(ctx context.Context, raw []byte, stream *Stream) error {
		return stream.Reject("gone", "stream unavailable")
	})
	startServer(t, server)

	_, err := NewServiceClient(server.SocketPath()).OpenStream(context.Background(), "closed", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code != "gone" {
		t.Fatalf("OpenStream error = %v, want ServiceError with code gone", err)
	}
}

func TestServeRemovesSocketOnShutdown(t *testing.T) {
	server := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "waiting for listen")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Serve"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if _, err := os.Stat(server.SocketPath()); !os.IsNotExist(err) {
		t.Errorf("socket file still present after shutdown: %v", err)
	}
}

func TestRecordPeers(t *testing.T) {
	server := newTestServer(t)
	server.RecordPeers()
	peers := make(chan Peer, 1)
	server.Handle("whoami", func(ctx context.Context, raw []byte) (any, error) {
		peer, ok := PeerFromContext(ctx)
		if !ok {
			return nil, errors.New("no peer recorded")
		}
		peers <- peer
		return nil, nil
	})
	startServer(t, server)

	if err := NewServiceClient(server.SocketPath()).Call(context.Background(), "whoami", nil, nil); err != nil {
		t.Skipf("peer credentials unavailable on this platform: %v", err)
	}
	peer := testutil.RequireReceive(t, peers, 5*time.Second, "waiting for peer")
	if int(peer.PID) != os.Getpid() {
		t.Errorf("peer PID = %d, want %d", peer.PID, os.Getpid())
	}
}
