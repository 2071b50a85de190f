// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hartmanng/camdelegate/lib/codec"
)

// ActionFunc handles a single-response action. raw is the full CBOR
// request, including the "action" field. A nil result produces
// {ok: true}; a non-nil result is encoded into the response's data
// field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc handles a streaming action. The handler owns the stream
// until it returns and writes every response on it, starting with
// [Stream.Accept] or [Stream.Reject]. It must return promptly once ctx
// is cancelled.
type StreamFunc func(ctx context.Context, raw []byte, stream *Stream) error

// Codes the server itself assigns. Handler errors get their code from
// the function installed with SetErrorCoder.
const (
	CodeInvalidRequest = "invalid-request"
	CodeUnknownAction  = "unknown-action"
	CodeInternal       = "internal"
)

// Response is the envelope of every single-response reply and of the
// first reply on a stream.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer serves the action-routed CBOR protocol on a Unix
// socket. Register handlers before calling Serve.
type SocketServer struct {
	socketPath string
	logger     *slog.Logger

	handlers       map[string]ActionFunc
	streamHandlers map[string]StreamFunc

	// errorCode maps a handler error to the wire code placed in the
	// response. Nil means responses carry no code.
	errorCode func(error) string

	recordPeers bool

	ready     chan struct{}
	readyOnce sync.Once

	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath:     socketPath,
		logger:         logger,
		handlers:       make(map[string]ActionFunc),
		streamHandlers: make(map[string]StreamFunc),
		ready:          make(chan struct{}),
	}
}

// SocketPath returns the path the server listens on.
func (s *SocketServer) SocketPath() string { return s.socketPath }

// SetErrorCoder installs the function that derives a response code
// from a handler error.
func (s *SocketServer) SetErrorCoder(coder func(error) string) {
	s.errorCode = coder
}

// RecordPeers makes the server look up the kernel-reported credentials
// of each connecting process and attach them to the handler context.
func (s *SocketServer) RecordPeers() {
	s.recordPeers = true
}

// Handle registers a single-response handler. Panics on a duplicate
// action name.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkUnregistered(action)
	s.handlers[action] = handler
}

// HandleStream registers a streaming handler. Panics on a duplicate
// action name.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.checkUnregistered(action)
	s.streamHandlers[action] = handler
}

func (s *SocketServer) checkUnregistered(action string) {
	_, single := s.handlers[action]
	_, stream := s.streamHandlers[action]
	if single || stream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Ready is closed once the socket is listening.
func (s *SocketServer) Ready() <-chan struct{} { return s.ready }

// Serve listens on the socket and dispatches connections until ctx is
// cancelled, then waits for in-flight handlers (streams included) to
// return. A stale socket file is removed first; the socket file is
// removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	// readTimeout bounds how long a client may take to send its
	// request after connecting.
	readTimeout = 30 * time.Second

	// writeTimeout bounds writing a single response.
	writeTimeout = 10 * time.Second

	// maxRequestSize bounds a single request. Requests are a few
	// hundred bytes; frames travel server-to-client on their own
	// streams and are not subject to this limit.
	maxRequestSize = 64 * 1024
)

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if s.recordPeers {
		if peer, err := peerCredentials(conn); err == nil {
			ctx = withPeer(ctx, peer)
		} else {
			s.logger.Debug("peer credentials unavailable", "error", err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// The request is size-limited; a stream's later traffic is not.
	// The same decoder is handed to stream handlers because it may
	// already have buffered bytes past the request.
	limited := &io.LimitedReader{R: conn, N: maxRequestSize}
	decoder := codec.NewDecoder(limited)

	var raw codec.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, CodeInvalidRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, CodeInvalidRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, CodeInvalidRequest, "missing required field: action")
		return
	}

	if handler, ok := s.streamHandlers[header.Action]; ok {
		conn.SetReadDeadline(time.Time{})
		limited.N = math.MaxInt64
		stream := newStream(conn, decoder)
		if err := handler(ctx, []byte(raw), stream); err != nil {
			s.logger.Debug("stream ended with error",
				"action", header.Action,
				"error", err,
			)
		}
		return
	}

	handler, ok := s.handlers[header.Action]
	if !ok {
		s.writeError(conn, CodeUnknownAction, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		code := ""
		if s.errorCode != nil {
			code = s.errorCode(err)
		}
		s.writeError(conn, code, err.Error())
		return
	}

	if err := writeResponse(conn, result); err != nil {
		s.logger.Debug("failed to write response", "action", header.Action, "error", err)
	}
}

func (s *SocketServer) writeError(conn net.Conn, code, message string) {
	if err := writeFailure(conn, code, message); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func writeResponse(conn net.Conn, result any) error {
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			return writeFailure(conn, CodeInternal, fmt.Sprintf("internal: marshaling response: %v", err))
		}
		response.Data = data
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	return codec.NewEncoder(conn).Encode(response)
}

func writeFailure(conn net.Conn, code, message string) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	return codec.NewEncoder(conn).Encode(Response{OK: false, Error: message, Code: code})
}
