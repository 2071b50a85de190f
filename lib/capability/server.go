// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hartmanng/camdelegate/lib/capture"
	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/codec"
	"github.com/hartmanng/camdelegate/lib/grants"
	"github.com/hartmanng/camdelegate/lib/prompt"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/service"
)

// ServiceName identifies the service in status and bind replies.
const ServiceName = "camdelegate"

// DefaultHandleTTL is how long a minted request handle stays valid.
const DefaultHandleTTL = 5 * time.Minute

// ServerConfig wires a Server.
type ServerConfig struct {
	SocketPath string

	// PlatformLevel is reported in status replies.
	PlatformLevel int

	// HandleTTL bounds the life of an unsent request handle. Zero
	// means DefaultHandleTTL.
	HandleTTL time.Duration

	Grants   *grants.Store
	Launcher *prompt.Launcher
	Camera   *capture.Camera
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Server is the Capability Service.
type Server struct {
	config  ServerConfig
	socket  *service.SocketServer
	started time.Time

	mu         sync.Mutex
	handles    map[string]requestHandle
	bound      int
	foreground bool
}

type requestHandle struct {
	permission string
	expires    time.Time
}

// NewServer creates a server and registers its actions. Call Serve to
// start it.
func NewServer(config ServerConfig) *Server {
	if config.HandleTTL <= 0 {
		config.HandleTTL = DefaultHandleTTL
	}
	server := &Server{
		config:  config,
		socket:  service.NewSocketServer(config.SocketPath, config.Logger),
		started: config.Clock.Now(),
		handles: make(map[string]requestHandle),
	}

	server.socket.SetErrorCoder(protocol.CodeForError)
	server.socket.RecordPeers()
	server.socket.Handle(protocol.ActionStatus, server.handleStatus)
	server.socket.HandleStream(protocol.ActionBind, server.handleBind)
	server.socket.Handle(protocol.ActionPermissionHandle, server.handlePermissionHandle)
	server.socket.Handle(protocol.ActionSendHandle, server.handleSendHandle)
	server.socket.Handle(protocol.ActionPermissionStatus, server.handlePermissionStatus)
	server.socket.Handle(protocol.ActionConnectCaptureStream, server.handleConnectCaptureStream)
	server.socket.Handle(protocol.ActionStartForeground, server.handleStartForeground)
	return server
}

// Serve runs the socket until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.socket.Serve(ctx)
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} { return s.socket.Ready() }

// SocketPath returns the capability socket path.
func (s *Server) SocketPath() string { return s.config.SocketPath }

// Status returns the same description the status action does.
func (s *Server) Status() protocol.StatusResponse {
	now := s.config.Clock.Now()
	pending := s.config.Launcher.Pending()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	return protocol.StatusResponse{
		Service:        ServiceName,
		PlatformLevel:  s.config.PlatformLevel,
		Foreground:     s.foreground,
		BoundClients:   s.bound,
		OpenHandles:    len(s.handles),
		PendingPrompts: pending,
		UptimeSeconds:  now.Sub(s.started).Seconds(),
	}
}

func (s *Server) handleStatus(ctx context.Context, raw []byte) (any, error) {
	return s.Status(), nil
}

func (s *Server) handleBind(ctx context.Context, raw []byte, stream *service.Stream) error {
	logger := s.config.Logger
	if peer, ok := service.PeerFromContext(ctx); ok {
		logger = logger.With("peer_pid", peer.PID, "peer_uid", peer.UID)
	}

	session := uuid.NewString()
	if err := stream.Accept(protocol.BindAck{Session: session, Service: ServiceName}); err != nil {
		return err
	}

	s.mu.Lock()
	s.bound++
	s.mu.Unlock()
	logger.Info("client bound", "session", session)

	defer func() {
		s.mu.Lock()
		s.bound--
		s.mu.Unlock()
		logger.Info("client unbound", "session", session)
	}()

	// Shutting down the server drops every binding.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	// Clients send nothing on the bind stream; a read returns when
	// either side closes it.
	var ignored any
	for {
		if err := stream.Receive(&ignored); err != nil {
			return nil
		}
	}
}

func (s *Server) handlePermissionHandle(ctx context.Context, raw []byte) (any, error) {
	var request protocol.PermissionHandleRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding permission-handle request: %w", err)
	}
	if request.Permission == "" {
		return nil, fmt.Errorf("permission-handle: %w", protocol.ErrMalformedRequest)
	}

	id := uuid.NewString()
	now := s.config.Clock.Now()

	s.mu.Lock()
	s.pruneLocked(now)
	s.handles[id] = requestHandle{
		permission: request.Permission,
		expires:    now.Add(s.config.HandleTTL),
	}
	s.mu.Unlock()

	s.config.Logger.Debug("request handle minted", "permission", request.Permission, "handle", id)
	return protocol.PermissionHandleResponse{Handle: id, Permission: request.Permission}, nil
}

func (s *Server) handleSendHandle(ctx context.Context, raw []byte) (any, error) {
	var request protocol.SendHandleRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding send-handle request: %w", err)
	}

	completion, err := request.Completion()
	if err != nil {
		return nil, fmt.Errorf("send-handle: %w", err)
	}

	handle, err := s.consume(request.Handle)
	if err != nil {
		return nil, err
	}
	if request.Code != protocol.RequestCode {
		s.config.Logger.Debug("send-handle with unexpected request code", "code", request.Code)
	}

	s.config.Launcher.Launch(ctx, prompt.Request{
		Permission: handle.permission,
		Completion: completion,
		Launch:     request.Launch,
	})
	return nil, nil
}

// consume removes and returns a live handle.
func (s *Server) consume(id string) (requestHandle, error) {
	now := s.config.Clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.handles[id]
	if !ok {
		return requestHandle{}, fmt.Errorf("handle %q: %w", id, protocol.ErrHandleCanceled)
	}
	delete(s.handles, id)
	if !now.Before(handle.expires) {
		return requestHandle{}, fmt.Errorf("handle %q expired: %w", id, protocol.ErrHandleCanceled)
	}
	return handle, nil
}

func (s *Server) pruneLocked(now time.Time) {
	for id, handle := range s.handles {
		if !now.Before(handle.expires) {
			delete(s.handles, id)
		}
	}
}

func (s *Server) handlePermissionStatus(ctx context.Context, raw []byte) (any, error) {
	var request protocol.PermissionStatusRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding permission-status request: %w", err)
	}
	if request.Permission == "" {
		return nil, fmt.Errorf("permission-status: %w", protocol.ErrMalformedRequest)
	}
	return protocol.PermissionStatusResponse{
		Permission: request.Permission,
		State:      s.config.Grants.State(request.Permission),
	}, nil
}

func (s *Server) handleConnectCaptureStream(ctx context.Context, raw []byte) (any, error) {
	var request protocol.ConnectCaptureStreamRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding connect-capture-stream request: %w", err)
	}
	if request.Target.SocketPath == "" {
		return nil, fmt.Errorf("connect-capture-stream: missing render target")
	}

	go func() {
		if _, err := s.config.Camera.Attach(ctx, request.Target); err != nil {
			s.config.Logger.Warn("cannot attach camera", "target", request.Target.SocketPath, "error", err)
		}
	}()
	return nil, nil
}

func (s *Server) handleStartForeground(ctx context.Context, raw []byte) (any, error) {
	s.mu.Lock()
	already := s.foreground
	s.foreground = true
	s.mu.Unlock()

	if !already {
		s.config.Logger.Info("running as foreground service")
	}
	return nil, nil
}
