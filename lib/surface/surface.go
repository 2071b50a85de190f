// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package surface is the client's render target.
//
// A [Surface] is attachable only between [Surface.Create] and
// [Surface.Destroy], the create and destroy notifications of the
// windowing layer. While valid it listens on its own socket and
// accepts "frames" streams from the server's camera; each frame is
// decompressed and checked against its digest, and the surface keeps
// counters in place of drawing anything.
package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hartmanng/camdelegate/lib/capture"
	"github.com/hartmanng/camdelegate/lib/codec"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/service"
)

// Stats summarizes what the surface has received.
type Stats struct {
	Valid         bool
	Streams       int
	Frames        uint64
	Bytes         uint64
	Corrupt       uint64
	LastSequence  uint64
	LastDevice    string
	LastFrameSize string
}

// FrameObserver, when set, sees every verified frame. It runs on the
// stream's goroutine.
type FrameObserver func(frame capture.Frame, raw []byte)

// Surface is a render target. It is safe for concurrent use.
type Surface struct {
	socketPath string
	logger     *slog.Logger
	observer   FrameObserver

	mu      sync.Mutex
	valid   bool
	cancel  context.CancelFunc
	served  chan struct{}
	streams int
	stats   Stats
}

// New returns a destroyed (invalid) surface that will listen on
// socketPath once created.
func New(socketPath string, observer FrameObserver, logger *slog.Logger) *Surface {
	return &Surface{socketPath: socketPath, observer: observer, logger: logger}
}

// Create makes the surface attachable. It returns once the socket is
// listening. Creating a valid surface is a no-op.
func (s *Surface) Create(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid {
		return nil
	}

	server := service.NewSocketServer(s.socketPath, s.logger)
	server.HandleStream(protocol.ActionFrames, s.handleFrames)

	serveCtx, cancel := context.WithCancel(ctx)
	served := make(chan struct{})
	serveErr := make(chan error, 1)
	go func() {
		defer close(served)
		serveErr <- server.Serve(serveCtx)
	}()

	select {
	case <-server.Ready():
	case err := <-serveErr:
		cancel()
		return fmt.Errorf("creating surface: %w", err)
	}

	s.valid = true
	s.cancel = cancel
	s.served = served
	s.logger.Info("surface created", "socket", s.socketPath)
	return nil
}

// Destroy makes the surface unattachable, ends every frame stream,
// and waits for the listener to shut down. Destroying an invalid
// surface is a no-op.
func (s *Surface) Destroy() {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	s.valid = false
	cancel, served := s.cancel, s.served
	s.cancel, s.served = nil, nil
	s.mu.Unlock()

	cancel()
	<-served
	s.logger.Info("surface destroyed")
}

// Valid reports whether the surface is attachable.
func (s *Surface) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Target returns the render target to hand to the camera, or
// protocol.ErrSurfaceInvalid.
func (s *Surface) Target() (protocol.RenderTarget, error) {
	if !s.Valid() {
		return protocol.RenderTarget{}, protocol.ErrSurfaceInvalid
	}
	return protocol.RenderTarget{SocketPath: s.socketPath}, nil
}

// Stats returns the current counters.
func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Valid = s.valid
	stats.Streams = s.streams
	return stats
}

func (s *Surface) handleFrames(ctx context.Context, raw []byte, stream *service.Stream) error {
	var request protocol.FramesRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return stream.Reject(service.CodeInvalidRequest, fmt.Sprintf("decoding frames request: %v", err))
	}
	if err := stream.Accept(nil); err != nil {
		return err
	}

	logger := s.logger.With("device", request.Device)
	logger.Info("frame stream attached", "width", request.Width, "height", request.Height)

	s.mu.Lock()
	s.streams++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.streams--
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	for {
		var frame capture.Frame
		if err := stream.Receive(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				logger.Info("frame stream detached")
				return nil
			}
			return fmt.Errorf("receiving frame: %w", err)
		}

		image, err := frame.Decode()
		s.mu.Lock()
		if err != nil {
			s.stats.Corrupt++
		} else {
			s.stats.Frames++
			s.stats.Bytes += uint64(len(frame.Payload))
			s.stats.LastSequence = frame.Sequence
			s.stats.LastDevice = frame.Device
			s.stats.LastFrameSize = fmt.Sprintf("%dx%d", frame.Width, frame.Height)
		}
		s.mu.Unlock()

		if err != nil {
			logger.Warn("dropping corrupt frame", "error", err)
			continue
		}
		if s.observer != nil {
			s.observer(frame, image)
		}
	}
}
