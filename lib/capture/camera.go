// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/service"
)

var (
	// ErrPermissionDenied: the camera permission is not granted.
	ErrPermissionDenied = errors.New("camera permission not granted")

	// ErrNoCameras: the source reports no devices.
	ErrNoCameras = errors.New("no cameras found")
)

// Gate reports whether the camera may be opened.
type Gate interface {
	Granted(permission string) bool
}

// Config wires a Camera.
type Config struct {
	Source      Source
	Gate        Gate
	Clock       clock.Clock
	FPS         int
	Compression Compression

	// MaxFrames ends each session after that many frames. Zero means
	// unlimited.
	MaxFrames uint64

	Logger *slog.Logger
}

// Camera opens sessions against render targets. It is safe for
// concurrent use.
type Camera struct {
	config Config

	mu       sync.Mutex
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

// NewCamera returns a Camera.
func NewCamera(config Config) *Camera {
	if config.FPS <= 0 {
		config.FPS = 15
	}
	return &Camera{config: config, sessions: make(map[*Session]struct{})}
}

// Attach opens the first device and starts streaming frames to target
// on a new goroutine. It fails with ErrPermissionDenied or
// ErrNoCameras before touching the target, and with a dial error when
// the target is not listening.
func (c *Camera) Attach(ctx context.Context, target protocol.RenderTarget) (*Session, error) {
	if !c.config.Gate.Granted(protocol.PermissionCamera) {
		return nil, ErrPermissionDenied
	}
	devices := c.config.Source.Devices()
	if len(devices) == 0 {
		return nil, ErrNoCameras
	}
	device := devices[0]

	client := service.NewServiceClient(target.SocketPath)
	stream, err := client.OpenStream(ctx, protocol.ActionFrames, map[string]any{
		"device": device.ID,
		"width":  device.Width,
		"height": device.Height,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("opening frame stream to %s: %w", target.SocketPath, err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		device: device,
		target: target,
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: c.config.Logger.With("device", device.ID, "target", target.SocketPath),
	}

	c.mu.Lock()
	c.sessions[session] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		session.run(sessionCtx, c.config)
		c.mu.Lock()
		delete(c.sessions, session)
		c.mu.Unlock()
	}()

	session.logger.Info("capture session started", "fps", c.config.FPS, "compression", c.config.Compression.String())
	return session, nil
}

// Active returns the number of running sessions.
func (c *Camera) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close stops every session and waits for them to exit.
func (c *Camera) Close() {
	c.mu.Lock()
	for session := range c.sessions {
		session.Stop()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Session is one repeating capture toward one render target.
type Session struct {
	device Device
	target protocol.RenderTarget
	stream *service.Stream
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	mu   sync.Mutex
	sent uint64
	err  error
}

// Device returns the device the session captures from.
func (s *Session) Device() Device { return s.device }

// Stop ends the session. Safe to call more than once.
func (s *Session) Stop() { s.cancel() }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Sent returns the number of frames delivered so far.
func (s *Session) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Err returns why the session ended: nil for Stop or MaxFrames, the
// send error when the target went away.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) run(ctx context.Context, config Config) {
	defer close(s.done)
	defer s.stream.Close()

	// The stream goes away with the session; closing it unblocks a
	// Send stuck on a target that stopped reading.
	stop := context.AfterFunc(ctx, func() { s.stream.Close() })
	defer stop()

	ticker := config.Clock.NewTicker(time.Second / time.Duration(config.FPS))
	defer ticker.Stop()

	var sequence uint64
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("capture session stopped", "frames", s.Sent())
			return
		case <-ticker.C:
		}

		raw := config.Source.Capture(s.device, sequence)
		frame, err := EncodeFrame(sequence, s.device, raw, config.Compression)
		if err == nil {
			err = s.stream.Send(frame)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.logger.Warn("capture session ended", "error", err, "frames", s.Sent())
			return
		}

		sequence++
		s.mu.Lock()
		s.sent = sequence
		s.mu.Unlock()

		if config.MaxFrames > 0 && sequence >= config.MaxFrames {
			s.logger.Info("capture session reached frame limit", "frames", sequence)
			return
		}
	}
}
