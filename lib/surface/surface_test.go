// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package surface

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hartmanng/camdelegate/lib/capture"
	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/logging"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/testutil"
)

type gate bool

func (g gate) Granted(string) bool { return bool(g) }

var testDevice = capture.Device{ID: "0", Width: 32, Height: 24}

const testFPS = 10

func newCamera(granted bool, fake *clock.FakeClock, devices ...capture.Device) *capture.Camera {
	return capture.NewCamera(capture.Config{
		Source:      capture.NewTestPattern(devices...),
		Gate:        gate(granted),
		Clock:       fake,
		FPS:         testFPS,
		Compression: capture.CompressionLZ4,
		Logger:      logging.Discard(),
	})
}

func newSurface(t *testing.T, frames chan capture.Frame) *Surface {
	t.Helper()
	var observer FrameObserver
	if frames != nil {
		observer = func(frame capture.Frame, raw []byte) { frames <- frame }
	}
	surface := New(filepath.Join(testutil.SocketDir(t), "surface.sock"), observer, logging.Discard())
	t.Cleanup(surface.Destroy)
	return surface
}

func TestTargetRequiresValidSurface(t *testing.T) {
	surface := newSurface(t, nil)
	if _, err := surface.Target(); !errors.Is(err, protocol.ErrSurfaceInvalid) {
		t.Fatalf("Target before Create = %v, want ErrSurfaceInvalid", err)
	}

	if err := surface.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	target, err := surface.Target()
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if target.SocketPath == "" {
		t.Error("empty target socket")
	}

	surface.Destroy()
	if surface.Valid() {
		t.Error("surface valid after Destroy")
	}
	if _, err := surface.Target(); !errors.Is(err, protocol.ErrSurfaceInvalid) {
		t.Errorf("Target after Destroy = %v, want ErrSurfaceInvalid", err)
	}
}

func TestCameraStreamsToSurface(t *testing.T) {
	frames := make(chan capture.Frame, 16)
	surface := newSurface(t, frames)
	if err := surface.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	target, _ := surface.Target()

	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	camera := newCamera(true, fake, testDevice)
	defer camera.Close()

	session, err := camera.Attach(context.Background(), target)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	fake.WaitForTickers(1)

	for want := range uint64(3) {
		fake.Advance(time.Second / testFPS)
		frame := testutil.RequireReceive(t, frames, 5*time.Second, "waiting for frame %d", want)
		if frame.Sequence != want {
			t.Errorf("sequence = %d, want %d", frame.Sequence, want)
		}
		if frame.Width != testDevice.Width || frame.Height != testDevice.Height {
			t.Errorf("frame size = %dx%d", frame.Width, frame.Height)
		}
	}

	stats := surface.Stats()
	if stats.Frames != 3 || stats.Corrupt != 0 {
		t.Errorf("stats = %+v, want 3 clean frames", stats)
	}

	session.Stop()
	testutil.RequireClosed(t, session.Done(), 5*time.Second, "waiting for session to stop")
	if session.Err() != nil {
		t.Errorf("stopped session error = %v", session.Err())
	}
}

func TestDestroyEndsSession(t *testing.T) {
	frames := make(chan capture.Frame, 16)
	surface := newSurface(t, frames)
	if err := surface.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	target, _ := surface.Target()

	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	camera := newCamera(true, fake, testDevice)
	defer camera.Close()

	session, err := camera.Attach(context.Background(), target)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	fake.WaitForTickers(1)
	fake.Advance(time.Second / testFPS)
	testutil.RequireReceive(t, frames, 5*time.Second, "waiting for first frame")

	surface.Destroy()

	// The next send hits a closed connection. Ticks may be dropped
	// while a send is in progress, so keep the clock moving.
	deadline := time.After(5 * time.Second)
	for {
		fake.Advance(time.Second / testFPS)
		select {
		case <-session.Done():
			if session.Err() == nil {
				t.Error("session ended by a vanished target reports no error")
			}
			return
		case <-deadline:
			t.Fatal("session survived surface destruction")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCameraGate(t *testing.T) {
	surface := newSurface(t, nil)
	if err := surface.Create(context.Background()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	target, _ := surface.Target()
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	if _, err := newCamera(false, fake, testDevice).Attach(context.Background(), target); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("Attach without grant = %v, want ErrPermissionDenied", err)
	}
	if _, err := newCamera(true, fake).Attach(context.Background(), target); !errors.Is(err, capture.ErrNoCameras) {
		t.Errorf("Attach without devices = %v, want ErrNoCameras", err)
	}
	if surface.Stats().Streams != 0 {
		t.Error("refused attach still opened a stream")
	}
}

func TestAttachToMissingTarget(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	target := protocol.RenderTarget{SocketPath: filepath.Join(testutil.SocketDir(t), "gone.sock")}
	if _, err := newCamera(true, fake, testDevice).Attach(context.Background(), target); err == nil {
		t.Error("Attach to a missing target succeeded")
	}
}
