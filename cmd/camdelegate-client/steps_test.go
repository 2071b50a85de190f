// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hartmanng/camdelegate/lib/capability"
	"github.com/hartmanng/camdelegate/lib/capture"
	"github.com/hartmanng/camdelegate/lib/clientapp"
	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/connection"
	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/grants"
	"github.com/hartmanng/camdelegate/lib/logging"
	"github.com/hartmanng/camdelegate/lib/prompt"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/signal"
	"github.com/hartmanng/camdelegate/lib/testutil"
)

// startApp runs a client app on its own loop. binder may be nil to
// dial capabilitySocket.
func startApp(t *testing.T, dir, capabilitySocket string, platformLevel int, binder connection.Binder[capability.Remote]) (*clientapp.App, *eventloop.Loop) {
	t.Helper()
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	app := clientapp.New(ctx, clientapp.Config{
		CapabilitySocket: capabilitySocket,
		CallbackSocket:   filepath.Join(dir, "callback.sock"),
		SurfaceSocket:    filepath.Join(dir, "surface.sock"),
		PlatformLevel:    platformLevel,
		CallTimeout:      5 * time.Second,
		Poster:           loop,
		Binder:           binder,
		Logger:           logging.Discard(),
	})
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	testutil.RequireClosed(t, app.Ready(), 5*time.Second, "callback socket never came up")
	return app, loop
}

func TestStatusStepWaitsForOpenPrompts(t *testing.T) {
	dir := testutil.SocketDir(t)
	logger := logging.Discard()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store, err := grants.Open("", fake)
	if err != nil {
		t.Fatal(err)
	}

	shown := make(chan string, 4)
	release := make(chan struct{})
	launcher := prompt.NewLauncher(prompt.NewHandler(prompt.HandlerConfig{
		Prompter: prompt.PrompterFunc(func(ctx context.Context, permission string) (prompt.Decision, error) {
			shown <- permission
			select {
			case <-release:
				return prompt.Granted, nil
			case <-ctx.Done():
				return prompt.Dismissed, ctx.Err()
			}
		}),
		Grants:    store,
		Deliverer: signal.SocketDeliverer{},
		Logger:    logger,
	}))
	server := capability.NewServer(capability.ServerConfig{
		SocketPath:    filepath.Join(dir, "capability.sock"),
		PlatformLevel: 30,
		Grants:        store,
		Launcher:      launcher,
		Camera: capture.NewCamera(capture.Config{
			Source: capture.NewTestPattern(capture.Device{ID: "0", Width: 16, Height: 12}),
			Gate:   store,
			Clock:  fake,
			Logger: logger,
		}),
		Clock:  fake,
		Logger: logger,
	})
	serverCtx, stopServer := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Serve(serverCtx) }()
	t.Cleanup(func() {
		stopServer()
		<-serverDone
		launcher.Wait()
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "capability socket never came up")

	app, loop := startApp(t, dir, server.SocketPath(), 30, nil)
	plan, err := parseSteps(defaultSteps)
	if err != nil {
		t.Fatal(err)
	}

	finished := make(chan error, 1)
	go func() { finished <- runSteps(context.Background(), app, loop, plan, logger) }()

	testutil.RequireReceive(t, shown, 5*time.Second, "camera prompt never shown")
	testutil.RequireNoReceive(t, finished, 100*time.Millisecond, "steps finished while the prompt was open")

	close(release)
	if err := testutil.RequireReceive(t, finished, 5*time.Second, "steps never finished"); err != nil {
		t.Fatalf("runSteps: %v", err)
	}
	if got := app.Snapshot().Permissions[protocol.PermissionCamera]; got != protocol.PermissionGranted {
		t.Errorf("status step saw camera = %q, want granted", got)
	}
}

// failingRemote refuses every handle request.
type failingRemote struct {
	capability.Remote
	err error
}

func (r failingRemote) PermissionRequestHandle(context.Context, string) (capability.RequestHandle, error) {
	return nil, r.err
}

type fixedLink struct {
	remote capability.Remote
	done   chan struct{}
}

func (l *fixedLink) Remote() capability.Remote { return l.remote }
func (l *fixedLink) Done() <-chan struct{}     { return l.done }
func (l *fixedLink) Close() error              { return nil }

type fixedBinder struct{ link *fixedLink }

func (b fixedBinder) Bind(context.Context) (connection.Link[capability.Remote], error) {
	return b.link, nil
}

func TestPermissionsStepReportsChainFailure(t *testing.T) {
	failure := &protocol.TransportError{Op: protocol.ActionPermissionHandle, Err: errors.New("connection reset")}
	link := &fixedLink{remote: failingRemote{err: failure}, done: make(chan struct{})}
	app, loop := startApp(t, testutil.SocketDir(t), "", 34, fixedBinder{link: link})

	plan, err := parseSteps("bind,permissions")
	if err != nil {
		t.Fatal(err)
	}
	err = runSteps(context.Background(), app, loop, plan, logging.Discard())
	if !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("runSteps = %v, want the handle failure", err)
	}
}
