// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hartmanng/camdelegate/lib/clientapp"
	"github.com/hartmanng/camdelegate/lib/connection"
	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/protocol"
)

// defaultSteps runs when there is no terminal and no --steps.
const defaultSteps = "bind,permissions,status"

const (
	// stepTimeout bounds how long one step waits for its outcome.
	stepTimeout = 30 * time.Second

	// pollInterval is how often a step re-reads the app snapshot.
	pollInterval = 20 * time.Millisecond
)

// stepEnv is what a step runs against.
type stepEnv struct {
	app    *clientapp.App
	loop   eventloop.Poster
	logger *slog.Logger
}

type step struct {
	name string
	run  func(ctx context.Context, env stepEnv) error
}

var stepTable = map[string]func(ctx context.Context, env stepEnv) error{
	"bind":              stepBind,
	"unbind":            stepUnbind,
	"permissions":       stepPermissions,
	"notifications":     requestOne(protocol.PermissionPostNotifications),
	"camera-permission": requestOne(protocol.PermissionCamera),
	"status":            stepStatus,
	"foreground":        stepForeground,
	"camera":            stepCamera,
}

// parseSteps turns a comma-separated step list into a plan.
func parseSteps(list string) ([]step, error) {
	var plan []step
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		run, ok := stepTable[name]
		if !ok {
			return nil, fmt.Errorf("unknown step %q", name)
		}
		plan = append(plan, step{name: name, run: run})
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("no steps in %q", list)
	}
	return plan, nil
}

// runSteps runs plan in order and stops at the first failure.
func runSteps(ctx context.Context, app *clientapp.App, loop eventloop.Poster, plan []step, logger *slog.Logger) error {
	env := stepEnv{app: app, loop: loop, logger: logger}
	for _, step := range plan {
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		logger.Info("step", "name", step.name)
		err := step.run(stepCtx, env)
		cancel()
		if err != nil {
			return fmt.Errorf("step %s: %w", step.name, err)
		}
	}
	return nil
}

// onLoop runs fn on the event loop and returns its error.
func onLoop(ctx context.Context, loop eventloop.Poster, fn func() error) error {
	result := make(chan error, 1)
	loop.Post(func() { result <- fn() })
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitFor polls the app snapshot until done reports true.
func waitFor(ctx context.Context, app *clientapp.App, what string, done func(clientapp.Snapshot) bool) (clientapp.Snapshot, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		snapshot := app.Snapshot()
		if done(snapshot) {
			return snapshot, nil
		}
		select {
		case <-ctx.Done():
			return snapshot, fmt.Errorf("waiting for %s: %w (last event: %s)", what, ctx.Err(), snapshot.LastEvent)
		case <-ticker.C:
		}
	}
}

func stepBind(ctx context.Context, env stepEnv) error {
	if err := onLoop(ctx, env.loop, env.app.Bind); err != nil {
		return err
	}
	snapshot, err := waitFor(ctx, env.app, "connection", func(snapshot clientapp.Snapshot) bool {
		return snapshot.Connection != connection.Binding
	})
	if err != nil {
		return err
	}
	if snapshot.Connection != connection.Bound {
		return fmt.Errorf("not connected: %s", snapshot.LastEvent)
	}
	return nil
}

func stepUnbind(ctx context.Context, env stepEnv) error {
	return onLoop(ctx, env.loop, func() error {
		env.app.Unbind()
		return nil
	})
}

func stepPermissions(ctx context.Context, env stepEnv) error {
	if err := onLoop(ctx, env.loop, func() error { return env.app.RequestPermissions(ctx) }); err != nil {
		return err
	}
	return waitForChain(ctx, env)
}

func requestOne(permission string) func(ctx context.Context, env stepEnv) error {
	return func(ctx context.Context, env stepEnv) error {
		if err := onLoop(ctx, env.loop, func() error { return env.app.RequestPermission(ctx, permission) }); err != nil {
			return err
		}
		return waitForChain(ctx, env)
	}
}

// waitForChain waits for the chain to end. A chain that ended because
// a step failed reports that failure.
func waitForChain(ctx context.Context, env stepEnv) error {
	snapshot, err := waitFor(ctx, env.app, "permission chain", func(snapshot clientapp.Snapshot) bool {
		return !snapshot.ChainActive
	})
	if err != nil {
		return err
	}
	return snapshot.ChainErr
}

// stepStatus prints the consent state of every policy permission. A
// chain is over once its last step is accepted, so it first waits for
// the service's open prompts to close.
func stepStatus(ctx context.Context, env stepEnv) error {
	if err := waitForPrompts(ctx, env.app); err != nil {
		return err
	}
	if err := env.app.RefreshPermissions(ctx); err != nil {
		return err
	}
	snapshot := env.app.Snapshot()
	for _, permission := range snapshot.Policy.Permissions {
		fmt.Printf("%s: %s\n", permission, snapshot.Permissions[permission])
	}
	return nil
}

// waitForPrompts polls the service until no prompt is queued or
// showing.
func waitForPrompts(ctx context.Context, app *clientapp.App) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		status, err := app.ServiceStatus(ctx)
		if err != nil {
			return err
		}
		if status.PendingPrompts == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d open prompts: %w", status.PendingPrompts, ctx.Err())
		case <-ticker.C:
		}
	}
}

func stepForeground(ctx context.Context, env stepEnv) error {
	return env.app.StartForeground(ctx)
}

// stepCamera creates the surface if needed, delegates the camera to it
// and waits for the first frames.
func stepCamera(ctx context.Context, env stepEnv) error {
	if !env.app.SurfaceValid() {
		if err := onLoop(ctx, env.loop, func() error { return env.app.CreateSurface(ctx) }); err != nil {
			return err
		}
	}
	if err := env.app.DelegateCamera(ctx); err != nil {
		return err
	}
	snapshot, err := waitFor(ctx, env.app, "frames", func(snapshot clientapp.Snapshot) bool {
		return snapshot.Surface.Frames > 0
	})
	if err != nil {
		// Delegation succeeds even when the server cannot open the
		// camera; missing frames are the only sign.
		return fmt.Errorf("%w; is the camera permission granted?", err)
	}
	fmt.Printf("frames: %d from device %s (%s)\n", snapshot.Surface.Frames, snapshot.Surface.LastDevice, snapshot.Surface.LastFrameSize)
	return nil
}
