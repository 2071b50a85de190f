// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hartmanng/camdelegate/lib/clientapp"
	"github.com/hartmanng/camdelegate/lib/connection"
	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/tui"
)

// runPanel runs the interactive control panel until the user quits or
// ctx ends. Key actions never run on the panel's goroutine: state
// changes are posted to the event loop, and remote calls that wait for
// a reply run on their own goroutine.
func runPanel(ctx context.Context, app *clientapp.App, loop *eventloop.Loop, logs *tui.LogBuffer, callTimeout time.Duration) error {
	// The surface exists while the panel is on screen.
	if err := app.CreateSurface(ctx); err != nil {
		return fmt.Errorf("creating surface: %w", err)
	}

	onLoop := func(fn func()) func() {
		return func() { loop.Post(fn) }
	}
	remote := func(fn func(context.Context) error) func() {
		return func() {
			go func() {
				callCtx, cancel := context.WithTimeout(ctx, callTimeout)
				defer cancel()
				// Failures are logged by the app and shown in the
				// panel's log view.
				_ = fn(callCtx)
			}()
		}
	}

	keys := tui.PanelKeys
	actions := []tui.PanelAction{
		{Binding: keys.Bind, Run: onLoop(func() { _ = app.Bind() })},
		{Binding: keys.Unbind, Run: onLoop(app.Unbind)},
		{Binding: keys.RequestPermissions, Run: onLoop(func() { _ = app.RequestPermissions(ctx) })},
		{Binding: keys.RequestNotify, Run: onLoop(func() {
			_ = app.RequestPermission(ctx, protocol.PermissionPostNotifications)
		})},
		{Binding: keys.RequestCamera, Run: onLoop(func() {
			_ = app.RequestPermission(ctx, protocol.PermissionCamera)
		})},
		{Binding: keys.Abandon, Run: onLoop(app.AbandonChain)},
		{Binding: keys.StartForeground, Run: remote(app.StartForeground)},
		{Binding: keys.DelegateCamera, Run: remote(app.DelegateCamera)},
		{Binding: keys.Refresh, Run: remote(app.RefreshPermissions)},
		{Binding: keys.Surface, Run: onLoop(func() {
			if app.SurfaceValid() {
				app.DestroySurface()
				return
			}
			_ = app.CreateSurface(ctx)
		})},
	}

	theme := tui.DefaultTheme
	panel := tui.NewPanel(tui.PanelConfig{
		Title:    "camdelegate client",
		Actions:  actions,
		Quit:     keys.Quit,
		Status:   func() []tui.StatusLine { return statusLines(app.Snapshot(), theme) },
		Logs:     logs,
		Help:     keys,
		Theme:    theme,
		Renderer: tui.NewRenderer(os.Stdout),
	})

	program := tea.NewProgram(panel, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return err
	}
	return nil
}

// statusLines renders a snapshot as the panel's status block.
func statusLines(snapshot clientapp.Snapshot, theme tui.Theme) []tui.StatusLine {
	connectionColor := theme.FaintText
	switch snapshot.Connection {
	case connection.Bound:
		connectionColor = theme.Positive
	case connection.Binding:
		connectionColor = theme.Pending
	}

	chain := "idle"
	chainColor := theme.FaintText
	if snapshot.ChainActive {
		chain = "in flight"
		if snapshot.Armed {
			chain = "waiting for prompt to finish"
		}
		chainColor = theme.Pending
	}

	lines := []tui.StatusLine{
		{Label: "service", Value: snapshot.Connection.String(), Color: connectionColor},
		{Label: "policy", Value: strings.Join(snapshot.Policy.Permissions, " → ")},
		{Label: "chain", Value: chain, Color: chainColor},
	}

	for _, permission := range snapshot.Policy.Permissions {
		state, known := snapshot.Permissions[permission]
		value := string(state)
		if !known {
			value = "not checked (r to refresh)"
		}
		lines = append(lines, tui.StatusLine{
			Label: shortPermission(permission),
			Value: value,
			Color: theme.PermissionColor(state),
		})
	}

	surfaceValue := "destroyed"
	surfaceColor := theme.FaintText
	if snapshot.Surface.Valid {
		surfaceValue = "valid"
		surfaceColor = theme.Positive
	}
	lines = append(lines,
		tui.StatusLine{Label: "surface", Value: surfaceValue, Color: surfaceColor},
		tui.StatusLine{Label: "frames", Value: frameSummary(snapshot)},
	)
	if snapshot.LastEvent != "" {
		lines = append(lines, tui.StatusLine{Label: "last", Value: snapshot.LastEvent})
	}
	return lines
}

func frameSummary(snapshot clientapp.Snapshot) string {
	stats := snapshot.Surface
	if stats.Frames == 0 {
		return "none"
	}
	summary := fmt.Sprintf("%d (%d bytes, %s from device %s)", stats.Frames, stats.Bytes, stats.LastFrameSize, stats.LastDevice)
	if stats.Corrupt > 0 {
		summary += fmt.Sprintf(", %d corrupt", stats.Corrupt)
	}
	return summary
}

// shortPermission strips the platform namespace from a permission
// identifier.
func shortPermission(permission string) string {
	if index := strings.LastIndexByte(permission, '.'); index >= 0 {
		return strings.ToLower(permission[index+1:])
	}
	return permission
}
