// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package clientapp is the client application controller. It owns the
// event loop's collaborators: the connection manager for the
// capability service, the completion-signal registry and the socket
// that receives signals, the permission broker, and the render-target
// surface. Every user-facing operation of the client binary is a
// method here; the binary only decides which key runs which method.
package clientapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hartmanng/camdelegate/lib/broker"
	"github.com/hartmanng/camdelegate/lib/capability"
	"github.com/hartmanng/camdelegate/lib/connection"
	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/service"
	"github.com/hartmanng/camdelegate/lib/signal"
	"github.com/hartmanng/camdelegate/lib/surface"
)

// Config wires an App.
type Config struct {
	// CapabilitySocket is the capability service's socket.
	CapabilitySocket string

	// CallbackSocket is where this client receives completion
	// signals. Completion references name it.
	CallbackSocket string

	// SurfaceSocket is where the render target listens while valid.
	SurfaceSocket string

	// PlatformLevel selects the permission policy.
	PlatformLevel int

	// CallTimeout bounds each remote call. Zero means
	// broker.DefaultCallTimeout.
	CallTimeout time.Duration

	// Launch is passed along with every request handle.
	Launch protocol.LaunchOptions

	// Poster is the event loop. Connection and chain notifications
	// run on it.
	Poster eventloop.Poster

	// Binder overrides the socket dialer. Tests substitute a fake.
	Binder connection.Binder[capability.Remote]

	// Events, when set, receives a one-line description of every
	// state change the app reports. It may run on any goroutine.
	Events func(event string)

	Logger *slog.Logger
}

// Snapshot is a point-in-time view of the client for display.
type Snapshot struct {
	Connection  connection.State
	Policy      broker.Policy
	ChainActive bool
	Armed       bool
	Surface     surface.Stats
	Permissions map[string]protocol.PermissionState
	LastEvent   string

	// ChainErr is why the most recent permission chain failed. It is
	// nil while a chain runs and after one that completed.
	ChainErr error
}

// App is the client controller. Its methods are safe to call from any
// goroutine; the binary calls them from the event loop.
type App struct {
	config   Config
	logger   *slog.Logger
	manager  *connection.Manager[capability.Remote]
	registry *signal.Registry
	broker   *broker.Broker
	surface  *surface.Surface
	callback *service.SocketServer

	mu          sync.Mutex
	permissions map[string]protocol.PermissionState
	lastEvent   string
}

// New wires an App. ctx bounds every bind attempt. Serve must run for
// completion signals to be received.
func New(ctx context.Context, config Config) *App {
	logger := config.Logger
	app := &App{
		config:      config,
		logger:      logger,
		permissions: make(map[string]protocol.PermissionState),
	}

	binder := config.Binder
	if binder == nil {
		binder = capability.NewDialer(config.CapabilitySocket, logger.With("component", "dialer"))
	}
	app.manager = connection.NewManager(ctx, binder, config.Poster, connection.Observer[capability.Remote]{
		OnConnected:    app.onConnected,
		OnDisconnected: app.onDisconnected,
		OnBindFailed:   app.onBindFailed,
	}, logger.With("component", "connection"))

	app.registry = signal.NewRegistry(config.CallbackSocket, config.Poster, logger.With("component", "registry"))

	app.broker = broker.New(broker.Config{
		Remote:      app.manager.Remote,
		Registry:    app.registry,
		Poster:      config.Poster,
		Policy:      broker.NegotiatePolicy(config.PlatformLevel),
		Launch:      config.Launch,
		CallTimeout: config.CallTimeout,
		Observer: broker.Observer{
			OnIssued: app.onIssued,
			OnFailed: app.onChainFailed,
		},
		Logger: logger.With("component", "broker"),
	})

	app.surface = surface.New(config.SurfaceSocket, nil, logger.With("component", "surface"))

	app.callback = service.NewSocketServer(config.CallbackSocket, logger.With("component", "callback"))
	app.callback.RecordPeers()
	app.callback.Handle(protocol.ActionCompletionSignal, app.registry.HandleSignal)
	return app
}

// Serve runs the completion-signal socket until ctx is cancelled, then
// destroys the surface and unbinds.
func (a *App) Serve(ctx context.Context) error {
	err := a.callback.Serve(ctx)
	a.surface.Destroy()
	a.manager.Unbind()
	return err
}

// Ready is closed once the completion-signal socket is listening.
func (a *App) Ready() <-chan struct{} { return a.callback.Ready() }

// Bind starts connecting to the capability service. Progress arrives
// as events.
func (a *App) Bind() error {
	return a.manager.Bind()
}

// Unbind releases the capability service connection and abandons any
// chain in flight, since its completion signal can no longer be
// trusted to arrive.
func (a *App) Unbind() {
	a.manager.Unbind()
	a.broker.Abandon()
	a.event("unbound")
}

// IsConnected reports whether the capability service is bound.
func (a *App) IsConnected() bool { return a.manager.IsConnected() }

// RequestPermissions starts the negotiated permission chain.
func (a *App) RequestPermissions(ctx context.Context) error {
	if err := a.broker.RequestPermissions(ctx); err != nil {
		a.event(fmt.Sprintf("request refused: %v", err))
		return err
	}
	a.event(fmt.Sprintf("requesting %v", a.broker.Policy().Permissions))
	return nil
}

// RequestPermission starts a one-step chain for permission.
func (a *App) RequestPermission(ctx context.Context, permission string) error {
	if err := a.broker.RequestPermission(ctx, permission); err != nil {
		a.event(fmt.Sprintf("request refused: %v", err))
		return err
	}
	a.event("requesting " + permission)
	return nil
}

// AbandonChain drops a stalled permission chain.
func (a *App) AbandonChain() {
	if a.broker.InFlight() {
		a.broker.Abandon()
		a.event("permission chain abandoned")
	}
}

// StartForeground asks the service to run in the foreground.
func (a *App) StartForeground(ctx context.Context) error {
	remote, err := a.manager.Remote()
	if err != nil {
		a.logger.Warn("start-foreground rejected", "error", err)
		return err
	}
	if err := remote.StartForeground(ctx); err != nil {
		a.logger.Error("start-foreground failed", "error", err)
		return err
	}
	a.event("service started in foreground")
	return nil
}

// DelegateCamera asks the service to stream the camera into the
// surface. It fails with protocol.ErrSurfaceInvalid while the surface
// is destroyed and protocol.ErrNotBound while unbound, and makes no
// remote call in either case. Success means the service accepted the
// target; whether frames flow shows only in the surface's counters.
func (a *App) DelegateCamera(ctx context.Context) error {
	target, err := a.surface.Target()
	if err != nil {
		a.logger.Warn("delegate camera rejected", "error", err)
		return err
	}
	remote, err := a.manager.Remote()
	if err != nil {
		a.logger.Warn("delegate camera rejected", "error", err)
		return err
	}
	if err := remote.ConnectCaptureStream(ctx, target); err != nil {
		a.logger.Error("connect-capture-stream failed", "error", err)
		return err
	}
	a.event("camera delegated to " + target.SocketPath)
	return nil
}

// ServiceStatus queries the service's status.
func (a *App) ServiceStatus(ctx context.Context) (protocol.StatusResponse, error) {
	remote, err := a.manager.Remote()
	if err != nil {
		return protocol.StatusResponse{}, err
	}
	return remote.Status(ctx)
}

// PermissionStatus re-queries one permission from the service. The
// completion signal says only that a prompt finished; this is how the
// client learns the outcome.
func (a *App) PermissionStatus(ctx context.Context, permission string) (protocol.PermissionState, error) {
	remote, err := a.manager.Remote()
	if err != nil {
		return protocol.PermissionUnset, err
	}
	state, err := remote.PermissionStatus(ctx, permission)
	if err != nil {
		a.logger.Error("permission-status failed", "permission", permission, "error", err)
		return protocol.PermissionUnset, err
	}

	a.mu.Lock()
	a.permissions[permission] = state
	a.mu.Unlock()
	return state, nil
}

// RefreshPermissions re-queries every permission of the policy.
func (a *App) RefreshPermissions(ctx context.Context) error {
	for _, permission := range a.broker.Policy().Permissions {
		if _, err := a.PermissionStatus(ctx, permission); err != nil {
			return err
		}
	}
	return nil
}

// CreateSurface makes the render target attachable.
func (a *App) CreateSurface(ctx context.Context) error {
	if err := a.surface.Create(ctx); err != nil {
		a.logger.Error("creating surface", "error", err)
		return err
	}
	a.event("surface created")
	return nil
}

// DestroySurface tears the render target down. Streams into it end.
func (a *App) DestroySurface() {
	a.surface.Destroy()
	a.event("surface destroyed")
}

// SurfaceValid reports whether the render target is attachable.
func (a *App) SurfaceValid() bool { return a.surface.Valid() }

// Snapshot returns the current client state.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	permissions := make(map[string]protocol.PermissionState, len(a.permissions))
	for permission, state := range a.permissions {
		permissions[permission] = state
	}
	lastEvent := a.lastEvent
	a.mu.Unlock()

	// The broker records a failure in the same step that ends the
	// chain, so reading InFlight first never misses it.
	chainActive := a.broker.InFlight()
	chainErr := a.broker.Err()

	return Snapshot{
		Connection:  a.manager.State(),
		Policy:      a.broker.Policy(),
		ChainActive: chainActive,
		Armed:       a.registry.Armed(),
		Surface:     a.surface.Stats(),
		Permissions: permissions,
		LastEvent:   lastEvent,
		ChainErr:    chainErr,
	}
}

func (a *App) onConnected(remote capability.Remote) {
	a.event("connected to capability service")
}

// onDisconnected abandons the chain: the server that would have fired
// its completion signal is gone.
func (a *App) onDisconnected() {
	a.broker.Abandon()
	a.event("capability service disconnected")
}

func (a *App) onBindFailed(err error) {
	a.event(fmt.Sprintf("bind failed: %v", err))
}

func (a *App) onIssued(permission string, last bool) {
	if last {
		a.event("requested " + permission + ", chain complete")
		return
	}
	a.event("requested " + permission + ", waiting for prompt")
}

func (a *App) onChainFailed(permission string, err error) {
	a.event(fmt.Sprintf("request for %s failed: %v", permission, err))
}

func (a *App) event(event string) {
	a.mu.Lock()
	a.lastEvent = event
	a.mu.Unlock()
	if a.config.Events != nil {
		a.config.Events(event)
	}
}
