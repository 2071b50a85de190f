// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection tracks the bound/unbound lifecycle of the
// Capability Service connection.
//
// A [Manager] moves through Unbound, Binding, and Bound. Bind starts an
// asynchronous attempt through a [Binder]; its result, and any later
// transport drop, are posted back onto the event loop where the state
// changes and the [Observer] runs. Each Bind or Unbind starts a new
// generation, and notifications from an older generation are discarded
// so a slow dial that completes after Unbind cannot resurrect the
// connection.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/protocol"
)

// State is the connection state.
type State int

const (
	Unbound State = iota
	Binding
	Bound
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Binding:
		return "binding"
	case Bound:
		return "bound"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Link is one established connection.
type Link[R any] interface {
	// Remote returns the handle remote calls go through.
	Remote() R

	// Done is closed when the transport drops the connection.
	Done() <-chan struct{}

	// Close releases the connection. Done closes afterwards.
	Close() error
}

// Binder establishes connections. Bind blocks until the connection is
// up or has failed, and must return promptly once ctx is cancelled.
type Binder[R any] interface {
	Bind(ctx context.Context) (Link[R], error)
}

// Observer receives state notifications on the event loop. Nil fields
// are skipped.
type Observer[R any] struct {
	OnConnected    func(remote R)
	OnDisconnected func()

	// OnBindFailed reports an attempt that never connected. State is
	// back to Unbound when it runs.
	OnBindFailed func(err error)
}

// ErrClosed is returned by Bind after the manager's context has ended.
var ErrClosed = errors.New("connection manager closed")

// Manager owns the Capability Service connection handle. No other
// component mutates it.
type Manager[R any] struct {
	ctx      context.Context
	binder   Binder[R]
	poster   eventloop.Poster
	observer Observer[R]
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	binding    Link[R]
	cancelBind context.CancelFunc
}

// NewManager returns an Unbound manager. ctx bounds every bind attempt
// the manager will make.
func NewManager[R any](ctx context.Context, binder Binder[R], poster eventloop.Poster, observer Observer[R], logger *slog.Logger) *Manager[R] {
	return &Manager[R]{
		ctx:      ctx,
		binder:   binder,
		poster:   poster,
		observer: observer,
		logger:   logger,
	}
}

// Bind starts connecting. It is a logged no-op while Binding or
// Bound. The only synchronous failure is a manager whose context has
// ended; dial failures arrive later through OnBindFailed.
func (m *Manager[R]) Bind() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Unbound {
		m.logger.Info("bind ignored", "state", m.state.String())
		return nil
	}
	if err := m.ctx.Err(); err != nil {
		m.logger.Warn("bind rejected", "error", err)
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	m.generation++
	generation := m.generation
	bindCtx, cancel := context.WithCancel(m.ctx)
	m.cancelBind = cancel
	m.state = Binding
	m.logger.Info("binding to capability service")

	go func() {
		binding, err := m.binder.Bind(bindCtx)
		m.poster.Post(func() { m.finishBind(generation, binding, err) })
	}()
	return nil
}

func (m *Manager[R]) finishBind(generation uint64, binding Link[R], err error) {
	m.mu.Lock()
	if generation != m.generation || m.state != Binding {
		m.mu.Unlock()
		if binding != nil {
			binding.Close()
		}
		m.logger.Debug("discarding stale bind result", "generation", generation)
		return
	}
	m.cancelBind = nil

	if err != nil {
		m.state = Unbound
		m.mu.Unlock()
		m.logger.Warn("bind failed", "error", err)
		if m.observer.OnBindFailed != nil {
			m.observer.OnBindFailed(err)
		}
		return
	}

	m.state = Bound
	m.binding = binding
	m.mu.Unlock()

	go func() {
		<-binding.Done()
		m.poster.Post(func() { m.disconnected(generation) })
	}()

	m.logger.Info("capability service connected")
	if m.observer.OnConnected != nil {
		m.observer.OnConnected(binding.Remote())
	}
}

func (m *Manager[R]) disconnected(generation uint64) {
	m.mu.Lock()
	if generation != m.generation || m.state != Bound {
		m.mu.Unlock()
		return
	}
	m.state = Unbound
	m.binding = nil
	m.generation++
	m.mu.Unlock()

	m.logger.Info("capability service disconnected")
	if m.observer.OnDisconnected != nil {
		m.observer.OnDisconnected()
	}
}

// Unbind releases the connection and returns Unbound. It is a no-op
// when already Unbound. OnDisconnected does not run: the disconnect
// notification is reserved for drops the client did not ask for.
func (m *Manager[R]) Unbind() {
	m.mu.Lock()
	if m.state == Unbound {
		m.mu.Unlock()
		return
	}

	m.generation++
	binding := m.binding
	cancel := m.cancelBind
	m.binding = nil
	m.cancelBind = nil
	m.state = Unbound
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if binding != nil {
		if err := binding.Close(); err != nil {
			m.logger.Debug("closing binding", "error", err)
		}
	}
	m.logger.Info("unbound from capability service")
}

// State returns the current state.
func (m *Manager[R]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the state is Bound.
func (m *Manager[R]) IsConnected() bool {
	return m.State() == Bound
}

// Remote returns the bound remote, or protocol.ErrNotBound.
func (m *Manager[R]) Remote() (R, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Bound {
		var zero R
		return zero, protocol.ErrNotBound
	}
	return m.binding.Remote(), nil
}
