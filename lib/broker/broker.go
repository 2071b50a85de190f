// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker drives delegated permission requests from the client.
//
// A chain requests each permission of a [Policy] in order. Every step
// but the last is sent with a completion reference armed on the
// broker's [signal.Registry] before the send goes out; when the server
// fires it, the registry runs the next step on the event loop. The last
// step is sent with no reference, and the chain is over once that send
// succeeds.
//
// Only one chain is in flight at a time. Remote calls run off the
// loop; their failures come back onto it, where the chain is dropped
// and logged. Nothing retries: the next user action starts over.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hartmanng/camdelegate/lib/capability"
	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/signal"
)

// DefaultCallTimeout bounds the remote calls of one chain step.
const DefaultCallTimeout = 10 * time.Second

// Observer receives chain progress on the event loop. Nil fields are
// skipped.
type Observer struct {
	// OnIssued runs when a step's send-handle call succeeded.
	OnIssued func(permission string, last bool)

	// OnFailed runs when a step failed and the chain was dropped.
	OnFailed func(permission string, err error)
}

// Config wires a Broker.
type Config struct {
	// Remote returns the bound capability service, or an error
	// wrapping protocol.ErrNotBound.
	Remote func() (capability.Remote, error)

	Registry *signal.Registry
	Poster   eventloop.Poster
	Policy   Policy
	Launch   protocol.LaunchOptions

	// CallTimeout bounds each step's remote calls. Zero means
	// DefaultCallTimeout.
	CallTimeout time.Duration

	Observer Observer
	Logger   *slog.Logger
}

// Broker is the client-side permission-request orchestrator.
type Broker struct {
	config Config

	mu    sync.Mutex
	chain *chain

	// failure is why the most recent chain stopped early.
	failure error
}

type chain struct {
	ctx         context.Context
	permissions []string

	// step counts the steps issued so far. A send result is only
	// applied while its step is still the current one.
	step int

	// armedToken is the registration waiting for the current step's
	// completion signal, or "" for the last step.
	armedToken string
}

// New returns a Broker with no chain in flight.
func New(config Config) *Broker {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	return &Broker{config: config}
}

// Policy returns the negotiated policy.
func (b *Broker) Policy() Policy { return b.config.Policy }

// InFlight reports whether a chain is outstanding.
func (b *Broker) InFlight() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chain != nil
}

// Err returns why the most recent chain failed. It is nil while a chain
// is in flight and after one that completed or was abandoned.
func (b *Broker) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

// RequestPermissions starts a chain over the policy's permissions.
//
// It returns protocol.ErrChainInFlight while another chain is
// outstanding and protocol.ErrNotBound, without any remote call, when
// the service is not bound. Otherwise it returns once the first step is
// armed and dispatched; later failures are logged and reported through
// Observer.OnFailed.
func (b *Broker) RequestPermissions(ctx context.Context) error {
	return b.start(ctx, b.config.Policy.Permissions)
}

// RequestPermission starts a one-step chain for a single permission,
// under the same single-flight rule.
func (b *Broker) RequestPermission(ctx context.Context, permission string) error {
	if permission == "" {
		return protocol.ErrMalformedRequest
	}
	return b.start(ctx, []string{permission})
}

func (b *Broker) start(ctx context.Context, permissions []string) error {
	if len(permissions) == 0 {
		return errors.New("broker: empty permission policy")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chain != nil {
		b.config.Logger.Warn("permission request rejected, chain already in flight",
			"pending", b.chain.permissions)
		return protocol.ErrChainInFlight
	}

	remote, err := b.config.Remote()
	if err != nil {
		b.config.Logger.Warn("permission request rejected", "error", err)
		return fmt.Errorf("requesting %v: %w", permissions, err)
	}

	current := &chain{
		ctx:         context.WithoutCancel(ctx),
		permissions: permissions,
	}
	b.chain = current
	b.failure = nil
	if err := b.issueLocked(current, remote); err != nil {
		b.chain = nil
		return err
	}
	b.config.Logger.Info("permission chain started", "permissions", permissions)
	return nil
}

// issueLocked arms the registry for the step after the current one
// (when there is one) and only then dispatches the current step.
func (b *Broker) issueLocked(current *chain, remote capability.Remote) error {
	permission := current.permissions[0]
	last := len(current.permissions) == 1
	current.step++
	step := current.step

	var completion *protocol.CompletionReference
	if !last {
		reference, err := b.config.Registry.Arm(func() { b.advance(current) })
		if err != nil {
			b.config.Logger.Error("arming completion callback", "permission", permission, "error", err)
			return err
		}
		completion = &reference
		current.armedToken = reference.Token
	} else {
		current.armedToken = ""
	}

	invocation := capability.Invocation{
		Code:       protocol.RequestCode,
		Completion: completion,
		Launch:     b.config.Launch,
	}
	go func() {
		err := b.send(current.ctx, remote, permission, invocation)
		b.config.Poster.Post(func() { b.sent(current, step, permission, last, err) })
	}()
	return nil
}

func (b *Broker) send(ctx context.Context, remote capability.Remote, permission string, invocation capability.Invocation) error {
	callCtx, cancel := context.WithTimeout(ctx, b.config.CallTimeout)
	defer cancel()

	handle, err := remote.PermissionRequestHandle(callCtx, permission)
	if err != nil {
		return fmt.Errorf("getting request handle for %s: %w", permission, err)
	}
	if err := handle.Send(callCtx, invocation); err != nil {
		return fmt.Errorf("sending request handle for %s: %w", permission, err)
	}
	return nil
}

// sent runs on the loop with the outcome of one step's remote calls.
func (b *Broker) sent(current *chain, step int, permission string, last bool, err error) {
	b.mu.Lock()
	if b.chain != current {
		b.mu.Unlock()
		b.config.Logger.Debug("discarding result for abandoned chain", "permission", permission)
		return
	}
	if step != current.step {
		// The step's completion signal beat its own send result and
		// the chain has already moved on.
		b.mu.Unlock()
		if err != nil {
			b.config.Logger.Warn("late failure for a completed step", "permission", permission, "error", err)
		}
		return
	}

	if err != nil {
		if current.armedToken != "" {
			b.config.Registry.Disarm(current.armedToken)
		}
		b.chain = nil
		b.failure = err
		b.mu.Unlock()

		b.config.Logger.Error("permission request failed, chain stopped",
			"permission", permission,
			"error", err,
		)
		if b.config.Observer.OnFailed != nil {
			b.config.Observer.OnFailed(permission, err)
		}
		return
	}

	if last {
		b.chain = nil
	}
	b.mu.Unlock()

	b.config.Logger.Info("permission request issued", "permission", permission, "last", last)
	if b.config.Observer.OnIssued != nil {
		b.config.Observer.OnIssued(permission, last)
	}
}

// advance runs on the loop when the completion signal for current's
// step arrives.
func (b *Broker) advance(current *chain) {
	b.mu.Lock()
	if b.chain != current {
		b.mu.Unlock()
		b.config.Logger.Info("completion signal for abandoned chain, ignoring")
		return
	}

	finished := current.permissions[0]
	current.permissions = current.permissions[1:]
	current.armedToken = ""
	next := current.permissions[0]

	remote, err := b.config.Remote()
	if err == nil {
		err = b.issueLocked(current, remote)
	}
	if err != nil {
		b.chain = nil
		b.failure = fmt.Errorf("continuing with %s: %w", next, err)
		b.mu.Unlock()
		b.config.Logger.Error("cannot continue permission chain",
			"finished", finished,
			"next", next,
			"error", err,
		)
		if b.config.Observer.OnFailed != nil {
			b.config.Observer.OnFailed(next, err)
		}
		return
	}
	b.mu.Unlock()

	b.config.Logger.Info("permission prompt finished, continuing chain", "finished", finished, "next", next)
}

// Abandon drops the chain in flight, if any, and withdraws its pending
// registration. A completion signal for it that arrives later is
// dropped by the registry.
func (b *Broker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chain == nil {
		return
	}
	if b.chain.armedToken != "" {
		b.config.Registry.Disarm(b.chain.armedToken)
	}
	b.config.Logger.Info("permission chain abandoned", "pending", b.chain.permissions)
	b.chain = nil
}
