// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hartmanng/camdelegate/lib/codec"
	"github.com/hartmanng/camdelegate/lib/eventloop"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/service"
)

// Registry is the single-slot pending callback registration. Each
// broker owns one; nothing about it is process-global.
type Registry struct {
	endpoint string
	poster   eventloop.Poster
	logger   *slog.Logger

	mu      sync.Mutex
	pending *registration
}

type registration struct {
	token    string
	callback func()
}

// NewRegistry returns an empty registry. endpoint is the callback
// socket path written into every reference the registry arms; poster
// is the loop callbacks run on.
func NewRegistry(endpoint string, poster eventloop.Poster, logger *slog.Logger) *Registry {
	return &Registry{
		endpoint: endpoint,
		poster:   poster,
		logger:   logger,
	}
}

// Arm installs callback and returns the reference that will trigger
// it. It fails with protocol.ErrAlreadyArmed while an earlier
// registration is still waiting; the earlier one is left in place.
func (r *Registry) Arm(callback func()) (protocol.CompletionReference, error) {
	if callback == nil {
		return protocol.CompletionReference{}, errors.New("signal: nil callback")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return protocol.CompletionReference{}, protocol.ErrAlreadyArmed
	}
	r.pending = &registration{
		token:    uuid.NewString(),
		callback: callback,
	}
	return protocol.CompletionReference{
		SocketPath: r.endpoint,
		Token:      r.pending.token,
	}, nil
}

// Disarm withdraws the registration armed under token, used when the
// call that would have triggered it failed. Reports whether anything
// was withdrawn.
func (r *Registry) Disarm(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil || r.pending.token != token {
		return false
	}
	r.pending = nil
	return true
}

// Armed reports whether a registration is waiting.
func (r *Registry) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

// Deliver posts the arrival of the signal for token onto the loop.
// There the slot is consumed and cleared before the callback runs, so
// the callback can re-arm the registry for the next step.
func (r *Registry) Deliver(token string) {
	r.poster.Post(func() {
		callback := r.consume(token)
		if callback == nil {
			return
		}
		r.logger.Info("completion signal received, running registered callback")
		callback()
	})
}

func (r *Registry) consume(token string) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		r.logger.Info("completion signal with no registration, dropping")
		return nil
	}
	if r.pending.token != token {
		r.logger.Warn("completion signal for a stale registration, dropping")
		return nil
	}
	callback := r.pending.callback
	r.pending = nil
	return callback
}

// HandleSignal is the service.ActionFunc for the completion-signal
// action on the client's callback socket. It acknowledges every
// well-formed signal, including ones the registry drops.
func (r *Registry) HandleSignal(ctx context.Context, raw []byte) (any, error) {
	var request protocol.CompletionSignalRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding completion signal: %w", err)
	}
	if request.Token == "" {
		return nil, errors.New("completion signal without a token")
	}

	if peer, ok := service.PeerFromContext(ctx); ok {
		r.logger.Debug("completion signal", "peer_pid", peer.PID, "peer_uid", peer.UID)
	}
	r.Deliver(request.Token)
	return nil, nil
}
