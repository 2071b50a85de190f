// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/service"
)

// Deliverer invokes a completion reference.
type Deliverer interface {
	Deliver(ctx context.Context, reference protocol.CompletionReference) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, reference protocol.CompletionReference) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, reference protocol.CompletionReference) error {
	return f(ctx, reference)
}

// Once holds an optional completion reference and fires it at most
// once.
type Once struct {
	deliverer Deliverer

	mu        sync.Mutex
	reference *protocol.CompletionReference
}

// NewOnce wraps reference, which may be nil.
func NewOnce(reference *protocol.CompletionReference, deliverer Deliverer) *Once {
	return &Once{reference: reference, deliverer: deliverer}
}

// Pending reports whether a reference is still waiting to be fired.
func (o *Once) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reference != nil
}

// Fire takes the reference and delivers it. fired is false when there
// was no reference or it was already taken; a delivery error still
// counts as fired because the reference is gone either way.
func (o *Once) Fire(ctx context.Context) (fired bool, err error) {
	o.mu.Lock()
	reference := o.reference
	o.reference = nil
	o.mu.Unlock()

	if reference == nil {
		return false, nil
	}
	if err := o.deliverer.Deliver(ctx, *reference); err != nil {
		return true, fmt.Errorf("delivering completion signal to %s: %w", reference.SocketPath, err)
	}
	return true, nil
}

// SocketDeliverer delivers a reference as a completion-signal call on
// the socket it names.
type SocketDeliverer struct{}

// Deliver implements Deliverer.
func (SocketDeliverer) Deliver(ctx context.Context, reference protocol.CompletionReference) error {
	client := service.NewServiceClient(reference.SocketPath)
	return client.Call(ctx, protocol.ActionCompletionSignal, map[string]any{
		"token": reference.Token,
	}, nil)
}
