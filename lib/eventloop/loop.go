// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventloop provides the single-threaded loop the client's
// protocol logic runs on.
//
// Everything that mutates broker, registry, or connection state runs
// as a function posted to one [Poster]. Asynchronous completions
// (bind results, completion signals, remote-call returns) arrive on
// other goroutines and are posted back, so the protocol code itself
// never needs to reason about concurrent access.
package eventloop

import (
	"context"
	"sync"
)

// Poster schedules fn to run on the loop. Post never blocks and never
// runs fn synchronously on a real loop; posts preserve order.
type Poster interface {
	Post(fn func())
}

// Loop runs posted functions one at a time, in post order, on the
// goroutine that called Run. The queue is unbounded so a poster on a
// socket goroutine never waits on the loop.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
}

// New returns a Loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post appends fn to the queue. Posts after Run has returned are
// dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted functions until ctx is cancelled. Functions
// still queued at cancellation are discarded.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return
			}
			fn()
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Inline runs every posted function immediately on the posting
// goroutine. Tests use it where loop scheduling is not the property
// under test.
type Inline struct{}

// Post runs fn.
func (Inline) Post(fn func()) { fn() }
