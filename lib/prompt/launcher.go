// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"sync"
)

// Launcher runs handler flows in the background, one at a time, in the
// order they were launched. Launch never blocks.
type Launcher struct {
	handler *Handler

	mu      sync.Mutex
	pending []queued
	running bool
	idle    *sync.Cond
}

type queued struct {
	ctx     context.Context
	request Request
}

// NewLauncher returns a Launcher for handler.
func NewLauncher(handler *Handler) *Launcher {
	launcher := &Launcher{handler: handler}
	launcher.idle = sync.NewCond(&launcher.mu)
	return launcher
}

// Launch queues request and returns at once. Flows queued after ctx is
// done still run, so their completion references fire.
func (l *Launcher) Launch(ctx context.Context, request Request) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, queued{ctx: ctx, request: request})
	if !l.running {
		l.running = true
		go l.drain()
	}
}

func (l *Launcher) drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.running = false
			l.idle.Broadcast()
			l.mu.Unlock()
			return
		}
		next := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()

		l.handler.Run(next.ctx, next.request)
	}
}

// Pending returns the number of flows waiting or running.
func (l *Launcher) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := len(l.pending)
	if l.running {
		count++
	}
	return count
}

// Wait blocks until every launched flow has finished.
func (l *Launcher) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.running {
		l.idle.Wait()
	}
}
