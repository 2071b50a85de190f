// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/grants"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/signal"
	"github.com/hartmanng/camdelegate/lib/testutil"
)

// recordingHandler is a slog.Handler that keeps every record message.
type recordingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, record.Message)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(message string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, m := range h.messages {
		if m == message {
			count++
		}
	}
	return count
}

type fixture struct {
	handler    *Handler
	store      *grants.Store
	logs       *recordingHandler
	deliveries atomic.Int32
	prompts    atomic.Int32
}

func newFixture(t *testing.T, prompter Prompter) *fixture {
	t.Helper()
	store, err := grants.Open("", clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: store, logs: &recordingHandler{}}
	counted := PrompterFunc(func(ctx context.Context, permission string) (Decision, error) {
		f.prompts.Add(1)
		return prompter.Prompt(ctx, permission)
	})
	f.handler = NewHandler(HandlerConfig{
		Prompter: counted,
		Grants:   store,
		Deliverer: signal.DelivererFunc(func(ctx context.Context, reference protocol.CompletionReference) error {
			f.deliveries.Add(1)
			return nil
		}),
		Logger: slog.New(f.logs),
	})
	return f
}

func reference() *protocol.CompletionReference {
	return &protocol.CompletionReference{SocketPath: "/callback.sock", Token: "token"}
}

func TestNoReferenceNoSignal(t *testing.T) {
	for _, decision := range []Decision{Granted, Denied} {
		t.Run(decision.String(), func(t *testing.T) {
			f := newFixture(t, NewFixedPrompter(decision))
			if err := f.handler.Run(context.Background(), Request{Permission: protocol.PermissionCamera}); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := f.deliveries.Load(); got != 0 {
				t.Errorf("deliveries = %d, want 0", got)
			}
			if got := f.logs.count("prompt result"); got != 1 {
				t.Errorf("prompt result logs = %d, want 1", got)
			}
		})
	}
}

func TestReferenceFiredExactlyOnce(t *testing.T) {
	tests := []struct {
		name     string
		prompter Prompter
	}{
		{"granted", NewFixedPrompter(Granted)},
		{"denied", NewFixedPrompter(Denied)},
		{"dismissed", NewFixedPrompter(Dismissed)},
		{"torn down", PrompterFunc(func(context.Context, string) (Decision, error) {
			return Dismissed, errors.New("screen destroyed")
		})},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, test.prompter)
			request := Request{Permission: protocol.PermissionCamera, Completion: reference()}
			if err := f.handler.Run(context.Background(), request); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := f.deliveries.Load(); got != 1 {
				t.Errorf("deliveries = %d, want 1", got)
			}
		})
	}
}

func TestCancelledPromptStillSignals(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, PrompterFunc(func(ctx context.Context, permission string) (Decision, error) {
		close(started)
		<-ctx.Done()
		return Dismissed, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.handler.Run(ctx, Request{Permission: protocol.PermissionCamera, Completion: reference()})
	}()
	testutil.RequireClosed(t, started, 5*time.Second, "waiting for prompt")
	cancel()
	testutil.RequireReceive(t, done, 5*time.Second, "waiting for Run")

	if got := f.deliveries.Load(); got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
}

func TestMissingPermissionAborts(t *testing.T) {
	f := newFixture(t, NewFixedPrompter(Granted))
	err := f.handler.Run(context.Background(), Request{Completion: reference()})
	if !errors.Is(err, protocol.ErrMalformedRequest) {
		t.Fatalf("Run = %v, want ErrMalformedRequest", err)
	}
	if f.prompts.Load() != 0 {
		t.Error("prompt shown for a malformed request")
	}
	if f.deliveries.Load() != 0 {
		t.Error("completion signal fabricated for a malformed request")
	}
}

func TestDecisionRecorded(t *testing.T) {
	f := newFixture(t, NewFixedPrompter(Denied))
	f.handler.Run(context.Background(), Request{Permission: protocol.PermissionCamera})
	if got := f.store.State(protocol.PermissionCamera); got != protocol.PermissionDenied {
		t.Errorf("state = %q, want denied", got)
	}
}

func TestDismissalRecordsNothing(t *testing.T) {
	f := newFixture(t, NewFixedPrompter(Dismissed))
	f.handler.Run(context.Background(), Request{Permission: protocol.PermissionCamera})
	if got := f.store.State(protocol.PermissionCamera); got != protocol.PermissionUnset {
		t.Errorf("state = %q, want unset", got)
	}
	if got := f.logs.count("prompt result"); got != 0 {
		t.Errorf("prompt result logs = %d, want 0", got)
	}
}

func TestAlreadyGrantedSkipsPrompt(t *testing.T) {
	f := newFixture(t, NewFixedPrompter(Denied))
	f.store.Record(protocol.PermissionCamera, true)

	f.handler.Run(context.Background(), Request{Permission: protocol.PermissionCamera, Completion: reference()})
	if f.prompts.Load() != 0 {
		t.Error("prompt shown for an already granted permission")
	}
	if f.deliveries.Load() != 1 {
		t.Errorf("deliveries = %d, want 1", f.deliveries.Load())
	}
	if got := f.logs.count("prompt result"); got != 1 {
		t.Errorf("prompt result logs = %d, want 1", got)
	}
}

func TestRunsAreIndependent(t *testing.T) {
	f := newFixture(t, NewFixedPrompter(Denied))
	for range 3 {
		f.handler.Run(context.Background(), Request{Permission: protocol.PermissionPostNotifications, Completion: reference()})
	}
	if got := f.deliveries.Load(); got != 3 {
		t.Errorf("deliveries = %d, want 3", got)
	}
}
