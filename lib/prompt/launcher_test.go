// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"sync"
	"testing"

	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/grants"
	"github.com/hartmanng/camdelegate/lib/logging"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/signal"
)

func TestLauncherSerializesInOrder(t *testing.T) {
	var mu sync.Mutex
	active, maxActive := 0, 0
	var order []string

	prompter := PrompterFunc(func(ctx context.Context, permission string) (Decision, error) {
		mu.Lock()
		active++
		maxActive = max(maxActive, active)
		order = append(order, permission)
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
		return Denied, nil
	})

	store, _ := grants.Open("", clock.Real())
	handler := NewHandler(HandlerConfig{
		Prompter: prompter,
		Grants:   store,
		Deliverer: signal.DelivererFunc(func(context.Context, protocol.CompletionReference) error {
			return nil
		}),
		Logger: logging.Discard(),
	})
	launcher := NewLauncher(handler)

	permissions := []string{"P1", "P2", "P3", "P4"}
	for _, permission := range permissions {
		launcher.Launch(context.Background(), Request{Permission: permission})
	}
	launcher.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent prompts = %d, want 1", maxActive)
	}
	if len(order) != len(permissions) {
		t.Fatalf("ran %v, want %v", order, permissions)
	}
	for i := range permissions {
		if order[i] != permissions[i] {
			t.Errorf("order = %v, want %v", order, permissions)
			break
		}
	}
	if launcher.Pending() != 0 {
		t.Errorf("Pending = %d after Wait", launcher.Pending())
	}
}
