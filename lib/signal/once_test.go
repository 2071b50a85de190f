// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package signal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hartmanng/camdelegate/lib/protocol"
)

func countingDeliverer(count *atomic.Int32, err error) Deliverer {
	return DelivererFunc(func(ctx context.Context, reference protocol.CompletionReference) error {
		count.Add(1)
		return err
	})
}

func TestOnceNilReference(t *testing.T) {
	var count atomic.Int32
	once := NewOnce(nil, countingDeliverer(&count, nil))
	if once.Pending() {
		t.Error("Pending with nil reference")
	}
	if fired, err := once.Fire(context.Background()); fired || err != nil {
		t.Errorf("Fire = (%v, %v), want (false, nil)", fired, err)
	}
	if count.Load() != 0 {
		t.Errorf("delivered %d times, want 0", count.Load())
	}
}

func TestOnceConcurrentFire(t *testing.T) {
	var count atomic.Int32
	once := NewOnce(&protocol.CompletionReference{SocketPath: "/x", Token: "t"}, countingDeliverer(&count, nil))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			once.Fire(context.Background())
		}()
	}
	wg.Wait()

	if count.Load() != 1 {
		t.Errorf("delivered %d times, want 1", count.Load())
	}
}

func TestOnceDeliveryErrorStillConsumes(t *testing.T) {
	var count atomic.Int32
	failure := errors.New("receiver gone")
	once := NewOnce(&protocol.CompletionReference{SocketPath: "/x", Token: "t"}, countingDeliverer(&count, failure))

	fired, err := once.Fire(context.Background())
	if !fired || !errors.Is(err, failure) {
		t.Fatalf("Fire = (%v, %v), want (true, %v)", fired, err, failure)
	}
	if fired, _ := once.Fire(context.Background()); fired {
		t.Error("reference fired again after a failed delivery")
	}
	if count.Load() != 1 {
		t.Errorf("delivered %d times, want 1", count.Load())
	}
}
