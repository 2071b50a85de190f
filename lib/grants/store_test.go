// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/protocol"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRecordAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.cbor")
	fake := clock.Fake(epoch)

	store, err := Open(path, fake)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := store.State(protocol.PermissionCamera); got != protocol.PermissionUnset {
		t.Fatalf("initial state = %q, want unset", got)
	}

	if err := store.Record(protocol.PermissionCamera, true); err != nil {
		t.Fatalf("Record camera: %v", err)
	}
	fake.Advance(time.Minute)
	if err := store.Record(protocol.PermissionPostNotifications, false); err != nil {
		t.Fatalf("Record notifications: %v", err)
	}

	reopened, err := Open(path, fake)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.Granted(protocol.PermissionCamera) {
		t.Error("camera grant not persisted")
	}
	if got := reopened.State(protocol.PermissionPostNotifications); got != protocol.PermissionDenied {
		t.Errorf("notifications = %q, want denied", got)
	}
	entry := reopened.Snapshot()[protocol.PermissionPostNotifications]
	if !entry.UpdatedAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v, want %v", entry.UpdatedAt, epoch.Add(time.Minute))
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestDecisionsOverwrite(t *testing.T) {
	store, _ := Open("", clock.Fake(epoch))
	store.Record(protocol.PermissionCamera, true)
	store.Record(protocol.PermissionCamera, false)
	if store.Granted(protocol.PermissionCamera) {
		t.Error("later denial did not replace grant")
	}
}

func TestRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.cbor")
	// {"version": 9}
	if err := os.WriteFile(path, []byte{0xa1, 0x67, 'v', 'e', 'r', 's', 'i', 'o', 'n', 0x09}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, clock.Fake(epoch)); err == nil {
		t.Error("Open accepted a file with an unknown version")
	}
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "missing", "grants.cbor")
	store, err := Open(path, clock.Fake(epoch))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(protocol.PermissionCamera, true); err == nil {
		t.Fatal("Record into a missing directory succeeded")
	}
	if store.Granted(protocol.PermissionCamera) {
		t.Error("failed write still updated the in-memory state")
	}
}
