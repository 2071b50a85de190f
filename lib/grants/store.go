// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package grants persists the server's permission consent state.
//
// The store is the server-side answer to "is this permission granted":
// the prompt handler records decisions into it, the permission-status
// action reads it back for clients that need the outcome a completion
// signal does not carry, and the capture path refuses to open a camera
// without a camera grant.
//
// The state file is CBOR, rewritten in full on every change with the
// temp-file, fsync, rename, fsync-directory sequence so a reader never
// sees a partial file. A store with an empty path lives only in memory.
package grants

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hartmanng/camdelegate/lib/clock"
	"github.com/hartmanng/camdelegate/lib/codec"
	"github.com/hartmanng/camdelegate/lib/protocol"
)

// fileVersion is bumped when the on-disk layout changes incompatibly.
const fileVersion = 1

// Entry is the recorded state of one permission.
type Entry struct {
	State     protocol.PermissionState `cbor:"state"`
	UpdatedAt time.Time                `cbor:"updated_at"`
}

type stateFile struct {
	Version     int              `cbor:"version"`
	Permissions map[string]Entry `cbor:"permissions"`
}

// Store is safe for concurrent use.
type Store struct {
	path  string
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string, clk clock.Clock) (*Store, error) {
	store := &Store{path: path, clock: clk, entries: make(map[string]Entry)}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading grant file: %w", err)
	}

	var file stateFile
	if err := codec.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing grant file %s: %w", path, err)
	}
	if file.Version != fileVersion {
		return nil, fmt.Errorf("grant file %s has version %d, want %d", path, file.Version, fileVersion)
	}
	if file.Permissions != nil {
		store.entries = file.Permissions
	}
	return store, nil
}

// Path returns the state file path, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// State returns the consent state of permission. Permissions never
// prompted for are PermissionUnset.
func (s *Store) State(permission string) protocol.PermissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[permission]
	if !ok {
		return protocol.PermissionUnset
	}
	return entry.State
}

// Granted reports whether permission is granted.
func (s *Store) Granted(permission string) bool {
	return s.State(permission) == protocol.PermissionGranted
}

// Record stores a decision and persists the store. The in-memory state
// is only updated once the file write succeeded.
func (s *Store) Record(permission string, granted bool) error {
	if permission == "" {
		return errors.New("grants: empty permission")
	}
	state := protocol.PermissionDenied
	if granted {
		state = protocol.PermissionGranted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.entries)
	next[permission] = Entry{State: state, UpdatedAt: s.clock.Now().UTC()}
	if s.path != "" {
		if err := writeFile(s.path, stateFile{Version: fileVersion, Permissions: next}); err != nil {
			return err
		}
	}
	s.entries = next
	return nil
}

// Snapshot returns a copy of every recorded entry.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.entries)
}

func writeFile(path string, file stateFile) error {
	data, err := codec.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshaling grant file: %w", err)
	}

	temporaryPath := path + ".tmp"
	handle, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary grant file: %w", err)
	}
	if _, err := handle.Write(data); err != nil {
		handle.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary grant file: %w", err)
	}
	if err := handle.Sync(); err != nil {
		handle.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary grant file: %w", err)
	}
	if err := handle.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary grant file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming grant file into place: %w", err)
	}

	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}
