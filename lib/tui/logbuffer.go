// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"bytes"
	"sync"
)

// LogBuffer is an io.Writer keeping the last lines written to it. The
// client routes its logger here while the panel owns the terminal.
//
// Writes never block on the UI: the panel picks new lines up on its
// next refresh.
type LogBuffer struct {
	mu       sync.Mutex
	lines    []string
	partial  []byte
	capacity int
}

// NewLogBuffer returns a buffer holding up to capacity lines.
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{capacity: max(capacity, 1)}
}

// Write implements io.Writer. A trailing partial line is held until
// its newline arrives.
func (buffer *LogBuffer) Write(data []byte) (int, error) {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()

	buffer.partial = append(buffer.partial, data...)
	for {
		index := bytes.IndexByte(buffer.partial, '\n')
		if index < 0 {
			break
		}
		buffer.lines = append(buffer.lines, string(buffer.partial[:index]))
		buffer.partial = buffer.partial[index+1:]
	}
	if overflow := len(buffer.lines) - buffer.capacity; overflow > 0 {
		buffer.lines = append(buffer.lines[:0], buffer.lines[overflow:]...)
	}
	return len(data), nil
}

// Tail returns up to n of the most recent lines, oldest first.
func (buffer *LogBuffer) Tail(n int) []string {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()

	start := max(len(buffer.lines)-n, 0)
	tail := make([]string, len(buffer.lines)-start)
	copy(tail, buffer.lines[start:])
	return tail
}
