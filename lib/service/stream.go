// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"net"
	"sync"

	"github.com/hartmanng/camdelegate/lib/codec"
)

// Stream is a long-lived connection carrying a sequence of CBOR values
// after its opening request. Both ends use it: stream handlers receive
// one from the server, and [ServiceClient.OpenStream] returns one.
//
// Send and Receive may be called from different goroutines. Close may
// be called from any goroutine and unblocks a pending Receive.
type Stream struct {
	conn    net.Conn
	decoder *codec.Decoder
	encoder *codec.Encoder

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newStream(conn net.Conn, decoder *codec.Decoder) *Stream {
	return &Stream{
		conn:    conn,
		decoder: decoder,
		encoder: codec.NewEncoder(conn),
	}
}

// Accept writes the success envelope that opens a stream. result may
// be nil.
func (s *Stream) Accept(result any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return writeResponse(s.conn, result)
}

// Reject writes a failure envelope. The handler should return after
// rejecting.
func (s *Stream) Reject(code, message string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return writeFailure(s.conn, code, message)
}

// Send encodes one value onto the stream.
func (s *Stream) Send(v any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.encoder.Encode(v)
}

// Receive decodes the next value from the stream. It returns io.EOF
// once the peer has closed its side.
func (s *Stream) Receive(v any) error {
	return s.decoder.Decode(v)
}

// Close closes the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
