// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the one CBOR configuration used by every
// camdelegate wire format: capability socket requests and responses,
// completion signals, capture frames, and the server's on-disk grant
// file.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// logical message always produces the same bytes. Decoding ignores
// unknown fields, which lets either app gain fields without breaking the
// other.
//
// Buffer form, for files:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream form, for sockets:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only ever cross a socket or hit disk carry `cbor` struct
// tags. Nothing in this module is serialized as JSON.
package codec
