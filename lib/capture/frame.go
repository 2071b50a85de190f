// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed digest of a raw frame.
type Digest [32]byte

// frameDomainKey separates frame digests from any other BLAKE3 use.
// ASCII of the domain name, zero-padded to 32 bytes.
var frameDomainKey = [32]byte{
	'c', 'a', 'm', 'd', 'e', 'l', 'e', 'g', 'a', 't', 'e', '.',
	'c', 'a', 'p', 't', 'u', 'r', 'e', '.', 'f', 'r', 'a', 'm', 'e',
}

// FrameDigest computes the digest of raw frame bytes.
func FrameDigest(raw []byte) Digest {
	hasher, err := blake3.NewKeyed(frameDomainKey[:])
	if err != nil {
		panic("capture: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(raw)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Frame is one captured image as it travels on a frames stream.
type Frame struct {
	Sequence    uint64      `cbor:"sequence"`
	Device      string      `cbor:"device"`
	Width       int         `cbor:"width"`
	Height      int         `cbor:"height"`
	Compression Compression `cbor:"compression"`
	RawSize     int         `cbor:"raw_size"`
	Payload     []byte      `cbor:"payload"`
	Digest      Digest      `cbor:"digest"`
}

// EncodeFrame compresses raw and fills in a Frame for it.
func EncodeFrame(sequence uint64, device Device, raw []byte, compression Compression) (Frame, error) {
	payload, used, err := Compress(raw, compression)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Sequence:    sequence,
		Device:      device.ID,
		Width:       device.Width,
		Height:      device.Height,
		Compression: used,
		RawSize:     len(raw),
		Payload:     payload,
		Digest:      FrameDigest(raw),
	}, nil
}

// Decode decompresses the payload and checks it against the digest.
func (f Frame) Decode() ([]byte, error) {
	raw, err := Decompress(f.Payload, f.Compression, f.RawSize)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", f.Sequence, err)
	}
	if FrameDigest(raw) != f.Digest {
		return nil, fmt.Errorf("frame %d: digest mismatch", f.Sequence)
	}
	return raw, nil
}
