// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"crypto/rand"
	"testing"
)

var testDevice = Device{ID: "0", Width: 64, Height: 48}

func TestCompressionRoundTrip(t *testing.T) {
	raw := NewTestPattern(testDevice).Capture(testDevice, 7)
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			frame, err := EncodeFrame(7, testDevice, raw, compression)
			if err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}
			if frame.Compression != compression {
				t.Errorf("used %v, want %v", frame.Compression, compression)
			}
			if compression != CompressionNone && len(frame.Payload) >= len(raw) {
				t.Errorf("payload %d bytes did not shrink from %d", len(frame.Payload), len(raw))
			}
			decoded, err := frame.Decode()
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(decoded, raw) {
				t.Error("decoded frame differs from the original")
			}
		})
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	noise := make([]byte, 4096)
	rand.Read(noise)
	payload, used, err := Compress(noise, CompressionLZ4)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if used != CompressionNone || !bytes.Equal(payload, noise) {
		t.Errorf("random data compressed with %v", used)
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	raw := NewTestPattern(testDevice).Capture(testDevice, 0)
	frame, err := EncodeFrame(0, testDevice, raw, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	frame.Payload = append([]byte(nil), frame.Payload...)
	frame.Payload[10] ^= 0xff
	if _, err := frame.Decode(); err == nil {
		t.Error("Decode accepted a corrupted payload")
	}

	frame.RawSize++
	if _, err := frame.Decode(); err == nil {
		t.Error("Decode accepted a wrong raw size")
	}
}

func TestParseCompression(t *testing.T) {
	tests := map[string]Compression{"": CompressionLZ4, "lz4": CompressionLZ4, "zstd": CompressionZstd, "none": CompressionNone}
	for name, want := range tests {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = (%v, %v), want %v", name, got, err, want)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression accepted gzip")
	}
}

func TestTestPatternScrolls(t *testing.T) {
	pattern := NewTestPattern(testDevice)
	first := pattern.Capture(testDevice, 0)
	second := pattern.Capture(testDevice, 1)
	if len(first) != testDevice.Width*testDevice.Height {
		t.Fatalf("frame size = %d", len(first))
	}
	if bytes.Equal(first, second) {
		t.Error("consecutive frames are identical")
	}
	if FrameDigest(first) == FrameDigest(second) {
		t.Error("consecutive frames share a digest")
	}
}
