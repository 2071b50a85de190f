// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package capture

// Device describes one camera.
type Device struct {
	ID     string
	Width  int
	Height int
}

// Source is the camera hardware: a device list and a way to grab one
// frame from a device.
type Source interface {
	Devices() []Device

	// Capture returns the raw 8-bit grayscale image for frame number
	// sequence of device.
	Capture(device Device, sequence uint64) []byte
}

// TestPattern is a synthetic Source: diagonal bands that scroll by one
// pixel per frame. An empty device list models a host without cameras.
type TestPattern struct {
	devices []Device
}

// NewTestPattern returns a source with the given devices.
func NewTestPattern(devices ...Device) *TestPattern {
	return &TestPattern{devices: devices}
}

// Devices implements Source.
func (p *TestPattern) Devices() []Device { return p.devices }

// Capture implements Source.
func (p *TestPattern) Capture(device Device, sequence uint64) []byte {
	image := make([]byte, device.Width*device.Height)
	shift := int(sequence % 256)
	for y := range device.Height {
		row := image[y*device.Width : (y+1)*device.Width]
		for x := range row {
			// Sixteen-pixel bands keep the image highly compressible.
			row[x] = byte(((x+y+shift)/16)*16) & 0xff
		}
	}
	return image
}
