// Package common contains plain data types and math shared across the engine. They are not
// interface-wrapped; they are the value types every other package speaks.
package common

import (
	"math"

	"github.com/cogentcore/webgpu/wgpu"
)

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
type TextureStagingData struct {
	// Pixels is the RGBA8 pixel data, 4 bytes per pixel, row-major.
	Pixels []byte
	// Width is the texture width in pixels.
	Width uint32
	// Height is the texture height in pixels.
	Height uint32
}

// SamplerStagingData holds the configuration for a sampler pending GPU creation.
// Zero values fall back to linear filtering and repeat addressing.
type SamplerStagingData struct {
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	MagFilter, MinFilter                     wgpu.FilterMode
	MipmapFilter                             wgpu.MipmapFilterMode
	LodMinClamp, LodMaxClamp                 float32
	Compare                                  wgpu.CompareFunction
	MaxAnisotropy                            uint16
}

// Color is a linear RGBA color with components in [0, 1].
type Color [4]float32

// White is opaque white.
var White = Color{1, 1, 1, 1}

// PackABGR packs the color into ABGR8 and reinterprets the bits as a float32 so that a
// whole color fits in one vertex float. Alpha is masked to 0xFE so the packed value is
// never a NaN bit pattern.
func (c Color) PackABGR() float32 {
	r := uint32(clamp01(c[0]) * 255)
	g := uint32(clamp01(c[1]) * 255)
	b := uint32(clamp01(c[2]) * 255)
	a := uint32(clamp01(c[3]) * 255)
	bits := (a << 24) | (b << 16) | (g << 8) | r
	return math.Float32frombits(bits & 0xfeffffff)
}

// UnpackABGR reverses PackABGR. Alpha loses its lowest bit.
func UnpackABGR(packed float32) Color {
	bits := math.Float32bits(packed)
	return Color{
		float32(bits&0xff) / 255,
		float32((bits>>8)&0xff) / 255,
		float32((bits>>16)&0xff) / 255,
		float32((bits>>24)&0xff) / 255,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
