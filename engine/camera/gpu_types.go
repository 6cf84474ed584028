package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-core/common"
)

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (224 bytes).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniformSize is the byte size of GPUCameraUniform.
const GPUCameraUniformSize = 224

// GPUCameraUniform is the GPU-aligned representation of the camera uniform buffer.
// Matches the WGSL CameraUniform struct layout exactly (see GPUCameraUniformSource).
type GPUCameraUniform struct {
	ViewProj          common.Mat4 // offset   0
	View              common.Mat4 // offset  64
	InverseProjection common.Mat4 // offset 128
	CameraPosition    [3]float32  // offset 192
	Near              float32     // offset 204
	Viewport          [2]float32  // offset 208
	Far               float32     // offset 216
	_pad              float32     // offset 220
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (224)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	for i := range 16 {
		put(i*4, g.ViewProj[i])
		put(64+i*4, g.View[i])
		put(128+i*4, g.InverseProjection[i])
	}
	for i := range 3 {
		put(192+i*4, g.CameraPosition[i])
	}
	put(204, g.Near)
	put(208, g.Viewport[0])
	put(212, g.Viewport[1])
	put(216, g.Far)
	return buf
}
