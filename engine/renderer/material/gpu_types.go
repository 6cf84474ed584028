package material

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUUnlitParamsSource is the canonical WGSL definition of the UnlitParams struct.
// Matches GPUUnlitParams layout exactly (32 bytes).
//
//go:embed assets/unlit_params.wgsl
var GPUUnlitParamsSource string

// GPUUnlitParams is the uniform of an unlit material.
// Size: 32 bytes (vec4 + f32 + 3 x f32 padding).
type GPUUnlitParams struct {
	BaseColor   [4]float32 // offset 0
	AlphaCutoff float32    // offset 16
	_           [3]float32 // offset 20: padding to 32
}

// Size returns the size of the GPUUnlitParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUUnlitParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUUnlitParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUUnlitParams) Marshal() []byte {
	buf := make([]byte, 32)
	putVec(buf, 0, g.BaseColor[:])
	putF32(buf, 16, g.AlphaCutoff)
	return buf
}

// GPUPBRParamsSource is the canonical WGSL definition of the PBRParams struct.
// Matches GPUPBRParams layout exactly (48 bytes).
//
//go:embed assets/pbr_params.wgsl
var GPUPBRParamsSource string

// GPUPBRParams is the uniform of a PBR material, twelve floats in total.
// Size: 48 bytes.
type GPUPBRParams struct {
	BaseColor         [4]float32 // offset 0
	Metallic          float32    // offset 16
	Roughness         float32    // offset 20
	OcclusionStrength float32    // offset 24
	_                 float32    // offset 28: padding, emissive is a vec3 aligned to 16
	Emissive          [3]float32 // offset 32
	AlphaCutoff       float32    // offset 44
}

// Size returns the size of the GPUPBRParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUPBRParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPBRParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUPBRParams) Marshal() []byte {
	buf := make([]byte, 48)
	putVec(buf, 0, g.BaseColor[:])
	putF32(buf, 16, g.Metallic)
	putF32(buf, 20, g.Roughness)
	putF32(buf, 24, g.OcclusionStrength)
	putVec(buf, 32, g.Emissive[:])
	putF32(buf, 44, g.AlphaCutoff)
	return buf
}

func putF32(buf []byte, offset int, v float32) {
	binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(v))
}

func putVec(buf []byte, offset int, v []float32) {
	for i, c := range v {
		putF32(buf, offset+i*4, c)
	}
}
