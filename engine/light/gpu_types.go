package light

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// MaxGPULights is the default number of point lights an environment's light buffer holds. The
// CPU-side light list is unbounded; lights past the cap are not uploaded.
const MaxGPULights = 1024

// GPULightSource is the canonical WGSL definition of the Light and GlobalLights structs.
// Matches GPULight (32 bytes) and GPUGlobalLights (48 byte header) exactly.
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPUClusterSource is the canonical WGSL definition of the cluster structs. Array lengths are
// sized by the total_tiles constant which the shader prelude declares.
//
//go:embed assets/cluster.wgsl
var GPUClusterSource string

// GPULight is the GPU-aligned representation of a single point light.
// Matches the WGSL Light struct layout exactly (see GPULightSource).
type GPULight struct {
	Position  [3]float32 // offset  0
	Range     float32    // offset 12: <= 0 affects every cluster
	Color     [3]float32 // offset 16
	Intensity float32    // offset 28
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, 32)
	g.marshalTo(buf)
	return buf
}

func (g *GPULight) marshalTo(buf []byte) {
	putVec3(buf[0:], g.Position)
	putF32(buf[12:], g.Range)
	putVec3(buf[16:], g.Color)
	putF32(buf[28:], g.Intensity)
}

// GPUGlobalLights is the header of the light storage buffer. The point light array follows
// it at offset 48.
//
// Layout:
//
//	vec3<f32> ambient        (offset  0)
//	vec3<f32> dir_color      (offset 16)
//	f32       dir_intensity  (offset 28)
//	vec3<f32> dir_direction  (offset 32)
//	u32       light_count    (offset 44)
type GPUGlobalLights struct {
	Ambient      [3]float32
	_pad0        float32
	DirColor     [3]float32
	DirIntensity float32
	DirDirection [3]float32
	LightCount   uint32
}

// Size returns the size of the header in bytes.
//
// Returns:
//   - int: the header size in bytes (48)
func (h *GPUGlobalLights) Size() int {
	return int(unsafe.Sizeof(*h))
}

// Marshal serializes the header followed by the point lights. LightCount is taken from
// len(lights).
//
// Parameters:
//   - lights: the point lights in index order
//
// Returns:
//   - []byte: header plus 32 bytes per light
func (h *GPUGlobalLights) Marshal(lights []GPULight) []byte {
	buf := make([]byte, h.Size()+len(lights)*32)
	putVec3(buf[0:], h.Ambient)
	putVec3(buf[16:], h.DirColor)
	putF32(buf[28:], h.DirIntensity)
	putVec3(buf[32:], h.DirDirection)
	binary.LittleEndian.PutUint32(buf[44:], uint32(len(lights)))
	for i := range lights {
		lights[i].marshalTo(buf[h.Size()+i*32:])
	}
	return buf
}

// GlobalLightsBufferSize returns the byte size of a light buffer holding maxLights point lights.
func GlobalLightsBufferSize(maxLights int) uint64 {
	return uint64(48 + maxLights*32)
}

// GPUClusterBoundsSize is the stride of one ClusterBounds entry (two vec3 padded to 16).
const GPUClusterBoundsSize = 32

// MarshalClusterBounds serializes bounds in the WGSL Clusters layout.
//
// Parameters:
//   - bounds: one AABB per cluster
//
// Returns:
//   - []byte: 32 bytes per cluster
func MarshalClusterBounds(bounds []ClusterBounds) []byte {
	buf := make([]byte, len(bounds)*GPUClusterBoundsSize)
	for i, b := range bounds {
		off := i * GPUClusterBoundsSize
		putVec3(buf[off:], b.Min)
		putVec3(buf[off+16:], b.Max)
	}
	return buf
}

// ClusterLightsBufferSize returns the byte size of the ClusterLightGroup storage buffer: the
// atomic offset, one (offset, count) pair per cluster and MaxClusteredLights indices.
func ClusterLightsBufferSize(cfg ClusterConfig) uint64 {
	return uint64(4 + cfg.Total()*8 + cfg.MaxClusteredLights()*4)
}

// Marshal serializes the assignment in the WGSL ClusterLightGroup layout, padded to
// ClusterLightsBufferSize.
//
// Parameters:
//   - cfg: the grid the assignment was computed for
//
// Returns:
//   - []byte: the storage buffer contents
func (c *ClusterLights) Marshal(cfg ClusterConfig) []byte {
	buf := make([]byte, ClusterLightsBufferSize(cfg))
	binary.LittleEndian.PutUint32(buf[0:], c.Offset)
	for i, r := range c.Clusters {
		binary.LittleEndian.PutUint32(buf[4+i*8:], r.Offset)
		binary.LittleEndian.PutUint32(buf[8+i*8:], r.Count)
	}
	base := 4 + cfg.Total()*8
	for i, idx := range c.Indices {
		binary.LittleEndian.PutUint32(buf[base+i*4:], idx)
	}
	return buf
}

func putF32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func putVec3(buf []byte, v [3]float32) {
	putF32(buf[0:], v[0])
	putF32(buf[4:], v[1])
	putF32(buf[8:], v[2])
}
