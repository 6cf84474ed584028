package mesh

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/chewxy/math32"
)

// Vertex is one vertex of StandardLayout.
// Size: 32 bytes (position 12 + normal 12 + uv 8), tightly packed.
type Vertex struct {
	Position [3]float32 // offset  0
	Normal   [3]float32 // offset 12
	TexCoord [2]float32 // offset 24
}

// Size returns the size of the Vertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (v *Vertex) Size() int {
	return int(unsafe.Sizeof(*v))
}

// AppendFloats appends the vertex in StandardLayout order to dst.
//
// Parameters:
//   - dst: the vertex stream being built
//
// Returns:
//   - []float32: dst extended by 8 floats
func (v *Vertex) AppendFloats(dst []float32) []float32 {
	dst = append(dst, v.Position[:]...)
	dst = append(dst, v.Normal[:]...)
	return append(dst, v.TexCoord[:]...)
}

// SkinnedVertex is one vertex of SkinnedLayout. Joint indices are stored as floats so the whole
// stream stays float32.
// Size: 64 bytes (32 base + joints 16 + weights 16), tightly packed.
type SkinnedVertex struct {
	Vertex
	Joints  [4]float32 // offset 32
	Weights [4]float32 // offset 48: must sum to 1
}

// Size returns the size of the SkinnedVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (v *SkinnedVertex) Size() int {
	return int(unsafe.Sizeof(*v))
}

// AppendFloats appends the vertex in SkinnedLayout order to dst.
func (v *SkinnedVertex) AppendFloats(dst []float32) []float32 {
	dst = v.Vertex.AppendFloats(dst)
	dst = append(dst, v.Joints[:]...)
	return append(dst, v.Weights[:]...)
}

// GPUInstanceRecord is one record of the instance storage buffer, matching InstanceRecord in the
// model WGSL.
// Size: 80 bytes (mat4x4<f32> 64 + vec4<f32> 16).
type GPUInstanceRecord struct {
	Model common.Mat4 // offset  0: model-to-world transform, column-major
	Color [4]float32  // offset 64: instance tint
}

// Size returns the size of the GPUInstanceRecord struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUInstanceRecord) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUInstanceRecord struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload.
func (g *GPUInstanceRecord) Marshal() []byte {
	buf := make([]byte, 80)
	for i, f := range g.Model {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	for i, f := range g.Color {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(f))
	}
	return buf
}

// put copies the record into a RecordFloats window of a CPU instance buffer.
func (g *GPUInstanceRecord) put(dst []float32) {
	copy(dst[:16], g.Model[:])
	copy(dst[16:RecordFloats], g.Color[:])
}

// ComputeBoundingSphere returns the sphere around the positions of a float vertex stream. The
// position is expected at the start of every vertex. The center is the middle of the AABB and
// the radius is the largest distance from it.
//
// Parameters:
//   - vertices: the vertex stream
//   - stride: floats per vertex
//
// Returns:
//   - [3]float32: the sphere center in model space
//   - float32: the sphere radius
func ComputeBoundingSphere(vertices []float32, stride int) ([3]float32, float32) {
	if stride < 3 || len(vertices) < stride {
		return [3]float32{}, 0
	}
	lo := [3]float32{vertices[0], vertices[1], vertices[2]}
	hi := lo
	for i := 0; i+stride <= len(vertices); i += stride {
		for c := 0; c < 3; c++ {
			lo[c] = min(lo[c], vertices[i+c])
			hi[c] = max(hi[c], vertices[i+c])
		}
	}
	center := [3]float32{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, (lo[2] + hi[2]) / 2}
	var maxDistSq float32
	for i := 0; i+stride <= len(vertices); i += stride {
		dx, dy, dz := vertices[i]-center[0], vertices[i+1]-center[1], vertices[i+2]-center[2]
		maxDistSq = max(maxDistSq, dx*dx+dy*dy+dz*dz)
	}
	return center, math32.Sqrt(maxDistSq)
}
