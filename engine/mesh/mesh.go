// Package mesh holds GPU geometry and the per-primitive instance buffers that feed instanced
// draws.
package mesh

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

var meshCount atomic.Uint64

// StandardLayout is the vertex layout of Vertex: position, normal and uv at locations 0 to 2.
func StandardLayout() wgpu.VertexBufferLayout {
	return shader.Float32Layout(3, 3, 2)
}

// SkinnedLayout is the vertex layout of SkinnedVertex. Joints and weights follow the standard
// attributes at locations 3 and 4.
func SkinnedLayout() wgpu.VertexBufferLayout {
	return shader.Float32Layout(3, 3, 2, 4, 4)
}

// Geometry is the CPU side of a mesh. At most one of Indices16 and Indices32 is set.
type Geometry struct {
	Label     string
	Vertices  []float32
	Indices16 []uint16
	Indices32 []uint32

	// Layout describes Vertices. The zero value means StandardLayout.
	Layout wgpu.VertexBufferLayout
}

// mesh is the implementation of the Mesh interface.
type mesh struct {
	mu          *sync.Mutex
	id          uint64
	label       string
	vertices    []float32
	indices16   []uint16
	indices32   []uint32
	layout      wgpu.VertexBufferLayout
	vertexCount int
	center      [3]float32
	radius      float32
	provider    bind_group_provider.BindGroupProvider
}

// Mesh is uploaded vertex data with optional indices.
type Mesh interface {
	// ID returns the process-unique mesh id.
	ID() uint64

	// Label returns the debug label.
	Label() string

	// Vertices returns the vertex stream. Callers must not modify it.
	Vertices() []float32

	// Layout returns the vertex buffer layout of the stream.
	//
	// Returns:
	//   - wgpu.VertexBufferLayout: stride and attributes
	Layout() wgpu.VertexBufferLayout

	// VertexCount returns the number of vertices.
	VertexCount() int

	// IndexCount returns the number of indices, zero for non-indexed meshes.
	IndexCount() int

	// Indexed reports whether draws should use DrawIndexed.
	Indexed() bool

	// IndexFormat returns Uint16 or Uint32 for indexed meshes, undefined otherwise.
	//
	// Returns:
	//   - wgpu.IndexFormat: the index format
	IndexFormat() wgpu.IndexFormat

	// Bounds returns the local bounding sphere.
	//
	// Returns:
	//   - [3]float32: the center in model space
	//   - float32: the radius
	Bounds() ([3]float32, float32)

	// Provider returns the provider holding the vertex and index buffers.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the mesh buffers
	Provider() bind_group_provider.BindGroupProvider

	// Release frees the GPU buffers.
	Release()
}

var _ Mesh = &mesh{}

// NewMesh validates the geometry and uploads it through Renderer.InitMeshBuffers.
//
// Parameters:
//   - r: the renderer creating the buffers
//   - g: the geometry
//
// Returns:
//   - Mesh: the uploaded mesh
//   - error: an error if the geometry is malformed or the upload failed
func NewMesh(r renderer.Renderer, g Geometry) (Mesh, error) {
	layout := g.Layout
	if layout.ArrayStride == 0 {
		layout = StandardLayout()
	}
	stride := int(layout.ArrayStride / 4)
	if len(g.Vertices) == 0 {
		return nil, errors.New("mesh: geometry has no vertices")
	}
	if len(g.Vertices)%stride != 0 {
		return nil, fmt.Errorf("mesh: %d floats is not a multiple of the %d float stride", len(g.Vertices), stride)
	}
	if len(g.Indices16) > 0 && len(g.Indices32) > 0 {
		return nil, errors.New("mesh: geometry has both 16 and 32 bit indices")
	}

	m := &mesh{
		mu:          &sync.Mutex{},
		id:          meshCount.Add(1),
		label:       common.Coalesce(g.Label, "Mesh"),
		vertices:    g.Vertices,
		indices16:   g.Indices16,
		indices32:   g.Indices32,
		layout:      layout,
		vertexCount: len(g.Vertices) / stride,
	}
	m.center, m.radius = ComputeBoundingSphere(g.Vertices, stride)
	m.provider = bind_group_provider.NewBindGroupProvider(m.label)

	var indexData []byte
	switch {
	case len(g.Indices16) > 0:
		indexData = common.SliceToBytes(g.Indices16)
	case len(g.Indices32) > 0:
		indexData = common.SliceToBytes(g.Indices32)
	}
	if err := r.InitMeshBuffers(m.provider, common.SliceToBytes(g.Vertices), indexData, m.IndexCount()); err != nil {
		m.provider.Release()
		return nil, fmt.Errorf("failed to upload mesh %s: %w", m.label, err)
	}
	return m, nil
}

func (m *mesh) ID() uint64 {
	return m.id
}

func (m *mesh) Label() string {
	return m.label
}

func (m *mesh) Vertices() []float32 {
	return m.vertices
}

func (m *mesh) Layout() wgpu.VertexBufferLayout {
	return m.layout
}

func (m *mesh) VertexCount() int {
	return m.vertexCount
}

func (m *mesh) IndexCount() int {
	return len(m.indices16) + len(m.indices32)
}

func (m *mesh) Indexed() bool {
	return m.IndexCount() > 0
}

func (m *mesh) IndexFormat() wgpu.IndexFormat {
	switch {
	case len(m.indices16) > 0:
		return wgpu.IndexFormatUint16
	case len(m.indices32) > 0:
		return wgpu.IndexFormatUint32
	default:
		return wgpu.IndexFormatUndefined
	}
}

func (m *mesh) Bounds() ([3]float32, float32) {
	return m.center, m.radius
}

func (m *mesh) Provider() bind_group_provider.BindGroupProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}

func (m *mesh) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provider != nil {
		m.provider.Release()
		m.provider = nil
	}
}
