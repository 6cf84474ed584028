package mesh

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testInstance struct {
	x     float32
	color [4]float32
}

func (i *testInstance) GlobalTransform() common.Mat4 {
	m := common.Identity4()
	m[12] = i.x
	return m
}

func (i *testInstance) Color() [4]float32 {
	return i.color
}

func newPrimitive(t *testing.T, r *renderertest.Renderer, opts ...MeshPrimitiveBuilderOption) MeshPrimitive {
	t.Helper()
	m, err := NewMesh(r, CubeGeometry(1))
	require.NoError(t, err)
	p := NewMeshPrimitive(r, m, material.NewUnlitMaterial(nil), opts...)
	t.Cleanup(p.Release)
	return p
}

func TestRemoveKeepsRecordsPacked(t *testing.T) {
	r := renderertest.NewRenderer()
	p := newPrimitive(t, r)
	a, b, c, d := &testInstance{x: 1}, &testInstance{x: 2}, &testInstance{x: 3}, &testInstance{x: 4}

	p.AddInstance(a)
	p.AddInstance(b)
	p.AddInstance(c)
	p.WriteInstanceDataToBuffer()

	p.RemoveInstance(b)
	slot, ok := p.InstanceSlot(c)
	require.True(t, ok)
	assert.Equal(t, 1, slot)
	_, ok = p.InstanceSlot(b)
	assert.False(t, ok)
	assert.Equal(t, float32(3), p.InstanceData()[RecordFloats+12])

	p.AddInstance(d)
	slot, _ = p.InstanceSlot(d)
	assert.Equal(t, 2, slot)
	assert.Equal(t, 3, p.InstanceCount())

	p.WriteInstanceDataToBuffer()
	data := p.InstanceData()
	require.Len(t, data, 3*RecordFloats)
	assert.Equal(t, []float32{1, 3, 4}, []float32{data[12], data[RecordFloats+12], data[2*RecordFloats+12]})
}

func TestWriteWithNothingDirtySkipsUpload(t *testing.T) {
	r := renderertest.NewRenderer()
	p := newPrimitive(t, r, WithInstanceSize(0))
	p.AddInstance(&testInstance{color: [4]float32{1, 0, 0, 1}})

	p.WriteInstanceDataToBuffer()
	require.Equal(t, 1, r.WriteCalls)
	writes := r.WritesTo(p.InstanceBuffers(), material.InstanceRecordBinding)
	require.Len(t, writes, 1)
	assert.Len(t, writes[0].Data, material.InstanceRecordSize)
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(writes[0].Data[64:])))

	p.WriteInstanceDataToBuffer()
	assert.Equal(t, 1, r.WriteCalls)
}

func TestInstanceDirtyIsIdempotent(t *testing.T) {
	r := renderertest.NewRenderer()
	p := newPrimitive(t, r)
	inst := &testInstance{}
	p.AddInstance(inst)
	p.WriteInstanceDataToBuffer()

	inst.x = 7
	p.InstanceDirty(inst)
	p.InstanceDirty(inst)
	p.InstanceDirty(&testInstance{})
	p.WriteInstanceDataToBuffer()

	assert.Equal(t, 2, r.WriteCalls)
	assert.Equal(t, float32(7), p.InstanceData()[12])
}

func TestCapacityDoublesAndRecreatesBuffers(t *testing.T) {
	r := renderertest.NewRenderer()
	p := newPrimitive(t, r, WithInstanceSize(0))
	assert.Equal(t, 1, p.Capacity())

	p.AddInstance(&testInstance{})
	p.WriteInstanceDataToBuffer()
	assert.Equal(t, uint64(material.InstanceRecordSize), p.InstanceBuffers().BufferSize(material.InstanceRecordBinding))

	p.AddInstance(&testInstance{})
	assert.Equal(t, 2, p.Capacity())
	p.AddInstance(&testInstance{})
	assert.Equal(t, 4, p.Capacity())

	p.WriteInstanceDataToBuffer()
	assert.Equal(t, uint64(4*material.InstanceRecordSize), p.InstanceBuffers().BufferSize(material.InstanceRecordBinding))
	assert.Equal(t, uint64(4*4), p.InstanceBuffers().BufferSize(material.InstanceVisibleBinding))
	assert.Equal(t, 2, r.WriteCalls)
}

func TestInstanceOwnershipIsExclusive(t *testing.T) {
	r := renderertest.NewRenderer()
	p := newPrimitive(t, r)
	q := newPrimitive(t, r)
	inst := &testInstance{}

	p.AddInstance(inst)
	p.AddInstance(inst)
	q.AddInstance(inst)
	assert.Equal(t, 1, p.InstanceCount())
	assert.Zero(t, q.InstanceCount())

	p.RemoveInstance(inst)
	q.AddInstance(inst)
	assert.Equal(t, 1, q.InstanceCount())

	q.ClearInstances()
	p.AddInstance(inst)
	assert.Equal(t, 1, p.InstanceCount())
}

func TestVisibilityUploadsSortedSlots(t *testing.T) {
	r := renderertest.NewRenderer()
	p := newPrimitive(t, r)
	a, b, c := &testInstance{}, &testInstance{}, &testInstance{}
	p.AddInstance(a)
	p.AddInstance(b)
	p.AddInstance(c)

	p.MarkVisible(c)
	p.MarkVisible(a)
	p.MarkVisible(a)
	assert.Equal(t, 2, p.VisibleInstanceCount())

	p.WriteVisibilityToBuffer()
	writes := r.WritesTo(p.InstanceBuffers(), material.InstanceVisibleBinding)
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0, 0, 0, 0, 2, 0, 0, 0}, writes[0].Data)

	p.RemoveInstance(c)
	assert.Equal(t, 1, p.VisibleInstanceCount())
	p.ResetVisibility()
	assert.Zero(t, p.VisibleInstanceCount())
	p.MarkAllVisible()
	assert.Equal(t, 2, p.VisibleInstanceCount())
}

func TestStripTopologyNeedsIndexFormat(t *testing.T) {
	r := renderertest.NewRenderer()
	m, err := NewMesh(r, PlaneGeometry(1))
	require.NoError(t, err)

	assert.PanicsWithValue(t, ErrStripIndexFormat, func() {
		NewMeshPrimitive(r, m, material.NewUnlitMaterial(nil), WithTopology(wgpu.PrimitiveTopologyTriangleStrip))
	})
	p := NewMeshPrimitive(r, m, material.NewUnlitMaterial(nil),
		WithTopology(wgpu.PrimitiveTopologyTriangleStrip),
		WithStripIndexFormat(wgpu.IndexFormatUint16),
	)
	assert.Equal(t, wgpu.IndexFormatUint16, p.StripIndexFormat())
}

func TestNewMeshUploadsGeometry(t *testing.T) {
	r := renderertest.NewRenderer()
	m, err := NewMesh(r, CubeGeometry(2))
	require.NoError(t, err)
	assert.Equal(t, 1, r.MeshBufferInits)
	assert.Equal(t, 24, m.VertexCount())
	assert.Equal(t, 36, m.IndexCount())
	assert.Equal(t, 36, m.Provider().IndexCount())
	assert.Equal(t, wgpu.IndexFormatUint16, m.IndexFormat())

	center, radius := m.Bounds()
	assert.Equal(t, [3]float32{}, center)
	assert.InDelta(t, math.Sqrt(3), radius, 1e-5)

	_, err = NewMesh(r, Geometry{})
	assert.Error(t, err)
	_, err = NewMesh(r, Geometry{Vertices: make([]float32, 7)})
	assert.Error(t, err)
	_, err = NewMesh(r, Geometry{Vertices: make([]float32, 8), Indices16: []uint16{0}, Indices32: []uint32{0}})
	assert.Error(t, err)

	flat, err := NewMesh(r, Geometry{Vertices: make([]float32, 24)})
	require.NoError(t, err)
	assert.False(t, flat.Indexed())
	assert.Equal(t, 3, flat.VertexCount())
}

func TestSkinUploadsOnlyWhenChanged(t *testing.T) {
	r := renderertest.NewRenderer()
	s, err := NewSkin(r, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3*64), s.BindGroup().BufferSize(material.SkinJointBinding))

	s.WriteToBuffer()
	s.WriteToBuffer()
	require.Equal(t, 1, r.WriteCalls)

	m := common.Identity4()
	m[12] = 5
	s.SetJoint(1, m)
	s.SetJoint(9, m)
	s.WriteToBuffer()
	writes := r.WritesTo(s.BindGroup(), material.SkinJointBinding)
	require.Len(t, writes, 2)
	assert.Len(t, writes[1].Data, 3*64)
	assert.Equal(t, m, s.Joints()[1])

	_, err = NewSkin(r, 0)
	assert.Error(t, err)
}

func TestSkeletonJointsChainParents(t *testing.T) {
	identity := Transform{Rotation: common.QuatIdentity(), Scale: [3]float32{1, 1, 1}}
	bind := common.Identity4()
	bind[13] = -1 // the child bone sits one unit up at bind pose
	sk := NewSkeleton([]Bone{
		{Name: "root", Parent: -1, InverseBind: common.Identity4(), Local: identity},
		{Name: "arm", Parent: 0, InverseBind: bind, Local: Transform{Translation: [3]float32{0, 1, 0}, Rotation: common.QuatIdentity(), Scale: [3]float32{1, 1, 1}}},
	})

	joints := sk.JointMatrices()
	require.Len(t, joints, 2)
	assert.Equal(t, common.Identity4(), joints[1])

	moved := identity
	moved.Translation = [3]float32{2, 0, 0}
	assert.True(t, sk.SetLocal("root", moved))
	assert.False(t, sk.SetLocal("leg", moved))
	joints = sk.JointMatrices()
	assert.Equal(t, [3]float32{2, 0, 0}, joints[1].Translation())

	r := renderertest.NewRenderer()
	s, err := NewSkin(r, 2)
	require.NoError(t, err)
	s.Pose(sk)
	assert.Equal(t, joints, s.Joints())
}
