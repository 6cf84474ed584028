package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/environment"
	"github.com/Carmen-Shannon/oxy-core/engine/mesh"
	"github.com/Carmen-Shannon/oxy-core/engine/node3d"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	r     *renderertest.Renderer
	env   *environment.UnlitEnvironment
	cam   camera.Camera
	stats *profiler.Stats
	batch ModelBatch
	cube  mesh.Mesh
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := renderertest.NewRenderer()
	env, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)
	cube, err := mesh.NewMesh(r, mesh.CubeGeometry(1))
	require.NoError(t, err)
	stats := profiler.NewStats()
	b := NewModelBatch(r, WithStats(stats))
	require.NoError(t, b.AddPipelineProvider(material.KindUnlit, material.NewUnlitProvider()))
	t.Cleanup(b.Release)
	return &fixture{
		r:     r,
		env:   env,
		cam:   camera.NewCamera(camera.WithPosition([3]float32{0, 0, 5}), camera.WithViewport(800, 600)),
		stats: stats,
		batch: b,
		cube:  cube,
	}
}

type instance struct{ x float32 }

func (i *instance) GlobalTransform() common.Mat4 {
	m := common.Identity4()
	m[12] = i.x
	return m
}

func (i *instance) Color() [4]float32 {
	return [4]float32{1, 1, 1, 1}
}

func (f *fixture) primitive(t *testing.T, mat material.Material, instances int) mesh.MeshPrimitive {
	t.Helper()
	p := mesh.NewMeshPrimitive(f.r, f.cube, mat)
	for i := range instances {
		p.AddInstance(&instance{x: float32(i)})
	}
	t.Cleanup(p.Release)
	return p
}

func countGroup(sets []uint32, group uint32) int {
	n := 0
	for _, g := range sets {
		if g == group {
			n++
		}
	}
	return n
}

func TestAddPipelineProviderRejectsDuplicateKind(t *testing.T) {
	f := newFixture(t)
	err := f.batch.AddPipelineProvider(material.KindUnlit, material.NewUnlitProvider())
	assert.ErrorIs(t, err, material.ErrProviderRegistered)

	assert.NotNil(t, f.batch.RemovePipelineProvider(material.KindUnlit))
	assert.Nil(t, f.batch.RemovePipelineProvider(material.KindUnlit))
	assert.NoError(t, f.batch.AddPipelineProvider(material.KindUnlit, material.NewUnlitProvider()))
}

func TestRenderWithoutProviderPanics(t *testing.T) {
	f := newFixture(t)
	prim := f.primitive(t, material.NewPBRMaterial(material.DefaultPBRParams(), material.PBRTextures{}), 1)

	err := f.batch.PreparePipeline(prim, f.env)
	assert.ErrorIs(t, err, material.ErrPipelineNotFound)

	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		recErr, ok := rec.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(recErr, material.ErrPipelineNotFound))
	}()
	f.batch.Render(prim, f.env)
}

func TestFlushDrawsVisibleInstancesOnce(t *testing.T) {
	f := newFixture(t)
	mat := material.NewUnlitMaterial(nil)
	a := f.primitive(t, mat, 3)
	b := f.primitive(t, mat, 2)

	f.batch.Render(a, f.env)
	f.batch.Render(a, f.env)
	f.batch.Render(b, f.env)
	writesBefore := len(f.r.WritesTo(f.env.BindGroup(), 0))
	f.batch.Flush(f.r.MainPass, f.cam, time.Millisecond)

	pass := f.r.MainPass
	require.Len(t, pass.Draws, 2)
	assert.Equal(t, uint32(3), pass.Draws[0].InstanceCount)
	assert.Equal(t, uint32(36), pass.Draws[0].Count)
	assert.True(t, pass.Draws[0].Indexed)
	assert.Equal(t, uint32(2), pass.Draws[1].InstanceCount)
	assert.Len(t, pass.PipelineSets, 1)
	assert.Equal(t, 1, countGroup(pass.BindGroupSets, material.EnvironmentGroup))
	assert.Equal(t, 1, countGroup(pass.BindGroupSets, material.MaterialGroup), "consecutive primitives share the material")
	assert.Equal(t, 2, countGroup(pass.BindGroupSets, material.InstanceGroup))
	assert.Same(t, a.InstanceBuffers(), pass.Draws[0].BindGroups[material.InstanceGroup])
	assert.Len(t, f.r.WritesTo(f.env.BindGroup(), 0), writesBefore+1, "the environment is updated once per flush")

	assert.Equal(t, 2, f.stats.Get(DrawCallsStat))
	assert.Equal(t, 3, f.stats.Get(InstancedStat))
	assert.Zero(t, a.VisibleInstanceCount())
	assert.Zero(t, b.VisibleInstanceCount())

	pass.Reset()
	f.batch.Flush(pass, f.cam, time.Millisecond)
	assert.Empty(t, pass.Draws, "the queue is cleared by flush")
}

func TestPrimitiveWithoutInstancesIsNotDrawn(t *testing.T) {
	f := newFixture(t)
	prim := f.primitive(t, material.NewUnlitMaterial(nil), 0)
	f.batch.Render(prim, f.env)
	f.batch.Flush(f.r.MainPass, f.cam, 0)
	assert.Empty(t, f.r.MainPass.Draws)
	assert.Zero(t, f.stats.Get(DrawCallsStat))
}

func TestMaterialThatCannotPrepareIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.r.BindGroupFn = func(p bind_group_provider.BindGroupProvider) error {
		if strings.HasPrefix(p.Label(), "Unlit Material") {
			return errors.New("out of memory")
		}
		return nil
	}
	broken := material.NewUnlitMaterial(nil)
	prim := f.primitive(t, broken, 1)

	assert.NotPanics(t, func() { f.batch.Render(prim, f.env) })
	f.batch.Flush(f.r.MainPass, f.cam, 0)
	assert.Empty(t, f.r.MainPass.Draws)
	assert.False(t, broken.Ready())

	f.r.BindGroupFn = nil
	f.batch.Render(prim, f.env)
	f.batch.Flush(f.r.MainPass, f.cam, 0)
	assert.Len(t, f.r.MainPass.Draws, 1)
	assert.True(t, broken.Ready())
}

func TestTransparentPipelinesDrawLast(t *testing.T) {
	f := newFixture(t)
	glass := f.primitive(t, material.NewUnlitMaterial(nil, material.WithTransparent(true)), 1)
	solid := f.primitive(t, material.NewUnlitMaterial(nil), 1)

	f.batch.Render(glass, f.env)
	f.batch.Render(solid, f.env)
	f.batch.Flush(f.r.MainPass, f.cam, 0)

	draws := f.r.MainPass.Draws
	require.Len(t, draws, 2)
	assert.Same(t, solid.InstanceBuffers(), draws[0].BindGroups[material.InstanceGroup])
	assert.Same(t, glass.InstanceBuffers(), draws[1].BindGroups[material.InstanceGroup])
	assert.NotEqual(t, draws[0].Pipeline, draws[1].Pipeline)
}

func TestRenderNodeCulledDrawsOnlyVisibleNodes(t *testing.T) {
	f := newFixture(t)
	prim := mesh.NewMeshPrimitive(f.r, f.cube, material.NewUnlitMaterial(nil))
	t.Cleanup(prim.Release)

	tree := node3d.NewTree()
	root := tree.Create("root")
	for _, x := range []float32{0, 1, 500} {
		h := tree.Create("cube")
		tree.SetParent(h, root)
		tree.SetPosition(h, [3]float32{x, 0, 0})
		tree.SetFrustumCulled(h, true)
		tree.AttachInstance(h, prim)
	}
	require.NoError(t, f.batch.PrepareNode(tree, root, f.env))
	assert.Zero(t, prim.VisibleInstanceCount())

	f.batch.RenderNodeCulled(tree, root, f.cam, f.env)
	f.batch.Flush(f.r.MainPass, f.cam, 0)
	require.Len(t, f.r.MainPass.Draws, 1)
	assert.Equal(t, uint32(2), f.r.MainPass.Draws[0].InstanceCount)

	f.r.MainPass.Reset()
	f.batch.RenderNode(tree, root, f.env)
	f.batch.Flush(f.r.MainPass, f.cam, 0)
	require.Len(t, f.r.MainPass.Draws, 1)
	assert.Equal(t, uint32(3), f.r.MainPass.Draws[0].InstanceCount)
}

func TestPrepareNodeLeavesNoInstanceVisible(t *testing.T) {
	f := newFixture(t)
	prim := mesh.NewMeshPrimitive(f.r, f.cube, material.NewUnlitMaterial(nil))
	t.Cleanup(prim.Release)

	tree := node3d.NewTree()
	root := tree.Create("root")
	for range 3 {
		h := tree.Create("cube")
		tree.SetParent(h, root)
		tree.AttachInstance(h, prim)
	}
	require.NoError(t, f.batch.PrepareNode(tree, root, f.env))
	assert.Zero(t, prim.VisibleInstanceCount())
}

func TestSamePrimitiveWithTwoMaterialsDrawsTwice(t *testing.T) {
	f := newFixture(t)
	red := material.NewUnlitMaterial(nil)
	blue := material.NewUnlitMaterial(nil)
	prim := f.primitive(t, red, 2)

	f.batch.RenderWithMaterial(prim, red, f.env)
	f.batch.RenderWithMaterial(prim, blue, f.env)
	f.batch.RenderWithMaterial(prim, blue, f.env)
	f.batch.Flush(f.r.MainPass, f.cam, 0)

	pass := f.r.MainPass
	require.Len(t, pass.Draws, 2)
	assert.Equal(t, pass.Draws[0].Pipeline, pass.Draws[1].Pipeline)
	assert.Equal(t, uint32(2), pass.Draws[0].InstanceCount)
	assert.Equal(t, uint32(2), pass.Draws[1].InstanceCount, "visibility survives until every draw of the flush")
	assert.Equal(t, 2, countGroup(pass.BindGroupSets, material.MaterialGroup))
	assert.Zero(t, prim.VisibleInstanceCount())
}

func TestSkinnedPrimitiveBindsItsSkin(t *testing.T) {
	f := newFixture(t)
	skin, err := mesh.NewSkin(f.r, 2)
	require.NoError(t, err)
	t.Cleanup(skin.Release)
	skinnedCube, err := mesh.NewMesh(f.r, mesh.Geometry{Vertices: make([]float32, 3*16), Layout: mesh.SkinnedLayout()})
	require.NoError(t, err)
	prim := mesh.NewMeshPrimitive(f.r, skinnedCube, material.NewUnlitMaterial(nil, material.WithSkinned(true)), mesh.WithSkin(skin))
	t.Cleanup(prim.Release)
	prim.AddInstance(&instance{})

	f.batch.Render(prim, f.env)
	f.batch.Flush(f.r.MainPass, f.cam, 0)
	draws := f.r.MainPass.Draws
	require.Len(t, draws, 1)
	assert.False(t, draws[0].Indexed)
	assert.Equal(t, uint32(3), draws[0].Count)
	assert.Same(t, skin.BindGroup(), draws[0].BindGroups[material.SkinGroup])
	assert.Len(t, f.r.WritesTo(skin.BindGroup(), material.SkinJointBinding), 1)
}

func TestDefaultFormatsFollowSurface(t *testing.T) {
	r := renderertest.NewRenderer()
	b := NewModelBatch(r)
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, b.ColorFormat())
	assert.Equal(t, wgpu.TextureFormatDepth24PlusStencil8, b.DepthFormat())

	b = NewModelBatch(r, WithColorFormat(wgpu.TextureFormatRGBA16Float), WithDepthFormat(wgpu.TextureFormatDepth32Float))
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, b.ColorFormat())
	assert.Equal(t, wgpu.TextureFormatDepth32Float, b.DepthFormat())
}

func TestShadowBatchDrawsCastersWithoutMaterials(t *testing.T) {
	f := newFixture(t)
	shadow := NewShadowModelBatch(f.r, WithStats(f.stats))
	t.Cleanup(shadow.Release)
	assert.Equal(t, wgpu.TextureFormatUndefined, shadow.ColorFormat())
	assert.Equal(t, wgpu.TextureFormatDepth32Float, shadow.DepthFormat())
	assert.ErrorIs(t, shadow.AddPipelineProvider(material.KindPBR, material.NewPBRProvider()), material.ErrProviderRegistered)

	caster := material.NewUnlitMaterial(nil)
	ghost := material.NewUnlitMaterial(nil, material.WithCastShadows(false))
	a := f.primitive(t, caster, 2)
	b := f.primitive(t, ghost, 1)

	shadow.Render(a, f.env)
	shadow.Render(b, f.env)
	shadow.Flush(f.r.DepthPass, f.cam, 0)

	draws := f.r.DepthPass.Draws
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(2), draws[0].InstanceCount)
	assert.Zero(t, countGroup(f.r.DepthPass.BindGroupSets, material.MaterialGroup))
	assert.False(t, caster.Ready(), "depth-only pipelines never read the material")
	assert.True(t, strings.HasPrefix(draws[0].Pipeline, "depth_"))
}
