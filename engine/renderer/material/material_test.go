package material

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/environment"
	"github.com/Carmen-Shannon/oxy-core/engine/light"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meshLayout = shader.Float32Layout(3, 3, 2)

func pbrEnvironment(t *testing.T, r *renderertest.Renderer) *environment.PBREnvironment {
	t.Helper()
	cfg := light.DefaultClusterConfig()
	cfg.TilesX, cfg.TilesY, cfg.TilesZ = 2, 2, 2
	env, err := environment.NewPBREnvironment(r, environment.WithClusterConfig(cfg), environment.WithCPUClusters(true))
	require.NoError(t, err)
	return env
}

func f32At(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func TestUnlitMaterialUploadsOnlyWhenDirty(t *testing.T) {
	r := renderertest.NewRenderer()
	m := NewUnlitMaterial(nil, WithBaseColor(common.Color{1, 0, 0, 1}), WithAlphaCutoff(0.5))
	assert.False(t, m.Ready())
	assert.Nil(t, m.BindGroup())

	m.Update()
	assert.Zero(t, r.WriteCalls)

	require.NoError(t, m.Prepare(r))
	require.NoError(t, m.Prepare(r))
	assert.True(t, m.Ready())
	assert.Equal(t, 1, r.TextureViews, "a white fallback replaces the missing texture")
	assert.Equal(t, uint64(32), m.BindGroup().BufferSize(0))

	m.Update()
	m.Update()
	writes := r.WritesTo(m.BindGroup(), 0)
	require.Len(t, writes, 1)
	assert.Equal(t, float32(1), f32At(writes[0].Data, 0))
	assert.Equal(t, float32(0.5), f32At(writes[0].Data, 16))

	m.SetBaseColor(common.Color{1, 0, 0, 1})
	m.Update()
	assert.Len(t, r.WritesTo(m.BindGroup(), 0), 1)

	m.SetBaseColor(common.Color{0, 1, 0, 1})
	m.Update()
	assert.Len(t, r.WritesTo(m.BindGroup(), 0), 2)

	m.Release()
	assert.False(t, m.Ready())
	assert.NotPanics(t, m.Release)
}

func TestPBRMaterialParamsLayout(t *testing.T) {
	r := renderertest.NewRenderer()
	params := DefaultPBRParams()
	params.Metallic = 0.25
	params.Emissive = [3]float32{1, 2, 3}
	m := NewPBRMaterial(params, PBRTextures{}, WithAlphaCutoff(0.1))
	require.NoError(t, m.Prepare(r))
	assert.Equal(t, 5, r.TextureViews)
	assert.Equal(t, KindPBR, m.Kind())

	m.Update()
	writes := r.WritesTo(m.BindGroup(), 0)
	require.Len(t, writes, 1)
	data := writes[0].Data
	require.Len(t, data, 48)
	assert.Equal(t, float32(0.25), f32At(data, 16))
	assert.Equal(t, float32(1), f32At(data, 20))
	assert.Equal(t, float32(1), f32At(data, 24))
	assert.Equal(t, float32(1), f32At(data, 32))
	assert.Equal(t, float32(3), f32At(data, 40))
	assert.Equal(t, float32(0.1), f32At(data, 44))

	params.Roughness = 0.5
	m.SetParams(params)
	m.Update()
	assert.Len(t, r.WritesTo(m.BindGroup(), 0), 2)
	assert.Equal(t, 11, len(m.Layout().Entries))
}

func TestMaterialIDsAreUnique(t *testing.T) {
	a := NewUnlitMaterial(nil)
	b := NewPBRMaterial(DefaultPBRParams(), PBRTextures{})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.True(t, a.DepthWrite())
	assert.Equal(t, wgpu.CompareFunctionLess, a.DepthCompare())
	assert.True(t, b.CastShadows())
}

func TestProviderCachesByKey(t *testing.T) {
	r := renderertest.NewRenderer()
	env, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)
	other, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)
	p := NewUnlitProvider()

	a := NewUnlitMaterial(nil)
	b := NewUnlitMaterial(nil)
	get := func(m Material, e environment.Environment) *MaterialPipeline {
		mp, err := p.GetMaterialPipeline(r, m, e, meshLayout, wgpu.PrimitiveTopologyTriangleList, wgpu.IndexFormatUndefined, wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatDepth24PlusStencil8)
		require.NoError(t, err)
		return mp
	}

	first := get(a, env)
	assert.Same(t, first, get(b, env), "materials with equal state share a pipeline")
	assert.Equal(t, 1, r.Registrations)
	assert.Equal(t, RenderOrderDefault, first.RenderOrder)
	assert.False(t, first.Pipeline.BlendEnabled())
	assert.Equal(t, wgpu.CullModeBack, first.Pipeline.CullMode())
	assert.Contains(t, first.Layouts, MaterialGroup)
	assert.Contains(t, first.Layouts, InstanceGroup)
	assert.NotContains(t, first.Layouts, SkinGroup)

	assert.NotSame(t, first, get(a, other))

	transparent := get(NewUnlitMaterial(nil, WithTransparent(true), WithDoubleSided(true)), env)
	assert.Equal(t, RenderOrderTransparent, transparent.RenderOrder)
	assert.True(t, transparent.Pipeline.BlendEnabled())
	assert.Equal(t, wgpu.CullModeNone, transparent.Pipeline.CullMode())

	skinned := get(NewUnlitMaterial(nil, WithSkinned(true)), env)
	assert.Contains(t, skinned.Layouts, SkinGroup)
	assert.Contains(t, skinned.Pipeline.Shader(shader.ShaderTypeVertex).Source(), "joints")

	assert.Equal(t, 4, p.Len())
	p.Release()
	assert.Zero(t, p.Len())
}

func TestProviderRejectsMismatchedKinds(t *testing.T) {
	r := renderertest.NewRenderer()
	unlitEnv, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)

	_, err = NewUnlitProvider().GetMaterialPipeline(r, NewPBRMaterial(DefaultPBRParams(), PBRTextures{}), unlitEnv, meshLayout, wgpu.PrimitiveTopologyTriangleList, wgpu.IndexFormatUndefined, wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatDepth24PlusStencil8)
	assert.Error(t, err)

	_, err = NewPBRProvider().GetMaterialPipeline(r, NewPBRMaterial(DefaultPBRParams(), PBRTextures{}), unlitEnv, meshLayout, wgpu.PrimitiveTopologyTriangleList, wgpu.IndexFormatUndefined, wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatDepth24PlusStencil8)
	assert.Error(t, err)
	assert.Zero(t, r.Registrations)
}

func TestProviderSurfacesRegistrationErrors(t *testing.T) {
	r := renderertest.NewRenderer()
	env, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)
	boom := errors.New("device lost")
	r.RegisterFn = func(pipeline.Pipeline) error { return boom }

	p := NewUnlitProvider()
	_, err = p.GetMaterialPipeline(r, NewUnlitMaterial(nil), env, meshLayout, wgpu.PrimitiveTopologyTriangleList, wgpu.IndexFormatUndefined, wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatDepth24PlusStencil8)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.Len())
}

func TestDepthProviderBuildsDepthOnlyPipelines(t *testing.T) {
	r := renderertest.NewRenderer()
	env, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)
	p := NewDepthProvider(KindPBR, WithDepthBias(light.DefaultShadowDepthBias, light.DefaultShadowSlopeScale), WithSampleCount(1))
	assert.True(t, p.DepthOnly())

	mp, err := p.GetMaterialPipeline(r, NewPBRMaterial(DefaultPBRParams(), PBRTextures{}), env, meshLayout, wgpu.PrimitiveTopologyTriangleList, wgpu.IndexFormatUndefined, wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatDepth32Float)
	require.NoError(t, err)
	assert.True(t, mp.DepthOnly)
	assert.True(t, mp.Pipeline.DepthOnly())
	assert.Nil(t, mp.Pipeline.Shader(shader.ShaderTypeFragment))
	assert.Equal(t, light.DefaultShadowDepthBias, mp.Pipeline.DepthBias())
	assert.Equal(t, uint32(1), mp.Pipeline.SampleCount())
	assert.Equal(t, wgpu.TextureFormatUndefined, mp.Key.ColorFormat)
	assert.NotContains(t, mp.Layouts, MaterialGroup)
}

func TestSortPipelinesByOrderThenEnvironment(t *testing.T) {
	r := renderertest.NewRenderer()
	e1, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)
	e2, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)

	a := &MaterialPipeline{Environment: e2, RenderOrder: RenderOrderTransparent}
	b := &MaterialPipeline{Environment: e2}
	c := &MaterialPipeline{Environment: e1}
	pipelines := []*MaterialPipeline{a, b, c}
	SortPipelines(pipelines)
	assert.Equal(t, []*MaterialPipeline{c, b, a}, pipelines)
}

func TestModelSourcesCompile(t *testing.T) {
	r := renderertest.NewRenderer()
	unlitEnv, err := environment.NewUnlitEnvironment(r)
	require.NoError(t, err)
	pbrEnv := pbrEnvironment(t, r)

	sources := []string{
		ModelSource(unlitEnv, false, GPUUnlitParamsSource, unlitFragmentSource),
		ModelSource(unlitEnv, true, GPUUnlitParamsSource, unlitFragmentSource),
		ModelSource(pbrEnv, false, GPUPBRParamsSource, pbrFragmentSource),
		ModelSource(pbrEnv, false),
	}
	for _, s := range sources {
		if err := shader.Validate(s); err != nil {
			t.Skipf("naga cannot compile the model shaders: %v", err)
		}
	}
}
