package batch

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTexture(t *testing.T, r *renderertest.Renderer, w, h uint32) texture.Texture {
	t.Helper()
	tex, err := texture.NewTexture(r, common.TextureStagingData{Pixels: make([]byte, w*h*4), Width: w, Height: h})
	require.NoError(t, err)
	return tex
}

func newFrame(t *testing.T) (*renderertest.Renderer, *profiler.Stats) {
	t.Helper()
	r := renderertest.NewRenderer()
	require.NoError(t, r.BeginFrame())
	return r, profiler.NewStats()
}

func newSpriteBatch(t *testing.T, r *renderertest.Renderer, opts ...BatchBuilderOption) *spriteBatch {
	t.Helper()
	b, err := NewSpriteBatch(r, opts...)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b.(*spriteBatch)
}

func newArrayBatch(t *testing.T, r *renderertest.Renderer, opts ...BatchBuilderOption) *textureArraySpriteBatch {
	t.Helper()
	b, err := NewTextureArraySpriteBatch(r, opts...)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b.(*textureArraySpriteBatch)
}

// vertex returns vertex i of the queued data.
func vertex(c *core, i int) []float32 {
	return c.vertices[i*c.vertexSize : (i+1)*c.vertexSize]
}

func TestTextureChangeFlushes(t *testing.T) {
	r, stats := newFrame(t)
	b := newSpriteBatch(t, r, WithStats(stats))
	t1, t2 := newTexture(t, r, 4, 4), newTexture(t, r, 4, 4)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(t1, 0, 0, DrawOptions{}))
	require.NoError(t, b.Draw(t2, 0, 0, DrawOptions{}))
	require.NoError(t, b.Draw(t1, 0, 0, DrawOptions{}))
	require.NoError(t, b.End())

	draws := r.MainPass.Draws
	require.Len(t, draws, 3)
	for _, d := range draws {
		assert.True(t, d.Indexed)
		assert.Equal(t, uint32(6), d.Count)
	}
	assert.Equal(t, t1.Provider(), draws[0].BindGroups[TextureGroup])
	assert.Equal(t, t2.Provider(), draws[1].BindGroups[TextureGroup])
	assert.Equal(t, 3, b.RenderCalls())
	assert.Equal(t, 3, stats.Get(RenderCallsStat))
	assert.Equal(t, 3, stats.Get(SpritesStat))
	assert.Equal(t, 1, r.Registrations)
}

func TestFullBufferFlushes(t *testing.T) {
	r, stats := newFrame(t)
	b := newSpriteBatch(t, r, WithSize(2), WithStats(stats))
	tex := newTexture(t, r, 4, 4)

	require.NoError(t, b.Begin(nil))
	for range 3 {
		require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	}
	require.NoError(t, b.End())

	draws := r.MainPass.Draws
	require.Len(t, draws, 2)
	assert.Equal(t, uint32(12), draws[0].Count)
	assert.Equal(t, uint32(6), draws[1].Count)
	assert.Equal(t, 2, b.RenderCalls())
	assert.Equal(t, 2, b.MaxSpritesInBatch())

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.End())
	assert.Equal(t, 0, b.RenderCalls())
	assert.Equal(t, 2, b.TotalRenderCalls())
}

func TestBeginEndState(t *testing.T) {
	r := renderertest.NewRenderer()
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 4)

	assert.ErrorIs(t, b.Begin(nil), ErrNoRenderPass)
	assert.ErrorIs(t, b.End(), ErrNotDrawing)
	assert.ErrorIs(t, b.Draw(tex, 0, 0, DrawOptions{}), ErrNotDrawing)

	require.NoError(t, r.BeginFrame())
	require.NoError(t, b.Begin(nil))
	assert.True(t, b.Drawing())
	assert.ErrorIs(t, b.Begin(nil), ErrAlreadyDrawing)
	require.NoError(t, b.End())
	assert.False(t, b.Drawing())
}

func TestFixedRenderPass(t *testing.T) {
	r := renderertest.NewRenderer()
	pass := renderertest.NewRenderPass()
	b := newSpriteBatch(t, r, WithRenderPass(pass))
	tex := newTexture(t, r, 4, 4)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	require.NoError(t, b.End())
	assert.Len(t, pass.Draws, 1)
	assert.Empty(t, r.MainPass.Draws)
}

func TestFlushIntoOtherPass(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 4)
	other := renderertest.NewRenderPass()

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	b.Flush(other)
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	require.NoError(t, b.End())
	assert.Len(t, other.Draws, 1)
	assert.Len(t, r.MainPass.Draws, 1)
}

func TestBlendChangesAreLazy(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 4)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	b.SetBlendFunctionSeparate(NonPremultiplied)
	assert.Empty(t, r.MainPass.Draws)

	b.SetBlendFunctionSeparate(Additive)
	require.Len(t, r.MainPass.Draws, 1)
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	b.SetToPreviousBlendFunction()
	assert.Equal(t, NonPremultiplied, b.BlendFunction())
	require.NoError(t, b.End())

	draws := r.MainPass.Draws
	require.Len(t, draws, 2)
	assert.NotEqual(t, draws[0].Pipeline, draws[1].Pipeline)
	assert.Contains(t, draws[1].Pipeline, Additive.String())
	assert.Equal(t, 2, r.Registrations)
}

func TestShaderChangeFlushes(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 4)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	b.SetShader(Shader{Name: "tinted", Source: spriteSource})
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	b.SetShader(Shader{})
	require.NoError(t, b.End())

	draws := r.MainPass.Draws
	require.Len(t, draws, 2)
	assert.Contains(t, draws[0].Pipeline, "sprite_sprite_")
	assert.Contains(t, draws[1].Pipeline, "sprite_tinted_")
}

func TestProjectionSlots(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 4)

	ortho := common.Identity4()
	common.Ortho(ortho[:], 0, 800, 0, 600, -1, 1)
	require.NoError(t, b.Begin(&ortho))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	b.SetProjection(ortho)
	assert.Empty(t, r.MainPass.Draws)

	b.SetProjection(common.Identity4())
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	require.NoError(t, b.End())

	draws := r.MainPass.Draws
	require.Len(t, draws, 2)
	assert.NotEqual(t, draws[0].BindGroups[ProjectionGroup], draws[1].BindGroups[ProjectionGroup])

	first := r.WritesTo(draws[0].BindGroups[ProjectionGroup], 0)
	require.Len(t, first, 1)
	assert.Equal(t, common.SliceToBytes(ortho[:]), first[0].Data)
	assert.Equal(t, common.Identity4(), b.Projection())
}

func TestQuadCorners(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 2)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 10, 20, DrawOptions{}))

	want := [][2]float32{{10, 22}, {14, 22}, {14, 20}, {10, 20}}
	uvs := [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i := range 4 {
		v := vertex(b.core, i)
		assert.Equal(t, want[i], [2]float32{v[0], v[1]}, "corner %d", i)
		assert.Equal(t, uvs[i], [2]float32{v[3], v[4]}, "uv %d", i)
		assert.Equal(t, common.White.PackABGR(), v[2])
	}
	require.NoError(t, b.End())
}

func TestQuadScaleAndFlip(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 2)
	red := common.Color{1, 0, 0, 1}

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{
		OriginX: 2, OriginY: 1,
		ScaleX: 2, ScaleY: 2,
		FlipX: true,
		Color: red,
	}))

	want := [][2]float32{{-4, 2}, {4, 2}, {4, -2}, {-4, -2}}
	uvs := [][2]float32{{1, 0}, {0, 0}, {0, 1}, {1, 1}}
	for i := range 4 {
		v := vertex(b.core, i)
		assert.Equal(t, want[i], [2]float32{v[0], v[1]}, "corner %d", i)
		assert.Equal(t, uvs[i], [2]float32{v[3], v[4]}, "uv %d", i)
		assert.Equal(t, red.PackABGR(), v[2])
	}
	require.NoError(t, b.End())
}

func TestQuadRotation(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 4, 2)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{Rotation: math32.Pi / 2}))
	want := [][2]float32{{-2, 0}, {-2, 4}, {0, 4}, {0, 0}}
	for i := range 4 {
		v := vertex(b.core, i)
		assert.InDelta(t, want[i][0], v[0], 1e-5, "corner %d x", i)
		assert.InDelta(t, want[i][1], v[1], 1e-5, "corner %d y", i)
	}
	b.Flush(nil)

	// a full turn takes the unrotated path
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{Rotation: 2 * math32.Pi}))
	assert.Equal(t, []float32{0, 2}, vertex(b.core, 0)[:2])
	require.NoError(t, b.End())
}

func TestSourceRectangle(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 8, 8)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{SrcX: 4, SrcY: 2, SrcWidth: 4, SrcHeight: 2}))
	assert.Equal(t, []float32{4, 2}, vertex(b.core, 1)[:2])
	assert.Equal(t, []float32{0.5, 0.25}, vertex(b.core, 0)[3:5])
	assert.Equal(t, []float32{1, 0.5}, vertex(b.core, 2)[3:5])
	require.NoError(t, b.End())
}

func TestDrawSlice(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r)
	tex := newTexture(t, r, 64, 32)
	slice := NewTextureSlice(tex, 16, 8, 16, 8)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.DrawSlice(slice, 0, 0, DrawOptions{}))
	assert.Equal(t, []float32{16, 8}, vertex(b.core, 1)[:2])
	assert.Equal(t, []float32{0.25, 0.25}, vertex(b.core, 0)[3:5])
	assert.Equal(t, []float32{0.5, 0.5}, vertex(b.core, 2)[3:5])
	require.NoError(t, b.End())
}

func TestVertexRing(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r, WithSize(1), WithRingFrames(2))
	textures := []texture.Texture{newTexture(t, r, 4, 4), newTexture(t, r, 4, 4), newTexture(t, r, 4, 4)}

	require.NoError(t, b.Begin(nil))
	for _, tex := range textures {
		require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
	}
	require.NoError(t, b.End())

	writes := r.WritesTo(b.mesh, bind_group_provider.VertexBinding)
	require.Len(t, writes, 3)
	quadBytes := uint64(SpriteSize * 4)
	assert.Equal(t, []uint64{0, quadBytes, 0}, []uint64{writes[0].Offset, writes[1].Offset, writes[2].Offset})
	assert.True(t, b.wrapLogged)
}

func TestDrawVertices(t *testing.T) {
	r, _ := newFrame(t)
	b := newSpriteBatch(t, r, WithSize(2))
	tex := newTexture(t, r, 4, 4)

	require.NoError(t, b.Begin(nil))
	err := b.DrawVertices(tex, make([]float32, SpriteSize+1))
	assert.ErrorIs(t, err, ErrPartialQuad)

	verts := make([]float32, 3*SpriteSize)
	for i := range verts {
		verts[i] = float32(i)
	}
	require.NoError(t, b.DrawVertices(tex, verts))
	assert.Len(t, r.MainPass.Draws, 1)
	assert.Equal(t, verts[2*SpriteSize:], b.vertices[:SpriteSize])
	require.NoError(t, b.End())
	assert.Len(t, r.MainPass.Draws, 2)
}

func TestSizeLimits(t *testing.T) {
	r := renderertest.NewRenderer()
	assert.Panics(t, func() { _, _ = NewSpriteBatch(r, WithSize(MaxSprites+1)) })
	assert.Panics(t, func() { _, _ = NewSpriteBatch(r, WithSize(0)) })
	assert.Len(t, QuadIndices(2), 12)
	assert.Equal(t, []uint16{4, 5, 6, 6, 7, 4}, QuadIndices(2)[6:])
}

func TestArrayBatchSharesDrawAcrossTextures(t *testing.T) {
	r, _ := newFrame(t)
	b := newArrayBatch(t, r, WithArrayCellSize(64, 64), WithLayers(4))
	t1, t2 := newTexture(t, r, 32, 32), newTexture(t, r, 64, 16)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(t1, 0, 0, DrawOptions{}))
	require.NoError(t, b.Draw(t2, 0, 0, DrawOptions{}))
	require.NoError(t, b.Draw(t1, 0, 0, DrawOptions{}))

	assert.Equal(t, float32(1), vertex(b.core, 4)[5])
	assert.Equal(t, []float32{1, 0.25}, vertex(b.core, 6)[3:5])
	assert.Equal(t, []float32{0.5, 0.5}, vertex(b.core, 2)[3:5])
	require.NoError(t, b.End())

	require.Len(t, r.MainPass.Draws, 1)
	assert.Equal(t, uint32(18), r.MainPass.Draws[0].Count)
	assert.Equal(t, b.array, r.MainPass.Draws[0].BindGroups[TextureGroup])
	assert.Len(t, r.Copies, 2)
	assert.Equal(t, uint32(1), r.Copies[1].Layer)
	assert.Equal(t, 2, b.CurrentTextureLFUSwaps())
	assert.Equal(t, []uint64{t1.ID(), t2.ID()}, b.Slots())
	assert.Equal(t, 1, r.TextureArrays)
}

func TestArrayBatchEviction(t *testing.T) {
	r, _ := newFrame(t)
	b := newArrayBatch(t, r, WithArrayCellSize(64, 64), WithLayers(2))
	a, bt, c := newTexture(t, r, 32, 32), newTexture(t, r, 32, 32), newTexture(t, r, 32, 32)

	require.NoError(t, b.Begin(nil))
	require.NoError(t, b.Draw(a, 0, 0, DrawOptions{}))
	require.NoError(t, b.Draw(bt, 0, 0, DrawOptions{}))
	// a hit on the next swap candidate moves the candidate on
	require.NoError(t, b.Draw(a, 0, 0, DrawOptions{}))
	assert.Empty(t, r.MainPass.Draws)

	require.NoError(t, b.Draw(c, 0, 0, DrawOptions{}))
	require.Len(t, r.MainPass.Draws, 1)
	assert.Equal(t, uint32(18), r.MainPass.Draws[0].Count)
	assert.Equal(t, []uint64{a.ID(), c.ID()}, b.Slots())
	assert.Equal(t, 3, b.CurrentTextureLFUSwaps())
	require.NoError(t, b.End())
	assert.Len(t, r.MainPass.Draws, 2)

	require.NoError(t, b.Begin(nil))
	assert.Equal(t, 0, b.CurrentTextureLFUSwaps())
	require.NoError(t, b.End())
}

func TestArrayBatchRejectsLargeTextures(t *testing.T) {
	r, _ := newFrame(t)
	b := newArrayBatch(t, r, WithArrayCellSize(64, 64))
	big := newTexture(t, r, 128, 32)

	require.NoError(t, b.Begin(nil))
	err := b.Draw(big, 0, 0, DrawOptions{})
	assert.True(t, errors.Is(err, ErrTextureTooLarge))
	assert.Empty(t, r.Copies)
	require.NoError(t, b.End())
}

func TestArrayBatchMipmaps(t *testing.T) {
	r, _ := newFrame(t)
	b := newArrayBatch(t, r, WithArrayCellSize(64, 32), WithMipMaps(true))
	tex := newTexture(t, r, 16, 16)
	assert.Equal(t, uint32(7), b.mipLevels)

	for range 2 {
		require.NoError(t, b.Begin(nil))
		require.NoError(t, b.Draw(tex, 0, 0, DrawOptions{}))
		require.NoError(t, b.End())
	}
	assert.Equal(t, 1, r.MipmapCalls)
	assert.Len(t, r.Copies, 1)
}

func TestArrayBatchDrawVertices(t *testing.T) {
	r, _ := newFrame(t)
	b := newArrayBatch(t, r, WithArrayCellSize(64, 64))
	tex := newTexture(t, r, 32, 16)

	require.NoError(t, b.Begin(nil))
	assert.ErrorIs(t, b.DrawVertices(tex, make([]float32, 3)), ErrPartialQuad)

	verts := make([]float32, SpriteSize)
	for i := 0; i < SpriteSize; i += SpriteVertexSize {
		verts[i], verts[i+1], verts[i+2], verts[i+3], verts[i+4] = 5, 6, 7, 1, 1
	}
	require.NoError(t, b.DrawVertices(tex, verts))
	assert.Equal(t, []float32{5, 6, 7, 0.5, 0.25, 0}, vertex(b.core, 3))
	require.NoError(t, b.End())
}

func TestTextureSlice(t *testing.T) {
	r := renderertest.NewRenderer()
	tex := newTexture(t, r, 64, 32)

	s := NewTextureSlice(tex, 16, 8, 16, 8)
	assert.Equal(t, 16, s.X())
	assert.Equal(t, 8, s.Y())
	assert.Equal(t, 16, s.Width())
	assert.Equal(t, 8, s.Height())

	s.FlipH()
	assert.Equal(t, float32(0.5), s.U)
	assert.Equal(t, 16, s.Width())

	cells := FullSlice(tex).Split(24, 16)
	require.Len(t, cells, 2)
	require.Len(t, cells[1], 2)
	assert.Equal(t, 24, cells[1][1].X())
	assert.Equal(t, 16, cells[1][1].Y())
	assert.Nil(t, FullSlice(tex).Split(0, 4))
}

func TestSpriteShadersCompile(t *testing.T) {
	for _, s := range []Shader{DefaultShader(), DefaultArrayShader()} {
		if err := shader.Validate(s.Source); err != nil {
			t.Skipf("naga cannot compile %s: %v", s.Name, err)
		}
	}
}
