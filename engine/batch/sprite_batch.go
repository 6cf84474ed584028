package batch

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

// spriteBatch is the implementation of the SpriteBatch interface.
type spriteBatch struct {
	*core
	textureID uint64
	invW      float32
	invH      float32
}

// SpriteBatch collects textured quads and draws them in as few draw calls as possible. Quads
// sharing a texture, blend function, shader and projection are drawn together; changing any of
// them flushes the quads collected so far.
type SpriteBatch interface {
	// Begin starts collecting sprites.
	//
	// Parameters:
	//   - projection: the projection to draw with, nil to keep the current one
	//
	// Returns:
	//   - error: ErrAlreadyDrawing, or ErrNoRenderPass when no pass is open
	Begin(projection *common.Mat4) error

	// End flushes the remaining sprites and stops collecting.
	//
	// Returns:
	//   - error: ErrNotDrawing when Begin was not called
	End() error

	// Draw queues one sprite of tex with its bottom-left corner at x, y.
	//
	// Parameters:
	//   - tex: the texture
	//   - x, y: the position of the sprite
	//   - opts: size, scale, rotation, tint, flips and source rectangle
	//
	// Returns:
	//   - error: ErrNotDrawing outside Begin/End
	Draw(tex texture.Texture, x, y float32, opts DrawOptions) error

	// DrawSlice queues one sprite of a texture region. Source rectangles in opts are relative to
	// the region's texture.
	//
	// Parameters:
	//   - slice: the region
	//   - x, y: the position of the sprite
	//   - opts: size, scale, rotation, tint and flips
	//
	// Returns:
	//   - error: ErrNotDrawing outside Begin/End
	DrawSlice(slice TextureSlice, x, y float32, opts DrawOptions) error

	// DrawVertices queues raw quads of tex. Every vertex is x, y, packed color, u, v and every
	// quad is four vertices in top-left, top-right, bottom-right, bottom-left order.
	//
	// Parameters:
	//   - tex: the texture
	//   - vertices: a multiple of SpriteSize floats
	//
	// Returns:
	//   - error: ErrNotDrawing outside Begin/End, ErrPartialQuad for incomplete quads
	DrawVertices(tex texture.Texture, vertices []float32) error

	// Flush draws the collected sprites now.
	//
	// Parameters:
	//   - pass: the pass to record into for this flush only, nil for the batch's pass
	Flush(pass renderer.RenderPass)

	// SetRenderPass flushes and fixes the pass subsequent draws record into. nil returns to the
	// renderer's frame pass at the next Begin.
	SetRenderPass(pass renderer.RenderPass)

	// SetBlendFunction sets the same source and destination factors for color and alpha.
	SetBlendFunction(src, dst wgpu.BlendFactor)

	// SetBlendFunctionSeparate sets the blend function. Sprites queued before a change are
	// flushed with the previous function.
	SetBlendFunctionSeparate(b BlendFunc)

	// SetToPreviousBlendFunction restores the blend function replaced by the last change.
	SetToPreviousBlendFunction()

	// BlendFunction returns the current blend function.
	BlendFunction() BlendFunc

	// SetShader replaces the sprite shader. A Shader without source restores the default.
	SetShader(s Shader)

	// SetProjection replaces the projection, flushing sprites queued under the previous one.
	SetProjection(m common.Mat4)

	// Projection returns the current projection.
	Projection() common.Mat4

	// SetColor sets the tint of sprites drawn without one.
	SetColor(color common.Color)

	// Color returns the default tint.
	Color() common.Color

	// RenderCalls returns the draw calls since the last Begin.
	RenderCalls() int

	// TotalRenderCalls returns the draw calls since the batch was created.
	TotalRenderCalls() int

	// MaxSpritesInBatch returns the largest sprite count drawn in one call.
	MaxSpritesInBatch() int

	// Drawing reports whether the batch is between Begin and End.
	Drawing() bool

	// Release frees the batch buffers. Textures drawn by it are not released.
	Release()
}

var _ SpriteBatch = &spriteBatch{}

// NewSpriteBatch creates a SpriteBatch drawing with DefaultShader.
//
// Parameters:
//   - r: the renderer
//   - opts: builder options
//
// Returns:
//   - SpriteBatch: the batch
//   - error: when the batch buffers cannot be created
func NewSpriteBatch(r renderer.Renderer, opts ...BatchBuilderOption) (SpriteBatch, error) {
	cfg := defaultConfig(r, "SpriteBatch")
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := newCore(r, cfg, "sprite", SpriteVertexSize, shader.Float32Layout(2, 1, 2), texture.Layout(), DefaultShader())
	if err != nil {
		return nil, err
	}
	return &spriteBatch{core: c}, nil
}

func (b *spriteBatch) Draw(tex texture.Texture, x, y float32, opts DrawOptions) error {
	if !b.drawing {
		return ErrNotDrawing
	}
	b.bind(tex)
	w, h := size(opts, float32(tex.Width()), float32(tex.Height()))
	var q quad
	q.place(x, y, w, h, 0, 0, false, opts)
	q.texCoords(region(opts, [4]float32{0, 0, 1, 1}, b.invW, b.invH), false, opts.FlipX, opts.FlipY)
	b.appendQuad(&q, b.tint(opts), 0)
	return nil
}

func (b *spriteBatch) DrawSlice(slice TextureSlice, x, y float32, opts DrawOptions) error {
	if !b.drawing {
		return ErrNotDrawing
	}
	b.bind(slice.Texture)
	w, h := size(opts, float32(slice.PackedWidth), float32(slice.PackedHeight))
	var q quad
	q.place(x, y, w, h, slice.OffsetX, slice.OffsetY, slice.Rotated, opts)
	uv := region(opts, [4]float32{slice.U, slice.V, slice.U2, slice.V2}, b.invW, b.invH)
	q.texCoords(uv, slice.Rotated, opts.FlipX, opts.FlipY)
	b.appendQuad(&q, b.tint(opts), 0)
	return nil
}

func (b *spriteBatch) DrawVertices(tex texture.Texture, vertices []float32) error {
	if !b.drawing {
		return ErrNotDrawing
	}
	if len(vertices)%SpriteSize != 0 {
		return fmt.Errorf("%w: got %d floats", ErrPartialQuad, len(vertices))
	}
	b.switchTexture(tex)
	for len(vertices) > 0 {
		b.flushIfFull(SpriteSize)
		n := min(len(vertices), len(b.vertices)-b.idx)
		copy(b.vertices[b.idx:], vertices[:n])
		b.idx += n
		vertices = vertices[n:]
	}
	return nil
}

// bind makes tex the current texture and makes room for one quad.
func (b *spriteBatch) bind(tex texture.Texture) {
	if !b.switchTexture(tex) {
		b.flushIfFull(SpriteSize)
	}
}

// switchTexture flushes and binds tex when it is not the current texture. It reports whether
// the texture changed.
func (b *spriteBatch) switchTexture(tex texture.Texture) bool {
	if b.texture != nil && tex.ID() == b.textureID {
		return false
	}
	b.flush()
	b.texture = tex.Provider()
	b.textureID = tex.ID()
	b.invW = 1 / float32(tex.Width())
	b.invH = 1 / float32(tex.Height())
	return true
}

func (b *spriteBatch) End() error {
	if err := b.core.End(); err != nil {
		return err
	}
	b.texture = nil
	b.textureID = 0
	return nil
}
