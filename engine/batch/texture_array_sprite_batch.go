package batch

import (
	"fmt"
	"log"
	"math/bits"
	"slices"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// DefaultCellSize is the default width and height of a texture array layer.
	DefaultCellSize = 512

	// DefaultLayers is the default layer count of a texture array.
	DefaultLayers = 16
)

// textureArraySpriteBatch is the implementation of the TextureArraySpriteBatch interface.
type textureArraySpriteBatch struct {
	*core
	array     bind_group_provider.BindGroupProvider
	cellW     uint32
	cellH     uint32
	layers    uint32
	mipLevels uint32

	// slots holds the id of the texture in each used layer.
	slots        []uint64
	nextSwap     int
	swaps        int
	mipmapsDirty bool
}

// TextureArraySpriteBatch is a SpriteBatch that keeps up to a fixed number of textures resident
// in the layers of one array texture. Sprites of resident textures are drawn together whatever
// their texture; a texture that is not resident is copied into a free layer, or into the least
// recently requested one when all layers are taken.
//
// Copies are submitted before the frame's pass runs, so evicting a layer also changes sprites
// drawn from it earlier in the same frame. Size the layer count to cover the textures of a frame.
type TextureArraySpriteBatch interface {
	SpriteBatch

	// ActivateTexture makes tex resident, evicting a layer when none is free.
	//
	// Parameters:
	//   - tex: the texture, at most the cell size in each dimension
	//
	// Returns:
	//   - int: the layer holding tex
	//   - float32: the share of the cell width tex covers
	//   - float32: the share of the cell height tex covers
	//   - error: ErrTextureTooLarge, or the copy error
	ActivateTexture(tex texture.Texture) (slot int, scaleU, scaleV float32, err error)

	// CurrentTextureLFUSwaps returns the textures copied into layers since the last Begin.
	CurrentTextureLFUSwaps() int

	// Slots returns the id of the texture in each used layer.
	Slots() []uint64
}

var _ TextureArraySpriteBatch = &textureArraySpriteBatch{}

func arrayLayout() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Label: "Sprite Texture Array",
		Entries: []wgpu.BindGroupLayoutEntry{
			shader.TextureEntry(texture.TextureBinding, wgpu.ShaderStageFragment, wgpu.TextureViewDimension2DArray),
			shader.SamplerEntry(texture.SamplerBinding, wgpu.ShaderStageFragment, false),
		},
	}
}

// NewTextureArraySpriteBatch creates a TextureArraySpriteBatch drawing with DefaultArrayShader.
//
// Parameters:
//   - r: the renderer
//   - opts: builder options, including WithArrayCellSize, WithLayers and WithMipMaps
//
// Returns:
//   - TextureArraySpriteBatch: the batch
//   - error: when the batch buffers or the array texture cannot be created
func NewTextureArraySpriteBatch(r renderer.Renderer, opts ...BatchBuilderOption) (TextureArraySpriteBatch, error) {
	cfg := defaultConfig(r, "TextureArraySpriteBatch")
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cellWidth == 0 || cfg.cellHeight == 0 {
		return nil, fmt.Errorf("%s: cell size %dx%d is empty", cfg.label, cfg.cellWidth, cfg.cellHeight)
	}

	c, err := newCore(r, cfg, "sprite_array", ArrayVertexSize, shader.Float32Layout(2, 1, 2, 1), arrayLayout(), DefaultArrayShader())
	if err != nil {
		return nil, err
	}
	b := &textureArraySpriteBatch{
		core:      c,
		cellW:     cfg.cellWidth,
		cellH:     cfg.cellHeight,
		layers:    cfg.layers,
		mipLevels: 1,
		slots:     make([]uint64, 0, cfg.layers),
	}
	if cfg.mipmaps {
		b.mipLevels = uint32(bits.Len32(max(cfg.cellWidth, cfg.cellHeight)))
	}

	b.array = bind_group_provider.NewBindGroupProvider(cfg.label + " Array")
	if err := r.InitTextureArray(b.array, texture.TextureBinding, b.cellW, b.cellH, b.layers, b.mipLevels); err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to create %s array: %w", cfg.label, err)
	}
	if err := r.InitSampler(b.array, texture.SamplerBinding, texture.DefaultSampler()); err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to create %s sampler: %w", cfg.label, err)
	}
	if err := r.InitBindGroup(b.array, arrayLayout(), nil, nil); err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to create %s bind group: %w", cfg.label, err)
	}
	b.texture = b.array
	b.beforeDraw = b.generateMipmaps
	return b, nil
}

func (b *textureArraySpriteBatch) Begin(projection *common.Mat4) error {
	if err := b.core.Begin(projection); err != nil {
		return err
	}
	b.swaps = 0
	return nil
}

func (b *textureArraySpriteBatch) ActivateTexture(tex texture.Texture) (int, float32, float32, error) {
	if tex.Width() > b.cellW || tex.Height() > b.cellH {
		return 0, 0, 0, fmt.Errorf("%w: %s is %dx%d, cells are %dx%d", ErrTextureTooLarge, tex.Label(), tex.Width(), tex.Height(), b.cellW, b.cellH)
	}
	scaleU := float32(tex.Width()) / float32(b.cellW)
	scaleV := float32(tex.Height()) / float32(b.cellH)

	if slot := slices.Index(b.slots, tex.ID()); slot >= 0 {
		if slot == b.nextSwap {
			b.nextSwap = (b.nextSwap + 1) % len(b.slots)
		}
		return slot, scaleU, scaleV, nil
	}

	if len(b.slots) < int(b.layers) {
		slot := len(b.slots)
		if err := b.copyToLayer(tex, slot); err != nil {
			return 0, 0, 0, err
		}
		b.slots = append(b.slots, tex.ID())
		return slot, scaleU, scaleV, nil
	}

	// the evicted layer may be referenced by queued sprites
	if b.idx > 0 {
		b.flush()
	}
	slot := b.nextSwap
	if err := b.copyToLayer(tex, slot); err != nil {
		return 0, 0, 0, err
	}
	b.slots[slot] = tex.ID()
	b.nextSwap = (b.nextSwap + 1) % len(b.slots)
	return slot, scaleU, scaleV, nil
}

func (b *textureArraySpriteBatch) copyToLayer(tex texture.Texture, slot int) error {
	err := b.r.CopyTextureToLayer(tex.Provider(), texture.TextureBinding, b.array, texture.TextureBinding, uint32(slot), tex.Width(), tex.Height())
	if err != nil {
		return fmt.Errorf("failed to copy %s into layer %d: %w", tex.Label(), slot, err)
	}
	b.mipmapsDirty = true
	b.swaps++
	return nil
}

func (b *textureArraySpriteBatch) generateMipmaps() {
	if !b.mipmapsDirty {
		return
	}
	b.mipmapsDirty = false
	if b.mipLevels <= 1 {
		return
	}
	if err := b.r.GenerateMipmaps(b.array, texture.TextureBinding, b.layers, b.mipLevels); err != nil {
		log.Printf("[SpriteBatch] %s failed to generate mipmaps: %v", b.cfg.label, err)
	}
}

func (b *textureArraySpriteBatch) Draw(tex texture.Texture, x, y float32, opts DrawOptions) error {
	if !b.drawing {
		return ErrNotDrawing
	}
	b.flushIfFull(ArraySpriteSize)
	slot, su, sv, err := b.ActivateTexture(tex)
	if err != nil {
		return err
	}
	w, h := size(opts, float32(tex.Width()), float32(tex.Height()))
	var q quad
	q.place(x, y, w, h, 0, 0, false, opts)
	uv := region(opts, [4]float32{0, 0, su, sv}, 1/float32(b.cellW), 1/float32(b.cellH))
	q.texCoords(uv, false, opts.FlipX, opts.FlipY)
	b.appendQuad(&q, b.tint(opts), float32(slot))
	return nil
}

func (b *textureArraySpriteBatch) DrawSlice(slice TextureSlice, x, y float32, opts DrawOptions) error {
	if !b.drawing {
		return ErrNotDrawing
	}
	b.flushIfFull(ArraySpriteSize)
	slot, su, sv, err := b.ActivateTexture(slice.Texture)
	if err != nil {
		return err
	}
	w, h := size(opts, float32(slice.PackedWidth), float32(slice.PackedHeight))
	var q quad
	q.place(x, y, w, h, slice.OffsetX, slice.OffsetY, slice.Rotated, opts)
	uv := region(opts, [4]float32{slice.U * su, slice.V * sv, slice.U2 * su, slice.V2 * sv}, 1/float32(b.cellW), 1/float32(b.cellH))
	q.texCoords(uv, slice.Rotated, opts.FlipX, opts.FlipY)
	b.appendQuad(&q, b.tint(opts), float32(slot))
	return nil
}

func (b *textureArraySpriteBatch) DrawVertices(tex texture.Texture, vertices []float32) error {
	if !b.drawing {
		return ErrNotDrawing
	}
	if len(vertices)%SpriteSize != 0 {
		return fmt.Errorf("%w: got %d floats", ErrPartialQuad, len(vertices))
	}
	slot, su, sv, err := b.ActivateTexture(tex)
	if err != nil {
		return err
	}
	for q := 0; q < len(vertices); q += SpriteSize {
		b.flushIfFull(ArraySpriteSize)
		for v := q; v < q+SpriteSize; v += SpriteVertexSize {
			out := b.vertices[b.idx : b.idx+ArrayVertexSize]
			out[0], out[1], out[2] = vertices[v], vertices[v+1], vertices[v+2]
			out[3], out[4] = vertices[v+3]*su, vertices[v+4]*sv
			out[5] = float32(slot)
			b.idx += ArrayVertexSize
		}
	}
	return nil
}

func (b *textureArraySpriteBatch) CurrentTextureLFUSwaps() int {
	return b.swaps
}

func (b *textureArraySpriteBatch) Slots() []uint64 {
	return slices.Clone(b.slots)
}

func (b *textureArraySpriteBatch) Release() {
	b.core.Release()
	if b.array != nil {
		b.array.Release()
		b.array = nil
	}
	b.texture = nil
	b.slots = b.slots[:0]
}
