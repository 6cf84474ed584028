package batch

import (
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
)

// batchConfig holds the construction settings of both batch kinds.
type batchConfig struct {
	label           string
	size            int
	ringFrames      int
	projectionSlots int
	pass            renderer.RenderPass
	colorFormat     wgpu.TextureFormat
	depthFormat     wgpu.TextureFormat
	stats           *profiler.Stats

	// texture array settings
	cellWidth  uint32
	cellHeight uint32
	layers     uint32
	mipmaps    bool
}

func defaultConfig(r renderer.Renderer, label string) batchConfig {
	return batchConfig{
		label:           label,
		size:            DefaultSize,
		ringFrames:      DefaultRingFrames,
		projectionSlots: DefaultProjectionSlots,
		colorFormat:     r.SurfaceFormat(),
		depthFormat:     wgpu.TextureFormatDepth24PlusStencil8,
		stats:           profiler.EngineStats,
		cellWidth:       DefaultCellSize,
		cellHeight:      DefaultCellSize,
		layers:          DefaultLayers,
	}
}

// BatchBuilderOption is a function that configures a batch during construction.
type BatchBuilderOption func(*batchConfig)

// WithSize sets the sprite capacity of one draw call. It must be within 1 and MaxSprites.
//
// Parameters:
//   - sprites: the sprite capacity
//
// Returns:
//   - BatchBuilderOption: a function that sets the capacity
func WithSize(sprites int) BatchBuilderOption {
	return func(c *batchConfig) {
		c.size = sprites
	}
}

// WithRingFrames sets how many batch-sized regions the vertex ring holds. A pass that flushes
// more vertex data than the ring holds overwrites its own earlier draws.
//
// Parameters:
//   - frames: the region count, at least 1
//
// Returns:
//   - BatchBuilderOption: a function that sets the ring size
func WithRingFrames(frames int) BatchBuilderOption {
	return func(c *batchConfig) {
		c.ringFrames = max(frames, 1)
	}
}

// WithProjectionSlots sets how many projection uniforms the batch rotates through. Each
// projection change within a frame takes a slot.
func WithProjectionSlots(slots int) BatchBuilderOption {
	return func(c *batchConfig) {
		c.projectionSlots = max(slots, 1)
	}
}

// WithRenderPass fixes the pass the batch records into. Without it Begin uses the renderer's
// current frame pass.
func WithRenderPass(pass renderer.RenderPass) BatchBuilderOption {
	return func(c *batchConfig) {
		c.pass = pass
	}
}

// WithTargetFormats sets the color and depth formats pipelines are built for. The defaults are
// the surface format and Depth24PlusStencil8.
//
// Parameters:
//   - color: the color target format
//   - depth: the depth target format, Undefined for passes without depth
//
// Returns:
//   - BatchBuilderOption: a function that sets the formats
func WithTargetFormats(color, depth wgpu.TextureFormat) BatchBuilderOption {
	return func(c *batchConfig) {
		c.colorFormat = color
		c.depthFormat = depth
	}
}

// WithStats routes flush counters to s instead of profiler.EngineStats.
func WithStats(s *profiler.Stats) BatchBuilderOption {
	return func(c *batchConfig) {
		c.stats = s
	}
}

// WithLabel sets the debug label of the batch buffers.
func WithLabel(label string) BatchBuilderOption {
	return func(c *batchConfig) {
		c.label = label
	}
}

// WithArrayCellSize sets the layer size of a TextureArraySpriteBatch. Textures larger than a
// cell cannot be drawn by it.
//
// Parameters:
//   - width: the cell width in pixels
//   - height: the cell height in pixels
//
// Returns:
//   - BatchBuilderOption: a function that sets the cell size
func WithArrayCellSize(width, height uint32) BatchBuilderOption {
	return func(c *batchConfig) {
		c.cellWidth = width
		c.cellHeight = height
	}
}

// WithLayers sets the layer count of a TextureArraySpriteBatch, the number of textures it
// keeps resident.
func WithLayers(layers uint32) BatchBuilderOption {
	return func(c *batchConfig) {
		c.layers = max(layers, 1)
	}
}

// WithMipMaps makes a TextureArraySpriteBatch allocate a full mip chain and regenerate it
// after textures are copied in.
func WithMipMaps(enabled bool) BatchBuilderOption {
	return func(c *batchConfig) {
		c.mipmaps = enabled
	}
}
