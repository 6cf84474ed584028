// Package batch draws textured 2D quads with as few draw calls as possible. A SpriteBatch
// flushes whenever the bound texture changes; a TextureArraySpriteBatch copies textures into
// the layers of one array texture so that sprites of different textures share a draw call.
//
// Batches are driven from the render goroutine only.
package batch

import (
	_ "embed"
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	//go:embed assets/sprite.wgsl
	spriteSource string

	//go:embed assets/sprite_array.wgsl
	spriteArraySource string
)

const (
	// SpriteVertexSize is the float count of a SpriteBatch vertex: x, y, packed color, u, v.
	SpriteVertexSize = 5

	// SpriteSize is the float count of one SpriteBatch quad.
	SpriteSize = 4 * SpriteVertexSize

	// ArrayVertexSize is the float count of a TextureArraySpriteBatch vertex: the sprite vertex
	// followed by the array slot.
	ArrayVertexSize = 6

	// ArraySpriteSize is the float count of one TextureArraySpriteBatch quad.
	ArraySpriteSize = 4 * ArrayVertexSize

	// MaxSprites keeps every vertex of a batch addressable by 16-bit indices.
	MaxSprites = 8191

	// DefaultSize is the default sprite capacity of a batch.
	DefaultSize = 1000

	// DefaultRingFrames is the default number of batch-sized regions in the vertex ring.
	DefaultRingFrames = 4

	// DefaultProjectionSlots is the default number of projection uniforms a batch rotates through.
	DefaultProjectionSlots = 16

	// ProjectionGroup holds the projection uniform.
	ProjectionGroup = 0

	// TextureGroup holds the sprite texture and sampler.
	TextureGroup = 1
)

// Stat names reported to profiler.Stats on every flush.
const (
	RenderCallsStat = "SpriteBatch render calls"
	SpritesStat     = "SpriteBatch sprites"
)

var (
	// ErrAlreadyDrawing is returned by Begin when the batch was not ended.
	ErrAlreadyDrawing = errors.New("batch: End must be called before Begin")

	// ErrNotDrawing is returned by End and the draw calls outside Begin/End.
	ErrNotDrawing = errors.New("batch: Begin must be called before drawing")

	// ErrNoRenderPass is returned by Begin outside a frame when no pass was set.
	ErrNoRenderPass = errors.New("batch: no render pass is open")

	// ErrTextureTooLarge is returned when a texture exceeds the cells of a texture array.
	ErrTextureTooLarge = errors.New("batch: texture is larger than the array cells")

	// ErrPartialQuad is returned by DrawVertices for data that does not hold whole quads.
	ErrPartialQuad = errors.New("batch: vertex data must hold whole quads")
)

// DrawOptions places and tints one sprite. The zero value draws the whole texture at its
// pixel size, unrotated, in the batch color.
type DrawOptions struct {
	// OriginX and OriginY are the pivot of scaling and rotation, relative to the sprite's
	// bottom-left corner.
	OriginX, OriginY float32

	// Width and Height size the quad. Zero uses the source size.
	Width, Height float32

	// ScaleX and ScaleY scale the quad around the origin. Zero means 1.
	ScaleX, ScaleY float32

	// Rotation turns the quad around the origin, in radians.
	Rotation float32

	// Color tints the sprite. The zero value uses the batch color.
	Color common.Color

	FlipX, FlipY bool

	// SrcX, SrcY, SrcWidth and SrcHeight select a pixel rectangle of the texture. A zero
	// width or height selects the whole texture or slice.
	SrcX, SrcY, SrcWidth, SrcHeight int
}

// Shader is a WGSL module drawn by a batch. It declares vs_main and fs_main, reads the batch's
// vertex layout, the projection at ProjectionGroup and the texture at TextureGroup.
type Shader struct {
	// Name identifies the shader in pipeline keys and must be unique per source.
	Name string

	Source string
}

// DefaultShader returns the shader of SpriteBatch.
func DefaultShader() Shader {
	return Shader{Name: "sprite", Source: spriteSource}
}

// DefaultArrayShader returns the shader of TextureArraySpriteBatch.
func DefaultArrayShader() Shader {
	return Shader{Name: "sprite_array", Source: spriteArraySource}
}

// QuadIndices returns the index list of sprites quads, 0-1-2 2-3-0 per quad.
//
// Parameters:
//   - sprites: the quad count, at most MaxSprites
//
// Returns:
//   - []uint16: 6 indices per quad
func QuadIndices(sprites int) []uint16 {
	out := make([]uint16, 0, sprites*6)
	for i := range sprites {
		v := uint16(i * 4)
		out = append(out, v, v+1, v+2, v+2, v+3, v)
	}
	return out
}

func projectionLayout() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Label: "Sprite Projection",
		Entries: []wgpu.BindGroupLayoutEntry{
			shader.UniformEntry(0, wgpu.ShaderStageVertex, 64),
		},
	}
}

// quad holds the four corners of a sprite in top-left, top-right, bottom-right, bottom-left
// order.
type quad struct {
	x, y, u, v [4]float32
}

// place positions the quad. offsetX and offsetY are trimmed atlas pixels; rotated swaps the
// quad's width and height for regions stored sideways.
func (q *quad) place(x, y, width, height, offsetX, offsetY float32, rotated bool, o DrawOptions) {
	fx := -(o.OriginX - offsetX)
	fy := -(o.OriginY - offsetY)
	w, h := width, height
	if rotated {
		w, h = height, width
	}
	fx2, fy2 := fx+w, fy+h

	sx, sy := common.Coalesce(o.ScaleX, 1), common.Coalesce(o.ScaleY, 1)
	if sx != 1 || sy != 1 {
		fx, fy, fx2, fy2 = fx*sx, fy*sy, fx2*sx, fy2*sy
	}

	// bl = (fx, fy), tl = (fx, fy2), tr = (fx2, fy2), br = (fx2, fy)
	if noRotation(o.Rotation) {
		q.x = [4]float32{fx, fx2, fx2, fx}
		q.y = [4]float32{fy2, fy2, fy, fy}
	} else {
		sin, cos := math32.Sincos(o.Rotation)
		blX, blY := cos*fx-sin*fy, sin*fx+cos*fy
		tlX, tlY := cos*fx-sin*fy2, sin*fx+cos*fy2
		trX, trY := cos*fx2-sin*fy2, sin*fx2+cos*fy2
		brX, brY := blX+(trX-tlX), trY-(tlY-blY)
		q.x = [4]float32{tlX, trX, brX, blX}
		q.y = [4]float32{tlY, trY, brY, blY}
	}
	for i := range q.x {
		q.x[i] += x
		q.y[i] += y
	}
}

// texCoords assigns the UV rectangle uv (u, v, u2, v2) to the corners.
func (q *quad) texCoords(uv [4]float32, rotated, flipX, flipY bool) {
	u0, v0, u1, v1 := uv[0], uv[1], uv[2], uv[3]
	if flipX {
		u0, u1 = u1, u0
	}
	if flipY {
		v0, v1 = v1, v0
	}
	if rotated {
		q.u = [4]float32{u1, u1, u0, u0}
		q.v = [4]float32{v0, v1, v1, v0}
		return
	}
	q.u = [4]float32{u0, u1, u1, u0}
	q.v = [4]float32{v0, v0, v1, v1}
}

func noRotation(r float32) bool {
	r = math32.Mod(r, 2*math32.Pi)
	return common.FuzzyZero(r) || common.FuzzyZero(math32.Abs(r)-2*math32.Pi)
}

// region resolves the UV rectangle of a draw: the pixel source rectangle of o when it has one,
// converted with the inverse texture size, otherwise uv.
func region(o DrawOptions, uv [4]float32, invW, invH float32) [4]float32 {
	if o.SrcWidth == 0 || o.SrcHeight == 0 {
		return uv
	}
	return [4]float32{
		float32(o.SrcX) * invW,
		float32(o.SrcY) * invH,
		float32(o.SrcX+o.SrcWidth) * invW,
		float32(o.SrcY+o.SrcHeight) * invH,
	}
}

// size resolves the quad size of a draw.
func size(o DrawOptions, width, height float32) (float32, float32) {
	if o.SrcWidth != 0 && o.SrcHeight != 0 {
		width, height = float32(o.SrcWidth), float32(o.SrcHeight)
	}
	return common.Coalesce(o.Width, width), common.Coalesce(o.Height, height)
}

// core is the state machine and vertex stream shared by both batch kinds.
type core struct {
	r     renderer.Renderer
	cfg   batchConfig
	kind  string
	stats *profiler.Stats

	vertexSize    int
	layout        wgpu.VertexBufferLayout
	textureLayout wgpu.BindGroupLayoutDescriptor

	mesh        bind_group_provider.BindGroupProvider
	vertices    []float32
	idx         int
	ringSize    uint64
	ringOffset  uint64
	ringWritten uint64
	wrapLogged  bool

	projections     []bind_group_provider.BindGroupProvider
	projectionSlot  int
	projection      common.Mat4
	projectionDirty bool

	pipelines map[string]pipeline.Pipeline

	pass    renderer.RenderPass
	drawing bool
	texture bind_group_provider.BindGroupProvider

	blend         BlendFunc
	prevBlend     BlendFunc
	shader        Shader
	defaultShader Shader
	color         common.Color
	colorBits     float32

	renderCalls       int
	totalRenderCalls  int
	maxSpritesInBatch int

	// beforeDraw runs once per flush before the draw is recorded.
	beforeDraw func()
}

func newCore(r renderer.Renderer, cfg batchConfig, kind string, vertexSize int, layout wgpu.VertexBufferLayout, textureLayout wgpu.BindGroupLayoutDescriptor, defaultShader Shader) (*core, error) {
	if cfg.size <= 0 {
		panic("batch: size must be positive")
	}
	if cfg.size > MaxSprites {
		panic(fmt.Sprintf("batch: size exceeds %d", MaxSprites))
	}
	c := &core{
		r:             r,
		cfg:           cfg,
		kind:          kind,
		stats:         cfg.stats,
		vertexSize:    vertexSize,
		layout:        layout,
		textureLayout: textureLayout,
		vertices:      make([]float32, cfg.size*4*vertexSize),
		projection:    common.Identity4(),
		pipelines:     make(map[string]pipeline.Pipeline),
		pass:          cfg.pass,
		blend:         NonPremultiplied,
		prevBlend:     NonPremultiplied,
		shader:        defaultShader,
		defaultShader: defaultShader,
	}
	c.setColor(common.White)

	c.ringSize = uint64(len(c.vertices)*4) * uint64(cfg.ringFrames)
	c.mesh = bind_group_provider.NewBindGroupProvider(cfg.label + " Vertices")
	indices := QuadIndices(cfg.size)
	if err := r.InitMeshBuffers(c.mesh, make([]byte, c.ringSize), common.SliceToBytes(indices), len(indices)); err != nil {
		return nil, fmt.Errorf("failed to create %s buffers: %w", cfg.label, err)
	}

	c.projections = make([]bind_group_provider.BindGroupProvider, cfg.projectionSlots)
	for i := range c.projections {
		p := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s Projection %d", cfg.label, i))
		if err := r.InitBindGroup(p, projectionLayout(), nil, nil); err != nil {
			c.Release()
			return nil, fmt.Errorf("failed to create %s projection: %w", cfg.label, err)
		}
		c.projections[i] = p
	}
	c.projectionDirty = true
	return c, nil
}

func (c *core) Begin(projection *common.Mat4) error {
	if c.drawing {
		return ErrAlreadyDrawing
	}
	if c.cfg.pass == nil {
		c.pass = c.r.Pass()
	}
	if c.pass == nil {
		return ErrNoRenderPass
	}
	if projection != nil && *projection != c.projection {
		c.projection = *projection
		c.projectionDirty = true
	}
	c.renderCalls = 0
	c.ringWritten = 0
	c.drawing = true
	return nil
}

func (c *core) End() error {
	if !c.drawing {
		return ErrNotDrawing
	}
	c.flush()
	c.drawing = false
	if c.cfg.pass == nil {
		c.pass = nil
	}
	return nil
}

func (c *core) Drawing() bool {
	return c.drawing
}

func (c *core) SetRenderPass(pass renderer.RenderPass) {
	if pass == c.cfg.pass {
		return
	}
	c.flush()
	c.cfg.pass = pass
	c.pass = pass
}

func (c *core) Flush(pass renderer.RenderPass) {
	if pass != nil && pass != c.pass {
		prev := c.pass
		c.pass = pass
		c.flush()
		c.pass = prev
		return
	}
	c.flush()
}

func (c *core) flushIfFull(floats int) {
	if c.idx+floats > len(c.vertices) {
		c.flush()
	}
}

func (c *core) flush() {
	if c.idx == 0 {
		return
	}
	sprites := c.idx / (4 * c.vertexSize)
	defer func() { c.idx = 0 }()
	if c.pass == nil {
		log.Printf("[SpriteBatch] %s dropped %d sprites: no render pass", c.cfg.label, sprites)
		return
	}
	pl, err := c.pipeline()
	if err != nil {
		log.Printf("[SpriteBatch] %s dropped %d sprites: %v", c.cfg.label, sprites, err)
		return
	}
	if c.beforeDraw != nil {
		c.beforeDraw()
	}
	if c.projectionDirty {
		c.uploadProjection()
	}

	data := common.SliceToBytes(c.vertices[:c.idx])
	n := uint64(len(data))
	if c.ringOffset+n > c.ringSize {
		c.ringOffset = 0
	}
	c.ringWritten += n
	if c.ringWritten > c.ringSize && !c.wrapLogged {
		c.wrapLogged = true
		log.Printf("[SpriteBatch] %s vertex ring wrapped within one pass, earlier sprites may be overwritten", c.cfg.label)
	}
	c.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: c.mesh,
		Binding:  bind_group_provider.VertexBinding,
		Offset:   c.ringOffset,
		Data:     data,
	}})

	c.pass.SetPipeline(pl)
	c.pass.SetBindGroup(ProjectionGroup, c.projections[c.projectionSlot])
	c.pass.SetBindGroup(TextureGroup, c.texture)
	c.pass.SetVertexBuffer(0, c.mesh, c.ringOffset)
	c.pass.SetIndexBuffer(c.mesh, wgpu.IndexFormatUint16)
	c.pass.DrawIndexed(uint32(sprites*6), 1, 0, 0, 0)
	c.ringOffset += n

	c.renderCalls++
	c.totalRenderCalls++
	c.maxSpritesInBatch = max(c.maxSpritesInBatch, sprites)
	c.stats.Extra(RenderCallsStat, 1)
	c.stats.Extra(SpritesStat, sprites)
}

// uploadProjection writes the projection into the next uniform slot, so that draws recorded
// earlier in the frame keep the slot they were recorded with.
func (c *core) uploadProjection() {
	c.projectionSlot = (c.projectionSlot + 1) % len(c.projections)
	c.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: c.projections[c.projectionSlot],
		Binding:  0,
		Data:     common.SliceToBytes(c.projection[:]),
	}})
	c.projectionDirty = false
}

func (c *core) pipeline() (pipeline.Pipeline, error) {
	key := fmt.Sprintf("%s_%s_%s_c%d_d%d", c.kind, c.shader.Name, c.blend, c.cfg.colorFormat, c.cfg.depthFormat)
	if pl, ok := c.pipelines[key]; ok {
		return pl, nil
	}
	if pl := c.r.Pipeline(key); pl != nil {
		c.pipelines[key] = pl
		return pl, nil
	}

	proj := projectionLayout()
	vs := shader.NewShader(key+"_vs", shader.ShaderTypeVertex, c.shader.Source,
		shader.WithBindGroupLayout(ProjectionGroup, proj.Label, proj.Entries...),
		shader.WithVertexLayouts(c.layout),
	)
	fs := shader.NewShader(key+"_fs", shader.ShaderTypeFragment, c.shader.Source,
		shader.WithBindGroupLayout(TextureGroup, c.textureLayout.Label, c.textureLayout.Entries...),
	)
	pl := pipeline.NewPipeline(key, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
		pipeline.WithBlendState(c.blend.State()),
		pipeline.WithDepthCompare(wgpu.CompareFunctionAlways),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithTargetFormats(c.cfg.colorFormat, c.cfg.depthFormat),
	)
	if err := c.r.RegisterPipelines(pl); err != nil {
		return nil, fmt.Errorf("failed to register pipeline %s: %w", key, err)
	}
	if registered := c.r.Pipeline(key); registered != nil {
		pl = registered
	}
	c.pipelines[key] = pl
	return pl, nil
}

func (c *core) appendQuad(q *quad, color, slot float32) {
	v := c.vertices[c.idx : c.idx+4*c.vertexSize]
	for i := range 4 {
		o := i * c.vertexSize
		v[o], v[o+1], v[o+2], v[o+3], v[o+4] = q.x[i], q.y[i], color, q.u[i], q.v[i]
		if c.vertexSize == ArrayVertexSize {
			v[o+5] = slot
		}
	}
	c.idx += 4 * c.vertexSize
}

func (c *core) tint(o DrawOptions) float32 {
	if o.Color == (common.Color{}) {
		return c.colorBits
	}
	return o.Color.PackABGR()
}

func (c *core) SetBlendFunctionSeparate(b BlendFunc) {
	if b == c.blend {
		return
	}
	c.flush()
	c.prevBlend = c.blend
	c.blend = b
}

func (c *core) SetBlendFunction(src, dst wgpu.BlendFactor) {
	c.SetBlendFunctionSeparate(BlendFunc{SrcColor: src, DstColor: dst, SrcAlpha: src, DstAlpha: dst})
}

func (c *core) SetToPreviousBlendFunction() {
	c.SetBlendFunctionSeparate(c.prevBlend)
}

func (c *core) BlendFunction() BlendFunc {
	return c.blend
}

func (c *core) SetShader(s Shader) {
	if s.Source == "" {
		s = c.defaultShader
	}
	if s == c.shader {
		return
	}
	c.flush()
	c.shader = s
}

func (c *core) SetProjection(m common.Mat4) {
	if m == c.projection {
		return
	}
	c.flush()
	c.projection = m
	c.projectionDirty = true
}

func (c *core) Projection() common.Mat4 {
	return c.projection
}

func (c *core) SetColor(color common.Color) {
	c.setColor(color)
}

func (c *core) setColor(color common.Color) {
	c.color = color
	c.colorBits = color.PackABGR()
}

func (c *core) Color() common.Color {
	return c.color
}

func (c *core) RenderCalls() int {
	return c.renderCalls
}

func (c *core) TotalRenderCalls() int {
	return c.totalRenderCalls
}

func (c *core) MaxSpritesInBatch() int {
	return c.maxSpritesInBatch
}

func (c *core) Release() {
	if c.mesh != nil {
		c.mesh.Release()
		c.mesh = nil
	}
	for _, p := range c.projections {
		if p != nil {
			p.Release()
		}
	}
	c.projections = nil
	clear(c.pipelines)
}
