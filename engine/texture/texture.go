// Package texture turns decoded images into GPU textures. A Texture owns a provider holding its
// view and sampler, laid out so that the provider can be bound directly as a sprite texture
// group.
package texture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// TextureBinding is the binding holding the texture view.
	TextureBinding = 0

	// SamplerBinding is the binding holding the sampler.
	SamplerBinding = 1
)

var textureCount atomic.Uint64

// texture is the implementation of the Texture interface.
type texture struct {
	mu       *sync.Mutex
	id       uint64
	label    string
	staging  common.TextureStagingData
	sampler  common.SamplerStagingData
	provider bind_group_provider.BindGroupProvider
	released bool
}

// Texture is an uploaded 2D texture with its sampler.
type Texture interface {
	// ID returns the process-unique texture id. Texture caches are keyed by it.
	//
	// Returns:
	//   - uint64: the texture id
	ID() uint64

	// Width returns the texture width in pixels.
	Width() uint32

	// Height returns the texture height in pixels.
	Height() uint32

	// Label returns the debug label.
	Label() string

	// Provider returns the provider holding the view at TextureBinding and the sampler at
	// SamplerBinding. Its bind group follows Layout().
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the texture provider
	Provider() bind_group_provider.BindGroupProvider

	// Staging returns the pixel data the texture was created from.
	//
	// Returns:
	//   - common.TextureStagingData: the RGBA8 pixels and size
	Staging() common.TextureStagingData

	// Release frees the GPU texture. Further calls are no-ops.
	Release()
}

var _ Texture = &texture{}

// Layout returns the bind group layout of a texture provider: a filterable 2D texture and a
// filtering sampler, both visible to the fragment stage.
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the texture bind group layout
func Layout() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Label: "Texture",
		Entries: []wgpu.BindGroupLayoutEntry{
			shader.TextureEntry(TextureBinding, wgpu.ShaderStageFragment, wgpu.TextureViewDimension2D),
			shader.SamplerEntry(SamplerBinding, wgpu.ShaderStageFragment, false),
		},
	}
}

// DefaultSampler returns linear filtering with clamp-to-edge addressing.
func DefaultSampler() common.SamplerStagingData {
	return common.SamplerStagingData{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
}

// NewTexture uploads pixel data and creates the texture's sampler and bind group.
//
// Parameters:
//   - r: the renderer creating the GPU objects
//   - data: the RGBA8 pixels, which must hold Width*Height*4 bytes
//   - opts: functional options for label and sampler
//
// Returns:
//   - Texture: the uploaded texture
//   - error: an error if the data is malformed or a GPU object could not be created
func NewTexture(r renderer.Renderer, data common.TextureStagingData, opts ...TextureBuilderOption) (Texture, error) {
	t := &texture{
		mu:      &sync.Mutex{},
		id:      textureCount.Add(1),
		staging: data,
		sampler: DefaultSampler(),
	}
	t.label = fmt.Sprintf("Texture %d", t.id)
	for _, opt := range opts {
		opt(t)
	}

	if data.Width == 0 || data.Height == 0 {
		return nil, fmt.Errorf("%s: texture size %dx%d is empty", t.label, data.Width, data.Height)
	}
	if want := int(data.Width * data.Height * 4); len(data.Pixels) != want {
		return nil, fmt.Errorf("%s: expected %d bytes of RGBA8 pixels, got %d", t.label, want, len(data.Pixels))
	}

	t.provider = bind_group_provider.NewBindGroupProvider(t.label)
	if err := r.InitTextureView(t.provider, TextureBinding, data); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", t.label, err)
	}
	if err := r.InitSampler(t.provider, SamplerBinding, t.sampler); err != nil {
		t.provider.Release()
		return nil, fmt.Errorf("failed to create sampler for %s: %w", t.label, err)
	}
	if err := r.InitBindGroup(t.provider, Layout(), nil, nil); err != nil {
		t.provider.Release()
		return nil, fmt.Errorf("failed to create bind group for %s: %w", t.label, err)
	}
	return t, nil
}

// Solid returns a 1x1 texture of a single color. Materials use it in place of missing maps.
func Solid(r renderer.Renderer, c common.Color, opts ...TextureBuilderOption) (Texture, error) {
	px := make([]byte, 4)
	for i, v := range c {
		px[i] = byte(v*255 + 0.5)
	}
	return NewTexture(r, common.TextureStagingData{Pixels: px, Width: 1, Height: 1}, opts...)
}

func (t *texture) ID() uint64 {
	return t.id
}

func (t *texture) Width() uint32 {
	return t.staging.Width
}

func (t *texture) Height() uint32 {
	return t.staging.Height
}

func (t *texture) Label() string {
	return t.label
}

func (t *texture) Provider() bind_group_provider.BindGroupProvider {
	return t.provider
}

func (t *texture) Staging() common.TextureStagingData {
	return t.staging
}

func (t *texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.provider.Release()
}
