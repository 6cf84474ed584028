// Package material defines the material kinds, the pipelines they render with, and the
// providers that build and cache those pipelines.
package material

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

// Kind identifies a Material implementation.
type Kind int

const (
	// KindUnlit is *UnlitMaterial.
	KindUnlit Kind = iota

	// KindPBR is *PBRMaterial.
	KindPBR
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnlit:
		return "unlit"
	case KindPBR:
		return "pbr"
	default:
		return "unknown"
	}
}

// Bind group slots shared by every material pipeline.
const (
	EnvironmentGroup = 0
	MaterialGroup    = 1
	InstanceGroup    = 2
	SkinGroup        = 3
)

var (
	// ErrProviderRegistered is returned when a pipeline provider is added for a kind that
	// already has one.
	ErrProviderRegistered = errors.New("material: pipeline provider already registered")

	// ErrPipelineNotFound is reported when no pipeline provider exists for a material kind.
	ErrPipelineNotFound = errors.New("material: unable to find pipeline for material")
)

var materialCount atomic.Int64

// Material is the closed set of materials: *UnlitMaterial and *PBRMaterial.
type Material interface {
	// ID returns the process-unique material id. Bind groups are cached by it.
	//
	// Returns:
	//   - int: the material id
	ID() int

	// Kind returns which implementation this is.
	//
	// Returns:
	//   - Kind: KindUnlit or KindPBR
	Kind() Kind

	// Ready reports whether the material's bind group has been created.
	//
	// Returns:
	//   - bool: true once Prepare succeeded
	Ready() bool

	// Prepare creates the uniform buffer, any default textures and the bind group. It is a
	// no-op on a ready material.
	//
	// Parameters:
	//   - r: the renderer creating the GPU objects
	//
	// Returns:
	//   - error: an error if a GPU object could not be created
	Prepare(r renderer.Renderer) error

	// Skinned reports whether the material is drawn with joint matrices bound at SkinGroup.
	Skinned() bool

	// Transparent reports whether the material is alpha blended and sorted after opaque
	// pipelines.
	Transparent() bool

	// DoubleSided reports whether back faces are drawn.
	DoubleSided() bool

	// DepthWrite reports whether the material writes depth.
	DepthWrite() bool

	// DepthCompare returns the depth comparison function.
	DepthCompare() wgpu.CompareFunction

	// CastShadows reports whether shadow batches draw the material.
	CastShadows() bool

	// BaseColor returns the base color factor.
	BaseColor() common.Color

	// SetBaseColor changes the base color factor. The change is uploaded by the next Update.
	SetBaseColor(c common.Color)

	// BindGroup returns the provider bound at MaterialGroup. It is nil until Prepare.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the material bind group
	BindGroup() bind_group_provider.BindGroupProvider

	// Layout returns the layout of the material bind group.
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the bind group layout
	Layout() wgpu.BindGroupLayoutDescriptor

	// Update uploads the uniform params when they changed since the last upload.
	Update()

	// Release frees the material's GPU resources. Textures passed in by the caller are not
	// released.
	Release()

	isMaterial()
}

var (
	_ Material = &UnlitMaterial{}
	_ Material = &PBRMaterial{}
)

// base holds the state shared by every material kind.
type base struct {
	mu *sync.Mutex
	id int
	r  renderer.Renderer

	baseColor    common.Color
	alphaCutoff  float32
	skinned      bool
	transparent  bool
	doubleSided  bool
	depthWrite   bool
	depthCompare wgpu.CompareFunction
	castShadows  bool

	provider bind_group_provider.BindGroupProvider
	owned    []texture.Texture
	ready    bool
	dirty    bool
}

func newBase(opts []MaterialBuilderOption) base {
	b := base{
		mu:           &sync.Mutex{},
		id:           int(materialCount.Add(1)),
		baseColor:    common.Color{1, 1, 1, 1},
		depthWrite:   true,
		depthCompare: wgpu.CompareFunctionLess,
		castShadows:  true,
		dirty:        true,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) isMaterial() {}

func (b *base) ID() int {
	return b.id
}

func (b *base) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *base) Skinned() bool {
	return b.skinned
}

func (b *base) Transparent() bool {
	return b.transparent
}

func (b *base) DoubleSided() bool {
	return b.doubleSided
}

func (b *base) DepthWrite() bool {
	return b.depthWrite
}

func (b *base) DepthCompare() wgpu.CompareFunction {
	return b.depthCompare
}

func (b *base) CastShadows() bool {
	return b.castShadows
}

func (b *base) BaseColor() common.Color {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseColor
}

func (b *base) SetBaseColor(c common.Color) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.baseColor == c {
		return
	}
	b.baseColor = c
	b.dirty = true
}

func (b *base) BindGroup() bind_group_provider.BindGroupProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.provider
}

// bindTexture points a texture and sampler binding of the material provider at tex, creating a
// solid fallback texture owned by the material when tex is nil.
func (b *base) bindTexture(r renderer.Renderer, tex texture.Texture, fallback common.Color, textureBinding, samplerBinding int) error {
	if tex == nil {
		solid, err := texture.Solid(r, fallback, texture.WithLabel(fmt.Sprintf("Material %d Fallback", b.id)))
		if err != nil {
			return err
		}
		b.owned = append(b.owned, solid)
		tex = solid
	}
	p := tex.Provider()
	b.provider.SetTextureView(textureBinding, p.TextureView(texture.TextureBinding))
	b.provider.SetSampler(samplerBinding, p.Sampler(texture.SamplerBinding))
	return nil
}

// prepare runs bind on a fresh provider and creates the bind group. The caller holds b.mu.
func (b *base) prepare(r renderer.Renderer, label string, layout wgpu.BindGroupLayoutDescriptor, textures int, bind func() error) error {
	if b.ready {
		return nil
	}
	b.provider = bind_group_provider.NewBindGroupProvider(label)
	if err := bind(); err != nil {
		b.releaseLocked(textures)
		return fmt.Errorf("failed to bind %s textures: %w", label, err)
	}
	if err := r.InitBindGroup(b.provider, layout, nil, nil); err != nil {
		b.releaseLocked(textures)
		return fmt.Errorf("failed to create %s bind group: %w", label, err)
	}
	b.r = r
	b.ready = true
	b.dirty = true
	return nil
}

// upload writes data to the params binding when dirty. The caller holds b.mu.
func (b *base) upload(data func() []byte) {
	if !b.ready || !b.dirty {
		return
	}
	b.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: b.provider,
		Binding:  0,
		Data:     data(),
	}})
	b.dirty = false
}

// releaseLocked detaches the borrowed texture views and samplers before releasing the
// provider, since the provider would otherwise release them. Views and samplers sit at
// bindings 1 to 2*textures. The caller holds b.mu.
func (b *base) releaseLocked(textures int) {
	if b.provider != nil {
		for i := 0; i < textures; i++ {
			b.provider.SetTextureView(1+2*i, nil)
			b.provider.SetSampler(2+2*i, nil)
		}
		b.provider.Release()
		b.provider = nil
	}
	for _, t := range b.owned {
		t.Release()
	}
	b.owned = nil
	b.ready = false
}

func (b *base) release(textures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready && b.provider == nil {
		return
	}
	b.releaseLocked(textures)
}
