package material

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

const unlitTextures = 1

// UnlitMaterial draws a base color texture tinted by the base color and the instance color.
type UnlitMaterial struct {
	base
	baseColorTexture texture.Texture
}

// NewUnlitMaterial creates an unlit material. A nil texture is replaced by white at Prepare.
//
// Parameters:
//   - tex: the base color texture, or nil
//   - opts: shared material options
//
// Returns:
//   - *UnlitMaterial: the material, not yet prepared
func NewUnlitMaterial(tex texture.Texture, opts ...MaterialBuilderOption) *UnlitMaterial {
	return &UnlitMaterial{
		base:             newBase(opts),
		baseColorTexture: tex,
	}
}

// UnlitLayout returns the material bind group layout of unlit materials.
func UnlitLayout() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Label: "Unlit Material",
		Entries: []wgpu.BindGroupLayoutEntry{
			shader.UniformEntry(0, wgpu.ShaderStageFragment, 32),
			shader.TextureEntry(1, wgpu.ShaderStageFragment, wgpu.TextureViewDimension2D),
			shader.SamplerEntry(2, wgpu.ShaderStageFragment, false),
		},
	}
}

func (m *UnlitMaterial) Kind() Kind {
	return KindUnlit
}

// BaseColorTexture returns the texture passed at construction, which may be nil.
func (m *UnlitMaterial) BaseColorTexture() texture.Texture {
	return m.baseColorTexture
}

func (m *UnlitMaterial) Layout() wgpu.BindGroupLayoutDescriptor {
	return UnlitLayout()
}

func (m *UnlitMaterial) Prepare(r renderer.Renderer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepare(r, fmt.Sprintf("Unlit Material %d", m.id), UnlitLayout(), unlitTextures, func() error {
		return m.bindTexture(r, m.baseColorTexture, common.White, 1, 2)
	})
}

func (m *UnlitMaterial) Update() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upload(func() []byte {
		params := GPUUnlitParams{BaseColor: m.baseColor, AlphaCutoff: m.alphaCutoff}
		return params.Marshal()
	})
}

func (m *UnlitMaterial) Release() {
	m.release(unlitTextures)
}
