package material

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

const pbrTextures = 5

// flatNormal is the tangent-space normal (0, 0, 1) encoded as a color.
var flatNormal = common.Color{0.5, 0.5, 1, 1}

// PBRParams are the scalar factors of a PBR material.
type PBRParams struct {
	Metallic          float32
	Roughness         float32
	OcclusionStrength float32
	Emissive          [3]float32
}

// DefaultPBRParams returns a fully metallic, fully rough material with no emission.
func DefaultPBRParams() PBRParams {
	return PBRParams{Metallic: 1, Roughness: 1, OcclusionStrength: 1}
}

// PBRTextures are the maps of a PBR material. Nil maps are replaced at Prepare: normal by a
// flat normal, the others by white.
type PBRTextures struct {
	BaseColor         texture.Texture
	Normal            texture.Texture
	MetallicRoughness texture.Texture
	Occlusion         texture.Texture
	Emissive          texture.Texture
}

// PBRMaterial is a metallic-roughness material lit by the clustered lights of a PBR
// environment.
type PBRMaterial struct {
	base
	params   PBRParams
	textures PBRTextures
}

// NewPBRMaterial creates a PBR material.
//
// Parameters:
//   - params: the scalar factors, see DefaultPBRParams
//   - textures: the maps, any of which may be nil
//   - opts: shared material options
//
// Returns:
//   - *PBRMaterial: the material, not yet prepared
func NewPBRMaterial(params PBRParams, textures PBRTextures, opts ...MaterialBuilderOption) *PBRMaterial {
	return &PBRMaterial{
		base:     newBase(opts),
		params:   params,
		textures: textures,
	}
}

// PBRLayout returns the material bind group layout of PBR materials: the params uniform
// followed by a texture and sampler pair per map.
func PBRLayout() wgpu.BindGroupLayoutDescriptor {
	entries := []wgpu.BindGroupLayoutEntry{shader.UniformEntry(0, wgpu.ShaderStageFragment, 48)}
	for i := range pbrTextures {
		entries = append(entries,
			shader.TextureEntry(uint32(1+2*i), wgpu.ShaderStageFragment, wgpu.TextureViewDimension2D),
			shader.SamplerEntry(uint32(2+2*i), wgpu.ShaderStageFragment, false),
		)
	}
	return wgpu.BindGroupLayoutDescriptor{Label: "PBR Material", Entries: entries}
}

func (m *PBRMaterial) Kind() Kind {
	return KindPBR
}

// Params returns the scalar factors.
func (m *PBRMaterial) Params() PBRParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// SetParams replaces the scalar factors. The change is uploaded by the next Update.
func (m *PBRMaterial) SetParams(p PBRParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.params == p {
		return
	}
	m.params = p
	m.dirty = true
}

// Textures returns the maps passed at construction.
func (m *PBRMaterial) Textures() PBRTextures {
	return m.textures
}

func (m *PBRMaterial) Layout() wgpu.BindGroupLayoutDescriptor {
	return PBRLayout()
}

func (m *PBRMaterial) Prepare(r renderer.Renderer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps := []struct {
		tex      texture.Texture
		fallback common.Color
	}{
		{m.textures.BaseColor, common.White},
		{m.textures.Normal, flatNormal},
		{m.textures.MetallicRoughness, common.White},
		{m.textures.Occlusion, common.White},
		{m.textures.Emissive, common.White},
	}
	return m.prepare(r, fmt.Sprintf("PBR Material %d", m.id), PBRLayout(), pbrTextures, func() error {
		for i, mp := range maps {
			if err := m.bindTexture(r, mp.tex, mp.fallback, 1+2*i, 2+2*i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *PBRMaterial) Update() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upload(func() []byte {
		params := GPUPBRParams{
			BaseColor:         m.baseColor,
			Metallic:          m.params.Metallic,
			Roughness:         m.params.Roughness,
			OcclusionStrength: m.params.OcclusionStrength,
			Emissive:          m.params.Emissive,
			AlphaCutoff:       m.alphaCutoff,
		}
		return params.Marshal()
	})
}

func (m *PBRMaterial) Release() {
	m.release(pbrTextures)
}
