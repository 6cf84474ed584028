package shader

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// UniformEntry declares a uniform buffer binding of at least minSize bytes.
func UniformEntry(binding uint32, visibility wgpu.ShaderStage, minSize uint64) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
	e.Buffer.Type = wgpu.BufferBindingTypeUniform
	e.Buffer.MinBindingSize = minSize
	return e
}

// StorageEntry declares a storage buffer binding of at least minSize bytes.
func StorageEntry(binding uint32, visibility wgpu.ShaderStage, readOnly bool, minSize uint64) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
	e.Buffer.Type = wgpu.BufferBindingTypeStorage
	if readOnly {
		e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	}
	e.Buffer.MinBindingSize = minSize
	return e
}

// TextureEntry declares a filterable float texture binding.
func TextureEntry(binding uint32, visibility wgpu.ShaderStage, dimension wgpu.TextureViewDimension) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
	e.Texture.SampleType = wgpu.TextureSampleTypeFloat
	e.Texture.ViewDimension = dimension
	return e
}

// DepthTextureEntry declares a depth texture binding, as sampled by shadow lookups.
func DepthTextureEntry(binding uint32, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
	e.Texture.SampleType = wgpu.TextureSampleTypeDepth
	e.Texture.ViewDimension = wgpu.TextureViewDimension2D
	return e
}

// SamplerEntry declares a filtering sampler binding, or a comparison sampler when compare is set.
func SamplerEntry(binding uint32, visibility wgpu.ShaderStage, compare bool) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
	e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	if compare {
		e.Sampler.Type = wgpu.SamplerBindingTypeComparison
	}
	return e
}

// Float32Layout builds a per-vertex buffer layout of tightly packed float32 attributes.
// components lists the component count of each attribute; shader locations start at 0.
//
// Parameters:
//   - components: component counts (1 to 4) per attribute, in location order
//
// Returns:
//   - wgpu.VertexBufferLayout: the vertex buffer layout
func Float32Layout(components ...int) wgpu.VertexBufferLayout {
	formats := [...]wgpu.VertexFormat{
		wgpu.VertexFormatFloat32,
		wgpu.VertexFormatFloat32x2,
		wgpu.VertexFormatFloat32x3,
		wgpu.VertexFormatFloat32x4,
	}
	attrs := make([]wgpu.VertexAttribute, 0, len(components))
	var offset uint64
	for i, n := range components {
		if n < 1 || n > 4 {
			panic("shader: vertex attribute component count must be within 1 to 4")
		}
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         formats[n-1],
			Offset:         offset,
			ShaderLocation: uint32(i),
		})
		offset += uint64(n) * 4
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}
}

// VertexLayoutKey returns a comparable description of a vertex buffer layout, used where
// pipelines are cached by their vertex input.
func VertexLayoutKey(l wgpu.VertexBufferLayout) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d:%d", l.ArrayStride, l.StepMode)
	for _, a := range l.Attributes {
		fmt.Fprintf(&sb, "|%d@%d#%d", a.Format, a.Offset, a.ShaderLocation)
	}
	return sb.String()
}
