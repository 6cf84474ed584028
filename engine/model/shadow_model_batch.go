package model

import (
	"github.com/Carmen-Shannon/oxy-core/engine/light"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/cogentcore/webgpu/wgpu"
)

// NewShadowModelBatch creates a batch that renders shadow casters into a Depth32Float shadow
// map. Depth-only providers for unlit and PBR materials are registered with the default shadow
// bias. Primitives whose material does not cast shadows are ignored, and materials are never
// bound, so they need not be ready.
//
// Parameters:
//   - r: the renderer
//   - opts: functional options; WithColorFormat has no effect
//
// Returns:
//   - ModelBatch: the shadow batch
func NewShadowModelBatch(r renderer.Renderer, opts ...ModelBatchBuilderOption) ModelBatch {
	b := newBatch(r, "ShadowModelBatch", wgpu.TextureFormatUndefined, wgpu.TextureFormatDepth32Float)
	b.shadow = true
	for _, opt := range opts {
		opt(b)
	}
	b.colorFormat = wgpu.TextureFormatUndefined
	for _, kind := range []material.Kind{material.KindUnlit, material.KindPBR} {
		b.providers[kind] = material.NewDepthProvider(kind,
			material.WithDepthBias(light.DefaultShadowDepthBias, light.DefaultShadowSlopeScale),
			material.WithSampleCount(1),
		)
	}
	return b
}
