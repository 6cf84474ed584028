package material

import (
	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// MaterialBuilderOption is a function that configures the state every material kind shares.
type MaterialBuilderOption func(*base)

// WithBaseColor sets the base color factor. Defaults to opaque white.
//
// Parameters:
//   - c: the RGBA factor multiplied into the base color texture
//
// Returns:
//   - MaterialBuilderOption: a function that sets the base color
func WithBaseColor(c common.Color) MaterialBuilderOption {
	return func(b *base) {
		b.baseColor = c
	}
}

// WithAlphaCutoff discards fragments whose alpha is below cutoff. Defaults to 0.
func WithAlphaCutoff(cutoff float32) MaterialBuilderOption {
	return func(b *base) {
		b.alphaCutoff = cutoff
	}
}

// WithSkinned marks the material as skinned, selecting pipelines that read joint matrices.
func WithSkinned(skinned bool) MaterialBuilderOption {
	return func(b *base) {
		b.skinned = skinned
	}
}

// WithTransparent enables alpha blending and sorts the material's pipelines last.
//
// Parameters:
//   - transparent: true for a blended material
//
// Returns:
//   - MaterialBuilderOption: a function that sets the transparency
func WithTransparent(transparent bool) MaterialBuilderOption {
	return func(b *base) {
		b.transparent = transparent
	}
}

// WithDoubleSided disables back-face culling.
func WithDoubleSided(doubleSided bool) MaterialBuilderOption {
	return func(b *base) {
		b.doubleSided = doubleSided
	}
}

// WithDepthWrite toggles depth writes. Defaults to true.
func WithDepthWrite(enabled bool) MaterialBuilderOption {
	return func(b *base) {
		b.depthWrite = enabled
	}
}

// WithDepthCompare sets the depth comparison. Defaults to wgpu.CompareFunctionLess.
func WithDepthCompare(compare wgpu.CompareFunction) MaterialBuilderOption {
	return func(b *base) {
		b.depthCompare = compare
	}
}

// WithCastShadows toggles whether shadow batches draw the material. Defaults to true.
func WithCastShadows(cast bool) MaterialBuilderOption {
	return func(b *base) {
		b.castShadows = cast
	}
}
