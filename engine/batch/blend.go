package batch

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// BlendFunc holds separate source and destination factors for the color and alpha channels.
// Batches key their pipelines by it.
type BlendFunc struct {
	SrcColor wgpu.BlendFactor
	DstColor wgpu.BlendFactor
	SrcAlpha wgpu.BlendFactor
	DstAlpha wgpu.BlendFactor
}

var (
	// NonPremultiplied blends straight-alpha sprites. It is the default of every batch.
	NonPremultiplied = BlendFunc{
		SrcColor: wgpu.BlendFactorSrcAlpha,
		DstColor: wgpu.BlendFactorOneMinusSrcAlpha,
		SrcAlpha: wgpu.BlendFactorOne,
		DstAlpha: wgpu.BlendFactorOneMinusSrcAlpha,
	}

	// Premultiplied blends sprites whose color is already multiplied by alpha.
	Premultiplied = BlendFunc{
		SrcColor: wgpu.BlendFactorOne,
		DstColor: wgpu.BlendFactorOneMinusSrcAlpha,
		SrcAlpha: wgpu.BlendFactorOne,
		DstAlpha: wgpu.BlendFactorOneMinusSrcAlpha,
	}

	// Additive adds sprite color on top of the target, as lights and particles do.
	Additive = BlendFunc{
		SrcColor: wgpu.BlendFactorSrcAlpha,
		DstColor: wgpu.BlendFactorOne,
		SrcAlpha: wgpu.BlendFactorOne,
		DstAlpha: wgpu.BlendFactorOne,
	}
)

// State returns the wgpu blend state of the function with additive operations.
func (b BlendFunc) State() *wgpu.BlendState {
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{SrcFactor: b.SrcColor, DstFactor: b.DstColor, Operation: wgpu.BlendOperationAdd},
		Alpha: wgpu.BlendComponent{SrcFactor: b.SrcAlpha, DstFactor: b.DstAlpha, Operation: wgpu.BlendOperationAdd},
	}
}

// String returns the factors in the form used in pipeline keys.
func (b BlendFunc) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", b.SrcColor, b.DstColor, b.SrcAlpha, b.DstAlpha)
}
