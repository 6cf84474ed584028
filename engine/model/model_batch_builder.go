package model

import (
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/cogentcore/webgpu/wgpu"
)

// ModelBatchBuilderOption is a function that configures a ModelBatch during construction.
type ModelBatchBuilderOption func(*modelBatch)

// WithColorFormat sets the color target format pipelines are built for. The default is the
// renderer's surface format.
//
// Parameters:
//   - format: the color format
//
// Returns:
//   - ModelBatchBuilderOption: a function that sets the color format
func WithColorFormat(format wgpu.TextureFormat) ModelBatchBuilderOption {
	return func(b *modelBatch) {
		b.colorFormat = format
	}
}

// WithDepthFormat sets the depth target format pipelines are built for.
//
// Parameters:
//   - format: the depth format
//
// Returns:
//   - ModelBatchBuilderOption: a function that sets the depth format
func WithDepthFormat(format wgpu.TextureFormat) ModelBatchBuilderOption {
	return func(b *modelBatch) {
		b.depthFormat = format
	}
}

// WithStats routes draw counters to s instead of profiler.EngineStats.
func WithStats(s *profiler.Stats) ModelBatchBuilderOption {
	return func(b *modelBatch) {
		b.stats = s
	}
}
