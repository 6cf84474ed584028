package material

// ProviderBuilderOption is a function that configures a BaseProvider during construction.
type ProviderBuilderOption func(*BaseProvider)

// WithDepthBias sets the constant and slope-scaled depth bias of every built pipeline.
//
// Parameters:
//   - bias: the constant depth bias
//   - slopeScale: the slope-scaled depth bias
//
// Returns:
//   - ProviderBuilderOption: a function that sets the depth bias
func WithDepthBias(bias int32, slopeScale float32) ProviderBuilderOption {
	return func(p *BaseProvider) {
		p.depthBias = bias
		p.slopeScale = slopeScale
	}
}

// WithSampleCount overrides the multisample count of every built pipeline. Zero uses the
// renderer's count.
func WithSampleCount(count uint32) ProviderBuilderOption {
	return func(p *BaseProvider) {
		p.sampleCount = count
	}
}

func withDepthOnly() ProviderBuilderOption {
	return func(p *BaseProvider) {
		p.depthOnly = true
	}
}
