package texture

import "github.com/Carmen-Shannon/oxy-core/common"

// TextureBuilderOption is a function that configures a texture during construction.
type TextureBuilderOption func(*texture)

// WithLabel sets the debug label of the texture and its provider.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - TextureBuilderOption: a function that sets the label
func WithLabel(label string) TextureBuilderOption {
	return func(t *texture) {
		t.label = label
	}
}

// WithSampler replaces the default sampler configuration.
//
// Parameters:
//   - s: the sampler configuration
//
// Returns:
//   - TextureBuilderOption: a function that sets the sampler
func WithSampler(s common.SamplerStagingData) TextureBuilderOption {
	return func(t *texture) {
		t.sampler = s
	}
}
