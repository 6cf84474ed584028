package animator

import "github.com/Carmen-Shannon/oxy-core/engine/mesh"

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*animator)

// WithSkin sets the skin that receives the joint matrices after every Update.
//
// Parameters:
//   - s: the skin of the animated primitive
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the skin option to an animator
func WithSkin(s mesh.Skin) AnimatorBuilderOption {
	return func(a *animator) {
		a.skin = s
	}
}

// WithClips registers clips during construction, in order.
func WithClips(clips ...Clip) AnimatorBuilderOption {
	return func(a *animator) {
		for _, c := range clips {
			a.addClip(c)
		}
	}
}
