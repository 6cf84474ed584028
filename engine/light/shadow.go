package light

import (
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/chewxy/math32"
)

// ShadowMapResolution is the default width and height in texels of the shadow depth texture.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the default orthographic half-extent (in world units) of the
// directional light shadow frustum.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane of the directional shadow projection.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane of the directional shadow projection.
const DefaultShadowFar float32 = 200.0

// DefaultShadowDepthBias is the constant depth bias of shadow depth pipelines, in depth units.
const DefaultShadowDepthBias int32 = 2

// DefaultShadowSlopeScale is the slope-scaled depth bias of shadow depth pipelines.
const DefaultShadowSlopeScale float32 = 2.0

// ShadowCamera builds the orthographic camera a directional light renders its shadow map from.
// The frustum is centered on center and looks along dir from behind the scene.
//
// Parameters:
//   - dir: normalized direction the light points (from light toward scene)
//   - center: world-space center of the shadow frustum, typically the view camera position
//   - halfExtent: half-size of the orthographic frustum in world units
//   - near, far: the clip planes
//
// Returns:
//   - camera.Camera: an orthographic camera ready for a ShadowModelBatch flush
func ShadowCamera(dir, center [3]float32, halfExtent, near, far float32) camera.Camera {
	eye := [3]float32{
		center[0] - dir[0]*far*0.5,
		center[1] - dir[1]*far*0.5,
		center[2] - dir[2]*far*0.5,
	}
	// up must not be parallel to the light direction
	up := [3]float32{0, 1, 0}
	if math32.Abs(dir[1]) > 0.99 {
		up = [3]float32{1, 0, 0}
	}
	cam := camera.NewCamera(
		camera.WithPosition(eye),
		camera.WithTarget(center),
		camera.WithUp(up),
		camera.WithNear(near),
		camera.WithFar(far),
		camera.WithViewport(halfExtent*2, halfExtent*2),
	)
	cam.SetOrthographic(true)
	return cam
}

// ShadowNormalBias derives the world-space normal-offset bias for a shadow map: the distance
// fragments are pushed along their normal before the depth lookup.
//
// Parameters:
//   - halfExtent: orthographic frustum half-size in world units
//   - scale: multiplier on the per-texel world size, typically 2 to 4
//   - resolution: shadow map resolution in texels
//
// Returns:
//   - float32: the normal bias in world units
func ShadowNormalBias(halfExtent, scale float32, resolution int) float32 {
	texelWorldSize := 2.0 * halfExtent / float32(resolution)
	return texelWorldSize * scale
}
