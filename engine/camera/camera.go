package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/chewxy/math32"
)

type cameraImpl struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32
	up       [3]float32

	fov  float32
	near float32
	far  float32

	viewportWidth  float32
	viewportHeight float32

	orthographic bool
	// orthoTopLeft places the origin in the top-left corner with y growing down
	orthoTopLeft bool

	dirty bool

	view              common.Mat4
	projection        common.Mat4
	viewProjection    common.Mat4
	inverseProjection common.Mat4
	frustum           common.Frustum
}

// Camera defines the interface for a perspective or orthographic camera.
//
// The camera holds its placement (position, target, up), its lens (fov, near, far) and the size
// of the viewport it renders into. Matrices are rebuilt lazily on the first read after a change.
type Camera interface {
	// Position returns the world-space camera position.
	//
	// Returns:
	//   - [3]float32: the camera position
	Position() [3]float32

	// Target returns the world-space point the camera looks at.
	//
	// Returns:
	//   - [3]float32: the look-at target
	Target() [3]float32

	// Up returns the camera's up vector.
	//
	// Returns:
	//   - [3]float32: the up vector
	Up() [3]float32

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: far plane distance
	Far() float32

	// Aspect returns the viewport aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio, 1 for an empty viewport
	Aspect() float32

	// Viewport returns the size of the render target in pixels.
	//
	// Returns:
	//   - width, height: the viewport size
	Viewport() (width, height float32)

	// Orthographic returns whether the camera uses an orthographic projection.
	//
	// Returns:
	//   - bool: true for orthographic
	Orthographic() bool

	// View returns the world-to-view matrix.
	//
	// Returns:
	//   - common.Mat4: the view matrix (column-major)
	View() common.Mat4

	// Projection returns the view-to-clip matrix (WebGPU depth range [0, 1]).
	//
	// Returns:
	//   - common.Mat4: the projection matrix (column-major)
	Projection() common.Mat4

	// ViewProjection returns Projection * View.
	//
	// Returns:
	//   - common.Mat4: the combined matrix
	ViewProjection() common.Mat4

	// InverseProjection returns the inverse of Projection. The cluster bounds pass uses it to
	// bring screen-space tile corners back into view space.
	//
	// Returns:
	//   - common.Mat4: the inverse projection matrix
	InverseProjection() common.Mat4

	// Frustum returns the world-space view frustum.
	//
	// Returns:
	//   - common.Frustum: the six frustum planes
	Frustum() common.Frustum

	// SphereInFrustum reports whether a world-space sphere is at least partly visible.
	//
	// Parameters:
	//   - center: sphere center in world space
	//   - radius: sphere radius
	//
	// Returns:
	//   - bool: false only when the sphere is entirely outside the frustum
	SphereInFrustum(center [3]float32, radius float32) bool

	// Uniform returns the camera state in the GPU uniform layout.
	//
	// Returns:
	//   - GPUCameraUniform: the uniform ready to marshal
	Uniform() GPUCameraUniform

	SetPosition(p [3]float32)
	SetTarget(t [3]float32)
	SetUp(up [3]float32)
	SetFov(fov float32)
	SetNear(near float32)
	SetFar(far float32)

	// SetViewport sets the render target size in pixels.
	//
	// Parameters:
	//   - width, height: the viewport size
	SetViewport(width, height float32)

	// Ortho2D switches to an orthographic projection covering width x height pixels with the
	// origin in the top-left corner and y growing down, the layout sprite batches draw in.
	//
	// Parameters:
	//   - width, height: the visible area in pixels
	Ortho2D(width, height float32)

	// SetOrthographic switches between perspective and a centered orthographic projection
	// sized by the viewport.
	//
	// Parameters:
	//   - ortho: true for orthographic
	SetOrthographic(ortho bool)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new perspective Camera at (0, 0, 1) looking at the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:             &sync.Mutex{},
		position:       [3]float32{0, 0, 1},
		up:             [3]float32{0, 1, 0},
		fov:            45.0 * (math32.Pi / 180.0),
		near:           0.1,
		far:            100.0,
		viewportWidth:  1,
		viewportHeight: 1,
		dirty:          true,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Up() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect()
}

func (c *cameraImpl) aspect() float32 {
	if c.viewportHeight == 0 {
		return 1
	}
	return c.viewportWidth / c.viewportHeight
}

func (c *cameraImpl) Viewport() (width, height float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewportWidth, c.viewportHeight
}

func (c *cameraImpl) Orthographic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orthographic
}

func (c *cameraImpl) View() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
	return c.view
}

func (c *cameraImpl) Projection() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
	return c.projection
}

func (c *cameraImpl) ViewProjection() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
	return c.viewProjection
}

func (c *cameraImpl) InverseProjection() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
	return c.inverseProjection
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
	return c.frustum
}

func (c *cameraImpl) SphereInFrustum(center [3]float32, radius float32) bool {
	return c.Frustum().SphereInFrustum(center, radius)
}

func (c *cameraImpl) Uniform() GPUCameraUniform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
	return GPUCameraUniform{
		ViewProj:          c.viewProjection,
		View:              c.view,
		InverseProjection: c.inverseProjection,
		CameraPosition:    c.position,
		Near:              c.near,
		Viewport:          [2]float32{c.viewportWidth, c.viewportHeight},
		Far:               c.far,
	}
}

func (c *cameraImpl) SetPosition(p [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
	c.dirty = true
}

func (c *cameraImpl) SetTarget(t [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = t
	c.dirty = true
}

func (c *cameraImpl) SetUp(up [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = up
	c.dirty = true
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.dirty = true
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.dirty = true
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.dirty = true
}

func (c *cameraImpl) SetViewport(width, height float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewportWidth = width
	c.viewportHeight = height
	c.dirty = true
}

func (c *cameraImpl) Ortho2D(width, height float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orthographic = true
	c.orthoTopLeft = true
	c.viewportWidth = width
	c.viewportHeight = height
	c.position = [3]float32{0, 0, 1}
	c.target = [3]float32{0, 0, 0}
	c.up = [3]float32{0, 1, 0}
	c.near = -1
	c.far = 1
	c.dirty = true
}

func (c *cameraImpl) SetOrthographic(ortho bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orthographic = ortho
	c.orthoTopLeft = false
	c.dirty = true
}

// updateMatrices rebuilds every matrix and the frustum when a setter ran since the last read.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if !c.dirty {
		return
	}

	switch {
	case c.orthographic && c.orthoTopLeft:
		c.view = common.Identity4()
		common.Ortho(c.projection[:], 0, c.viewportWidth, c.viewportHeight, 0, c.near, c.far)
	case c.orthographic:
		common.LookAt(c.view[:],
			c.position[0], c.position[1], c.position[2],
			c.target[0], c.target[1], c.target[2],
			c.up[0], c.up[1], c.up[2],
		)
		hw, hh := c.viewportWidth/2, c.viewportHeight/2
		common.Ortho(c.projection[:], -hw, hw, -hh, hh, c.near, c.far)
	default:
		common.LookAt(c.view[:],
			c.position[0], c.position[1], c.position[2],
			c.target[0], c.target[1], c.target[2],
			c.up[0], c.up[1], c.up[2],
		)
		common.Perspective(c.projection[:], c.fov, c.aspect(), c.near, c.far)
	}

	c.viewProjection = c.projection.Mul(c.view)
	c.inverseProjection, _ = c.projection.Invert()
	c.frustum = common.ExtractFrustum(c.viewProjection)
	c.dirty = false
}
