package environment

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/unlit_environment.wgsl
var unlitSource string

// UnlitEnvironment binds the camera uniform only.
type UnlitEnvironment struct {
	id       int
	r        renderer.Renderer
	provider bind_group_provider.BindGroupProvider
	layout   wgpu.BindGroupLayoutDescriptor
}

// NewUnlitEnvironment creates the camera bind group.
//
// Parameters:
//   - r: the renderer creating the buffers
//
// Returns:
//   - *UnlitEnvironment: the environment
//   - error: an error if the bind group could not be created
func NewUnlitEnvironment(r renderer.Renderer) (*UnlitEnvironment, error) {
	e := &UnlitEnvironment{
		id:       nextID(),
		r:        r,
		provider: bind_group_provider.NewBindGroupProvider("Unlit Environment"),
		layout: wgpu.BindGroupLayoutDescriptor{
			Label: "Unlit Environment",
			Entries: []wgpu.BindGroupLayoutEntry{
				shader.UniformEntry(0, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, camera.GPUCameraUniformSize),
			},
		},
	}
	if err := r.InitBindGroup(e.provider, e.layout, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to create unlit environment bind group: %w", err)
	}
	return e, nil
}

func (e *UnlitEnvironment) isEnvironment() {}

func (e *UnlitEnvironment) ID() int {
	return e.id
}

func (e *UnlitEnvironment) Kind() Kind {
	return KindUnlit
}

func (e *UnlitEnvironment) Update(cam camera.Camera, dt time.Duration) {
	e.r.WriteBuffers([]bind_group_provider.BufferWrite{writeCamera(e.provider, cam)})
}

func (e *UnlitEnvironment) BindGroup() bind_group_provider.BindGroupProvider {
	return e.provider
}

func (e *UnlitEnvironment) Layout() wgpu.BindGroupLayoutDescriptor {
	return e.layout
}

func (e *UnlitEnvironment) ShaderSource() string {
	return strings.Join([]string{camera.GPUCameraUniformSource, unlitSource}, "\n")
}

func (e *UnlitEnvironment) Release() {
	e.provider.Release()
}
