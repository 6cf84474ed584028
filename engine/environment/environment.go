// Package environment holds the per-scene GPU state every material shader reads at bind group 0:
// the camera uniform and, for lit rendering, the light list and the clustered light tables.
package environment

import (
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
)

// Kind identifies an Environment implementation.
type Kind int

const (
	// KindUnlit binds only the camera.
	KindUnlit Kind = iota

	// KindPBR binds the camera, the light list and the clustered light tables.
	KindPBR
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnlit:
		return "unlit"
	case KindPBR:
		return "pbr"
	default:
		return "unknown"
	}
}

// Group is the bind group index environments are bound at.
const Group = 0

var environmentCount atomic.Int64

func nextID() int {
	return int(environmentCount.Add(1))
}

// Environment is the closed set of environments: *UnlitEnvironment and *PBREnvironment.
//
// An environment exclusively owns its buffers. Materials and batches only bind its bind group.
type Environment interface {
	// ID returns the process-unique environment id. Pipelines are keyed and sorted by it.
	//
	// Returns:
	//   - int: the environment id
	ID() int

	// Kind returns which implementation this is.
	//
	// Returns:
	//   - Kind: KindUnlit or KindPBR
	Kind() Kind

	// Update uploads the per-frame state for cam. It is called at most once per environment per
	// flush.
	//
	// Parameters:
	//   - cam: the camera being rendered from
	//   - dt: time since the previous frame
	Update(cam camera.Camera, dt time.Duration)

	// BindGroup returns the provider bound at Group.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the environment bind group
	BindGroup() bind_group_provider.BindGroupProvider

	// Layout returns the layout of the environment bind group, which material pipelines place
	// at Group.
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the bind group layout
	Layout() wgpu.BindGroupLayoutDescriptor

	// ShaderSource returns the WGSL declarations of the environment bind group. Material
	// shaders are appended to it.
	//
	// Returns:
	//   - string: WGSL source
	ShaderSource() string

	// Release frees every GPU resource the environment owns.
	Release()

	isEnvironment()
}

var (
	_ Environment = &UnlitEnvironment{}
	_ Environment = &PBREnvironment{}
)

func writeCamera(provider bind_group_provider.BindGroupProvider, cam camera.Camera) bind_group_provider.BufferWrite {
	u := cam.Uniform()
	return bind_group_provider.BufferWrite{
		Provider: provider,
		Binding:  0,
		Data:     u.Marshal(),
	}
}
