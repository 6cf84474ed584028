package environment

import (
	_ "embed"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/light"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/pbr_environment.wgsl
var pbrSource string

// Bindings of the PBR environment bind group.
const (
	CameraBinding        = 0
	LightsBinding        = 1
	ClusterLightsBinding = 2
)

// PBREnvironment binds the camera, the ambient, directional and point lights, and the
// clustered light tables that lit material shaders index by fragment position.
//
// Cluster bounds are rebuilt only when the output size or the clip planes change. Light
// assignment runs every frame, on the GPU by default or on a ClusterAssigner with
// WithCPUClusters.
type PBREnvironment struct {
	mu *sync.Mutex

	id          int
	r           renderer.Renderer
	cfg         light.ClusterConfig
	maxLights   int
	cpuClusters bool
	assigner    light.ClusterAssigner

	ambient     light.Light
	directional light.Light
	pointLights []light.Light

	provider bind_group_provider.BindGroupProvider
	layout   wgpu.BindGroupLayoutDescriptor

	// compute pass groups; camera and light buffers are shared with provider
	boundsCamera  bind_group_provider.BindGroupProvider
	boundsStorage bind_group_provider.BindGroupProvider
	lightsGroup   bind_group_provider.BindGroupProvider

	boundsValid      bool
	outputW, outputH float32
	near, far        float32

	bounds   []light.ClusterBounds
	clusters light.ClusterLights
}

// NewPBREnvironment creates the lit environment and its buffers. Unless WithCPUClusters is set,
// the bounds and light assignment compute pipelines are registered on r.
//
// Parameters:
//   - r: the renderer creating the buffers and dispatching compute
//   - opts: variadic list of PBREnvironmentBuilderOption functions
//
// Returns:
//   - *PBREnvironment: the environment
//   - error: an error if a pipeline or bind group could not be created
func NewPBREnvironment(r renderer.Renderer, opts ...PBREnvironmentBuilderOption) (*PBREnvironment, error) {
	e := &PBREnvironment{
		mu:          &sync.Mutex{},
		id:          nextID(),
		r:           r,
		cfg:         light.DefaultClusterConfig(),
		maxLights:   light.MaxGPULights,
		ambient:     light.NewLight(light.LightTypeAmbient, light.WithColor(0.1, 0.1, 0.1)),
		directional: light.NewLight(light.LightTypeDirectional, light.WithIntensity(0)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cpuClusters && e.assigner == nil {
		e.assigner = light.NewClusterAssigner()
	}

	e.layout = wgpu.BindGroupLayoutDescriptor{
		Label: "PBR Environment",
		Entries: []wgpu.BindGroupLayoutEntry{
			shader.UniformEntry(CameraBinding, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, camera.GPUCameraUniformSize),
			shader.StorageEntry(LightsBinding, wgpu.ShaderStageFragment, true, light.GlobalLightsBufferSize(0)),
			shader.StorageEntry(ClusterLightsBinding, wgpu.ShaderStageFragment, true, light.ClusterLightsBufferSize(e.cfg)),
		},
	}
	e.provider = bind_group_provider.NewBindGroupProvider("PBR Environment")
	sizes := map[int]uint64{LightsBinding: light.GlobalLightsBufferSize(e.maxLights)}
	if err := r.InitBindGroup(e.provider, e.layout, nil, sizes); err != nil {
		return nil, fmt.Errorf("failed to create pbr environment bind group: %w", err)
	}

	if e.cpuClusters {
		return e, nil
	}
	if err := e.initCompute(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *PBREnvironment) initCompute() error {
	boundsPipeline := light.NewBoundsPipeline(e.cfg)
	lightsPipeline := light.NewLightsPipeline(e.cfg)
	if err := e.r.RegisterPipelines(boundsPipeline, lightsPipeline); err != nil {
		return fmt.Errorf("failed to register cluster pipelines: %w", err)
	}

	bcs := boundsPipeline.Shader(shader.ShaderTypeCompute)
	e.boundsCamera = bind_group_provider.NewBindGroupProvider("Cluster Bounds Camera")
	share(e.boundsCamera, 0, e.provider, CameraBinding)
	if err := e.r.InitBindGroup(e.boundsCamera, bcs.BindGroupLayoutDescriptor(0), nil, nil); err != nil {
		return fmt.Errorf("failed to create cluster bounds camera bind group: %w", err)
	}
	e.boundsStorage = bind_group_provider.NewBindGroupProvider("Cluster Bounds")
	if err := e.r.InitBindGroup(e.boundsStorage, bcs.BindGroupLayoutDescriptor(1), nil, nil); err != nil {
		return fmt.Errorf("failed to create cluster bounds bind group: %w", err)
	}

	lcs := lightsPipeline.Shader(shader.ShaderTypeCompute)
	e.lightsGroup = bind_group_provider.NewBindGroupProvider("Cluster Lights")
	share(e.lightsGroup, 0, e.provider, CameraBinding)
	share(e.lightsGroup, 1, e.boundsStorage, 0)
	share(e.lightsGroup, 2, e.provider, ClusterLightsBinding)
	share(e.lightsGroup, 3, e.provider, LightsBinding)
	if err := e.r.InitBindGroup(e.lightsGroup, lcs.BindGroupLayoutDescriptor(0), nil, nil); err != nil {
		return fmt.Errorf("failed to create cluster lights bind group: %w", err)
	}
	return nil
}

// share places the owner's buffer on an alias provider so InitBindGroup reuses it.
func share(alias bind_group_provider.BindGroupProvider, aliasBinding int, owner bind_group_provider.BindGroupProvider, ownerBinding int) {
	alias.SetBuffer(aliasBinding, owner.Buffer(ownerBinding), owner.BufferSize(ownerBinding))
}

// unshare clears shared buffers from an alias so that Release only frees its own objects.
func unshare(alias bind_group_provider.BindGroupProvider, bindings ...int) {
	for _, b := range bindings {
		alias.SetBuffer(b, nil, 0)
	}
	alias.Release()
}

func (e *PBREnvironment) isEnvironment() {}

func (e *PBREnvironment) ID() int {
	return e.id
}

func (e *PBREnvironment) Kind() Kind {
	return KindPBR
}

// ClusterConfig returns the cluster grid of the environment.
func (e *PBREnvironment) ClusterConfig() light.ClusterConfig {
	return e.cfg
}

// CPUClusters reports whether light assignment runs on the CPU.
func (e *PBREnvironment) CPUClusters() bool {
	return e.cpuClusters
}

// SetAmbientLight replaces the ambient light. Only its color is used.
func (e *PBREnvironment) SetAmbientLight(l light.Light) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ambient = l
}

// SetDirectionalLight replaces the directional light.
func (e *PBREnvironment) SetDirectionalLight(l light.Light) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.directional = l
}

// AddPointLight appends a point light.
//
// Parameters:
//   - l: the light to add
//
// Returns:
//   - int: the light's index plus one, so that zero never names a light
func (e *PBREnvironment) AddPointLight(l light.Light) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pointLights = append(e.pointLights, l)
	return len(e.pointLights)
}

// RemovePointLight removes a point light. Lights after it move down one index.
//
// Parameters:
//   - l: the light to remove
//
// Returns:
//   - bool: false if the light was not in the environment
func (e *PBREnvironment) RemovePointLight(l light.Light) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := slices.Index(e.pointLights, l)
	if i < 0 {
		return false
	}
	e.pointLights = slices.Delete(e.pointLights, i, i+1)
	return true
}

// PointLights returns a copy of the point light list.
func (e *PBREnvironment) PointLights() []light.Light {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.pointLights)
}

// Clusters returns the last CPU assignment. It is empty on the GPU path.
func (e *PBREnvironment) Clusters() light.ClusterLights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clusters
}

func (e *PBREnvironment) Update(cam camera.Camera, dt time.Duration) {
	lights := e.gpuLights()
	e.r.WriteBuffers([]bind_group_provider.BufferWrite{
		writeCamera(e.provider, cam),
		{Provider: e.provider, Binding: LightsBinding, Data: e.lightHeader().Marshal(lights)},
	})

	if e.cpuClusters {
		e.updateClustersCPU(cam, lights)
		return
	}

	if err := e.r.BeginComputeFrame(); err != nil {
		log.Printf("[Environment] failed to begin cluster compute frame: %v", err)
		return
	}
	e.UpdateClusterBounds(cam)
	e.UpdateClusterLights(cam)
	e.r.EndComputeFrame()
}

// UpdateClusterBounds dispatches the bounds pass when the camera output size or clip planes
// changed since the last dispatch. It must run inside a compute frame.
//
// Parameters:
//   - cam: the camera being rendered from
//
// Returns:
//   - bool: true if the pass was dispatched
func (e *PBREnvironment) UpdateClusterBounds(cam camera.Camera) bool {
	if !e.boundsChanged(cam) {
		return false
	}
	e.r.DispatchCompute(light.BoundsPipelineKey(e.cfg),
		[]bind_group_provider.BindGroupProvider{e.boundsCamera, e.boundsStorage},
		e.cfg.DispatchSize(),
	)
	return true
}

// UpdateClusterLights resets the shared offset counter to zero and dispatches the light
// assignment pass. It must run inside a compute frame.
//
// Parameters:
//   - cam: the camera being rendered from
func (e *PBREnvironment) UpdateClusterLights(cam camera.Camera) {
	e.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: e.provider,
		Binding:  ClusterLightsBinding,
		Offset:   0,
		Data:     []byte{0, 0, 0, 0},
	}})
	e.r.DispatchCompute(light.LightsPipelineKey(e.cfg),
		[]bind_group_provider.BindGroupProvider{e.lightsGroup},
		e.cfg.DispatchSize(),
	)
}

func (e *PBREnvironment) updateClustersCPU(cam camera.Camera, lights []light.GPULight) {
	if e.boundsChanged(cam) {
		w, h := cam.Viewport()
		e.bounds = light.ComputeClusterBounds(e.cfg, cam.InverseProjection(), w, h, cam.Near(), cam.Far())
	}
	clusters := e.assigner.Assign(e.cfg, e.bounds, lights, cam.View())
	e.mu.Lock()
	e.clusters = clusters
	e.mu.Unlock()
	e.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: e.provider,
		Binding:  ClusterLightsBinding,
		Data:     clusters.Marshal(e.cfg),
	}})
}

// boundsChanged records the camera parameters the bounds depend on and reports a change.
func (e *PBREnvironment) boundsChanged(cam camera.Camera) bool {
	w, h := cam.Viewport()
	near, far := cam.Near(), cam.Far()
	if e.boundsValid && w == e.outputW && h == e.outputH && near == e.near && far == e.far {
		return false
	}
	e.boundsValid = true
	e.outputW, e.outputH = w, h
	e.near, e.far = near, far
	return true
}

func (e *PBREnvironment) gpuLights() []light.GPULight {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]light.GPULight, 0, min(len(e.pointLights), e.maxLights))
	for _, l := range e.pointLights {
		if len(out) == e.maxLights {
			break
		}
		if !l.Enabled() {
			continue
		}
		out = append(out, l.GPU())
	}
	return out
}

func (e *PBREnvironment) lightHeader() *light.GPUGlobalLights {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := &light.GPUGlobalLights{}
	if e.ambient != nil && e.ambient.Enabled() {
		c := e.ambient.Color()
		i := e.ambient.Intensity()
		h.Ambient = [3]float32{c[0] * i, c[1] * i, c[2] * i}
	}
	if e.directional != nil && e.directional.Enabled() {
		h.DirColor = e.directional.Color()
		h.DirIntensity = e.directional.Intensity()
		h.DirDirection = e.directional.Direction()
	}
	return h
}

func (e *PBREnvironment) BindGroup() bind_group_provider.BindGroupProvider {
	return e.provider
}

func (e *PBREnvironment) Layout() wgpu.BindGroupLayoutDescriptor {
	return e.layout
}

func (e *PBREnvironment) ShaderSource() string {
	return strings.Join([]string{
		light.ShaderPrelude(e.cfg),
		camera.GPUCameraUniformSource,
		light.GPULightSource,
		light.GPUClusterSource,
		pbrSource,
	}, "\n")
}

func (e *PBREnvironment) Release() {
	if e.lightsGroup != nil {
		unshare(e.lightsGroup, 0, 1, 2, 3)
	}
	if e.boundsCamera != nil {
		unshare(e.boundsCamera, 0)
	}
	if e.boundsStorage != nil {
		e.boundsStorage.Release()
	}
	e.provider.Release()
}
