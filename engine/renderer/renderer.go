package renderer

import (
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	validateShaders      bool
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
}

// Surface is anything that can provide a platform surface for the renderer to draw into.
// window.Window satisfies it.
type Surface interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// Renderer defines the interface for the rendering system.
//
// The Renderer owns the GPU device and a cache of pipelines keyed by pipeline.Pipeline.PipelineKey.
// Components never talk to the GPU directly: they hold BindGroupProviders that the Renderer fills
// with GPU objects, and they draw through the RenderPass returned by Pass or BeginDepthPass.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding GPU
	// pipeline objects (render or compute) via the backend, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// Resize configures the underlying backend to handle a new surface size.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// SurfaceFormat returns the color format of the surface. Pipelines that leave their color
	// format undefined render in this format.
	//
	// Returns:
	//   - wgpu.TextureFormat: the surface format
	SurfaceFormat() wgpu.TextureFormat

	// SetPresentMode sets the surface present mode. A call to Resize is required after changing
	// this for the new mode to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// InitMeshBuffers creates GPU vertex and index buffers from raw byte data and stores them
	// on the given BindGroupProvider for later use in draw calls.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created buffers on
	//   - vertexData: the raw vertex data bytes to upload to the GPU
	//   - indexData: the raw index data bytes to upload to the GPU (may be empty)
	//   - indexCount: the number of indices, used for draw calls
	//
	// Returns:
	//   - error: an error if buffer creation fails
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBindGroup creates GPU buffers and a bind group from a layout descriptor and stores them
	// on the given BindGroupProvider. Textures and samplers must be initialized via InitTextureView
	// and InitSampler before calling this method. Buffers that already exist on the provider are
	// reused, so calling this again after ReleaseBinding only recreates the released buffer.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created bind group on
	//   - descriptor: the layout descriptor defining the bind group entries
	//   - bufferUsageOverrides: additional buffer usage flags keyed by binding index (nil safe)
	//   - bufferSizeOverrides: custom buffer sizes keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if bind group creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// InitTextureView creates a GPU texture from staging data and stores the texture and its view
	// on the given BindGroupProvider at the specified binding index.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created texture view on
	//   - bindingKey: the binding index for this texture
	//   - stagingData: the pixel data and dimensions for the texture
	//
	// Returns:
	//   - error: an error if texture creation fails
	InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error

	// InitTextureArray creates an empty 2D array texture with a 2d-array view, used as the
	// backing store of a texture-array sprite batch.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the texture on
	//   - bindingKey: the binding index for the array
	//   - width: the width of each layer in pixels
	//   - height: the height of each layer in pixels
	//   - layers: the number of array layers
	//   - mipLevels: the number of mip levels, 1 for none
	//
	// Returns:
	//   - error: an error if texture creation fails
	InitTextureArray(provider bind_group_provider.BindGroupProvider, bindingKey int, width, height, layers, mipLevels uint32) error

	// InitDepthTexture creates a sampleable Depth32Float texture, used as a shadow map target.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the texture on
	//   - bindingKey: the binding index for the depth texture
	//   - width: the width in texels
	//   - height: the height in texels
	//
	// Returns:
	//   - error: an error if texture creation fails
	InitDepthTexture(provider bind_group_provider.BindGroupProvider, bindingKey int, width, height uint32) error

	// InitSampler creates a GPU sampler from staging data and stores it on the given BindGroupProvider
	// at the specified binding index.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created sampler on
	//   - bindingKey: the binding index for this sampler
	//   - samplerStagingData: the sampler configuration
	//
	// Returns:
	//   - error: an error if sampler creation fails
	InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	// Bindings bind_group_provider.VertexBinding and IndexBinding target the provider's vertex
	// and index buffers.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// CopyTextureToLayer copies the top-left width x height region of a texture into one layer
	// of an array texture.
	//
	// Parameters:
	//   - src: the provider holding the source texture
	//   - srcBinding: the binding index of the source texture
	//   - dst: the provider holding the array texture
	//   - dstBinding: the binding index of the array texture
	//   - layer: the destination array layer
	//   - width: the copy width in pixels
	//   - height: the copy height in pixels
	//
	// Returns:
	//   - error: an error if either texture is missing or the copy could not be submitted
	CopyTextureToLayer(src bind_group_provider.BindGroupProvider, srcBinding int, dst bind_group_provider.BindGroupProvider, dstBinding int, layer, width, height uint32) error

	// GenerateMipmaps regenerates mip levels 1..mipLevels-1 of every layer from level 0.
	//
	// Parameters:
	//   - provider: the provider holding the texture
	//   - bindingKey: the binding index of the texture
	//   - layers: the number of array layers
	//   - mipLevels: the number of mip levels of the texture
	//
	// Returns:
	//   - error: an error if the texture is missing or a blit fails
	GenerateMipmaps(provider bind_group_provider.BindGroupProvider, bindingKey int, layers, mipLevels uint32) error

	// BeginComputeFrame creates a single command encoder for batching all compute dispatches
	// within a frame into one GPU submission. Must be paired with EndComputeFrame.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// DispatchCompute looks up the cached compute Pipeline by key, then encodes a compute pass
	// within the current compute frame. Unknown keys are logged and skipped.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - bindGroups: providers whose bind groups are set at group 0, 1, ... in order
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	DispatchCompute(pipelineKey string, bindGroups []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32)

	// EndComputeFrame finishes the compute command encoder and submits it.
	EndComputeFrame()

	// BeginFrame acquires the swapchain texture and begins the main render pass.
	//
	// Returns:
	//   - error: an error if the swapchain texture could not be acquired
	BeginFrame() error

	// Pass returns the main render pass opened by BeginFrame, or nil outside a frame.
	//
	// Returns:
	//   - RenderPass: the open main pass
	Pass() RenderPass

	// EndFrame ends the main render pass and submits the command buffer to the GPU.
	// Does not present the surface.
	EndFrame()

	// Present presents the surface to the display and releases the swapchain texture.
	Present()

	// BeginDepthPass opens a depth-only render pass that clears and writes the depth texture
	// created by InitDepthTexture. Must be paired with EndDepthPass.
	//
	// Parameters:
	//   - target: the provider holding the depth texture
	//   - bindingKey: the binding index of the depth texture
	//
	// Returns:
	//   - RenderPass: the open depth pass
	//   - error: an error if the target has no depth view or a depth pass is already open
	BeginDepthPass(target bind_group_provider.BindGroupProvider, bindingKey int) (RenderPass, error)

	// EndDepthPass ends the open depth pass and submits it.
	EndDepthPass()

	// Release releases every cached pipeline and the GPU device.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend type drawing into the given surface.
//
// Parameters:
//   - backendType: the type of rendering backend to use (e.g., WGPU)
//   - surface: the surface provider, typically a window.Window
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
func NewRenderer(backendType RendererBackendType, surface Surface, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
	}

	// options first, the adapter request reads forceFallbackAdapter
	for _, opt := range options {
		opt(r)
	}

	msaa := MSAA4x
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}

	switch backendType {
	case BackendTypeWGPU:
		fallthrough
	default:
		r.backend = newWGPURendererBackend(surface.SurfaceDescriptor(), r.forceFallbackAdapter, msaa, r.validateShaders)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	r.backend.ConfigureSurface(surface.Width(), surface.Height())
	return r
}

func (r *renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SurfaceFormat() wgpu.TextureFormat {
	return r.backend.SurfaceFormat()
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return fmt.Errorf("failed to register compute pipeline %q: %w", key, err)
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return fmt.Errorf("failed to register render pipeline %q: %w", key, err)
			}
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	return r.backend.InitMeshBuffers(provider, vertexData, indexData, indexCount)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	return r.backend.InitBindGroup(provider, descriptor, bufferUsageOverrides, bufferSizeOverrides)
}

func (r *renderer) InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error {
	return r.backend.InitTextureView(provider, bindingKey, stagingData)
}

func (r *renderer) InitTextureArray(provider bind_group_provider.BindGroupProvider, bindingKey int, width, height, layers, mipLevels uint32) error {
	return r.backend.InitTextureArray(provider, bindingKey, width, height, layers, mipLevels)
}

func (r *renderer) InitDepthTexture(provider bind_group_provider.BindGroupProvider, bindingKey int, width, height uint32) error {
	return r.backend.InitDepthTexture(provider, bindingKey, width, height)
}

func (r *renderer) InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error {
	return r.backend.InitSampler(provider, bindingKey, samplerStagingData)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	r.backend.WriteBuffers(writes)
}

func (r *renderer) CopyTextureToLayer(src bind_group_provider.BindGroupProvider, srcBinding int, dst bind_group_provider.BindGroupProvider, dstBinding int, layer, width, height uint32) error {
	return r.backend.CopyTextureToLayer(src, srcBinding, dst, dstBinding, layer, width, height)
}

func (r *renderer) GenerateMipmaps(provider bind_group_provider.BindGroupProvider, bindingKey int, layers, mipLevels uint32) error {
	return r.backend.GenerateMipmaps(provider, bindingKey, layers, mipLevels)
}

func (r *renderer) BeginComputeFrame() error {
	return r.backend.BeginComputeFrame()
}

func (r *renderer) DispatchCompute(pipelineKey string, bindGroups []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) {
	r.mu.Lock()
	p, exists := r.pipelineCache[pipelineKey]
	r.mu.Unlock()

	if !exists {
		log.Printf("[Renderer] compute pipeline %q not registered", pipelineKey)
		return
	}
	r.backend.DispatchCompute(p, bindGroups, workGroupCount)
}

func (r *renderer) EndComputeFrame() {
	r.backend.EndComputeFrame()
}

func (r *renderer) BeginFrame() error {
	return r.backend.BeginFrame()
}

func (r *renderer) Pass() RenderPass {
	return r.backend.Pass()
}

func (r *renderer) EndFrame() {
	r.backend.EndFrame()
}

func (r *renderer) Present() {
	r.backend.Present()
}

func (r *renderer) BeginDepthPass(target bind_group_provider.BindGroupProvider, bindingKey int) (RenderPass, error) {
	return r.backend.BeginDepthPass(target, bindingKey)
}

func (r *renderer) EndDepthPass() {
	r.backend.EndDepthPass()
}

func (r *renderer) Release() {
	r.mu.Lock()
	for key, p := range r.pipelineCache {
		p.Release()
		delete(r.pipelineCache, key)
	}
	r.mu.Unlock()
	r.backend.Release()
}
