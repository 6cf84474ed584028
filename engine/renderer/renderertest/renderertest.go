// Package renderertest provides recording fakes of renderer.Renderer and renderer.RenderPass so
// that batches, meshes and environments can be tested without a GPU. The fakes never create GPU
// objects: providers keep nil handles, and buffer sizes are recorded so growth logic still works.
package renderertest

import (
	"errors"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// Copy records one CopyTextureToLayer call.
type Copy struct {
	Src, Dst      bind_group_provider.BindGroupProvider
	Layer         uint32
	Width, Height uint32
}

// Dispatch records one DispatchCompute call.
type Dispatch struct {
	PipelineKey    string
	BindGroups     []bind_group_provider.BindGroupProvider
	WorkGroupCount [3]uint32
}

// Renderer is a recording renderer.Renderer.
type Renderer struct {
	mu *sync.Mutex

	Pipelines     map[string]pipeline.Pipeline
	Registrations int

	// Writes holds every BufferWrite in order; WriteCalls counts WriteBuffers invocations.
	Writes     []bind_group_provider.BufferWrite
	WriteCalls int

	BindGroupInits  int
	TextureViews    int
	TextureArrays   int
	DepthTextures   int
	Samplers        int
	MeshBufferInits int
	Copies          []Copy
	MipmapCalls     int
	Dispatches      []Dispatch
	ComputeFrames   int
	Frames          int
	DepthPasses     int

	Format     wgpu.TextureFormat
	MainPass   *RenderPass
	DepthPass  *RenderPass
	inFrame    bool
	inDepth    bool
	Released   bool
	RegisterFn func(p pipeline.Pipeline) error

	// BindGroupFn, when set, can fail InitBindGroup before anything is recorded.
	BindGroupFn func(provider bind_group_provider.BindGroupProvider) error
}

var _ renderer.Renderer = &Renderer{}

// NewRenderer returns an empty recording renderer whose surface format is BGRA8Unorm.
func NewRenderer() *Renderer {
	return &Renderer{
		mu:        &sync.Mutex{},
		Pipelines: make(map[string]pipeline.Pipeline),
		Format:    wgpu.TextureFormatBGRA8Unorm,
		MainPass:  NewRenderPass(),
		DepthPass: NewRenderPass(),
	}
}

func (r *Renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Pipelines[key]
}

func (r *Renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		if _, ok := r.Pipelines[p.PipelineKey()]; ok {
			continue
		}
		if r.RegisterFn != nil {
			if err := r.RegisterFn(p); err != nil {
				return err
			}
		}
		r.Pipelines[p.PipelineKey()] = p
		r.Registrations++
	}
	return nil
}

func (r *Renderer) Resize(width, height int) {}

func (r *Renderer) SurfaceFormat() wgpu.TextureFormat {
	return r.Format
}

func (r *Renderer) SetPresentMode(mode renderer.PresentMode) {}

func (r *Renderer) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MeshBufferInits++
	provider.SetIndexCount(indexCount)
	return nil
}

func (r *Renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BindGroupFn != nil {
		if err := r.BindGroupFn(provider); err != nil {
			return err
		}
	}
	r.BindGroupInits++
	for _, e := range descriptor.Entries {
		if e.Buffer.Type == wgpu.BufferBindingTypeUndefined {
			continue
		}
		binding := int(e.Binding)
		if provider.BufferSize(binding) > 0 {
			continue
		}
		size := e.Buffer.MinBindingSize
		if override, ok := bufferSizeOverrides[binding]; ok {
			size = override
		}
		provider.SetBuffer(binding, nil, size)
	}
	return nil
}

func (r *Renderer) InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TextureViews++
	return nil
}

func (r *Renderer) InitTextureArray(provider bind_group_provider.BindGroupProvider, bindingKey int, width, height, layers, mipLevels uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TextureArrays++
	return nil
}

func (r *Renderer) InitDepthTexture(provider bind_group_provider.BindGroupProvider, bindingKey int, width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DepthTextures++
	return nil
}

func (r *Renderer) InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Samplers++
	return nil
}

func (r *Renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.WriteCalls++
	for _, w := range writes {
		// callers may reuse their staging slices
		data := make([]byte, len(w.Data))
		copy(data, w.Data)
		w.Data = data
		r.Writes = append(r.Writes, w)
	}
}

// WritesTo returns the recorded writes that target one provider binding.
func (r *Renderer) WritesTo(provider bind_group_provider.BindGroupProvider, binding int) []bind_group_provider.BufferWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bind_group_provider.BufferWrite
	for _, w := range r.Writes {
		if w.Provider == provider && w.Binding == binding {
			out = append(out, w)
		}
	}
	return out
}

func (r *Renderer) CopyTextureToLayer(src bind_group_provider.BindGroupProvider, srcBinding int, dst bind_group_provider.BindGroupProvider, dstBinding int, layer, width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Copies = append(r.Copies, Copy{Src: src, Dst: dst, Layer: layer, Width: width, Height: height})
	return nil
}

func (r *Renderer) GenerateMipmaps(provider bind_group_provider.BindGroupProvider, bindingKey int, layers, mipLevels uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MipmapCalls++
	return nil
}

func (r *Renderer) BeginComputeFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ComputeFrames++
	return nil
}

func (r *Renderer) DispatchCompute(pipelineKey string, bindGroups []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Dispatches = append(r.Dispatches, Dispatch{PipelineKey: pipelineKey, BindGroups: bindGroups, WorkGroupCount: workGroupCount})
}

func (r *Renderer) EndComputeFrame() {}

func (r *Renderer) BeginFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFrame {
		return errors.New("frame already open")
	}
	r.inFrame = true
	r.Frames++
	return nil
}

func (r *Renderer) Pass() renderer.RenderPass {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inFrame {
		return nil
	}
	return r.MainPass
}

func (r *Renderer) EndFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFrame = false
}

func (r *Renderer) Present() {}

func (r *Renderer) BeginDepthPass(target bind_group_provider.BindGroupProvider, bindingKey int) (renderer.RenderPass, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inDepth {
		return nil, errors.New("a depth pass is already open")
	}
	r.inDepth = true
	r.DepthPasses++
	return r.DepthPass, nil
}

func (r *Renderer) EndDepthPass() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inDepth = false
}

func (r *Renderer) Release() {
	r.Released = true
}

// DrawCall records one Draw or DrawIndexed call.
type DrawCall struct {
	Pipeline      string
	Indexed       bool
	Count         uint32
	InstanceCount uint32
	First         uint32
	FirstInstance uint32
	BindGroups    map[uint32]bind_group_provider.BindGroupProvider
}

// RenderPass is a recording renderer.RenderPass. Every draw snapshots the bound pipeline key and
// bind groups so tests can assert what a draw saw.
type RenderPass struct {
	Draws         []DrawCall
	PipelineSets  []string
	BindGroupSets []uint32
	VertexSets    int
	IndexSets     int

	pipeline string
	bound    map[uint32]bind_group_provider.BindGroupProvider
}

var _ renderer.RenderPass = &RenderPass{}

// NewRenderPass returns an empty recording pass.
func NewRenderPass() *RenderPass {
	return &RenderPass{bound: make(map[uint32]bind_group_provider.BindGroupProvider)}
}

func (p *RenderPass) SetPipeline(pl pipeline.Pipeline) {
	p.pipeline = pl.PipelineKey()
	p.PipelineSets = append(p.PipelineSets, p.pipeline)
}

func (p *RenderPass) SetBindGroup(group uint32, provider bind_group_provider.BindGroupProvider) {
	p.bound[group] = provider
	p.BindGroupSets = append(p.BindGroupSets, group)
}

func (p *RenderPass) SetVertexBuffer(slot uint32, provider bind_group_provider.BindGroupProvider, offset uint64) {
	p.VertexSets++
}

func (p *RenderPass) SetIndexBuffer(provider bind_group_provider.BindGroupProvider, format wgpu.IndexFormat) {
	p.IndexSets++
}

func (p *RenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.Draws = append(p.Draws, p.snapshot(false, vertexCount, instanceCount, firstVertex, firstInstance))
}

func (p *RenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.Draws = append(p.Draws, p.snapshot(true, indexCount, instanceCount, firstIndex, firstInstance))
}

func (p *RenderPass) snapshot(indexed bool, count, instances, first, firstInstance uint32) DrawCall {
	groups := make(map[uint32]bind_group_provider.BindGroupProvider, len(p.bound))
	for k, v := range p.bound {
		groups[k] = v
	}
	return DrawCall{
		Pipeline:      p.pipeline,
		Indexed:       indexed,
		Count:         count,
		InstanceCount: instances,
		First:         first,
		FirstInstance: firstInstance,
		BindGroups:    groups,
	}
}

// Reset forgets every recorded call.
func (p *RenderPass) Reset() {
	p.Draws = nil
	p.PipelineSets = nil
	p.BindGroupSets = nil
	p.VertexSets = 0
	p.IndexSets = 0
	p.pipeline = ""
	p.bound = make(map[uint32]bind_group_provider.BindGroupProvider)
}
