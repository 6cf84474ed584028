package pipeline

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a Pipeline is a render or compute pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline, created from a single compute shader.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline, created from a vertex and optional fragment shader.
	PipelineTypeRender
)

// pipeline is the implementation of the Pipeline interface.
// It holds the shaders and fixed-function state required to create a GPU pipeline,
// and the GPU pipeline object once the Renderer has created it.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	vertexShader, fragmentShader, computeShader shader.Shader

	renderPipeline  *wgpu.RenderPipeline
	computePipeline *wgpu.ComputePipeline

	// render state, ignored for compute pipelines
	depthCompare        wgpu.CompareFunction
	depthWriteEnabled   bool
	depthBias           int32
	depthBiasSlopeScale float32
	blendEnabled        bool
	blendState          *wgpu.BlendState
	cullMode            wgpu.CullMode
	topology            wgpu.PrimitiveTopology
	stripIndexFormat    wgpu.IndexFormat
	frontFace           wgpu.FrontFace
	writeMask           wgpu.ColorWriteMask
	colorFormat         wgpu.TextureFormat
	depthFormat         wgpu.TextureFormat
	sampleCount         uint32
	depthOnly           bool
}

// Pipeline describes a GPU pipeline before and after creation.
//
// A Pipeline is built with NewPipeline and handed to Renderer.RegisterPipelines, which creates
// the GPU object and stores it back through SetRenderPipeline or SetComputePipeline. The key is
// the Renderer's cache key: two Pipelines with the same key are the same GPU pipeline.
type Pipeline interface {
	// Type returns whether this is a render or compute pipeline.
	//
	// Returns:
	//   - PipelineType: the pipeline type
	Type() PipelineType

	// PipelineKey returns the unique cache key of this pipeline.
	//
	// Returns:
	//   - string: the pipeline key
	PipelineKey() string

	// Shader returns the shader bound to a stage, or nil.
	//
	// Parameters:
	//   - shaderType: the stage to look up
	//
	// Returns:
	//   - shader.Shader: the shader for that stage, or nil
	Shader(shaderType shader.ShaderType) shader.Shader

	// Pipeline returns the created GPU pipeline: *wgpu.RenderPipeline, *wgpu.ComputePipeline, or nil.
	//
	// Returns:
	//   - any: the GPU pipeline object
	Pipeline() any

	// DepthCompare returns the depth comparison function. CompareFunctionAlways disables depth testing.
	DepthCompare() wgpu.CompareFunction

	// DepthWriteEnabled returns whether fragments write depth.
	DepthWriteEnabled() bool

	// DepthBias returns the constant depth bias.
	DepthBias() int32

	// DepthBiasSlopeScale returns the slope-scaled depth bias.
	DepthBiasSlopeScale() float32

	// BlendEnabled returns whether the color target blends.
	BlendEnabled() bool

	// BlendState returns the blend state used when blending is enabled.
	BlendState() *wgpu.BlendState

	// CullMode returns the face culling mode.
	CullMode() wgpu.CullMode

	// Topology returns the primitive topology.
	Topology() wgpu.PrimitiveTopology

	// StripIndexFormat returns the index format for strip topologies, or IndexFormatUndefined.
	StripIndexFormat() wgpu.IndexFormat

	// FrontFace returns the front face winding.
	FrontFace() wgpu.FrontFace

	// WriteMask returns the color write mask.
	WriteMask() wgpu.ColorWriteMask

	// ColorFormat returns the color target format. TextureFormatUndefined means the surface format.
	ColorFormat() wgpu.TextureFormat

	// DepthFormat returns the depth target format. TextureFormatUndefined means no depth attachment.
	DepthFormat() wgpu.TextureFormat

	// SampleCount returns the multisample count. Zero means the Renderer's main pass sample count.
	SampleCount() uint32

	// DepthOnly reports whether the pipeline has no color target, as used by shadow passes.
	DepthOnly() bool

	// SetRenderPipeline stores the created render pipeline.
	//
	// Parameters:
	//   - p: the GPU render pipeline
	SetRenderPipeline(p *wgpu.RenderPipeline)

	// SetComputePipeline stores the created compute pipeline.
	//
	// Parameters:
	//   - p: the GPU compute pipeline
	SetComputePipeline(p *wgpu.ComputePipeline)

	// Release releases the created GPU pipeline, if any.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a new Pipeline description with the provided key, type and options.
// Render pipelines default to triangle lists, CCW front faces, no culling, Less depth testing
// with depth writes, no blending, and the Depth24PlusStencil8 depth format of the main pass.
//
// Parameters:
//   - pipelineKey: the unique cache key of the pipeline
//   - pipelineType: render or compute
//   - opts: functional options configuring shaders and fixed-function state
//
// Returns:
//   - Pipeline: the new pipeline description
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		depthCompare:      wgpu.CompareFunctionLess,
		depthWriteEnabled: true,
		cullMode:          wgpu.CullModeNone,
		topology:          wgpu.PrimitiveTopologyTriangleList,
		stripIndexFormat:  wgpu.IndexFormatUndefined,
		frontFace:         wgpu.FrontFaceCCW,
		writeMask:         wgpu.ColorWriteMaskAll,
		colorFormat:       wgpu.TextureFormatUndefined,
		depthFormat:       wgpu.TextureFormatDepth24PlusStencil8,
		blendState:        AlphaBlend(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AlphaBlend returns the straight-alpha blend state used by transparent materials.
func AlphaBlend() *wgpu.BlendState {
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) Pipeline() any {
	switch p.pipelineType {
	case PipelineTypeRender:
		return p.renderPipeline
	case PipelineTypeCompute:
		return p.computePipeline
	default:
		return nil
	}
}

func (p *pipeline) DepthCompare() wgpu.CompareFunction {
	return p.depthCompare
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) DepthBias() int32 {
	return p.depthBias
}

func (p *pipeline) DepthBiasSlopeScale() float32 {
	return p.depthBiasSlopeScale
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	return p.blendState
}

func (p *pipeline) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) StripIndexFormat() wgpu.IndexFormat {
	return p.stripIndexFormat
}

func (p *pipeline) FrontFace() wgpu.FrontFace {
	return p.frontFace
}

func (p *pipeline) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}

func (p *pipeline) ColorFormat() wgpu.TextureFormat {
	return p.colorFormat
}

func (p *pipeline) DepthFormat() wgpu.TextureFormat {
	return p.depthFormat
}

func (p *pipeline) SampleCount() uint32 {
	return p.sampleCount
}

func (p *pipeline) DepthOnly() bool {
	return p.depthOnly
}

func (p *pipeline) SetRenderPipeline(rp *wgpu.RenderPipeline) {
	p.renderPipeline = rp
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

func (p *pipeline) Release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
