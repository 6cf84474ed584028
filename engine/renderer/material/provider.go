package material

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/engine/environment"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	//go:embed assets/model_common.wgsl
	modelCommonSource string

	//go:embed assets/model_vertex.wgsl
	modelVertexSource string

	//go:embed assets/model_vertex_skinned.wgsl
	modelVertexSkinnedSource string

	//go:embed assets/unlit.wgsl
	unlitFragmentSource string

	//go:embed assets/pbr.wgsl
	pbrFragmentSource string
)

// BuildRequest is everything a BuildFunc needs to describe a pipeline.
type BuildRequest struct {
	// Name is the renderer cache key of the pipeline.
	Name        string
	Key         PipelineKey
	Material    Material
	Environment environment.Environment
	Layout      wgpu.VertexBufferLayout
}

// BuildFunc describes the pipeline for a request. BaseProvider registers the result.
type BuildFunc func(req BuildRequest, p *BaseProvider) (pipeline.Pipeline, error)

// BaseProvider caches material pipelines by PipelineKey and registers new ones with the
// renderer. The kind specific providers wrap it with a BuildFunc.
type BaseProvider struct {
	mu          *sync.Mutex
	name        string
	kind        Kind
	build       BuildFunc
	cache       map[PipelineKey]*MaterialPipeline
	depthOnly   bool
	depthBias   int32
	slopeScale  float32
	sampleCount uint32
}

var _ PipelineProvider = &BaseProvider{}

// NewBaseProvider creates a caching provider for one material kind.
//
// Parameters:
//   - name: the prefix of the renderer cache keys of the built pipelines
//   - kind: the material kind served
//   - build: describes a pipeline for a cache miss
//   - opts: functional options for fixed-function state
//
// Returns:
//   - *BaseProvider: the provider
func NewBaseProvider(name string, kind Kind, build BuildFunc, opts ...ProviderBuilderOption) *BaseProvider {
	p := &BaseProvider{
		mu:    &sync.Mutex{},
		name:  name,
		kind:  kind,
		build: build,
		cache: make(map[PipelineKey]*MaterialPipeline),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewUnlitProvider builds pipelines for *UnlitMaterial in any environment.
func NewUnlitProvider(opts ...ProviderBuilderOption) *BaseProvider {
	return NewBaseProvider("unlit", KindUnlit, buildShaded(unlitFragmentSource, GPUUnlitParamsSource), opts...)
}

// NewPBRProvider builds pipelines for *PBRMaterial. The environment must be a
// *environment.PBREnvironment, since the fragment stage reads its clustered lights.
func NewPBRProvider(opts ...ProviderBuilderOption) *BaseProvider {
	return NewBaseProvider("pbr", KindPBR, buildShaded(pbrFragmentSource, GPUPBRParamsSource), opts...)
}

// NewDepthProvider builds depth-only pipelines for materials of the given kind. Shadow batches
// use it with a depth bias.
func NewDepthProvider(kind Kind, opts ...ProviderBuilderOption) *BaseProvider {
	opts = append([]ProviderBuilderOption{withDepthOnly()}, opts...)
	return NewBaseProvider("depth", kind, buildDepth, opts...)
}

// Kind returns the material kind the provider serves.
func (p *BaseProvider) Kind() Kind {
	return p.kind
}

// DepthOnly reports whether the provider builds pipelines without a fragment stage.
func (p *BaseProvider) DepthOnly() bool {
	return p.depthOnly
}

// Len returns the number of cached pipelines.
func (p *BaseProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

func (p *BaseProvider) GetMaterialPipeline(r renderer.Renderer, mat Material, env environment.Environment, layout wgpu.VertexBufferLayout, topology wgpu.PrimitiveTopology, stripFormat wgpu.IndexFormat, colorFormat, depthFormat wgpu.TextureFormat) (*MaterialPipeline, error) {
	if mat.Kind() != p.kind {
		return nil, fmt.Errorf("%s provider cannot build pipelines for %s materials", p.name, mat.Kind())
	}
	if p.depthOnly {
		colorFormat = wgpu.TextureFormatUndefined
	}
	key := NewPipelineKey(mat, env, layout, topology, stripFormat, colorFormat, depthFormat)

	p.mu.Lock()
	defer p.mu.Unlock()
	if mp, ok := p.cache[key]; ok {
		return mp, nil
	}

	req := BuildRequest{
		Name:        p.name + "_" + key.String(),
		Key:         key,
		Material:    mat,
		Environment: env,
		Layout:      layout,
	}
	pl, err := p.build(req, p)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline %s: %w", req.Name, err)
	}
	if err := r.RegisterPipelines(pl); err != nil {
		return nil, fmt.Errorf("failed to register pipeline %s: %w", req.Name, err)
	}
	// a pipeline with the same name registered earlier wins
	if registered := r.Pipeline(req.Name); registered != nil {
		pl = registered
	}

	order := RenderOrderDefault
	if mat.Transparent() {
		order = RenderOrderTransparent
	}
	var stages []map[int]wgpu.BindGroupLayoutDescriptor
	for _, t := range []shader.ShaderType{shader.ShaderTypeVertex, shader.ShaderTypeFragment} {
		if s := pl.Shader(t); s != nil {
			stages = append(stages, s.BindGroupLayoutDescriptors())
		}
	}
	mp := &MaterialPipeline{
		Key:         key,
		Environment: env,
		RenderOrder: order,
		Pipeline:    pl,
		Layouts:     shader.MergeBindGroupLayouts(stages...),
		DepthOnly:   p.depthOnly,
	}
	p.cache[key] = mp
	return mp, nil
}

func (p *BaseProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.cache)
}

// ModelSource assembles the WGSL module of a material pipeline: the environment declarations,
// the instance bindings and vertex stage, then the given material declarations.
//
// Parameters:
//   - env: the environment bound at EnvironmentGroup
//   - skinned: selects the skinned vertex stage
//   - material: the material params struct and fragment stage, empty for depth-only modules
//
// Returns:
//   - string: WGSL source
func ModelSource(env environment.Environment, skinned bool, material ...string) string {
	vertex := modelVertexSource
	if skinned {
		vertex = modelVertexSkinnedSource
	}
	parts := append([]string{env.ShaderSource(), modelCommonSource, vertex}, material...)
	return strings.Join(parts, "\n")
}

func vertexShader(req BuildRequest, source string) shader.Shader {
	opts := []shader.ShaderBuilderOption{
		shader.WithBindGroupLayout(EnvironmentGroup, req.Environment.Layout().Label, req.Environment.Layout().Entries...),
		shader.WithBindGroupLayout(InstanceGroup, InstanceLayout().Label, InstanceLayout().Entries...),
		shader.WithVertexLayouts(req.Layout),
	}
	if req.Key.Skinned {
		opts = append(opts, shader.WithBindGroupLayout(SkinGroup, SkinLayout().Label, SkinLayout().Entries...))
	}
	return shader.NewShader(req.Name+"_vs", shader.ShaderTypeVertex, source, opts...)
}

func (p *BaseProvider) fixedFunction(req BuildRequest) []pipeline.PipelineBuilderOption {
	cull := wgpu.CullModeBack
	if req.Key.DoubleSided {
		cull = wgpu.CullModeNone
	}
	opts := []pipeline.PipelineBuilderOption{
		pipeline.WithCullMode(cull),
		pipeline.WithTopology(req.Key.Topology, req.Key.StripFormat),
		pipeline.WithDepthCompare(req.Key.DepthCompare),
		pipeline.WithDepthWriteEnabled(req.Key.DepthWrite),
		pipeline.WithTargetFormats(req.Key.ColorFormat, req.Key.DepthFormat),
	}
	if req.Key.Transparent {
		opts = append(opts, pipeline.WithBlendState(pipeline.AlphaBlend()))
	}
	if p.depthBias != 0 || p.slopeScale != 0 {
		opts = append(opts, pipeline.WithDepthBias(p.depthBias, p.slopeScale))
	}
	if p.sampleCount != 0 {
		opts = append(opts, pipeline.WithSampleCount(p.sampleCount))
	}
	return opts
}

func buildShaded(fragment, params string) BuildFunc {
	return func(req BuildRequest, p *BaseProvider) (pipeline.Pipeline, error) {
		if req.Key.Kind == KindPBR && req.Environment.Kind() != environment.KindPBR {
			return nil, fmt.Errorf("pbr materials need a pbr environment, got %s", req.Environment.Kind())
		}
		source := ModelSource(req.Environment, req.Key.Skinned, params, fragment)
		layout := req.Material.Layout()
		fs := shader.NewShader(req.Name+"_fs", shader.ShaderTypeFragment, source,
			shader.WithBindGroupLayout(EnvironmentGroup, req.Environment.Layout().Label, req.Environment.Layout().Entries...),
			shader.WithBindGroupLayout(MaterialGroup, layout.Label, layout.Entries...),
		)
		opts := append([]pipeline.PipelineBuilderOption{
			pipeline.WithVertexShader(vertexShader(req, source)),
			pipeline.WithFragmentShader(fs),
		}, p.fixedFunction(req)...)
		return pipeline.NewPipeline(req.Name, pipeline.PipelineTypeRender, opts...), nil
	}
}

func buildDepth(req BuildRequest, p *BaseProvider) (pipeline.Pipeline, error) {
	source := ModelSource(req.Environment, req.Key.Skinned)
	opts := append([]pipeline.PipelineBuilderOption{
		pipeline.WithVertexShader(vertexShader(req, source)),
		pipeline.WithDepthOnly(),
	}, p.fixedFunction(req)...)
	return pipeline.NewPipeline(req.Name, pipeline.PipelineTypeRender, opts...), nil
}
