package material

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-core/engine/environment"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// RenderOrder orders pipelines within a flush. Lower orders draw first.
type RenderOrder int

const (
	// RenderOrderDefault is used by opaque materials.
	RenderOrderDefault RenderOrder = 0

	// RenderOrderTransparent draws blended materials after every opaque pipeline.
	RenderOrderTransparent RenderOrder = 1000
)

const (
	// InstanceRecordSize is the byte size of one instance record: a mat4 and a color.
	InstanceRecordSize = 80

	// InstanceRecordBinding holds the instance records.
	InstanceRecordBinding = 0

	// InstanceVisibleBinding holds the indices of the visible instance records.
	InstanceVisibleBinding = 1

	// SkinJointBinding holds the joint matrices of a skin.
	SkinJointBinding = 0
)

// InstanceLayout returns the layout every material pipeline expects at InstanceGroup.
func InstanceLayout() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Label: "Instances",
		Entries: []wgpu.BindGroupLayoutEntry{
			shader.StorageEntry(InstanceRecordBinding, wgpu.ShaderStageVertex, true, InstanceRecordSize),
			shader.StorageEntry(InstanceVisibleBinding, wgpu.ShaderStageVertex, true, 4),
		},
	}
}

// SkinLayout returns the layout skinned pipelines expect at SkinGroup.
func SkinLayout() wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Label: "Skin",
		Entries: []wgpu.BindGroupLayoutEntry{
			shader.StorageEntry(SkinJointBinding, wgpu.ShaderStageVertex, true, 64),
		},
	}
}

// PipelineKey identifies one material pipeline. Equal keys share a pipeline.
type PipelineKey struct {
	Kind         Kind
	Skinned      bool
	Transparent  bool
	DoubleSided  bool
	DepthWrite   bool
	DepthCompare wgpu.CompareFunction
	VertexLayout string
	Topology     wgpu.PrimitiveTopology
	StripFormat  wgpu.IndexFormat
	ColorFormat  wgpu.TextureFormat
	DepthFormat  wgpu.TextureFormat
	Environment  int
}

// NewPipelineKey collects the key of a material drawn with the given geometry and targets.
func NewPipelineKey(mat Material, env environment.Environment, layout wgpu.VertexBufferLayout, topology wgpu.PrimitiveTopology, stripFormat wgpu.IndexFormat, colorFormat, depthFormat wgpu.TextureFormat) PipelineKey {
	return PipelineKey{
		Kind:         mat.Kind(),
		Skinned:      mat.Skinned(),
		Transparent:  mat.Transparent(),
		DoubleSided:  mat.DoubleSided(),
		DepthWrite:   mat.DepthWrite(),
		DepthCompare: mat.DepthCompare(),
		VertexLayout: shader.VertexLayoutKey(layout),
		Topology:     topology,
		StripFormat:  stripFormat,
		ColorFormat:  colorFormat,
		DepthFormat:  depthFormat,
		Environment:  env.ID(),
	}
}

// String returns the key in the form used for the renderer's pipeline cache.
func (k PipelineKey) String() string {
	return fmt.Sprintf("%s_s%t_t%t_d%t_w%t_c%d_[%s]_p%d_i%d_f%d_%d_env%d",
		k.Kind, k.Skinned, k.Transparent, k.DoubleSided, k.DepthWrite, k.DepthCompare,
		k.VertexLayout, k.Topology, k.StripFormat, k.ColorFormat, k.DepthFormat, k.Environment)
}

// MaterialPipeline is a render pipeline bound to the environment it was built for.
type MaterialPipeline struct {
	Key         PipelineKey
	Environment environment.Environment
	RenderOrder RenderOrder
	Pipeline    pipeline.Pipeline

	// Layouts are the bind group layouts of the pipeline keyed by group.
	Layouts map[int]wgpu.BindGroupLayoutDescriptor

	// DepthOnly pipelines have no fragment stage and no MaterialGroup.
	DepthOnly bool
}

// ComparePipelines orders pipelines by render order, then by environment id.
func ComparePipelines(a, b *MaterialPipeline) int {
	if c := cmp.Compare(a.RenderOrder, b.RenderOrder); c != 0 {
		return c
	}
	return cmp.Compare(a.Environment.ID(), b.Environment.ID())
}

// SortPipelines sorts in place with ComparePipelines. Equal pipelines keep their order.
func SortPipelines(pipelines []*MaterialPipeline) {
	slices.SortStableFunc(pipelines, ComparePipelines)
}

// PipelineProvider resolves the pipeline a material draws with.
type PipelineProvider interface {
	// GetMaterialPipeline returns the pipeline for a material drawn in an environment with the
	// given geometry and targets, creating and registering it on first use.
	//
	// Parameters:
	//   - r: the renderer the pipeline is registered with
	//   - mat: the material
	//   - env: the environment bound at EnvironmentGroup
	//   - layout: the vertex buffer layout of the mesh
	//   - topology: the primitive topology
	//   - stripFormat: the strip index format, undefined for list topologies
	//   - colorFormat: the color target format
	//   - depthFormat: the depth target format
	//
	// Returns:
	//   - *MaterialPipeline: the cached pipeline
	//   - error: an error if the pipeline could not be built or registered
	GetMaterialPipeline(r renderer.Renderer, mat Material, env environment.Environment, layout wgpu.VertexBufferLayout, topology wgpu.PrimitiveTopology, stripFormat wgpu.IndexFormat, colorFormat, depthFormat wgpu.TextureFormat) (*MaterialPipeline, error)

	// Release drops every cached pipeline. The renderer keeps owning the GPU objects.
	Release()
}
