package light

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/cluster_bounds.wgsl
var clusterBoundsSource string

//go:embed assets/cluster_lights.wgsl
var clusterLightsSource string

// ShaderPrelude returns the WGSL const declarations that size the cluster structs and
// workgroups for cfg. Every cluster shader source starts with it.
func ShaderPrelude(cfg ClusterConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "const tile_count = vec3<u32>(%du, %du, %du);\n", cfg.TilesX, cfg.TilesY, cfg.TilesZ)
	fmt.Fprintf(&b, "const total_tiles = %du;\n", cfg.Total())
	fmt.Fprintf(&b, "const max_lights_per_cluster = %du;\n", cfg.MaxLightsPerCluster)
	fmt.Fprintf(&b, "const max_clustered_lights = %du;\n", cfg.MaxClusteredLights())
	fmt.Fprintf(&b, "const workgroup_x = %du;\n", cfg.WorkgroupX)
	fmt.Fprintf(&b, "const workgroup_y = %du;\n", cfg.WorkgroupY)
	fmt.Fprintf(&b, "const workgroup_z = %du;\n", cfg.WorkgroupZ)
	return b.String()
}

// BoundsShaderSource returns the full WGSL of the cluster bounds pass for cfg.
func BoundsShaderSource(cfg ClusterConfig) string {
	return strings.Join([]string{
		ShaderPrelude(cfg),
		camera.GPUCameraUniformSource,
		GPUClusterSource,
		clusterBoundsSource,
	}, "\n")
}

// LightsShaderSource returns the full WGSL of the light assignment pass for cfg.
func LightsShaderSource(cfg ClusterConfig) string {
	return strings.Join([]string{
		ShaderPrelude(cfg),
		camera.GPUCameraUniformSource,
		GPUClusterSource,
		GPULightSource,
		clusterLightsSource,
	}, "\n")
}

// BoundsPipelineKey returns the pipeline key of the bounds pass for cfg.
func BoundsPipelineKey(cfg ClusterConfig) string {
	return fmt.Sprintf("cluster_bounds_%dx%dx%d", cfg.TilesX, cfg.TilesY, cfg.TilesZ)
}

// LightsPipelineKey returns the pipeline key of the light assignment pass for cfg.
func LightsPipelineKey(cfg ClusterConfig) string {
	return fmt.Sprintf("cluster_lights_%dx%dx%d_%d", cfg.TilesX, cfg.TilesY, cfg.TilesZ, cfg.MaxLightsPerCluster)
}

func (c ClusterConfig) workgroupSize() [3]uint32 {
	return [3]uint32{uint32(c.WorkgroupX), uint32(c.WorkgroupY), uint32(c.WorkgroupZ)}
}

// NewBoundsPipeline builds the compute pipeline of the bounds pass.
//
// Bind groups: 0 holds the camera uniform, 1 holds the read-write cluster bounds.
//
// Parameters:
//   - cfg: the grid
//
// Returns:
//   - pipeline.Pipeline: the compute pipeline descriptor, not yet registered
func NewBoundsPipeline(cfg ClusterConfig) pipeline.Pipeline {
	cs := shader.NewShader(BoundsPipelineKey(cfg), shader.ShaderTypeCompute, BoundsShaderSource(cfg),
		shader.WithWorkgroupSize(cfg.workgroupSize()),
		shader.WithBindGroupLayout(0, "Cluster Bounds Camera",
			shader.UniformEntry(0, wgpu.ShaderStageCompute, uint64(camera.GPUCameraUniformSize)),
		),
		shader.WithBindGroupLayout(1, "Cluster Bounds",
			shader.StorageEntry(0, wgpu.ShaderStageCompute, false, uint64(cfg.Total()*GPUClusterBoundsSize)),
		),
	)
	return pipeline.NewPipeline(BoundsPipelineKey(cfg), pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
	)
}

// NewLightsPipeline builds the compute pipeline of the light assignment pass.
//
// Bind group 0 holds the camera uniform (0), cluster bounds (1), cluster lights (2) and the
// global lights (3).
//
// Parameters:
//   - cfg: the grid
//
// Returns:
//   - pipeline.Pipeline: the compute pipeline descriptor, not yet registered
func NewLightsPipeline(cfg ClusterConfig) pipeline.Pipeline {
	cs := shader.NewShader(LightsPipelineKey(cfg), shader.ShaderTypeCompute, LightsShaderSource(cfg),
		shader.WithWorkgroupSize(cfg.workgroupSize()),
		shader.WithBindGroupLayout(0, "Cluster Lights",
			shader.UniformEntry(0, wgpu.ShaderStageCompute, uint64(camera.GPUCameraUniformSize)),
			shader.StorageEntry(1, wgpu.ShaderStageCompute, true, uint64(cfg.Total()*GPUClusterBoundsSize)),
			shader.StorageEntry(2, wgpu.ShaderStageCompute, false, ClusterLightsBufferSize(cfg)),
			shader.StorageEntry(3, wgpu.ShaderStageCompute, true, 0),
		),
	)
	return pipeline.NewPipeline(LightsPipelineKey(cfg), pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
	)
}
