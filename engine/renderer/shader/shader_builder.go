package shader

import "github.com/cogentcore/webgpu/wgpu"

// ShaderBuilderOption is a functional option used to configure a Shader during construction.
type ShaderBuilderOption func(*shader)

// WithEntryPoint overrides the stage's default entry point name.
//
// Parameters:
//   - name: the WGSL function name of the entry point
//
// Returns:
//   - ShaderBuilderOption: a function that sets the entry point
func WithEntryPoint(name string) ShaderBuilderOption {
	return func(s *shader) {
		s.entryPoint = name
	}
}

// WithBindGroupLayout declares the layout of one bind group used by the shader.
// Entries with a zero Visibility get the shader's own stage.
//
// Parameters:
//   - group: the @group index
//   - label: the debug label of the layout
//   - entries: the layout entries, one per @binding
//
// Returns:
//   - ShaderBuilderOption: a function that declares the bind group layout
func WithBindGroupLayout(group int, label string, entries ...wgpu.BindGroupLayoutEntry) ShaderBuilderOption {
	return func(s *shader) {
		stage := stageVisibility(s.shaderType)
		declared := make([]wgpu.BindGroupLayoutEntry, len(entries))
		for i, e := range entries {
			if e.Visibility == wgpu.ShaderStageNone {
				e.Visibility = stage
			}
			declared[i] = e
		}
		s.layouts[group] = wgpu.BindGroupLayoutDescriptor{Label: label, Entries: declared}
	}
}

// WithVertexLayouts declares the vertex buffers consumed by a vertex shader, in slot order.
//
// Parameters:
//   - layouts: the vertex buffer layouts
//
// Returns:
//   - ShaderBuilderOption: a function that sets the vertex layouts
func WithVertexLayouts(layouts ...wgpu.VertexBufferLayout) ShaderBuilderOption {
	return func(s *shader) {
		s.vertexLayouts = layouts
	}
}

// WithWorkgroupSize records the @workgroup_size of a compute shader.
//
// Parameters:
//   - size: the workgroup size as [x, y, z]
//
// Returns:
//   - ShaderBuilderOption: a function that sets the workgroup size
func WithWorkgroupSize(size [3]uint32) ShaderBuilderOption {
	return func(s *shader) {
		s.workgroupSize = size
	}
}

func stageVisibility(t ShaderType) wgpu.ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return wgpu.ShaderStageVertex
	case ShaderTypeFragment:
		return wgpu.ShaderStageFragment
	case ShaderTypeCompute:
		return wgpu.ShaderStageCompute
	default:
		return wgpu.ShaderStageNone
	}
}
