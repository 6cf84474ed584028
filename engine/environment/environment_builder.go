package environment

import "github.com/Carmen-Shannon/oxy-core/engine/light"

// PBREnvironmentBuilderOption is a function that configures a PBREnvironment during construction.
type PBREnvironmentBuilderOption func(*PBREnvironment)

// WithClusterConfig sets the cluster grid.
//
// Parameters:
//   - cfg: the grid dimensions, workgroup size and per-cluster light cap
//
// Returns:
//   - PBREnvironmentBuilderOption: a function that sets the grid
func WithClusterConfig(cfg light.ClusterConfig) PBREnvironmentBuilderOption {
	return func(e *PBREnvironment) {
		e.cfg = cfg
	}
}

// WithCPUClusters moves cluster bounds and light assignment onto the CPU. The results are
// uploaded directly and no compute pipelines are created.
//
// Parameters:
//   - enabled: true for the CPU path
//
// Returns:
//   - PBREnvironmentBuilderOption: a function that selects the cluster path
func WithCPUClusters(enabled bool) PBREnvironmentBuilderOption {
	return func(e *PBREnvironment) {
		e.cpuClusters = enabled
	}
}

// WithClusterAssigner sets the assigner used by the CPU cluster path.
func WithClusterAssigner(a light.ClusterAssigner) PBREnvironmentBuilderOption {
	return func(e *PBREnvironment) {
		e.assigner = a
	}
}

// WithMaxPointLights sets how many point lights the light buffer holds.
//
// Parameters:
//   - n: the light capacity
//
// Returns:
//   - PBREnvironmentBuilderOption: a function that sets the capacity
func WithMaxPointLights(n int) PBREnvironmentBuilderOption {
	return func(e *PBREnvironment) {
		e.maxLights = n
	}
}

// WithAmbientLight sets the ambient light.
func WithAmbientLight(l light.Light) PBREnvironmentBuilderOption {
	return func(e *PBREnvironment) {
		e.ambient = l
	}
}

// WithDirectionalLight sets the directional light.
func WithDirectionalLight(l light.Light) PBREnvironmentBuilderOption {
	return func(e *PBREnvironment) {
		e.directional = l
	}
}
