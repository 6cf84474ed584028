package light

// ClusterAssignerBuilderOption is a function that configures a ClusterAssigner during construction.
type ClusterAssignerBuilderOption func(*clusterAssigner)

// WithWorkers sets the maximum number of concurrent Z slice tasks.
//
// Parameters:
//   - n: the worker count, values below 1 become 1
//
// Returns:
//   - ClusterAssignerBuilderOption: a function that sets the worker count
func WithWorkers(n int) ClusterAssignerBuilderOption {
	return func(a *clusterAssigner) {
		a.workers = n
	}
}
