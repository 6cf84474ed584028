package light

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-core/common"
)

type clusterAssigner struct {
	pool    worker.DynamicWorkerPool
	workers int
	taskID  int
}

// ClusterAssigner runs light assignment on the CPU, one Z slice per task on a reusable worker
// pool. It produces exactly what AssignLights produces: slices are collected in parallel and
// the shared offsets are handed out afterwards in cluster order.
type ClusterAssigner interface {
	// Assign assigns lights to clusters.
	//
	// Parameters:
	//   - cfg: the grid
	//   - bounds: the cluster bounds from ComputeClusterBounds
	//   - lights: the point lights, indexed by position
	//   - view: the camera view matrix
	//
	// Returns:
	//   - ClusterLights: per-cluster ranges into a shared index array
	Assign(cfg ClusterConfig, bounds []ClusterBounds, lights []GPULight, view common.Mat4) ClusterLights

	// Workers returns the maximum number of concurrent slice tasks.
	//
	// Returns:
	//   - int: the worker count
	Workers() int
}

var _ ClusterAssigner = &clusterAssigner{}

// NewClusterAssigner creates a ClusterAssigner backed by a dynamic worker pool. Workers default
// to runtime.NumCPU().
//
// Parameters:
//   - opts: variadic list of ClusterAssignerBuilderOption functions
//
// Returns:
//   - ClusterAssigner: the assigner
func NewClusterAssigner(opts ...ClusterAssignerBuilderOption) ClusterAssigner {
	a := &clusterAssigner{
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers < 1 {
		a.workers = 1
	}
	// idle workers exit after a second, so a paused scene holds no goroutines
	a.pool = worker.NewDynamicWorkerPool(a.workers, 256, 1*time.Second)
	return a
}

func (a *clusterAssigner) Workers() int {
	return a.workers
}

func (a *clusterAssigner) Assign(cfg ClusterConfig, bounds []ClusterBounds, lights []GPULight, view common.Mat4) ClusterLights {
	viewLights := toViewSpace(lights, view)
	perCluster := make([][]uint32, len(bounds))
	sliceSize := cfg.TilesX * cfg.TilesY

	// pool.Wait blocks until workers idle out, so each call barriers on its own WaitGroup
	var wg sync.WaitGroup
	for z := 0; z < cfg.TilesZ; z++ {
		start := z * sliceSize
		end := min(start+sliceSize, len(bounds))
		if start >= end {
			break
		}
		wg.Add(1)
		a.taskID++
		a.pool.SubmitTask(worker.Task{
			ID: a.taskID,
			Do: func() (any, error) {
				defer wg.Done()
				for i := start; i < end; i++ {
					perCluster[i] = collectCluster(cfg, bounds[i], viewLights, nil)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	return packClusters(cfg, perCluster)
}
