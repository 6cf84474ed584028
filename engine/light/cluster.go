package light

import (
	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/chewxy/math32"
)

// Default cluster grid dimensions.
const (
	DefaultTilesX              = 32
	DefaultTilesY              = 18
	DefaultTilesZ              = 48
	DefaultWorkgroupX          = 4
	DefaultWorkgroupY          = 2
	DefaultWorkgroupZ          = 4
	DefaultMaxLightsPerCluster = 256

	// clusteredLightsPerTile sizes the shared index array relative to the tile count.
	clusteredLightsPerTile = 64
)

// ClusterConfig describes the 3D tile grid laid over the view frustum.
type ClusterConfig struct {
	TilesX, TilesY, TilesZ             int
	WorkgroupX, WorkgroupY, WorkgroupZ int
	MaxLightsPerCluster                int
}

// DefaultClusterConfig returns a 32x18x48 grid with 4x2x4 workgroups and 256 lights per cluster.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		TilesX:              DefaultTilesX,
		TilesY:              DefaultTilesY,
		TilesZ:              DefaultTilesZ,
		WorkgroupX:          DefaultWorkgroupX,
		WorkgroupY:          DefaultWorkgroupY,
		WorkgroupZ:          DefaultWorkgroupZ,
		MaxLightsPerCluster: DefaultMaxLightsPerCluster,
	}
}

// Total returns the number of clusters in the grid.
func (c ClusterConfig) Total() int {
	return c.TilesX * c.TilesY * c.TilesZ
}

// MaxClusteredLights returns the capacity of the shared light index array.
func (c ClusterConfig) MaxClusteredLights() int {
	return c.Total() * clusteredLightsPerTile
}

// Index returns the linear cluster index of tile (x, y, z).
func (c ClusterConfig) Index(x, y, z int) int {
	return x + y*c.TilesX + z*c.TilesX*c.TilesY
}

// DispatchSize returns the number of workgroups needed to cover every tile.
//
// Returns:
//   - [3]uint32: workgroup counts as [x, y, z]
func (c ClusterConfig) DispatchSize() [3]uint32 {
	ceil := func(n, d int) uint32 {
		if d <= 0 {
			return uint32(n)
		}
		return uint32((n + d - 1) / d)
	}
	return [3]uint32{
		ceil(c.TilesX, c.WorkgroupX),
		ceil(c.TilesY, c.WorkgroupY),
		ceil(c.TilesZ, c.WorkgroupZ),
	}
}

// ClusterBounds is the view-space AABB of one cluster.
type ClusterBounds struct {
	Min [3]float32
	Max [3]float32
}

// ClusterRange locates one cluster's light indices in ClusterLights.Indices.
type ClusterRange struct {
	Offset uint32
	Count  uint32
}

// ClusterLights is the result of one light assignment pass.
type ClusterLights struct {
	// Offset is the final value of the shared offset counter. It may exceed the index capacity
	// when clusters were dropped.
	Offset   uint32
	Clusters []ClusterRange
	Indices  []uint32
}

// Lights returns the light indices recorded for cluster i.
func (c *ClusterLights) Lights(i int) []uint32 {
	r := c.Clusters[i]
	return c.Indices[r.Offset : r.Offset+r.Count]
}

// ComputeClusterBounds computes the view-space AABB of every cluster, in cluster index order.
//
// Each tile's min and max screen corners are brought into view space through invProj, then the
// rays from the eye through them are cut by the tile's near and far depth slices. Slices are
// spaced logarithmically: slice z spans -near*(far/near)^(z/Z) to -near*(far/near)^((z+1)/Z).
//
// Parameters:
//   - cfg: the grid
//   - invProj: the inverse of the camera projection
//   - outputW, outputH: the render target size in pixels
//   - near, far: the camera clip planes
//
// Returns:
//   - []ClusterBounds: cfg.Total() bounds
func ComputeClusterBounds(cfg ClusterConfig, invProj common.Mat4, outputW, outputH, near, far float32) []ClusterBounds {
	bounds := make([]ClusterBounds, cfg.Total())
	tileW := outputW / float32(cfg.TilesX)
	tileH := outputH / float32(cfg.TilesY)

	screenToView := func(sx, sy float32) [3]float32 {
		u, v := sx/outputW, sy/outputH
		clip := [4]float32{u*2 - 1, (1-v)*2 - 1, 0, 1}
		p := invProj.TransformVec4(clip)
		return [3]float32{p[0] / p[3], p[1] / p[3], p[2] / p[3]}
	}
	// the eye sits at the view-space origin so the ray is b scaled to reach the plane
	toPlane := func(b [3]float32, z float32) [3]float32 {
		t := z / b[2]
		return [3]float32{b[0] * t, b[1] * t, b[2] * t}
	}

	ratio := far / near
	for z := 0; z < cfg.TilesZ; z++ {
		tileNear := -near * math32.Pow(ratio, float32(z)/float32(cfg.TilesZ))
		tileFar := -near * math32.Pow(ratio, float32(z+1)/float32(cfg.TilesZ))
		for y := 0; y < cfg.TilesY; y++ {
			for x := 0; x < cfg.TilesX; x++ {
				minVS := screenToView(float32(x)*tileW, float32(y)*tileH)
				maxVS := screenToView(float32(x+1)*tileW, float32(y+1)*tileH)
				pts := [4][3]float32{
					toPlane(minVS, tileNear),
					toPlane(minVS, tileFar),
					toPlane(maxVS, tileNear),
					toPlane(maxVS, tileFar),
				}
				b := ClusterBounds{Min: pts[0], Max: pts[0]}
				for _, p := range pts[1:] {
					for i := range 3 {
						b.Min[i] = min(b.Min[i], p[i])
						b.Max[i] = max(b.Max[i], p[i])
					}
				}
				bounds[cfg.Index(x, y, z)] = b
			}
		}
	}
	return bounds
}

// AssignLights assigns lights to clusters the way the light assignment compute pass does,
// visiting clusters in index order.
//
// A light with Range <= 0 lands in every cluster. Otherwise its view-space position must be
// within Range of the cluster AABB. At most cfg.MaxLightsPerCluster lights are kept per
// cluster. Each cluster reserves its count from a shared offset that starts at zero; once the
// offset reaches cfg.MaxClusteredLights nothing more is recorded.
//
// Parameters:
//   - cfg: the grid
//   - bounds: the cluster bounds from ComputeClusterBounds
//   - lights: the point lights, indexed by position
//   - view: the camera view matrix
//
// Returns:
//   - ClusterLights: per-cluster ranges into a shared index array
func AssignLights(cfg ClusterConfig, bounds []ClusterBounds, lights []GPULight, view common.Mat4) ClusterLights {
	viewLights := toViewSpace(lights, view)
	perCluster := make([][]uint32, len(bounds))
	for i := range bounds {
		perCluster[i] = collectCluster(cfg, bounds[i], viewLights, nil)
	}
	return packClusters(cfg, perCluster)
}

type viewLight struct {
	position [3]float32
	rangeSq  float32
	infinite bool
}

func toViewSpace(lights []GPULight, view common.Mat4) []viewLight {
	out := make([]viewLight, len(lights))
	for i, l := range lights {
		out[i] = viewLight{
			position: view.TransformPoint(l.Position),
			rangeSq:  l.Range * l.Range,
			infinite: l.Range <= 0,
		}
	}
	return out
}

func collectCluster(cfg ClusterConfig, b ClusterBounds, lights []viewLight, dst []uint32) []uint32 {
	for i, l := range lights {
		if l.infinite || sqDistPointAABB(l.position, b) <= l.rangeSq {
			dst = append(dst, uint32(i))
		}
		if len(dst) == cfg.MaxLightsPerCluster {
			break
		}
	}
	return dst
}

func sqDistPointAABB(p [3]float32, b ClusterBounds) float32 {
	var d float32
	for i := range 3 {
		c := min(max(p[i], b.Min[i]), b.Max[i])
		d += (c - p[i]) * (c - p[i])
	}
	return d
}

func packClusters(cfg ClusterConfig, perCluster [][]uint32) ClusterLights {
	capacity := uint32(cfg.MaxClusteredLights())
	out := ClusterLights{
		Clusters: make([]ClusterRange, len(perCluster)),
	}
	for i, ids := range perCluster {
		offset := out.Offset
		out.Offset += uint32(len(ids))
		if offset >= capacity {
			continue
		}
		stored := min(uint32(len(ids)), capacity-offset)
		out.Indices = append(out.Indices, ids[:stored]...)
		out.Clusters[i] = ClusterRange{Offset: offset, Count: stored}
	}
	return out
}
