package light

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallGrid() ClusterConfig {
	cfg := DefaultClusterConfig()
	cfg.TilesX, cfg.TilesY, cfg.TilesZ = 4, 4, 4
	return cfg
}

func testCamera() camera.Camera {
	return camera.NewCamera(
		camera.WithPosition([3]float32{0, 0, 5}),
		camera.WithViewport(400, 400),
		camera.WithNear(0.1),
		camera.WithFar(100),
	)
}

func TestClusterBoundsFollowLogDepthSlices(t *testing.T) {
	cfg := smallGrid()
	cam := testCamera()
	bounds := ComputeClusterBounds(cfg, cam.InverseProjection(), 400, 400, 0.1, 100)
	require.Len(t, bounds, 64)

	for i, b := range bounds {
		for k := range 3 {
			assert.LessOrEqual(t, b.Min[k], b.Max[k], "cluster %d axis %d", i, k)
		}
	}

	first := bounds[cfg.Index(0, 0, 0)]
	assert.InDelta(t, -0.1, first.Max[2], 1e-4)
	last := bounds[cfg.Index(3, 3, 3)]
	assert.InDelta(t, -100, last.Min[2], 1e-2)

	// slice 1 of 4 ends at -near*(far/near)^(2/4)
	mid := bounds[cfg.Index(0, 0, 1)]
	assert.InDelta(t, -0.1*31.6227766, mid.Min[2], 1e-3)

	// tile x=0 is left of tile x=3 and tile y=0 is the top row
	assert.Less(t, first.Max[0], last.Max[0]+1e-6)
	top := bounds[cfg.Index(0, 0, 2)]
	bottom := bounds[cfg.Index(0, 3, 2)]
	assert.Greater(t, top.Max[1], bottom.Max[1])
}

func TestSinglePointLightLandsInIntersectingClustersOnly(t *testing.T) {
	cfg := smallGrid()
	require.Equal(t, 64, cfg.Total())
	cam := testCamera()
	bounds := ComputeClusterBounds(cfg, cam.InverseProjection(), 400, 400, 0.1, 100)

	const r = 3
	lights := []GPULight{{Position: [3]float32{1, 1, -5}, Range: r}}
	view := cam.View()
	got := AssignLights(cfg, bounds, lights, view)

	lightVS := view.TransformPoint(lights[0].Position)
	var want []int
	home := -1
	for i, b := range bounds {
		if sphereTouchesBox(lightVS, r, b) {
			want = append(want, i)
		}
		if boxContains(b, lightVS) {
			home = i
		}
	}
	require.NotEqual(t, -1, home, "the light sits inside the frustum")
	require.Contains(t, want, home)
	require.Less(t, len(want), cfg.Total())

	var hit []int
	var total uint32
	for i := range bounds {
		ids := got.Lights(i)
		total += got.Clusters[i].Count
		if len(ids) > 0 {
			assert.Equal(t, []uint32{0}, ids)
			hit = append(hit, i)
		}
	}
	assert.Equal(t, want, hit)
	assert.Equal(t, uint32(len(want)), total)
	assert.Equal(t, total, got.Offset)
	assert.Len(t, got.Indices, int(total))
}

// sphereTouchesBox sums the per-axis gaps between a sphere center and a box in float64.
func sphereTouchesBox(c [3]float32, r float64, b ClusterBounds) bool {
	var d float64
	for i := range 3 {
		var gap float64
		switch p := float64(c[i]); {
		case p < float64(b.Min[i]):
			gap = float64(b.Min[i]) - p
		case p > float64(b.Max[i]):
			gap = p - float64(b.Max[i])
		}
		d += gap * gap
	}
	return d <= r*r
}

func boxContains(b ClusterBounds, p [3]float32) bool {
	for i := range 3 {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func TestUnboundedLightsReachEveryClusterUpToTheCap(t *testing.T) {
	cfg := smallGrid()
	cfg.MaxLightsPerCluster = 2
	bounds := make([]ClusterBounds, cfg.Total())
	lights := []GPULight{{Range: 0}, {Range: -1}, {Range: 0}}

	got := AssignLights(cfg, bounds, lights, testCamera().View())

	for i := range bounds {
		assert.Equal(t, []uint32{0, 1}, got.Lights(i))
	}
	assert.Equal(t, uint32(cfg.Total()*2), got.Offset)
}

func TestAssignmentStopsAtIndexCapacity(t *testing.T) {
	cfg := DefaultClusterConfig()
	cfg.TilesX, cfg.TilesY, cfg.TilesZ = 1, 1, 2
	require.Equal(t, 128, cfg.MaxClusteredLights())

	lights := make([]GPULight, 100)
	got := AssignLights(cfg, make([]ClusterBounds, 2), lights, testCamera().View())

	assert.Equal(t, ClusterRange{Offset: 0, Count: 100}, got.Clusters[0])
	assert.Equal(t, ClusterRange{Offset: 100, Count: 28}, got.Clusters[1])
	assert.Equal(t, uint32(200), got.Offset)
	assert.Len(t, got.Indices, 128)
}

func TestClusterAssignerMatchesSequentialAssignment(t *testing.T) {
	cfg := smallGrid()
	cam := testCamera()
	bounds := ComputeClusterBounds(cfg, cam.InverseProjection(), 400, 400, 0.1, 100)
	var lights []GPULight
	for i := range 20 {
		f := float32(i)
		lights = append(lights, GPULight{
			Position: [3]float32{f*0.7 - 7, 3 - f*0.3, -f * 2},
			Range:    1 + f*0.25,
		})
	}

	want := AssignLights(cfg, bounds, lights, cam.View())
	assigner := NewClusterAssigner(WithWorkers(3))
	assert.Equal(t, 3, assigner.Workers())
	for range 3 {
		assert.Equal(t, want, assigner.Assign(cfg, bounds, lights, cam.View()))
	}
}

func TestDispatchSizeCoversEveryTile(t *testing.T) {
	assert.Equal(t, [3]uint32{8, 9, 12}, DefaultClusterConfig().DispatchSize())
	cfg := smallGrid()
	cfg.WorkgroupX, cfg.WorkgroupY, cfg.WorkgroupZ = 3, 4, 8
	assert.Equal(t, [3]uint32{2, 1, 1}, cfg.DispatchSize())
}

func TestMarshalLayouts(t *testing.T) {
	cfg := smallGrid()
	lights := ClusterLights{
		Offset:   3,
		Clusters: make([]ClusterRange, cfg.Total()),
		Indices:  []uint32{7, 8, 9},
	}
	buf := lights.Marshal(cfg)
	assert.Len(t, buf, int(ClusterLightsBufferSize(cfg)))
	assert.Equal(t, byte(3), buf[0])
	assert.Equal(t, byte(7), buf[4+cfg.Total()*8])

	header := GPUGlobalLights{}
	assert.Equal(t, 48, header.Size())
	assert.Len(t, header.Marshal(make([]GPULight, 2)), 48+64)
	assert.Equal(t, byte(2), header.Marshal(make([]GPULight, 2))[44])

	l := GPULight{}
	assert.Equal(t, 32, l.Size())
	assert.Len(t, MarshalClusterBounds(make([]ClusterBounds, 5)), 5*GPUClusterBoundsSize)
}

func TestClusterShadersDeclareInjectedConstants(t *testing.T) {
	cfg := smallGrid()
	src := LightsShaderSource(cfg)
	assert.True(t, strings.HasPrefix(src, "const tile_count = vec3<u32>(4u, 4u, 4u);"))
	assert.Contains(t, src, "const max_clustered_lights = 4096u;")

	for _, s := range []string{BoundsShaderSource(cfg), src} {
		if err := shader.Validate(s); err != nil {
			t.Skipf("naga cannot compile the cluster shaders: %v", err)
		}
	}
}

func TestLightDefaultsAndSetters(t *testing.T) {
	l := NewLight(LightTypePoint, WithPosition(1, 2, 3), WithRange(5), WithColor(1, 0, 0))
	assert.Equal(t, "point", l.Type().String())
	assert.True(t, l.Enabled())
	assert.Equal(t, GPULight{Position: [3]float32{1, 2, 3}, Range: 5, Color: [3]float32{1, 0, 0}, Intensity: 1}, l.GPU())

	l.SetDirection(0, 0, -4)
	assert.Equal(t, [3]float32{0, 0, -1}, l.Direction())
}

func TestShadowCameraLooksAtCenter(t *testing.T) {
	cam := ShadowCamera([3]float32{0, -1, 0}, [3]float32{0, 0, 0}, 10, 0.1, 50)
	assert.True(t, cam.Orthographic())
	assert.Equal(t, [3]float32{0, 25, 0}, cam.Position())
	assert.True(t, cam.SphereInFrustum([3]float32{0, 0, 0}, 1))
	assert.InDelta(t, 0.0293, ShadowNormalBias(10, 3, 2048), 1e-3)
}
