package environment

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/light"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallGrid() light.ClusterConfig {
	cfg := light.DefaultClusterConfig()
	cfg.TilesX, cfg.TilesY, cfg.TilesZ = 4, 4, 4
	return cfg
}

func newCamera() camera.Camera {
	return camera.NewCamera(
		camera.WithPosition([3]float32{0, 0, 5}),
		camera.WithViewport(320, 240),
	)
}

func dispatchKeys(r *renderertest.Renderer) []string {
	var keys []string
	for _, d := range r.Dispatches {
		keys = append(keys, d.PipelineKey)
	}
	return keys
}

func TestBoundsPassOnlyRunsWhenCameraParametersChange(t *testing.T) {
	r := renderertest.NewRenderer()
	cfg := smallGrid()
	env, err := NewPBREnvironment(r, WithClusterConfig(cfg))
	require.NoError(t, err)
	require.NotNil(t, r.Pipeline(light.BoundsPipelineKey(cfg)))
	require.NotNil(t, r.Pipeline(light.LightsPipelineKey(cfg)))

	cam := newCamera()
	env.Update(cam, time.Millisecond)
	env.Update(cam, time.Millisecond)

	bounds, lights := light.BoundsPipelineKey(cfg), light.LightsPipelineKey(cfg)
	assert.Equal(t, []string{bounds, lights, lights}, dispatchKeys(r))
	assert.Equal(t, 2, r.ComputeFrames)

	// moving the camera does not touch the bounds, resizing does
	cam.SetPosition([3]float32{3, 1, 5})
	env.Update(cam, time.Millisecond)
	cam.SetViewport(640, 480)
	env.Update(cam, time.Millisecond)
	cam.SetFar(50)
	env.Update(cam, time.Millisecond)

	assert.Equal(t, []string{bounds, lights, lights, lights, bounds, lights, bounds, lights}, dispatchKeys(r))
	assert.Equal(t, [3]uint32{1, 2, 1}, r.Dispatches[0].WorkGroupCount)
}

func TestLightPassResetsOffsetEveryFrame(t *testing.T) {
	r := renderertest.NewRenderer()
	env, err := NewPBREnvironment(r, WithClusterConfig(smallGrid()))
	require.NoError(t, err)

	cam := newCamera()
	for range 3 {
		env.Update(cam, time.Millisecond)
	}

	resets := r.WritesTo(env.BindGroup(), ClusterLightsBinding)
	require.Len(t, resets, 3)
	for _, w := range resets {
		assert.Equal(t, uint64(0), w.Offset)
		assert.Equal(t, []byte{0, 0, 0, 0}, w.Data)
	}
}

func TestLightBufferCarriesEnabledPointLights(t *testing.T) {
	r := renderertest.NewRenderer()
	env, err := NewPBREnvironment(r, WithClusterConfig(smallGrid()), WithMaxPointLights(2))
	require.NoError(t, err)

	a := light.NewLight(light.LightTypePoint, light.WithRange(4))
	b := light.NewLight(light.LightTypePoint, light.WithEnabled(false))
	c := light.NewLight(light.LightTypePoint)
	d := light.NewLight(light.LightTypePoint)
	assert.Equal(t, 1, env.AddPointLight(a))
	assert.Equal(t, 2, env.AddPointLight(b))
	env.AddPointLight(c)
	env.AddPointLight(d)

	env.Update(newCamera(), 0)
	writes := r.WritesTo(env.BindGroup(), LightsBinding)
	require.Len(t, writes, 1)
	data := writes[0].Data
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[44:]))
	assert.Len(t, data, 48+2*32)

	assert.True(t, env.RemovePointLight(b))
	assert.False(t, env.RemovePointLight(b))
	assert.Equal(t, []light.Light{a, c, d}, env.PointLights())
}

func TestCPUClustersMatchReferenceAssignment(t *testing.T) {
	r := renderertest.NewRenderer()
	cfg := smallGrid()
	env, err := NewPBREnvironment(r,
		WithClusterConfig(cfg),
		WithCPUClusters(true),
		WithClusterAssigner(light.NewClusterAssigner(light.WithWorkers(2))),
	)
	require.NoError(t, err)
	assert.True(t, env.CPUClusters())
	assert.Zero(t, r.Registrations)

	env.AddPointLight(light.NewLight(light.LightTypePoint, light.WithPosition(1, 0, -4), light.WithRange(2)))
	env.AddPointLight(light.NewLight(light.LightTypePoint, light.WithRange(0)))

	cam := newCamera()
	env.Update(cam, time.Millisecond)

	w, h := cam.Viewport()
	bounds := light.ComputeClusterBounds(cfg, cam.InverseProjection(), w, h, cam.Near(), cam.Far())
	lights := []light.GPULight{
		{Position: [3]float32{1, 0, -4}, Range: 2, Color: [3]float32{1, 1, 1}, Intensity: 1},
		{Range: 0, Color: [3]float32{1, 1, 1}, Intensity: 1},
	}
	want := light.AssignLights(cfg, bounds, lights, cam.View())
	assert.Equal(t, want, env.Clusters())
	assert.Empty(t, r.Dispatches)

	uploads := r.WritesTo(env.BindGroup(), ClusterLightsBinding)
	require.Len(t, uploads, 1)
	assert.Len(t, uploads[0].Data, int(light.ClusterLightsBufferSize(cfg)))
}

func TestUnlitEnvironmentWritesCameraUniform(t *testing.T) {
	r := renderertest.NewRenderer()
	env, err := NewUnlitEnvironment(r)
	require.NoError(t, err)
	assert.Equal(t, KindUnlit, env.Kind())
	assert.Equal(t, uint64(camera.GPUCameraUniformSize), env.BindGroup().BufferSize(0))

	env.Update(newCamera(), 0)
	writes := r.WritesTo(env.BindGroup(), 0)
	require.Len(t, writes, 1)
	assert.Len(t, writes[0].Data, camera.GPUCameraUniformSize)
	assert.Contains(t, env.ShaderSource(), "var<uniform> camera: CameraUniform")
}

func TestEnvironmentIDsAreUnique(t *testing.T) {
	r := renderertest.NewRenderer()
	a, err := NewUnlitEnvironment(r)
	require.NoError(t, err)
	b, err := NewPBREnvironment(r, WithClusterConfig(smallGrid()), WithCPUClusters(true))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "pbr", b.Kind().String())

	assert.NotPanics(t, func() {
		a.Release()
		b.Release()
	})
}
