package renderer

import (
	"errors"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend overrides the calls the renderer routes; anything else panics on the nil embed.
type stubBackend struct {
	RendererBackend

	renderRegistrations  int
	computeRegistrations int
	dispatches           int
	configured           [][2]int
	failRender           error
}

func (s *stubBackend) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if s.failRender != nil {
		return s.failRender
	}
	s.renderRegistrations++
	return nil
}

func (s *stubBackend) RegisterComputePipeline(p pipeline.Pipeline) error {
	s.computeRegistrations++
	return nil
}

func (s *stubBackend) DispatchCompute(p pipeline.Pipeline, bindGroups []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) {
	s.dispatches++
}

func (s *stubBackend) ConfigureSurface(width, height int) {
	s.configured = append(s.configured, [2]int{width, height})
}

func newTestRenderer(backend *stubBackend) *renderer {
	return &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backend:       backend,
	}
}

func testRenderPipeline(key string) pipeline.Pipeline {
	vs := shader.NewShader(key+"_vs", shader.ShaderTypeVertex, "@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }")
	return pipeline.NewPipeline(key, pipeline.PipelineTypeRender, pipeline.WithVertexShader(vs), pipeline.WithDepthOnly())
}

func testComputePipeline(key string) pipeline.Pipeline {
	cs := shader.NewShader(key+"_cs", shader.ShaderTypeCompute, "@compute @workgroup_size(1) fn cs_main() {}")
	return pipeline.NewPipeline(key, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(cs))
}

func TestRegisterPipelinesRoutesByTypeAndSkipsKnownKeys(t *testing.T) {
	backend := &stubBackend{}
	r := newTestRenderer(backend)

	require.NoError(t, r.RegisterPipelines(testRenderPipeline("a"), testComputePipeline("b")))
	require.NoError(t, r.RegisterPipelines(testRenderPipeline("a")))

	assert.Equal(t, 1, backend.renderRegistrations)
	assert.Equal(t, 1, backend.computeRegistrations)
	assert.NotNil(t, r.Pipeline("a"))
	assert.NotNil(t, r.Pipeline("b"))
	assert.Nil(t, r.Pipeline("c"))
}

func TestRegisterPipelinesWrapsBackendError(t *testing.T) {
	boom := errors.New("boom")
	r := newTestRenderer(&stubBackend{failRender: boom})

	err := r.RegisterPipelines(testRenderPipeline("broken"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, r.Pipeline("broken"))
}

func TestDispatchComputeSkipsUnknownPipeline(t *testing.T) {
	backend := &stubBackend{}
	r := newTestRenderer(backend)
	require.NoError(t, r.RegisterPipelines(testComputePipeline("bounds")))

	r.DispatchCompute("missing", nil, [3]uint32{1, 1, 1})
	r.DispatchCompute("bounds", nil, [3]uint32{1, 1, 1})

	assert.Equal(t, 1, backend.dispatches)
}

func TestResizeIgnoresEmptySurface(t *testing.T) {
	backend := &stubBackend{}
	r := newTestRenderer(backend)

	r.Resize(0, 720)
	r.Resize(1280, 720)

	assert.Equal(t, [][2]int{{1280, 720}}, backend.configured)
}
