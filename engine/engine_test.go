package engine

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLayer struct {
	name  string
	log   *[]string
	pass  renderer.RenderPass
	sizes [][2]int
}

func (l *recordingLayer) Compute(r renderer.Renderer, dt float32) {
	*l.log = append(*l.log, l.name+":compute")
}

func (l *recordingLayer) Shadows(r renderer.Renderer) {
	*l.log = append(*l.log, l.name+":shadows")
}

func (l *recordingLayer) Draw(pass renderer.RenderPass, dt float32) {
	l.pass = pass
	*l.log = append(*l.log, l.name+":draw")
}

func (l *recordingLayer) Resize(width, height int) {
	l.sizes = append(l.sizes, [2]int{width, height})
}

func TestFrameRunsLayersInPhaseOrder(t *testing.T) {
	r := renderertest.NewRenderer()
	var calls []string
	world := &recordingLayer{name: "world", log: &calls}
	overlay := &recordingLayer{name: "overlay", log: &calls}

	e := NewEngine(WithRenderer(r), WithLayer(10, overlay), WithLayer(0, world))
	e.Frame(0.016)

	assert.Equal(t, []string{
		"world:compute", "overlay:compute",
		"world:shadows", "overlay:shadows",
		"world:draw", "overlay:draw",
	}, calls)
	assert.Equal(t, 1, r.ComputeFrames)
	assert.Equal(t, 1, r.Frames)
	assert.Same(t, r.MainPass, world.pass)
	assert.Nil(t, r.Pass(), "frame is closed after Frame returns")
}

func TestFrameWithoutLayersSkipsRendering(t *testing.T) {
	r := renderertest.NewRenderer()
	called := 0
	e := NewEngine(WithRenderer(r))
	e.SetRenderCallback(func(float32) { called++ })

	e.Frame(0.016)
	assert.Zero(t, r.Frames)
	assert.Equal(t, 1, called)
}

func TestLayerFuncs(t *testing.T) {
	r := renderertest.NewRenderer()
	draws := 0
	e := NewEngine(WithRenderer(r))
	e.AddLayer(0, LayerFuncs{DrawFn: func(pass renderer.RenderPass, dt float32) {
		require.NotNil(t, pass)
		draws++
	}})
	require.NotNil(t, e.Layer(0))
	assert.Len(t, e.Layers(), 1)

	e.Frame(0)
	e.Frame(0)
	assert.Equal(t, 2, draws)

	e.RemoveLayer(0)
	e.Frame(0)
	assert.Equal(t, 2, draws)
	assert.Nil(t, e.Layer(0))
}

func TestResizeReachesLayers(t *testing.T) {
	var calls []string
	l := &recordingLayer{name: "world", log: &calls}
	e := NewEngine(WithRenderer(renderertest.NewRenderer()), WithLayer(0, l)).(*engine)

	e.resize(640, 480)
	assert.Equal(t, [][2]int{{640, 480}}, l.sizes)
}

func TestProfilerTicksWhenEnabled(t *testing.T) {
	stats := profiler.NewStats()
	p := profiler.NewProfiler(profiler.WithStats(stats), profiler.WithInterval(time.Hour), profiler.WithMemoryStats(false))
	e := NewEngine(WithRenderer(renderertest.NewRenderer()), WithProfiler(p))
	assert.Same(t, p, e.Profiler())

	stats.Extra("draws", 3)
	e.Frame(0)
	assert.Equal(t, 3, stats.Get("draws"), "disabled profiler leaves counters alone")

	e.EnableProfiler()
	e.Frame(0)
	assert.Zero(t, stats.Get("draws"))
}

func TestRunWithoutWindowStopsOnQuit(t *testing.T) {
	r := renderertest.NewRenderer()
	ticks := make(chan struct{}, 1)
	e := NewEngine(WithRenderer(r), WithTickRate(1000), WithRenderFrameLimit(1000))
	e.SetTickCallback(func(float32) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("tick callback never ran")
	}
	e.Quit()
	e.Quit()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
}
