package profiler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsAccumulateConcurrently(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.Extra("draw calls", 1)
			}
		}()
	}
	wg.Wait()
	s.Extra("sprites", 3)

	assert.Equal(t, 800, s.Get("draw calls"))
	assert.Equal(t, map[string]int{"draw calls": 800, "sprites": 3}, s.Snapshot())
	assert.Equal(t, "draw calls: 800 | sprites: 3", s.String())

	s.Reset()
	assert.Zero(t, s.Get("draw calls"))
	assert.Empty(t, s.Snapshot())
}

func TestTickAveragesCountersPerFrame(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewStats()
	p := NewProfiler(WithStats(s), WithMemoryStats(false), WithInterval(time.Second))
	p.now = func() time.Time { return now }
	p.lastTime = now

	for i := range 4 {
		s.Extra("ModelBatch draw calls", 2*(i+1))
		now = now.Add(250 * time.Millisecond)
		logged := p.Tick()
		assert.Equal(t, i == 3, logged)
	}

	r := p.Last()
	require.Equal(t, 4, r.Frames)
	assert.InDelta(t, 4.0, r.FPS, 1e-9)
	assert.InDelta(t, 5.0, r.Counters["ModelBatch draw calls"], 1e-9)
	assert.Zero(t, s.Get("ModelBatch draw calls"))
	assert.Contains(t, r.String(), "ModelBatch draw calls: 5.0")
	assert.NotContains(t, r.String(), "Heap")
}
