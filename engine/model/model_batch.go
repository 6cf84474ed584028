// Package model submits mesh primitives for instanced drawing. A ModelBatch resolves the
// pipeline of every submitted primitive through the pipeline provider of its material kind,
// groups primitives by pipeline, and draws each group with as few state changes as possible.
package model

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/environment"
	"github.com/Carmen-Shannon/oxy-core/engine/mesh"
	"github.com/Carmen-Shannon/oxy-core/engine/node3d"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/cogentcore/webgpu/wgpu"
)

// Stat names reported to profiler.Stats on every draw.
const (
	DrawCallsStat = "ModelBatch draw calls"
	InstancedStat = "ModelBatch instanced count"
)

// entry is one queued draw: a primitive and the material it is drawn with.
type entry struct {
	prim mesh.MeshPrimitive
	mat  material.Material
}

// queueKey identifies one queued draw. A primitive drawn with two materials that share a
// pipeline is queued twice.
type queueKey struct {
	pipeline *material.MaterialPipeline
	prim     mesh.MeshPrimitive
	material int
}

// modelBatch is the implementation of the ModelBatch interface.
type modelBatch struct {
	mu          *sync.Mutex
	r           renderer.Renderer
	label       string
	stats       *profiler.Stats
	colorFormat wgpu.TextureFormat
	depthFormat wgpu.TextureFormat
	shadow      bool

	providers map[material.Kind]material.PipelineProvider

	pipelines []*material.MaterialPipeline
	queued    map[*material.MaterialPipeline][]entry
	seen      map[queueKey]struct{}
	pool      [][]entry

	materialGroups map[int]bind_group_provider.BindGroupProvider
	skinGroups     map[int]bind_group_provider.BindGroupProvider
	updated        map[int]struct{}
}

// ModelBatch queues mesh primitives during a frame and draws them on Flush.
type ModelBatch interface {
	// AddPipelineProvider registers the provider that builds pipelines for one material kind.
	//
	// Parameters:
	//   - kind: the material kind
	//   - provider: the pipeline provider
	//
	// Returns:
	//   - error: material.ErrProviderRegistered if the kind already has a provider
	AddPipelineProvider(kind material.Kind, provider material.PipelineProvider) error

	// RemovePipelineProvider unregisters the provider of a kind and returns it, or nil.
	RemovePipelineProvider(kind material.Kind) material.PipelineProvider

	// ColorFormat returns the color target format pipelines are built for.
	ColorFormat() wgpu.TextureFormat

	// DepthFormat returns the depth target format pipelines are built for.
	DepthFormat() wgpu.TextureFormat

	// PreparePipeline resolves the primitive's pipeline and creates its material, skin and
	// instance bind groups without queuing a draw. Loading code calls it ahead of the first
	// frame so that frame does not stall.
	//
	// Parameters:
	//   - prim: the primitive
	//   - env: the environment it will be drawn in
	//
	// Returns:
	//   - error: an error wrapping material.ErrPipelineNotFound when no provider serves the
	//     material kind, or any GPU creation error
	PreparePipeline(prim mesh.MeshPrimitive, env environment.Environment) error

	// PrepareNode runs PreparePipeline for every primitive in a subtree.
	PrepareNode(tree *node3d.Tree, h node3d.Handle, env environment.Environment) error

	// Render queues prim with its own material and marks every instance visible. A material
	// that cannot be made ready is skipped for this frame.
	//
	// Parameters:
	//   - prim: the primitive
	//   - env: the environment to draw it in
	Render(prim mesh.MeshPrimitive, env environment.Environment)

	// RenderWithMaterial is Render with mat instead of the primitive's material.
	//
	// Parameters:
	//   - prim: the primitive
	//   - mat: the material to draw with
	//   - env: the environment to draw it in
	RenderWithMaterial(prim mesh.MeshPrimitive, mat material.Material, env environment.Environment)

	// RenderNode queues every primitive in a subtree with all of its instances visible.
	RenderNode(tree *node3d.Tree, h node3d.Handle, env environment.Environment)

	// RenderNodeCulled queues the primitives of a subtree that survive frustum culling against
	// cam. Only instances of surviving nodes are drawn.
	RenderNodeCulled(tree *node3d.Tree, h node3d.Handle, cam camera.Camera, env environment.Environment)

	// Flush draws everything queued since the last Flush into pass and clears the queue. Each
	// environment is updated once with cam and dt before its first pipeline draws. Visibility of
	// every queued primitive is reset after all of its draws.
	//
	// Parameters:
	//   - pass: the open render pass
	//   - cam: the camera the environments are updated with
	//   - dt: the frame time
	Flush(pass renderer.RenderPass, cam camera.Camera, dt time.Duration)

	// Release releases every pipeline provider and forgets the cached bind groups. Materials,
	// skins and primitives stay owned by the caller.
	Release()
}

var _ ModelBatch = &modelBatch{}

// NewModelBatch creates a batch drawing into the renderer's surface. No pipeline providers are
// registered; add one per material kind in use.
//
// Parameters:
//   - r: the renderer
//   - opts: functional options
//
// Returns:
//   - ModelBatch: the batch
func NewModelBatch(r renderer.Renderer, opts ...ModelBatchBuilderOption) ModelBatch {
	b := newBatch(r, "ModelBatch", r.SurfaceFormat(), wgpu.TextureFormatDepth24PlusStencil8)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func newBatch(r renderer.Renderer, label string, color, depth wgpu.TextureFormat) *modelBatch {
	return &modelBatch{
		mu:             &sync.Mutex{},
		r:              r,
		label:          label,
		stats:          profiler.EngineStats,
		colorFormat:    color,
		depthFormat:    depth,
		providers:      make(map[material.Kind]material.PipelineProvider),
		queued:         make(map[*material.MaterialPipeline][]entry),
		seen:           make(map[queueKey]struct{}),
		materialGroups: make(map[int]bind_group_provider.BindGroupProvider),
		skinGroups:     make(map[int]bind_group_provider.BindGroupProvider),
		updated:        make(map[int]struct{}),
	}
}

func (b *modelBatch) AddPipelineProvider(kind material.Kind, provider material.PipelineProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.providers[kind]; ok {
		return fmt.Errorf("%w: %s", material.ErrProviderRegistered, kind)
	}
	b.providers[kind] = provider
	return nil
}

func (b *modelBatch) RemovePipelineProvider(kind material.Kind) material.PipelineProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.providers[kind]
	delete(b.providers, kind)
	return p
}

func (b *modelBatch) ColorFormat() wgpu.TextureFormat {
	return b.colorFormat
}

func (b *modelBatch) DepthFormat() wgpu.TextureFormat {
	return b.depthFormat
}

// resolve returns the pipeline of prim drawn with mat. The caller holds b.mu.
func (b *modelBatch) resolve(prim mesh.MeshPrimitive, mat material.Material, env environment.Environment) (*material.MaterialPipeline, error) {
	provider, ok := b.providers[mat.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: no provider for %s materials", material.ErrPipelineNotFound, mat.Kind())
	}
	return provider.GetMaterialPipeline(b.r, mat, env, prim.Mesh().Layout(), prim.Topology(), prim.StripIndexFormat(), b.colorFormat, b.depthFormat)
}

// bindGroups makes mat ready and caches the material and skin bind groups. Depth-only batches
// never bind the material. The caller holds b.mu.
func (b *modelBatch) bindGroups(prim mesh.MeshPrimitive, mat material.Material) error {
	if !b.shadow {
		if !mat.Ready() {
			if err := mat.Prepare(b.r); err != nil {
				return err
			}
		}
		if _, ok := b.materialGroups[mat.ID()]; !ok {
			b.materialGroups[mat.ID()] = mat.BindGroup()
		}
	}
	if skin := prim.Skin(); mat.Skinned() && skin != nil {
		if _, ok := b.skinGroups[skin.ID()]; !ok {
			b.skinGroups[skin.ID()] = skin.BindGroup()
		}
	}
	return nil
}

func (b *modelBatch) PreparePipeline(prim mesh.MeshPrimitive, env environment.Environment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mat := prim.Material()
	if _, err := b.resolve(prim, mat, env); err != nil {
		return err
	}
	if err := b.bindGroups(prim, mat); err != nil {
		return err
	}
	return prim.PrepareBuffers()
}

func (b *modelBatch) PrepareNode(tree *node3d.Tree, h node3d.Handle, env environment.Environment) error {
	var prims []mesh.MeshPrimitive
	tree.ForEachMeshPrimitive(h, func(prim mesh.MeshPrimitive) {
		prims = append(prims, prim)
	})
	// the traversal marks instances visible until it finishes, so reset afterwards
	var firstErr error
	for _, prim := range prims {
		if err := b.PreparePipeline(prim, env); err != nil && firstErr == nil {
			firstErr = err
		}
		prim.ResetVisibility()
	}
	return firstErr
}

func (b *modelBatch) Render(prim mesh.MeshPrimitive, env environment.Environment) {
	prim.MarkAllVisible()
	b.submit(prim, prim.Material(), env)
}

func (b *modelBatch) RenderWithMaterial(prim mesh.MeshPrimitive, mat material.Material, env environment.Environment) {
	prim.MarkAllVisible()
	b.submit(prim, mat, env)
}

func (b *modelBatch) RenderNode(tree *node3d.Tree, h node3d.Handle, env environment.Environment) {
	tree.ForEachMeshPrimitive(h, func(prim mesh.MeshPrimitive) {
		b.submit(prim, prim.Material(), env)
	})
}

func (b *modelBatch) RenderNodeCulled(tree *node3d.Tree, h node3d.Handle, cam camera.Camera, env environment.Environment) {
	tree.ForEachMeshPrimitiveCulled(h, cam, func(prim mesh.MeshPrimitive) {
		b.submit(prim, prim.Material(), env)
	})
}

// submit queues prim under its pipeline. Visibility has already been marked.
func (b *modelBatch) submit(prim mesh.MeshPrimitive, mat material.Material, env environment.Environment) {
	if b.shadow && !mat.CastShadows() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	mp, err := b.resolve(prim, mat, env)
	if err != nil {
		// a material kind without a provider is a programming error
		panic(err)
	}
	if err := b.bindGroups(prim, mat); err != nil {
		log.Printf("[%s] skipping primitive, material %d is not ready: %v", b.label, mat.ID(), err)
		return
	}

	key := queueKey{pipeline: mp, prim: prim, material: mat.ID()}
	if _, ok := b.seen[key]; ok {
		return
	}
	b.seen[key] = struct{}{}
	list, ok := b.queued[mp]
	if !ok {
		b.pipelines = append(b.pipelines, mp)
		list = b.allocList()
	}
	b.queued[mp] = append(list, entry{prim: prim, mat: mat})
}

func (b *modelBatch) allocList() []entry {
	if n := len(b.pool); n > 0 {
		list := b.pool[n-1]
		b.pool = b.pool[:n-1]
		return list
	}
	return make([]entry, 0, 8)
}

func (b *modelBatch) Flush(pass renderer.RenderPass, cam camera.Camera, dt time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	material.SortPipelines(b.pipelines)

	var lastEnv environment.Environment
	lastMaterial := -1
	for _, mp := range b.pipelines {
		env := mp.Environment
		// environments shared by several pipelines are updated once
		if _, ok := b.updated[env.ID()]; !ok {
			b.updated[env.ID()] = struct{}{}
			env.Update(cam, dt)
		}
		if lastEnv != env {
			lastEnv = env
			pass.SetBindGroup(material.EnvironmentGroup, env.BindGroup())
		}

		entries := b.queued[mp]
		if len(entries) == 0 {
			continue
		}
		pass.SetPipeline(mp.Pipeline)
		for _, e := range entries {
			b.draw(pass, mp, e, &lastMaterial)
		}
	}

	for mp, list := range b.queued {
		for _, e := range list {
			e.prim.ResetVisibility()
		}
		clear(list)
		b.pool = append(b.pool, list[:0])
		delete(b.queued, mp)
	}
	b.pipelines = b.pipelines[:0]
	clear(b.seen)
	clear(b.updated)
}

// draw issues one instanced draw for the visible instances of e. The caller holds b.mu.
func (b *modelBatch) draw(pass renderer.RenderPass, mp *material.MaterialPipeline, e entry, lastMaterial *int) {
	prim, mat := e.prim, e.mat
	visible := prim.VisibleInstanceCount()
	if visible == 0 {
		return
	}

	if mat.Skinned() {
		skin := prim.Skin()
		if skin == nil {
			panic(fmt.Sprintf("model: skinned material %d drawn without a skin", mat.ID()))
		}
		group, ok := b.skinGroups[skin.ID()]
		if !ok {
			panic(fmt.Sprintf("model: skin %d bind group could not be found", skin.ID()))
		}
		pass.SetBindGroup(material.SkinGroup, group)
		skin.WriteToBuffer()
	}
	if !mp.DepthOnly && *lastMaterial != mat.ID() {
		*lastMaterial = mat.ID()
		pass.SetBindGroup(material.MaterialGroup, b.materialGroups[mat.ID()])
		mat.Update()
	}

	prim.WriteInstanceDataToBuffer()
	prim.WriteVisibilityToBuffer()
	pass.SetBindGroup(material.InstanceGroup, prim.InstanceBuffers())

	m := prim.Mesh()
	pass.SetVertexBuffer(0, m.Provider(), 0)
	if m.Indexed() {
		pass.SetIndexBuffer(m.Provider(), m.IndexFormat())
		pass.DrawIndexed(uint32(m.IndexCount()), uint32(visible), 0, 0, 0)
	} else {
		pass.Draw(uint32(m.VertexCount()), uint32(visible), 0, 0)
	}
	b.stats.Extra(DrawCallsStat, 1)
	b.stats.Extra(InstancedStat, max(0, visible-1))
}

func (b *modelBatch) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.providers {
		p.Release()
	}
	clear(b.materialGroups)
	clear(b.skinGroups)
	clear(b.queued)
	clear(b.seen)
	b.pipelines = nil
	b.pool = nil
}
