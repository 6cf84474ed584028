package mesh

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/cogentcore/webgpu/wgpu"
)

// RecordFloats is the number of floats in one instance record: a mat4 and a color.
const RecordFloats = material.InstanceRecordSize / 4

// ErrStripIndexFormat is the panic value of NewMeshPrimitive when a strip topology has no strip
// index format.
var ErrStripIndexFormat = errors.New("mesh: strip topologies require a strip index format")

// Instance is anything drawn as one record of a MeshPrimitive. Instances must be comparable,
// which in practice means pointers.
type Instance interface {
	// GlobalTransform returns the model-to-world matrix of the instance.
	GlobalTransform() common.Mat4

	// Color returns the instance tint.
	Color() [4]float32
}

// owners tracks which primitive each instance belongs to, across every primitive.
var owners = struct {
	mu *sync.Mutex
	m  map[Instance]*meshPrimitive
}{mu: &sync.Mutex{}, m: make(map[Instance]*meshPrimitive)}

// meshPrimitive is the implementation of the MeshPrimitive interface.
type meshPrimitive struct {
	mu          *sync.Mutex
	r           renderer.Renderer
	label       string
	mesh        Mesh
	material    material.Material
	skin        Skin
	topology    wgpu.PrimitiveTopology
	stripFormat wgpu.IndexFormat

	instanceSize int
	capacity     int
	data         []float32
	instances    []Instance
	slots        map[Instance]int
	dirty        map[Instance]struct{}
	visible      map[Instance]struct{}
	visibleSlots []uint32

	provider    bind_group_provider.BindGroupProvider
	gpuCapacity int
}

// MeshPrimitive draws one mesh with one material for a packed list of instances. Instance
// records live in a CPU buffer mirrored to a storage buffer at material.InstanceGroup, and a
// second buffer lists the slots that survived culling this frame.
type MeshPrimitive interface {
	// AddInstance appends an instance at the tail slot, doubling the capacity when full. An
	// instance already owned by any primitive is rejected with a log line.
	//
	// Parameters:
	//   - inst: the instance to add
	AddInstance(inst Instance)

	// RemoveInstance drops an instance and shifts every later record down one slot, keeping
	// the records packed. Unknown instances are logged and ignored.
	//
	// Parameters:
	//   - inst: the instance to remove
	RemoveInstance(inst Instance)

	// InstanceDirty queues the instance's record for rewrite on the next upload. Marking twice
	// is the same as marking once.
	//
	// Parameters:
	//   - inst: the changed instance
	InstanceDirty(inst Instance)

	// WriteInstanceDataToBuffer rewrites the dirty records and uploads the packed records with
	// a single buffer write. Nothing happens when no record is dirty.
	WriteInstanceDataToBuffer()

	// ClearInstances drops every instance and resets the capacity.
	ClearInstances()

	// InstanceCount returns the number of instances.
	InstanceCount() int

	// InstanceSlot returns the record slot of an instance.
	//
	// Parameters:
	//   - inst: the instance
	//
	// Returns:
	//   - int: the slot
	//   - bool: false if the instance is not in this primitive
	InstanceSlot(inst Instance) (int, bool)

	// InstanceData returns the packed CPU records. Callers must not modify it.
	//
	// Returns:
	//   - []float32: InstanceCount()*RecordFloats floats
	InstanceData() []float32

	// Capacity returns the number of records the CPU buffer holds.
	Capacity() int

	// MarkVisible adds an instance to this frame's visible list.
	MarkVisible(inst Instance)

	// MarkAllVisible adds every instance to this frame's visible list.
	MarkAllVisible()

	// VisibleInstanceCount returns the number of instances marked visible this frame.
	VisibleInstanceCount() int

	// WriteVisibilityToBuffer uploads the slots of the visible instances in slot order. The
	// vertex stage reads its record through this list.
	WriteVisibilityToBuffer()

	// ResetVisibility empties the visible list.
	ResetVisibility()

	// Mesh returns the drawn mesh.
	Mesh() Mesh

	// Material returns the material.
	Material() material.Material

	// SetMaterial replaces the material.
	SetMaterial(mat material.Material)

	// Topology returns the primitive topology.
	Topology() wgpu.PrimitiveTopology

	// StripIndexFormat returns the strip index format, undefined for list topologies.
	StripIndexFormat() wgpu.IndexFormat

	// Skin returns the skin of a skinned primitive, nil otherwise.
	Skin() Skin

	// InstanceBuffers returns the provider bound at material.InstanceGroup. It is nil until
	// the first upload or PrepareBuffers.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the instance bind group
	InstanceBuffers() bind_group_provider.BindGroupProvider

	// PrepareBuffers creates the instance bind group for the current capacity.
	//
	// Returns:
	//   - error: an error if the bind group could not be created
	PrepareBuffers() error

	// Release drops every instance and frees the instance buffers. The mesh, material and
	// skin stay owned by the caller.
	Release()
}

var _ MeshPrimitive = &meshPrimitive{}

// NewMeshPrimitive creates a primitive drawing m with mat.
//
// Parameters:
//   - r: the renderer creating the instance buffers
//   - m: the mesh
//   - mat: the material
//   - opts: functional options
//
// Returns:
//   - MeshPrimitive: the primitive
func NewMeshPrimitive(r renderer.Renderer, m Mesh, mat material.Material, opts ...MeshPrimitiveBuilderOption) MeshPrimitive {
	p := &meshPrimitive{
		mu:       &sync.Mutex{},
		r:        r,
		label:    "MeshPrimitive",
		mesh:     m,
		material: mat,
		topology: wgpu.PrimitiveTopologyTriangleList,
		slots:    make(map[Instance]int),
		dirty:    make(map[Instance]struct{}),
		visible:  make(map[Instance]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if isStrip(p.topology) && p.stripFormat == wgpu.IndexFormatUndefined {
		panic(ErrStripIndexFormat)
	}
	p.capacity = p.instanceSize + 1
	p.data = make([]float32, p.capacity*RecordFloats)
	return p
}

func isStrip(t wgpu.PrimitiveTopology) bool {
	return t == wgpu.PrimitiveTopologyTriangleStrip || t == wgpu.PrimitiveTopologyLineStrip
}

func (p *meshPrimitive) AddInstance(inst Instance) {
	owners.mu.Lock()
	defer owners.mu.Unlock()
	if owner, ok := owners.m[inst]; ok {
		if owner == p {
			log.Printf("[MeshPrimitive] instance already added to %s", p.label)
		} else {
			log.Printf("[MeshPrimitive] instance belongs to %s, remove it there before adding it to %s", owner.label, p.label)
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	slot := len(p.instances)
	if slot >= p.capacity {
		p.capacity *= 2
		grown := make([]float32, p.capacity*RecordFloats)
		copy(grown, p.data)
		p.data = grown
	}
	p.instances = append(p.instances, inst)
	p.slots[inst] = slot
	p.dirty[inst] = struct{}{}
	owners.m[inst] = p
}

func (p *meshPrimitive) RemoveInstance(inst Instance) {
	owners.mu.Lock()
	defer owners.mu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.slots[inst]
	if !ok {
		log.Printf("[MeshPrimitive] cannot remove an instance that is not in %s", p.label)
		return
	}

	count := len(p.instances)
	copy(p.data[slot*RecordFloats:], p.data[(slot+1)*RecordFloats:count*RecordFloats])
	clear(p.data[(count-1)*RecordFloats : count*RecordFloats])
	p.instances = slices.Delete(p.instances, slot, slot+1)
	for i := slot; i < len(p.instances); i++ {
		moved := p.instances[i]
		p.slots[moved] = i
		// the GPU copy still holds the record at its old slot
		p.dirty[moved] = struct{}{}
	}
	delete(p.slots, inst)
	delete(p.dirty, inst)
	delete(p.visible, inst)
	delete(owners.m, inst)
}

func (p *meshPrimitive) InstanceDirty(inst Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.slots[inst]; !ok {
		log.Printf("[MeshPrimitive] cannot mark an instance dirty that is not in %s", p.label)
		return
	}
	p.dirty[inst] = struct{}{}
}

func (p *meshPrimitive) WriteInstanceDataToBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dirty) == 0 {
		return
	}
	for inst := range p.dirty {
		slot := p.slots[inst]
		rec := GPUInstanceRecord{Model: inst.GlobalTransform(), Color: inst.Color()}
		rec.put(p.data[slot*RecordFloats:])
	}
	if err := p.prepareLocked(); err != nil {
		log.Printf("[MeshPrimitive] %v", err)
		return
	}
	p.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: p.provider,
		Binding:  material.InstanceRecordBinding,
		Data:     common.SliceToBytes(p.data[:len(p.instances)*RecordFloats]),
	}})
	clear(p.dirty)
}

func (p *meshPrimitive) PrepareBuffers() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepareLocked()
}

// prepareLocked creates the instance bind group, recreating both buffers when the capacity
// outgrew them. The caller holds p.mu.
func (p *meshPrimitive) prepareLocked() error {
	if p.provider != nil && p.gpuCapacity >= p.capacity {
		return nil
	}
	if p.provider == nil {
		p.provider = bind_group_provider.NewBindGroupProvider(p.label + " Instances")
	} else {
		p.provider.ReleaseBinding(material.InstanceRecordBinding)
		p.provider.ReleaseBinding(material.InstanceVisibleBinding)
	}
	sizes := map[int]uint64{
		material.InstanceRecordBinding:  uint64(p.capacity * material.InstanceRecordSize),
		material.InstanceVisibleBinding: uint64(p.capacity * 4),
	}
	if err := p.r.InitBindGroup(p.provider, material.InstanceLayout(), nil, sizes); err != nil {
		return fmt.Errorf("failed to create instance buffers for %s: %w", p.label, err)
	}
	p.gpuCapacity = p.capacity
	return nil
}

func (p *meshPrimitive) ClearInstances() {
	owners.mu.Lock()
	defer owners.mu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
}

// clearLocked drops every instance. The caller holds owners.mu and p.mu.
func (p *meshPrimitive) clearLocked() {
	for _, inst := range p.instances {
		delete(owners.m, inst)
	}
	p.instances = nil
	clear(p.slots)
	clear(p.dirty)
	clear(p.visible)
	p.capacity = p.instanceSize + 1
	p.data = make([]float32, p.capacity*RecordFloats)
}

func (p *meshPrimitive) InstanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

func (p *meshPrimitive) InstanceSlot(inst Instance) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.slots[inst]
	return slot, ok
}

func (p *meshPrimitive) InstanceData() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[:len(p.instances)*RecordFloats]
}

func (p *meshPrimitive) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

func (p *meshPrimitive) MarkVisible(inst Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.slots[inst]; !ok {
		log.Printf("[MeshPrimitive] cannot mark an instance visible that is not in %s", p.label)
		return
	}
	p.visible[inst] = struct{}{}
}

func (p *meshPrimitive) MarkAllVisible() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.instances {
		p.visible[inst] = struct{}{}
	}
}

func (p *meshPrimitive) VisibleInstanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.visible)
}

func (p *meshPrimitive) WriteVisibilityToBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.visible) == 0 {
		return
	}
	if err := p.prepareLocked(); err != nil {
		log.Printf("[MeshPrimitive] %v", err)
		return
	}
	p.visibleSlots = p.visibleSlots[:0]
	for inst := range p.visible {
		p.visibleSlots = append(p.visibleSlots, uint32(p.slots[inst]))
	}
	slices.Sort(p.visibleSlots)
	p.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: p.provider,
		Binding:  material.InstanceVisibleBinding,
		Data:     common.SliceToBytes(p.visibleSlots),
	}})
}

func (p *meshPrimitive) ResetVisibility() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.visible)
}

func (p *meshPrimitive) Mesh() Mesh {
	return p.mesh
}

func (p *meshPrimitive) Material() material.Material {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.material
}

func (p *meshPrimitive) SetMaterial(mat material.Material) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.material = mat
}

func (p *meshPrimitive) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *meshPrimitive) StripIndexFormat() wgpu.IndexFormat {
	return p.stripFormat
}

func (p *meshPrimitive) Skin() Skin {
	return p.skin
}

func (p *meshPrimitive) InstanceBuffers() bind_group_provider.BindGroupProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.provider
}

func (p *meshPrimitive) Release() {
	owners.mu.Lock()
	defer owners.mu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
	if p.provider != nil {
		p.provider.Release()
		p.provider = nil
	}
	p.gpuCapacity = 0
}
