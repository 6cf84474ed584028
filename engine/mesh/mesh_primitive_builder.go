package mesh

import "github.com/cogentcore/webgpu/wgpu"

// MeshPrimitiveBuilderOption is a functional option used to configure a MeshPrimitive during construction.
type MeshPrimitiveBuilderOption func(*meshPrimitive)

// WithLabel sets the debug label used for the instance buffers and log lines.
func WithLabel(label string) MeshPrimitiveBuilderOption {
	return func(p *meshPrimitive) {
		p.label = label
	}
}

// WithTopology sets the primitive topology. Strip topologies also need WithStripIndexFormat.
//
// Parameters:
//   - topology: the primitive topology, triangle list by default
//
// Returns:
//   - MeshPrimitiveBuilderOption: a function that sets the topology
func WithTopology(topology wgpu.PrimitiveTopology) MeshPrimitiveBuilderOption {
	return func(p *meshPrimitive) {
		p.topology = topology
	}
}

// WithStripIndexFormat sets the index format that restarts strips.
func WithStripIndexFormat(format wgpu.IndexFormat) MeshPrimitiveBuilderOption {
	return func(p *meshPrimitive) {
		p.stripFormat = format
	}
}

// WithInstanceSize sizes the initial instance buffer for size+1 records.
//
// Parameters:
//   - size: the expected instance count minus one
//
// Returns:
//   - MeshPrimitiveBuilderOption: a function that sets the initial capacity
func WithInstanceSize(size int) MeshPrimitiveBuilderOption {
	return func(p *meshPrimitive) {
		p.instanceSize = max(size, 0)
	}
}

// WithSkin binds joint matrices for a skinned material.
func WithSkin(s Skin) MeshPrimitiveBuilderOption {
	return func(p *meshPrimitive) {
		p.skin = s
	}
}
