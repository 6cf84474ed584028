package renderer

import (
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RenderPass records draw state and draw commands into one open render pass.
// Batches and model batches draw through a RenderPass handed to them by the frame loop, so they
// never own an encoder themselves.
type RenderPass interface {
	// SetPipeline binds a registered render pipeline.
	//
	// Parameters:
	//   - p: the render pipeline, already created through Renderer.RegisterPipelines
	SetPipeline(p pipeline.Pipeline)

	// SetBindGroup binds a provider's bind group at a group index.
	//
	// Parameters:
	//   - group: the @group index
	//   - provider: the provider holding the bind group
	SetBindGroup(group uint32, provider bind_group_provider.BindGroupProvider)

	// SetVertexBuffer binds a provider's vertex buffer to a slot, starting at a byte offset.
	//
	// Parameters:
	//   - slot: the vertex buffer slot
	//   - provider: the provider holding the vertex buffer
	//   - offset: the byte offset into the buffer
	SetVertexBuffer(slot uint32, provider bind_group_provider.BindGroupProvider, offset uint64)

	// SetIndexBuffer binds a provider's index buffer.
	//
	// Parameters:
	//   - provider: the provider holding the index buffer
	//   - format: the index format of the buffer
	SetIndexBuffer(provider bind_group_provider.BindGroupProvider, format wgpu.IndexFormat)

	// Draw issues a non-indexed draw.
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// DrawIndexed issues an indexed draw.
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
}

// wgpuRenderPass adapts a *wgpu.RenderPassEncoder to RenderPass.
type wgpuRenderPass struct {
	encoder *wgpu.RenderPassEncoder
}

var _ RenderPass = &wgpuRenderPass{}

func (p *wgpuRenderPass) SetPipeline(pl pipeline.Pipeline) {
	p.encoder.SetPipeline(pl.Pipeline().(*wgpu.RenderPipeline))
}

func (p *wgpuRenderPass) SetBindGroup(group uint32, provider bind_group_provider.BindGroupProvider) {
	p.encoder.SetBindGroup(group, provider.BindGroup(), nil)
}

func (p *wgpuRenderPass) SetVertexBuffer(slot uint32, provider bind_group_provider.BindGroupProvider, offset uint64) {
	p.encoder.SetVertexBuffer(slot, provider.VertexBuffer(), offset, wgpu.WholeSize)
}

func (p *wgpuRenderPass) SetIndexBuffer(provider bind_group_provider.BindGroupProvider, format wgpu.IndexFormat) {
	p.encoder.SetIndexBuffer(provider.IndexBuffer(), format, 0, wgpu.WholeSize)
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.encoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *wgpuRenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.encoder.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}
