package renderer

import (
	_ "embed"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/mipmap.wgsl
var mipmapShaderSource string

// mipmapGenerator downsamples each mip level of a texture from the level above it with a
// linear-filtered blit.
type mipmapGenerator struct {
	format   wgpu.TextureFormat
	layout   *wgpu.BindGroupLayout
	pipeline *wgpu.RenderPipeline
	sampler  *wgpu.Sampler
}

func newMipmapGenerator(device *wgpu.Device, format wgpu.TextureFormat) (*mipmapGenerator, error) {
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Mipmap Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: mipmapShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mipmap shader: %w", err)
	}
	defer module.Release()

	layout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Mipmap Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mipmap bind group layout: %w", err)
	}

	pipelineLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Mipmap Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("failed to create mipmap pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	p, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Mipmap Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{Module: module, EntryPoint: "vs_main"},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{Format: format, WriteMask: wgpu.ColorWriteMaskAll},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("failed to create mipmap pipeline: %w", err)
	}

	samp, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Mipmap Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		p.Release()
		layout.Release()
		return nil, fmt.Errorf("failed to create mipmap sampler: %w", err)
	}

	return &mipmapGenerator{format: format, layout: layout, pipeline: p, sampler: samp}, nil
}

func (m *mipmapGenerator) levelView(tex *wgpu.Texture, level, layer uint32) (*wgpu.TextureView, error) {
	return tex.CreateView(&wgpu.TextureViewDescriptor{
		Format:          m.format,
		Dimension:       wgpu.TextureViewDimension2D,
		BaseMipLevel:    level,
		MipLevelCount:   1,
		BaseArrayLayer:  layer,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	})
}

// generate fills levels 1..mipLevels-1 of every layer in one submission.
func (m *mipmapGenerator) generate(device *wgpu.Device, queue *wgpu.Queue, tex *wgpu.Texture, layers, mipLevels uint32) error {
	if mipLevels < 2 {
		return nil
	}

	encoder, err := device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "Mipmap Encoder"})
	if err != nil {
		return err
	}
	defer encoder.Release()

	var transient []interface{ Release() }
	defer func() {
		for _, r := range transient {
			r.Release()
		}
	}()

	for layer := uint32(0); layer < layers; layer++ {
		for level := uint32(1); level < mipLevels; level++ {
			src, err := m.levelView(tex, level-1, layer)
			if err != nil {
				return err
			}
			transient = append(transient, src)
			dst, err := m.levelView(tex, level, layer)
			if err != nil {
				return err
			}
			transient = append(transient, dst)

			bg, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
				Layout: m.layout,
				Entries: []wgpu.BindGroupEntry{
					{Binding: 0, TextureView: src},
					{Binding: 1, Sampler: m.sampler},
				},
			})
			if err != nil {
				return err
			}
			transient = append(transient, bg)

			pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
				ColorAttachments: []wgpu.RenderPassColorAttachment{
					{View: dst, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore},
				},
			})
			pass.SetPipeline(m.pipeline)
			pass.SetBindGroup(0, bg, nil)
			pass.Draw(3, 1, 0, 0)
			pass.End()
		}
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (m *mipmapGenerator) release() {
	m.sampler.Release()
	m.pipeline.Release()
	m.layout.Release()
}
