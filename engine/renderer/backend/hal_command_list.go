package backend

import (
	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halCommandList records into one hal command encoder.
type halCommandList struct {
	backend  *halRendererBackendImpl
	encoder  hal.CommandEncoder
	label    string
	pass     hal.RenderPassEncoder
	barriers int
}

var _ CommandList = &halCommandList{}

func (cl *halCommandList) RecordBarrier(b resource.Barrier) {
	if !common.Assert(cl.pass == nil, "backend: barrier recorded inside a render pass", "resource", b.Resource.Label()) {
		cl.EndRenderPass()
	}
	cl.barriers++

	switch native := b.Resource.Native().(type) {
	case *halBuffer:
		cl.encoder.TransitionBuffers([]hal.BufferBarrier{{
			Buffer: native.buffer,
			Usage:  hal.BufferUsageTransition{OldUsage: BufferUsageFor(b.Before), NewUsage: BufferUsageFor(b.After)},
		}})
	case *halTexture:
		// Render passes leave swapchain images in the present layout.
		if b.After == resource.StatePresent {
			return
		}
		cl.encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: native.texture,
			Range: hal.TextureRange{
				Aspect:          gputypes.TextureAspectAll,
				MipLevelCount:   1,
				ArrayLayerCount: native.desc.Layers,
			},
			Usage: hal.TextureUsageTransition{OldUsage: TextureUsageFor(b.Before), NewUsage: TextureUsageFor(b.After)},
		}})
	}
}

func (cl *halCommandList) BeginRenderPass(desc RenderPassDescriptor) error {
	cl.EndRenderPass()

	pass := &hal.RenderPassDescriptor{Label: desc.Label}
	if desc.Color != nil {
		ht, err := nativeTexture(desc.Color)
		if err != nil {
			return err
		}
		view, err := cl.backend.view(ht, desc.ColorLayer, false)
		if err != nil {
			return err
		}
		attachment := hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     desc.ColorLoadOp,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: desc.ClearColor,
		}
		if desc.Resolve != nil {
			rt, err := nativeTexture(desc.Resolve)
			if err != nil {
				return err
			}
			if attachment.ResolveTarget, err = cl.backend.view(rt, 0, false); err != nil {
				return err
			}
		}
		pass.ColorAttachments = []hal.RenderPassColorAttachment{attachment}
	}
	if desc.Depth != nil {
		ht, err := nativeTexture(desc.Depth)
		if err != nil {
			return err
		}
		view, err := cl.backend.view(ht, desc.DepthLayer, false)
		if err != nil {
			return err
		}
		pass.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     desc.DepthLoadOp,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: desc.ClearDepth,
		}
	}

	cl.pass = cl.encoder.BeginRenderPass(pass)
	if desc.HasViewport {
		v := desc.Viewport
		cl.pass.SetViewport(v[0], v[1], v[2], v[3], 0, 1)
	}
	return nil
}

func (cl *halCommandList) EndRenderPass() {
	if cl.pass != nil {
		cl.pass.End()
		cl.pass = nil
	}
}

func (cl *halCommandList) inPass(op string) bool {
	return common.Assert(cl.pass != nil, "backend: "+op+" outside a render pass", "list", cl.label)
}

func (cl *halCommandList) SetPipeline(p pipeline.Pipeline) {
	hp, ok := p.Native().(*halPipeline)
	if !cl.inPass("set pipeline") || !common.Assert(ok && hp.render != nil, "backend: not a built render pipeline", "key", p.Key().String()) {
		return
	}
	cl.pass.SetPipeline(hp.render)
}

func (cl *halCommandList) SetBindGroup(index uint32, group any) {
	hg, ok := group.(*halBindGroup)
	if !cl.inPass("set bind group") || !common.Assert(ok, "backend: not a hal bind group", "index", index) {
		return
	}
	cl.pass.SetBindGroup(index, hg.group, nil)
}

func (cl *halCommandList) SetVertexBuffer(buf resource.Resource) {
	hb, err := nativeBuffer(buf)
	if !cl.inPass("set vertex buffer") || !common.Assert(err == nil, "backend: bad vertex buffer", "err", err) {
		return
	}
	cl.pass.SetVertexBuffer(0, hb.buffer, 0)
}

func (cl *halCommandList) SetIndexBuffer(buf resource.Resource, format gputypes.IndexFormat) {
	hb, err := nativeBuffer(buf)
	if !cl.inPass("set index buffer") || !common.Assert(err == nil, "backend: bad index buffer", "err", err) {
		return
	}
	cl.pass.SetIndexBuffer(hb.buffer, format, 0)
}

func (cl *halCommandList) DrawIndexed(indexCount, firstIndex uint32) {
	if !cl.inPass("draw") {
		return
	}
	cl.pass.DrawIndexed(indexCount, 1, firstIndex, 0, 0)
}

func (cl *halCommandList) Dispatch(p pipeline.Pipeline, groups []any, x, y, z uint32) {
	if !common.Assert(cl.pass == nil, "backend: dispatch inside a render pass", "list", cl.label) {
		cl.EndRenderPass()
	}
	hp, ok := p.Native().(*halPipeline)
	if !common.Assert(ok && hp.compute != nil, "backend: not a built compute pipeline", "key", p.Key().String()) {
		return
	}
	cp := cl.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.Shader().Name()})
	cp.SetPipeline(hp.compute)
	for i, g := range groups {
		if hg, ok := g.(*halBindGroup); ok {
			cp.SetBindGroup(uint32(i), hg.group, nil)
		}
	}
	cp.Dispatch(x, y, z)
	cp.End()
}

func (cl *halCommandList) CopyBuffer(src, dst resource.Resource, size uint64) {
	s, err := nativeBuffer(src)
	if !common.Assert(err == nil, "backend: bad copy source", "err", err) {
		return
	}
	d, err := nativeBuffer(dst)
	if !common.Assert(err == nil, "backend: bad copy destination", "err", err) {
		return
	}
	cl.encoder.CopyBufferToBuffer(s.buffer, d.buffer, []hal.BufferCopy{{Size: align4(size)}})
}

func (cl *halCommandList) Barriers() int {
	return cl.barriers
}
