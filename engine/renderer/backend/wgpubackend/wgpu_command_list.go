package wgpubackend

import (
	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

// wgpuCommandList records into one WebGPU command encoder. WebGPU derives barriers from pass usage, so
// RecordBarrier only counts.
type wgpuCommandList struct {
	backend  *wgpuRendererBackendImpl
	encoder  *wgpu.CommandEncoder
	label    string
	pass     *wgpu.RenderPassEncoder
	barriers int
}

var _ backend.CommandList = &wgpuCommandList{}

func (cl *wgpuCommandList) RecordBarrier(b resource.Barrier) {
	if !common.Assert(cl.pass == nil, "wgpubackend: barrier recorded inside a render pass", "resource", b.Resource.Label()) {
		cl.EndRenderPass()
	}
	cl.barriers++
}

func (cl *wgpuCommandList) BeginRenderPass(desc backend.RenderPassDescriptor) error {
	cl.EndRenderPass()

	pass := &wgpu.RenderPassDescriptor{Label: desc.Label}
	if desc.Color != nil {
		wt, err := nativeTexture(desc.Color)
		if err != nil {
			return err
		}
		view, err := cl.backend.view(wt, desc.ColorLayer, false)
		if err != nil {
			return err
		}
		c := desc.ClearColor
		attachment := wgpu.RenderPassColorAttachment{
			View:       view,
			LoadOp:     loadOp(desc.ColorLoadOp),
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: c.R, G: c.G, B: c.B, A: c.A},
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
		pass.ColorAttachments = []wgpu.RenderPassColorAttachment{attachment}
	}
	if desc.Depth != nil {
		wt, err := nativeTexture(desc.Depth)
		if err != nil {
			return err
		}
		view, err := cl.backend.view(wt, desc.DepthLayer, false)
		if err != nil {
			return err
		}
		pass.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     loadOp(desc.DepthLoadOp),
			DepthStoreOp:    wgpu.StoreOpStore,
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

func (cl *wgpuCommandList) EndRenderPass() {
	if cl.pass != nil {
		cl.pass.End()
		cl.pass.Release()
		cl.pass = nil
	}
}

func (cl *wgpuCommandList) inPass(op string) bool {
	return common.Assert(cl.pass != nil, "wgpubackend: "+op+" outside a render pass", "list", cl.label)
}

func (cl *wgpuCommandList) SetPipeline(p pipeline.Pipeline) {
	wp, ok := p.Native().(*wgpuPipeline)
	if !cl.inPass("set pipeline") || !common.Assert(ok && wp.render != nil, "wgpubackend: not a built render pipeline", "key", p.Key().String()) {
		return
	}
	cl.pass.SetPipeline(wp.render)
}

func (cl *wgpuCommandList) SetBindGroup(index uint32, group any) {
	wg, ok := group.(*wgpuBindGroup)
	if !cl.inPass("set bind group") || !common.Assert(ok, "wgpubackend: not a wgpu bind group", "index", index) {
		return
	}
	cl.pass.SetBindGroup(index, wg.group, nil)
}

func (cl *wgpuCommandList) SetVertexBuffer(buf resource.Resource) {
	wb, err := nativeBuffer(buf)
	if !cl.inPass("set vertex buffer") || !common.Assert(err == nil, "wgpubackend: bad vertex buffer", "err", err) {
		return
	}
	cl.pass.SetVertexBuffer(0, wb.buffer, 0, wgpu.WholeSize)
}

func (cl *wgpuCommandList) SetIndexBuffer(buf resource.Resource, format gputypes.IndexFormat) {
	wb, err := nativeBuffer(buf)
	if !cl.inPass("set index buffer") || !common.Assert(err == nil, "wgpubackend: bad index buffer", "err", err) {
		return
	}
	cl.pass.SetIndexBuffer(wb.buffer, indexFormat(format), 0, wgpu.WholeSize)
}

func (cl *wgpuCommandList) DrawIndexed(indexCount, firstIndex uint32) {
	if !cl.inPass("draw") {
		return
	}
	cl.pass.DrawIndexed(indexCount, 1, firstIndex, 0, 0)
}

func (cl *wgpuCommandList) Dispatch(p pipeline.Pipeline, groups []any, x, y, z uint32) {
	if !common.Assert(cl.pass == nil, "wgpubackend: dispatch inside a render pass", "list", cl.label) {
		cl.EndRenderPass()
	}
	wp, ok := p.Native().(*wgpuPipeline)
	if !common.Assert(ok && wp.compute != nil, "wgpubackend: not a built compute pipeline", "key", p.Key().String()) {
		return
	}
	pass := cl.encoder.BeginComputePass(nil)
	pass.SetPipeline(wp.compute)
	for i, g := range groups {
		if wg, ok := g.(*wgpuBindGroup); ok {
			pass.SetBindGroup(uint32(i), wg.group, nil)
		}
	}
	pass.DispatchWorkgroups(x, y, z)
	pass.End()
	pass.Release()
}

func (cl *wgpuCommandList) CopyBuffer(src, dst resource.Resource, size uint64) {
	s, err := nativeBuffer(src)
	if !common.Assert(err == nil, "wgpubackend: bad copy source", "err", err) {
		return
	}
	d, err := nativeBuffer(dst)
	if !common.Assert(err == nil, "wgpubackend: bad copy destination", "err", err) {
		return
	}
	cl.encoder.CopyBufferToBuffer(s.buffer, 0, d.buffer, 0, (size+3)&^3)
}

func (cl *wgpuCommandList) Barriers() int {
	return cl.barriers
}
