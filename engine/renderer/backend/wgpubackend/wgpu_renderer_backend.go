// Package wgpubackend implements the renderer backend on the cogentcore WebGPU bindings. WebGPU tracks
// resource usage itself, so recorded barriers are counted but never reach the API.
//
// Importing the package registers backend.BackendTypeWGPU.
package wgpubackend

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

func init() {
	backend.Register(backend.BackendTypeWGPU, func(cfg backend.Config) (backend.RendererBackend, error) {
		return newWGPURendererBackend(cfg)
	})
}

// SurfaceDescriptorSource is implemented by windows that can describe themselves to WebGPU.
type SurfaceDescriptorSource interface {
	// SurfaceDescriptor returns the platform surface descriptor of the window.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
}

type wgpuBuffer struct {
	buffer *wgpu.Buffer
}

type wgpuTexture struct {
	texture   *wgpu.Texture
	desc      backend.TextureDescriptor
	views     map[int]*wgpu.TextureView
	swapchain bool
}

type wgpuSampler struct {
	sampler *wgpu.Sampler
}

type wgpuBindGroup struct {
	group *wgpu.BindGroup
}

type wgpuPipeline struct {
	layout  *wgpu.PipelineLayout
	render  *wgpu.RenderPipeline
	compute *wgpu.ComputePipeline
}

// wgpuFence tracks signaled values through the queue's submitted work callbacks. Signal registers a
// callback covering every submission made so far; the callback publishes the value once that work is done.
type wgpuFence struct {
	mu        *sync.Mutex
	queue     workDoneQueue
	poll      func(wait bool)
	signaled  uint64
	completed atomic.Uint64
	lost      atomic.Bool
}

// workDoneQueue is the part of *wgpu.Queue the fence needs.
type workDoneQueue interface {
	OnSubmittedWorkDone(callback wgpu.QueueWorkDoneCallback)
}

var _ frame.Fence = &wgpuFence{}

func newWGPUFence(queue workDoneQueue, poll func(wait bool)) *wgpuFence {
	return &wgpuFence{mu: &sync.Mutex{}, queue: queue, poll: poll}
}

func (f *wgpuFence) Signal() (uint64, error) {
	if f.lost.Load() {
		return 0, frame.ErrDeviceLost
	}
	f.mu.Lock()
	f.signaled++
	value := f.signaled
	f.mu.Unlock()

	f.queue.OnSubmittedWorkDone(func(status wgpu.QueueWorkDoneStatus) {
		if status == wgpu.QueueWorkDoneStatusDeviceLost {
			f.lost.Store(true)
			return
		}
		// Callbacks arrive in submission order, but a late one must never move the value back.
		for {
			done := f.completed.Load()
			if done >= value || f.completed.CompareAndSwap(done, value) {
				return
			}
		}
	})
	return value, nil
}

func (f *wgpuFence) Completed() (uint64, error) {
	f.poll(false)
	if f.lost.Load() {
		return f.completed.Load(), frame.ErrDeviceLost
	}
	return f.completed.Load(), nil
}

func (f *wgpuFence) Wait(ctx context.Context, value uint64) error {
	return frame.PollUntil(ctx, value, backend.DefaultFenceTimeout, func() (uint64, error) {
		if f.completed.Load() < value && !f.lost.Load() {
			f.poll(true)
		}
		if f.lost.Load() {
			return f.completed.Load(), frame.ErrDeviceLost
		}
		return f.completed.Load(), nil
	})
}

type wgpuRendererBackendImpl struct {
	mu       *sync.Mutex
	cfg      backend.Config
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface
	info     wgpu.AdapterInfo
	fence    *wgpuFence

	surfaceFormat gputypes.TextureFormat
	presentMode   wgpu.PresentMode
	width         int
	height        int
	offscreen     resource.Resource
	frameSurface  *wgpu.Texture
	backBuffer    resource.Resource

	layouts map[string]*wgpu.BindGroupLayout
	modules map[shader.ID]*wgpu.ShaderModule
}

var _ backend.RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(cfg backend.Config) (backend.RendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		cfg:         cfg,
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		width:       cfg.Width,
		height:      cfg.Height,
		layouts:     make(map[string]*wgpu.BindGroupLayout),
		modules:     make(map[shader.ID]*wgpu.ShaderModule),
	}
	if cfg.PresentMode == backend.PresentModeUncapped {
		w.presentMode = wgpu.PresentModeImmediate
	}

	if cfg.Surface != nil {
		w.width, w.height = cfg.Surface.Size()
		if src, ok := cfg.Surface.(SurfaceDescriptorSource); ok {
			w.surface = w.instance.CreateSurface(src.SurfaceDescriptor())
		}
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: w.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a
	w.info = a.GetInfo()

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 4
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.fence = newWGPUFence(w.queue, func(wait bool) { d.Poll(wait, nil) })

	if err := w.configure(); err != nil {
		w.Destroy()
		return nil, err
	}
	common.Logger().Info("wgpu device opened", "adapter", w.info.Name, "headless", w.surface == nil, "width", w.width, "height", w.height)
	return w, nil
}

func (b *wgpuRendererBackendImpl) configure() error {
	b.width, b.height = max(b.width, 1), max(b.height, 1)

	if b.surface == nil {
		if b.surfaceFormat == gputypes.TextureFormatUndefined {
			b.surfaceFormat = b.cfg.BackBufferFormat
			if b.surfaceFormat == gputypes.TextureFormatUndefined {
				b.surfaceFormat = gputypes.TextureFormatRGBA8Unorm
			}
		}
		if b.offscreen != nil {
			b.offscreen.Destroy()
		}
		tex, err := b.CreateTexture(backend.TextureDescriptor{
			Label:  "back buffer",
			Width:  uint32(b.width),
			Height: uint32(b.height),
			Format: b.surfaceFormat,
			Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			return fmt.Errorf("create offscreen back buffer: %w", err)
		}
		b.offscreen = tex
		return nil
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return errors.New("surface reports no formats")
	}
	format := capabilities.Formats[0]
	for _, f := range capabilities.Formats {
		if f == textureFormat(b.cfg.BackBufferFormat) {
			format = f
			break
		}
	}
	b.surfaceFormat = fromTextureFormat(format)
	if b.surfaceFormat == gputypes.TextureFormatUndefined {
		return fmt.Errorf("unsupported surface format %v", format)
	}

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(b.width),
		Height:      uint32(b.height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	return nil
}

func (b *wgpuRendererBackendImpl) Device() gpucontext.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() gpucontext.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) SurfaceFormat() gputypes.TextureFormat {
	return b.surfaceFormat
}

func (b *wgpuRendererBackendImpl) Adapter() gpucontext.Adapter {
	return b.adapter
}

func (b *wgpuRendererBackendImpl) AdapterInfo() gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch b.info.AdapterType {
	case wgpu.AdapterTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case wgpu.AdapterTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case wgpu.AdapterTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: b.info.Name, Type: t}
}

func (b *wgpuRendererBackendImpl) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:            "wgpu",
		Type:            backend.BackendTypeWGPU,
		ExecutesCompute: true,
		Headless:        b.surface == nil,
	}
}

func (b *wgpuRendererBackendImpl) release(native any) {
	switch v := native.(type) {
	case *wgpuBuffer:
		v.buffer.Release()
	case *wgpuTexture:
		for _, view := range v.views {
			view.Release()
		}
		if !v.swapchain {
			v.texture.Release()
		}
	case *wgpuSampler:
		v.sampler.Release()
	case *wgpuBindGroup:
		v.group.Release()
	case *wgpuPipeline:
		if v.render != nil {
			v.render.Release()
		}
		if v.compute != nil {
			v.compute.Release()
		}
		v.layout.Release()
	case nil:
	default:
		common.Assert(false, "wgpubackend: release of a foreign object", "type", fmt.Sprintf("%T", native))
	}
}

func nativeBuffer(r resource.Resource) (*wgpuBuffer, error) {
	if r == nil || r.Destroyed() {
		return nil, errors.New("buffer is nil or destroyed")
	}
	wb, ok := r.Native().(*wgpuBuffer)
	if !ok {
		return nil, fmt.Errorf("resource %q is not a wgpu buffer", r.Label())
	}
	return wb, nil
}

func nativeTexture(r resource.Resource) (*wgpuTexture, error) {
	if r == nil || r.Destroyed() {
		return nil, errors.New("texture is nil or destroyed")
	}
	wt, ok := r.Native().(*wgpuTexture)
	if !ok {
		return nil, fmt.Errorf("resource %q is not a wgpu texture", r.Label())
	}
	return wt, nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(desc backend.BufferDescriptor) (resource.Resource, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("create buffer %q: zero size", desc.Label)
	}
	size := (desc.Size + 3) &^ 3
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: bufferUsage(desc.Usage) | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	return resource.NewResource(resource.KindBuffer, &wgpuBuffer{buffer: buf},
		resource.WithLabel(desc.Label),
		resource.WithSize(desc.Size),
		resource.WithReleaseFunc(b.release),
	), nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf resource.Resource, offset uint64, data []byte) error {
	wb, err := nativeBuffer(buf)
	if err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	if offset+uint64(len(data)) > buf.Size() {
		return fmt.Errorf("write buffer %q: %d bytes at %d exceed size %d", buf.Label(), len(data), offset, buf.Size())
	}
	if rem := len(data) % 4; rem != 0 {
		padded := make([]byte, len(data)+4-rem)
		copy(padded, data)
		data = padded
	}
	b.queue.WriteBuffer(wb.buffer, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) ReadBuffer(ctx context.Context, buf resource.Resource, offset, size uint64) ([]byte, error) {
	wb, err := nativeBuffer(buf)
	if err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}
	if offset+size > buf.Size() {
		return nil, fmt.Errorf("read buffer %q: %d bytes at %d exceed size %d", buf.Label(), size, offset, buf.Size())
	}
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	aligned := (size + 3) &^ 3

	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback staging",
		Size:  aligned,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create readback staging: %w", err)
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	encoder.CopyBufferToBuffer(wb.buffer, offset, staging, 0, aligned)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	defer cmd.Release()
	b.queue.Submit(cmd)

	status := make(chan wgpu.BufferMapAsyncStatus, 1)
	staging.MapAsync(wgpu.MapModeRead, 0, aligned, func(s wgpu.BufferMapAsyncStatus) {
		status <- s
	})
	for {
		b.device.Poll(true, nil)
		select {
		case s := <-status:
			if s != wgpu.BufferMapAsyncStatusSuccess {
				return nil, fmt.Errorf("map staging: status %v", s)
			}
			copy(out, staging.GetMappedRange(0, uint(aligned)))
			staging.Unmap()
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

func (b *wgpuRendererBackendImpl) CreateTexture(desc backend.TextureDescriptor) (resource.Resource, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create texture %q: zero size", desc.Label)
	}
	desc.Layers = max(desc.Layers, 1)
	if desc.Cube {
		desc.Layers = 6
	}
	desc.SampleCount = max(desc.SampleCount, 1)

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Layers,
		},
		MipLevelCount: 1,
		SampleCount:   desc.SampleCount,
		Dimension:     wgpu.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	return resource.NewResource(resource.KindTexture, &wgpuTexture{texture: tex, desc: desc, views: make(map[int]*wgpu.TextureView)},
		resource.WithLabel(desc.Label),
		resource.WithExtent(desc.Width, desc.Height, desc.Layers),
		resource.WithFormat(desc.Format),
		resource.WithReleaseFunc(b.release),
	), nil
}

func (b *wgpuRendererBackendImpl) WriteTexture(tex resource.Resource, layer uint32, pixels []byte, width, height uint32) error {
	wt, err := nativeTexture(tex)
	if err != nil {
		return fmt.Errorf("write texture: %w", err)
	}
	if uint64(len(pixels)) < uint64(width)*uint64(height)*4 {
		return fmt.Errorf("write texture %q: %d bytes for %dx%d pixels", tex.Label(), len(pixels), width, height)
	}
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  wt.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: layer},
			Aspect:   wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  width * 4,
			RowsPerImage: height,
		},
		&wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	)
	return nil
}

// view returns the view of one layer of a texture, or of all layers for layer < 0.
func (b *wgpuRendererBackendImpl) view(t *wgpuTexture, layer int, depthOnly bool) (*wgpu.TextureView, error) {
	key := layer
	if depthOnly {
		key = -2 - layer
	}
	if v, ok := t.views[key]; ok {
		return v, nil
	}
	desc := &wgpu.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          textureFormat(t.desc.Format),
		Dimension:       wgpu.TextureViewDimension2D,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	}
	switch {
	case layer >= 0:
		desc.BaseArrayLayer = uint32(layer)
	case t.desc.Cube:
		desc.Dimension = wgpu.TextureViewDimensionCube
		desc.ArrayLayerCount = 6
	case t.desc.Layers > 1:
		desc.Dimension = wgpu.TextureViewDimension2DArray
		desc.ArrayLayerCount = t.desc.Layers
	}
	if depthOnly {
		desc.Aspect = wgpu.TextureAspectDepthOnly
	}
	v, err := t.texture.CreateView(desc)
	if err != nil {
		return nil, fmt.Errorf("create view of %q: %w", t.desc.Label, err)
	}
	t.views[key] = v
	return v, nil
}

func (b *wgpuRendererBackendImpl) CreateSampler(desc backend.SamplerDescriptor) (any, error) {
	filter, mip := wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear
	if desc.Filter == gputypes.FilterModeNearest {
		filter, mip = wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest
	}
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  addressMode(desc.AddressMode),
		AddressModeV:  addressMode(desc.AddressMode),
		AddressModeW:  addressMode(desc.AddressMode),
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mip,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: max(desc.Anisotropy, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler %q: %w", desc.Label, err)
	}
	return &wgpuSampler{sampler: samp}, nil
}

func (b *wgpuRendererBackendImpl) layoutFor(shaderType shader.ShaderType, bindings []shader.Binding) (*wgpu.BindGroupLayout, error) {
	key := backend.LayoutKey(shaderType, bindings)
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.layouts[key]; ok {
		return l, nil
	}
	l, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   key,
		Entries: layoutEntries(backend.LayoutEntries(shaderType, bindings)),
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout %s: %w", key, err)
	}
	b.layouts[key] = l
	return l, nil
}

func (b *wgpuRendererBackendImpl) CreateBindGroup(label string, shaderType shader.ShaderType, entries []backend.BindingEntry) (any, error) {
	bindings := make([]shader.Binding, len(entries))
	groupEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		bindings[i] = e.Binding
		groupEntries[i].Binding = e.Binding.Binding

		switch {
		case e.Binding.Kind.IsBuffer():
			wb, err := nativeBuffer(e.Buffer)
			if err != nil {
				return nil, fmt.Errorf("bind group %q binding %d: %w", label, e.Binding.Binding, err)
			}
			size := e.Size
			if size == 0 {
				size = wgpu.WholeSize
			}
			groupEntries[i].Buffer = wb.buffer
			groupEntries[i].Offset = e.Offset
			groupEntries[i].Size = size
		case e.Binding.Kind == shader.BindingSampler:
			ws, ok := e.Sampler.(*wgpuSampler)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: not a wgpu sampler", label, e.Binding.Binding)
			}
			groupEntries[i].Sampler = ws.sampler
		default:
			wt, err := nativeTexture(e.Texture)
			if err != nil {
				return nil, fmt.Errorf("bind group %q binding %d: %w", label, e.Binding.Binding, err)
			}
			v, err := b.view(wt, e.Layer, e.Binding.Kind == shader.BindingDepthTexture)
			if err != nil {
				return nil, err
			}
			groupEntries[i].TextureView = v
		}
	}

	layout, err := b.layoutFor(shaderType, bindings)
	if err != nil {
		return nil, err
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: groupEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group %q: %w", label, err)
	}
	return &wgpuBindGroup{group: group}, nil
}

func (b *wgpuRendererBackendImpl) shaderModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.modules[s.ID()]; ok {
		return m, nil
	}
	desc := &wgpu.ShaderModuleDescriptor{Label: s.Name()}
	src := s.Source()
	if src.Format == shader.SourceSPIRV {
		desc.SPIRVDescriptor = &wgpu.ShaderModuleSPIRVDescriptor{Code: src.SPIRV}
	} else {
		desc.WGSLDescriptor = &wgpu.ShaderModuleWGSLDescriptor{Code: src.WGSL}
	}
	m, err := b.device.CreateShaderModule(desc)
	if err != nil {
		return nil, fmt.Errorf("create shader module %q: %w", s.Name(), err)
	}
	b.modules[s.ID()] = m
	return m, nil
}

func (b *wgpuRendererBackendImpl) BuildPipeline(p pipeline.Pipeline) (any, error) {
	s := p.Shader()
	module, err := b.shaderModule(s)
	if err != nil {
		return nil, err
	}

	bindings := s.Bindings()
	groups := make([]*wgpu.BindGroupLayout, backend.GroupCount(bindings))
	for g := range groups {
		if groups[g], err = b.layoutFor(s.Type(), shader.BindingsInGroup(bindings, uint32(g))); err != nil {
			return nil, err
		}
	}
	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            s.Name(),
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout %q: %w", s.Name(), err)
	}
	wp := &wgpuPipeline{layout: layout}

	if p.Type() == pipeline.PipelineTypeCompute {
		created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  s.Name() + " Compute Pipeline",
			Layout: layout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: s.ComputeEntryPoint(),
			},
		})
		if err != nil {
			layout.Release()
			return nil, fmt.Errorf("create compute pipeline %q: %w", s.Name(), err)
		}
		wp.compute = created
		return wp, nil
	}

	ms := p.Multisample()
	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  s.Name() + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: s.VertexEntryPoint(),
			Buffers:    vertexBuffers(p.VertexBuffers()),
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: s.FragmentEntryPoint(),
			Targets:    []wgpu.ColorTargetState{colorTarget(p.ColorTarget())},
		},
		Primitive:    primitive(p.Primitive()),
		DepthStencil: depthStencil(p.DepthStencil()),
		Multisample: wgpu.MultisampleState{
			Count: max(ms.Count, 1),
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("create render pipeline %q: %w", s.Name(), err)
	}
	wp.render = created
	return wp, nil
}

func (b *wgpuRendererBackendImpl) Release(native any) {
	b.release(native)
}

func (b *wgpuRendererBackendImpl) Begin(label string) (backend.CommandList, error) {
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	return &wgpuCommandList{backend: b, encoder: encoder, label: label}, nil
}

func (b *wgpuRendererBackendImpl) Submit(cl backend.CommandList) error {
	wcl, ok := cl.(*wgpuCommandList)
	if !ok || wcl.backend != b {
		return errors.New("submit: command list was not created by this backend")
	}
	wcl.EndRenderPass()
	defer wcl.encoder.Release()

	commandBuffer, err := wcl.encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish %q: %w", wcl.label, err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) Fence() frame.Fence {
	return b.fence
}

func (b *wgpuRendererBackendImpl) AcquireBackBuffer() (resource.Resource, error) {
	if b.surface == nil {
		return b.offscreen, nil
	}
	if b.backBuffer != nil {
		return b.backBuffer, nil
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrSurfaceOutdated, err)
	}
	b.frameSurface = surfaceTexture
	desc := backend.TextureDescriptor{Label: "back buffer", Width: uint32(b.width), Height: uint32(b.height), Layers: 1, Format: b.surfaceFormat, SampleCount: 1}
	b.backBuffer = resource.NewResource(resource.KindTexture,
		&wgpuTexture{texture: surfaceTexture, desc: desc, views: make(map[int]*wgpu.TextureView), swapchain: true},
		resource.WithLabel(desc.Label),
		resource.WithExtent(desc.Width, desc.Height, 1),
		resource.WithFormat(desc.Format),
		resource.WithReleaseFunc(b.release),
	)
	return b.backBuffer, nil
}

func (b *wgpuRendererBackendImpl) Present() error {
	if b.surface == nil {
		return nil
	}
	if b.frameSurface == nil {
		return errors.New("present: no acquired back buffer")
	}
	b.surface.Present()
	b.backBuffer.Destroy()
	b.frameSurface.Release()
	b.backBuffer = nil
	b.frameSurface = nil
	return nil
}

func (b *wgpuRendererBackendImpl) Resize(width, height int) error {
	if err := b.WaitIdle(); err != nil {
		return err
	}
	if b.frameSurface != nil {
		b.backBuffer.Destroy()
		b.frameSurface.Release()
		b.backBuffer = nil
		b.frameSurface = nil
	}
	b.width, b.height = width, height
	return b.configure()
}

func (b *wgpuRendererBackendImpl) BackBufferSize() (int, int) {
	return b.width, b.height
}

func (b *wgpuRendererBackendImpl) WaitIdle() error {
	b.device.Poll(true, nil)
	return nil
}

func (b *wgpuRendererBackendImpl) Destroy() {
	if b.device != nil {
		b.device.Poll(true, nil)
	}
	if b.frameSurface != nil {
		b.backBuffer.Destroy()
		b.frameSurface.Release()
	}
	if b.offscreen != nil {
		b.offscreen.Destroy()
	}
	for _, l := range b.layouts {
		l.Release()
	}
	for _, m := range b.modules {
		m.Release()
	}
	if b.device != nil {
		b.queue.Release()
		b.device.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	b.adapter.Release()
	b.instance.Release()
	runtime.UnlockOSThread()
}
