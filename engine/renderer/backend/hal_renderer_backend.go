package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func init() {
	for _, t := range []BackendType{BackendTypeVulkan, BackendTypeMetal, BackendTypeD3D12, BackendTypeNoop} {
		Register(t, func(cfg Config) (RendererBackend, error) {
			return openHAL(t, cfg)
		})
	}
}

var halVariants = map[BackendType]gputypes.Backend{
	BackendTypeVulkan: gputypes.BackendVulkan,
	BackendTypeMetal:  gputypes.BackendMetal,
	BackendTypeD3D12:  gputypes.BackendDX12,
}

var halBackendMasks = map[BackendType]gputypes.Backends{
	BackendTypeVulkan: gputypes.BackendsVulkan,
	BackendTypeMetal:  gputypes.BackendsMetal,
	BackendTypeD3D12:  gputypes.BackendsDX12,
	BackendTypeNoop:   gputypes.BackendsAll,
}

// halBuffer is the native object of buffers created by the hal backend.
type halBuffer struct {
	buffer hal.Buffer
	size   uint64
	usage  gputypes.BufferUsage
	// hostVisible buffers are written through a mapping without a GPU round trip.
	hostVisible bool
}

type viewKey struct {
	layer     int
	depthOnly bool
}

// halTexture is the native object of textures created by the hal backend. Views are created on first
// use and live as long as the texture.
type halTexture struct {
	texture   hal.Texture
	desc      TextureDescriptor
	views     map[viewKey]hal.TextureView
	swapchain bool
}

type halSampler struct {
	sampler hal.Sampler
}

type halBindGroup struct {
	group hal.BindGroup
}

type halPipeline struct {
	layout  hal.PipelineLayout
	render  hal.RenderPipeline
	compute hal.ComputePipeline
}

// deferredRelease destroys a native object once the submission that last could use it has completed.
type deferredRelease struct {
	submission uint64
	release    func()
}

// halRendererBackendImpl drives a github.com/gogpu/wgpu/hal device with explicit barriers.
type halRendererBackendImpl struct {
	mu          *sync.Mutex
	backendType BackendType
	cfg         Config

	instance hal.Instance
	adapter  hal.Adapter
	info     gputypes.AdapterInfo
	device   hal.Device
	queue    hal.Queue
	fence    *halFence

	surface       hal.Surface
	surfaceFormat gputypes.TextureFormat
	width         int
	height        int
	offscreen     resource.Resource
	acquired      *hal.AcquiredSurfaceTexture
	backBuffer    resource.Resource

	layouts  map[string]hal.BindGroupLayout
	modules  map[shader.ID]hal.ShaderModule
	deferred []deferredRelease
}

var _ RendererBackend = &halRendererBackendImpl{}

// openHAL opens a hal device. The noop device is always available; the others need their hal backend
// package to be linked in (github.com/gogpu/wgpu/hal/allbackends).
func openHAL(t BackendType, cfg Config) (RendererBackend, error) {
	var api hal.Backend
	if t == BackendTypeNoop {
		api = noop.API{}
	} else {
		b, ok := hal.GetBackend(halVariants[t])
		if !ok {
			return nil, fmt.Errorf("%w: %s", hal.ErrBackendNotFound, t)
		}
		api = b
	}

	flags := gputypes.InstanceFlagsNone
	if cfg.Debug {
		flags |= gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Backends: halBackendMasks[t], Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	b := &halRendererBackendImpl{
		mu:          &sync.Mutex{},
		backendType: t,
		cfg:         cfg,
		instance:    instance,
		width:       cfg.Width,
		height:      cfg.Height,
		layouts:     make(map[string]hal.BindGroupLayout),
		modules:     make(map[shader.ID]hal.ShaderModule),
	}

	if cfg.Surface != nil {
		b.width, b.height = cfg.Surface.Size()
		if display, window, ok := cfg.Surface.NativeHandles(); ok && t != BackendTypeNoop {
			surface, err := instance.CreateSurface(display, window)
			if err != nil {
				instance.Destroy()
				return nil, fmt.Errorf("create surface: %w", err)
			}
			b.surface = surface
		}
	}

	adapters := instance.EnumerateAdapters(b.surface)
	if len(adapters) == 0 {
		b.destroyInstance()
		return nil, fmt.Errorf("%s: no adapters", t)
	}
	chosen := adapters[0]
	for _, a := range adapters {
		if a.Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			chosen = a
			break
		}
	}
	b.adapter = chosen.Adapter
	b.info = chosen.Info

	opened, err := chosen.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		b.destroyInstance()
		return nil, fmt.Errorf("open device: %w", err)
	}
	b.device = opened.Device
	b.queue = opened.Queue
	b.fence = newHALFence(b.queue, DefaultFenceTimeout)

	if err := b.configure(); err != nil {
		b.device.Destroy()
		b.destroyInstance()
		return nil, err
	}

	common.Logger().Info("hal device opened",
		"backend", t.String(),
		"adapter", b.info.Name,
		"headless", b.surface == nil,
		"width", b.width,
		"height", b.height,
		"format", b.surfaceFormat,
	)
	return b, nil
}

func (b *halRendererBackendImpl) destroyInstance() {
	if b.surface != nil {
		b.surface.Destroy()
		b.surface = nil
	}
	b.instance.Destroy()
}

// configure sizes the surface, or recreates the offscreen back buffer when running headless.
func (b *halRendererBackendImpl) configure() error {
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
		tex, err := b.CreateTexture(TextureDescriptor{
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

	caps := b.adapter.SurfaceCapabilities(b.surface)
	if caps == nil || len(caps.Formats) == 0 {
		return errors.New("surface reports no formats")
	}
	b.surfaceFormat = pickFormat(caps.Formats, b.cfg.BackBufferFormat)

	presentMode := gputypes.PresentModeFifo
	if b.cfg.PresentMode == PresentModeUncapped {
		for _, m := range caps.PresentModes {
			if m == gputypes.PresentModeMailbox {
				presentMode = m
				break
			}
			if m == gputypes.PresentModeImmediate {
				presentMode = m
			}
		}
	}
	alphaMode := gputypes.CompositeAlphaModeAuto
	for _, m := range caps.AlphaModes {
		if m == gputypes.CompositeAlphaModeOpaque {
			alphaMode = m
			break
		}
	}

	err := b.surface.Configure(b.device, &hal.SurfaceConfiguration{
		Width:       uint32(b.width),
		Height:      uint32(b.height),
		Format:      b.surfaceFormat,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: presentMode,
		AlphaMode:   alphaMode,
	})
	if err != nil {
		return fmt.Errorf("configure surface: %w", err)
	}
	return nil
}

func pickFormat(formats []gputypes.TextureFormat, preferred gputypes.TextureFormat) gputypes.TextureFormat {
	for _, want := range []gputypes.TextureFormat{preferred, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm} {
		for _, f := range formats {
			if want != gputypes.TextureFormatUndefined && f == want {
				return f
			}
		}
	}
	return formats[0]
}

// deviceError wraps err, marking the device lost when the API reports it.
func (b *halRendererBackendImpl) deviceError(op string, err error) error {
	if errors.Is(err, hal.ErrDeviceLost) {
		b.fence.markLost()
		return fmt.Errorf("%s: %w: %w", op, frame.ErrDeviceLost, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (b *halRendererBackendImpl) deferRelease(release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deferred = append(b.deferred, deferredRelease{submission: b.fence.lastSubmitted(), release: release})
}

// collect runs the deferred releases whose submissions have completed.
func (b *halRendererBackendImpl) collect() {
	done := b.queue.PollCompleted()
	b.mu.Lock()
	var ready []func()
	kept := b.deferred[:0]
	for _, d := range b.deferred {
		if d.submission <= done {
			ready = append(ready, d.release)
			continue
		}
		kept = append(kept, d)
	}
	b.deferred = kept
	b.mu.Unlock()
	for _, release := range ready {
		release()
	}
}

// releaseNative is the release func of every resource and object this backend creates.
func (b *halRendererBackendImpl) releaseNative(native any) {
	switch v := native.(type) {
	case *halBuffer:
		b.deferRelease(func() { b.device.DestroyBuffer(v.buffer) })
	case *halTexture:
		b.deferRelease(func() {
			for _, view := range v.views {
				b.device.DestroyTextureView(view)
			}
			if !v.swapchain {
				b.device.DestroyTexture(v.texture)
			}
		})
	case *halSampler:
		b.deferRelease(func() { b.device.DestroySampler(v.sampler) })
	case *halBindGroup:
		b.deferRelease(func() { b.device.DestroyBindGroup(v.group) })
	case *halPipeline:
		b.deferRelease(func() {
			if v.render != nil {
				b.device.DestroyRenderPipeline(v.render)
			}
			if v.compute != nil {
				b.device.DestroyComputePipeline(v.compute)
			}
			b.device.DestroyPipelineLayout(v.layout)
		})
	case nil:
	default:
		common.Assert(false, "backend: release of a foreign object", "type", fmt.Sprintf("%T", native))
	}
}

func (b *halRendererBackendImpl) Device() gpucontext.Device {
	return b.device
}

func (b *halRendererBackendImpl) Queue() gpucontext.Queue {
	return b.queue
}

func (b *halRendererBackendImpl) SurfaceFormat() gputypes.TextureFormat {
	return b.surfaceFormat
}

func (b *halRendererBackendImpl) Adapter() gpucontext.Adapter {
	return b.adapter
}

func (b *halRendererBackendImpl) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: b.info.Name, Type: adapterType(b.info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func (b *halRendererBackendImpl) Capabilities() Capabilities {
	return Capabilities{
		Name:             b.backendType.String(),
		Type:             b.backendType,
		ExplicitBarriers: true,
		ExecutesCompute:  b.backendType != BackendTypeNoop,
		BlockingCompute:  b.backendType != BackendTypeNoop,
		Headless:         b.surface == nil,
	}
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

func (b *halRendererBackendImpl) CreateBuffer(desc BufferDescriptor) (resource.Resource, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("create buffer %q: zero size", desc.Label)
	}
	usage := desc.Usage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	if desc.HostVisible {
		usage |= gputypes.BufferUsageMapWrite
	}
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  align4(desc.Size),
		Usage: usage,
	})
	if err != nil {
		return nil, b.deviceError(fmt.Sprintf("create buffer %q", desc.Label), err)
	}
	hb := &halBuffer{buffer: buf, size: align4(desc.Size), usage: usage &^ gputypes.BufferUsageMapWrite, hostVisible: desc.HostVisible}
	return resource.NewResource(resource.KindBuffer, hb,
		resource.WithLabel(desc.Label),
		resource.WithSize(desc.Size),
		resource.WithReleaseFunc(b.releaseNative),
	), nil
}

func nativeBuffer(r resource.Resource) (*halBuffer, error) {
	if r == nil || r.Destroyed() {
		return nil, errors.New("buffer is nil or destroyed")
	}
	hb, ok := r.Native().(*halBuffer)
	if !ok {
		return nil, fmt.Errorf("resource %q is not a hal buffer", r.Label())
	}
	return hb, nil
}

func nativeTexture(r resource.Resource) (*halTexture, error) {
	if r == nil || r.Destroyed() {
		return nil, errors.New("texture is nil or destroyed")
	}
	ht, ok := r.Native().(*halTexture)
	if !ok {
		return nil, fmt.Errorf("resource %q is not a hal texture", r.Label())
	}
	return ht, nil
}

func (b *halRendererBackendImpl) WriteBuffer(buf resource.Resource, offset uint64, data []byte) error {
	hb, err := nativeBuffer(buf)
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
	op := fmt.Sprintf("write buffer %q", buf.Label())
	switch {
	case hb.hostVisible:
		if err := b.mapWrite(hb.buffer, offset, data); err != nil {
			return b.deviceError(op, err)
		}
	case b.backendType == BackendTypeNoop:
		// The noop queue copies into host memory and never touches a GPU.
		if err := b.queue.WriteBuffer(hb.buffer, offset, data); err != nil {
			return b.deviceError(op, err)
		}
	default:
		if err := b.stagedWrite(hb, offset, data); err != nil {
			return b.deviceError(op, err)
		}
	}
	return nil
}

// mapWrite copies data into a host visible buffer. The caller guarantees no submission in flight reads the
// written range.
func (b *halRendererBackendImpl) mapWrite(buf hal.Buffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	mapping, err := b.device.MapBuffer(buf, offset, uint64(len(data)))
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}
	copy(unsafe.Slice((*byte)(mapping.Ptr), len(data)), data)
	if err := b.device.UnmapBuffer(buf); err != nil {
		return fmt.Errorf("unmap: %w", err)
	}
	return nil
}

// stagedWrite copies data into a device local buffer through a host visible staging buffer. The copy is a
// submission of its own, ordered after every earlier submission, so the CPU never waits for the GPU.
func (b *halRendererBackendImpl) stagedWrite(hb *halBuffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	size := uint64(len(data))
	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "upload staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create staging: %w", err)
	}
	if err := b.mapWrite(staging, 0, data); err != nil {
		b.device.DestroyBuffer(staging)
		return err
	}

	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "upload"})
	if err != nil {
		b.device.DestroyBuffer(staging)
		return fmt.Errorf("create upload encoder: %w", err)
	}
	if err := enc.BeginEncoding("upload"); err != nil {
		enc.Destroy()
		b.device.DestroyBuffer(staging)
		return fmt.Errorf("begin upload: %w", err)
	}
	// Every usage the buffer was created with may be pending from earlier submissions.
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: hb.buffer,
		Usage:  hal.BufferUsageTransition{OldUsage: hb.usage, NewUsage: gputypes.BufferUsageCopyDst},
	}})
	enc.CopyBufferToBuffer(staging, hb.buffer, []hal.BufferCopy{{DstOffset: offset, Size: size}})
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: hb.buffer,
		Usage:  hal.BufferUsageTransition{OldUsage: gputypes.BufferUsageCopyDst, NewUsage: hb.usage},
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		b.device.DestroyBuffer(staging)
		return fmt.Errorf("end upload: %w", err)
	}
	index, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		b.device.FreeCommandBuffer(cmd)
		enc.Destroy()
		b.device.DestroyBuffer(staging)
		return fmt.Errorf("submit upload: %w", err)
	}
	b.fence.noteSubmit(index)
	b.deferRelease(func() {
		b.device.FreeCommandBuffer(cmd)
		enc.Destroy()
		b.device.DestroyBuffer(staging)
	})
	return nil
}

func (b *halRendererBackendImpl) ReadBuffer(ctx context.Context, buf resource.Resource, offset, size uint64) ([]byte, error) {
	hb, err := nativeBuffer(buf)
	if err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}
	if offset+size > buf.Size() {
		return nil, fmt.Errorf("read buffer %q: %d bytes at %d exceed size %d", buf.Label(), size, offset, buf.Size())
	}
	if err := b.fence.waitSubmitted(ctx); err != nil {
		return nil, b.deviceError("read buffer", err)
	}

	out, err := b.mapCopy(hb.buffer, offset, size)
	if err == nil || !errors.Is(err, hal.ErrInvalidMapRange) {
		return out, err
	}

	// Device local memory: copy through a mappable staging buffer.
	stagingSize := align4(size)
	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, b.deviceError("create readback staging", err)
	}
	defer b.device.DestroyBuffer(staging)

	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, b.deviceError("create readback encoder", err)
	}
	defer enc.Destroy()
	if err := enc.BeginEncoding("readback"); err != nil {
		return nil, b.deviceError("begin readback", err)
	}
	current := BufferUsageFor(buf.State())
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: hb.buffer,
		Usage:  hal.BufferUsageTransition{OldUsage: current, NewUsage: gputypes.BufferUsageCopySrc},
	}})
	enc.CopyBufferToBuffer(hb.buffer, staging, []hal.BufferCopy{{SrcOffset: offset, Size: min(stagingSize, hb.size-offset)}})
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: hb.buffer,
		Usage:  hal.BufferUsageTransition{OldUsage: gputypes.BufferUsageCopySrc, NewUsage: current},
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, b.deviceError("end readback", err)
	}
	defer b.device.FreeCommandBuffer(cmd)

	index, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return nil, b.deviceError("submit readback", err)
	}
	b.fence.noteSubmit(index)
	if err := b.fence.waitSubmitted(ctx); err != nil {
		return nil, b.deviceError("wait readback", err)
	}
	return b.mapCopy(staging, 0, size)
}

func (b *halRendererBackendImpl) mapCopy(buf hal.Buffer, offset, size uint64) ([]byte, error) {
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	mapping, err := b.device.MapBuffer(buf, offset, size)
	if err != nil {
		return nil, err
	}
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := b.device.UnmapBuffer(buf); err != nil {
		return nil, fmt.Errorf("unmap: %w", err)
	}
	return out, nil
}

func (b *halRendererBackendImpl) CreateTexture(desc TextureDescriptor) (resource.Resource, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, hal.ErrZeroArea)
	}
	desc.Layers = max(desc.Layers, 1)
	if desc.Cube {
		desc.Layers = 6
	}
	desc.SampleCount = max(desc.SampleCount, 1)

	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.Layers},
		MipLevelCount: 1,
		SampleCount:   desc.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, b.deviceError(fmt.Sprintf("create texture %q", desc.Label), err)
	}
	return resource.NewResource(resource.KindTexture, &halTexture{texture: tex, desc: desc, views: make(map[viewKey]hal.TextureView)},
		resource.WithLabel(desc.Label),
		resource.WithExtent(desc.Width, desc.Height, desc.Layers),
		resource.WithFormat(desc.Format),
		resource.WithReleaseFunc(b.releaseNative),
	), nil
}

func (b *halRendererBackendImpl) WriteTexture(tex resource.Resource, layer uint32, pixels []byte, width, height uint32) error {
	ht, err := nativeTexture(tex)
	if err != nil {
		return fmt.Errorf("write texture: %w", err)
	}
	if uint64(len(pixels)) < uint64(width)*uint64(height)*4 {
		return fmt.Errorf("write texture %q: %d bytes for %dx%d pixels", tex.Label(), len(pixels), width, height)
	}
	err = b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: ht.texture, Origin: hal.Origin3D{Z: layer}, Aspect: gputypes.TextureAspectAll},
		pixels,
		&hal.ImageDataLayout{BytesPerRow: width * 4, RowsPerImage: height},
		&hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return b.deviceError(fmt.Sprintf("write texture %q", tex.Label()), err)
	}
	return nil
}

// view returns the view of one layer (or all layers for layer < 0) of a texture.
func (b *halRendererBackendImpl) view(t *halTexture, layer int, depthOnly bool) (hal.TextureView, error) {
	key := viewKey{layer: layer, depthOnly: depthOnly}
	if v, ok := t.views[key]; ok {
		return v, nil
	}
	desc := &hal.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          t.desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	}
	switch {
	case layer >= 0:
		desc.BaseArrayLayer = uint32(layer)
	case t.desc.Cube:
		desc.Dimension = gputypes.TextureViewDimensionCube
		desc.ArrayLayerCount = 6
	case t.desc.Layers > 1:
		desc.Dimension = gputypes.TextureViewDimension2DArray
		desc.ArrayLayerCount = t.desc.Layers
	}
	if depthOnly {
		desc.Aspect = gputypes.TextureAspectDepthOnly
	}
	v, err := b.device.CreateTextureView(t.texture, desc)
	if err != nil {
		return nil, b.deviceError(fmt.Sprintf("create view of %q", t.desc.Label), err)
	}
	t.views[key] = v
	return v, nil
}

func (b *halRendererBackendImpl) CreateSampler(desc SamplerDescriptor) (any, error) {
	s, err := b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressMode,
		AddressModeV: desc.AddressMode,
		AddressModeW: desc.AddressMode,
		MagFilter:    desc.Filter,
		MinFilter:    desc.Filter,
		MipmapFilter: desc.Filter,
		LodMaxClamp:  32,
		Anisotropy:   max(desc.Anisotropy, 1),
	})
	if err != nil {
		return nil, b.deviceError(fmt.Sprintf("create sampler %q", desc.Label), err)
	}
	return &halSampler{sampler: s}, nil
}

// layoutFor returns the cached bind group layout of one group of bindings.
func (b *halRendererBackendImpl) layoutFor(shaderType shader.ShaderType, bindings []shader.Binding) (hal.BindGroupLayout, error) {
	key := LayoutKey(shaderType, bindings)
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.layouts[key]; ok {
		return l, nil
	}
	l, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   key,
		Entries: LayoutEntries(shaderType, bindings),
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout %s: %w", key, err)
	}
	b.layouts[key] = l
	return l, nil
}

func (b *halRendererBackendImpl) CreateBindGroup(label string, shaderType shader.ShaderType, entries []BindingEntry) (any, error) {
	bindings := make([]shader.Binding, len(entries))
	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, e := range entries {
		bindings[i] = e.Binding
		halEntries[i].Binding = e.Binding.Binding

		switch {
		case e.Binding.Kind.IsBuffer():
			hb, err := nativeBuffer(e.Buffer)
			if err != nil {
				return nil, fmt.Errorf("bind group %q binding %d: %w", label, e.Binding.Binding, err)
			}
			size := e.Size
			if size == 0 {
				size = e.Buffer.Size() - e.Offset
			}
			halEntries[i].Resource = gputypes.BufferBinding{Buffer: hb.buffer.NativeHandle(), Offset: e.Offset, Size: size}
		case e.Binding.Kind == shader.BindingSampler:
			hs, ok := e.Sampler.(*halSampler)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: not a hal sampler", label, e.Binding.Binding)
			}
			halEntries[i].Resource = gputypes.SamplerBinding{Sampler: hs.sampler.NativeHandle()}
		default:
			ht, err := nativeTexture(e.Texture)
			if err != nil {
				return nil, fmt.Errorf("bind group %q binding %d: %w", label, e.Binding.Binding, err)
			}
			v, err := b.view(ht, e.Layer, e.Binding.Kind == shader.BindingDepthTexture)
			if err != nil {
				return nil, err
			}
			halEntries[i].Resource = gputypes.TextureViewBinding{TextureView: v.NativeHandle()}
		}
	}

	layout, err := b.layoutFor(shaderType, bindings)
	if err != nil {
		return nil, err
	}
	group, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{Label: label, Layout: layout, Entries: halEntries})
	if err != nil {
		return nil, b.deviceError(fmt.Sprintf("create bind group %q", label), err)
	}
	return &halBindGroup{group: group}, nil
}

func (b *halRendererBackendImpl) shaderModule(s shader.Shader) (hal.ShaderModule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.modules[s.ID()]; ok {
		return m, nil
	}
	src := s.Source()
	m, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  s.Name(),
		Source: hal.ShaderSource{WGSL: src.WGSL, SPIRV: src.SPIRV},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module %q: %w", s.Name(), err)
	}
	b.modules[s.ID()] = m
	return m, nil
}

func (b *halRendererBackendImpl) BuildPipeline(p pipeline.Pipeline) (any, error) {
	s := p.Shader()
	module, err := b.shaderModule(s)
	if err != nil {
		return nil, err
	}

	bindings := s.Bindings()
	groups := make([]hal.BindGroupLayout, GroupCount(bindings))
	for g := range groups {
		l, err := b.layoutFor(s.Type(), shader.BindingsInGroup(bindings, uint32(g)))
		if err != nil {
			return nil, err
		}
		groups[g] = l
	}
	layout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: s.Name(), BindGroupLayouts: groups})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout %q: %w", s.Name(), err)
	}
	hp := &halPipeline{layout: layout}

	if p.Type() == pipeline.PipelineTypeCompute {
		cp, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   s.Name(),
			Layout:  layout,
			Compute: hal.ComputeState{Module: module, EntryPoint: s.ComputeEntryPoint()},
		})
		if err != nil {
			b.device.DestroyPipelineLayout(layout)
			return nil, fmt.Errorf("create compute pipeline %q: %w", s.Name(), err)
		}
		hp.compute = cp
		return hp, nil
	}

	rp, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  s.Name(),
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: s.VertexEntryPoint(),
			Buffers:    p.VertexBuffers(),
		},
		Primitive:    p.Primitive(),
		DepthStencil: halDepthStencil(p.DepthStencil()),
		Multisample:  p.Multisample(),
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: s.FragmentEntryPoint(),
			Targets:    []gputypes.ColorTargetState{p.ColorTarget()},
		},
	})
	if err != nil {
		b.device.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("create render pipeline %q: %w", s.Name(), err)
	}
	hp.render = rp
	return hp, nil
}

// halDepthStencil converts the depth state; stencil is never used and always keeps.
func halDepthStencil(ds *gputypes.DepthStencilState) *hal.DepthStencilState {
	if ds == nil {
		return nil
	}
	keep := hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways, FailOp: hal.StencilOperationKeep, DepthFailOp: hal.StencilOperationKeep, PassOp: hal.StencilOperationKeep}
	return &hal.DepthStencilState{
		Format:              ds.Format,
		DepthWriteEnabled:   ds.DepthWriteEnabled,
		DepthCompare:        ds.DepthCompare,
		StencilFront:        keep,
		StencilBack:         keep,
		StencilReadMask:     ds.StencilReadMask,
		StencilWriteMask:    ds.StencilWriteMask,
		DepthBias:           ds.DepthBias,
		DepthBiasSlopeScale: ds.DepthBiasSlopeScale,
		DepthBiasClamp:      ds.DepthBiasClamp,
	}
}

func (b *halRendererBackendImpl) Release(native any) {
	b.releaseNative(native)
}

func (b *halRendererBackendImpl) Begin(label string) (CommandList, error) {
	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, b.deviceError("create command encoder", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return nil, b.deviceError("begin encoding", err)
	}
	return &halCommandList{backend: b, encoder: enc, label: label}, nil
}

func (b *halRendererBackendImpl) Submit(cl CommandList) error {
	hcl, ok := cl.(*halCommandList)
	if !ok || hcl.backend != b {
		return errors.New("submit: command list was not created by this backend")
	}
	hcl.EndRenderPass()
	cmd, err := hcl.encoder.EndEncoding()
	if err != nil {
		hcl.encoder.Destroy()
		return b.deviceError("end encoding", err)
	}
	index, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		b.device.FreeCommandBuffer(cmd)
		hcl.encoder.Destroy()
		return b.deviceError("submit", err)
	}
	b.fence.noteSubmit(index)
	enc := hcl.encoder
	b.deferRelease(func() {
		b.device.FreeCommandBuffer(cmd)
		enc.Destroy()
	})
	b.collect()
	return nil
}

func (b *halRendererBackendImpl) Fence() frame.Fence {
	return b.fence
}

func (b *halRendererBackendImpl) AcquireBackBuffer() (resource.Resource, error) {
	if b.surface == nil {
		return b.offscreen, nil
	}
	if b.backBuffer != nil {
		return b.backBuffer, nil
	}

	acquired, err := b.surface.AcquireTexture(nil)
	switch {
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost):
		return nil, fmt.Errorf("%w: %w", ErrSurfaceOutdated, err)
	case errors.Is(err, hal.ErrNotReady), errors.Is(err, hal.ErrTimeout):
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	case err != nil:
		return nil, b.deviceError("acquire back buffer", err)
	}
	if acquired.Suboptimal {
		common.Logger().Debug("back buffer suboptimal", "backend", b.backendType.String())
	}

	b.acquired = acquired
	desc := TextureDescriptor{Label: "back buffer", Width: uint32(b.width), Height: uint32(b.height), Layers: 1, Format: b.surfaceFormat, SampleCount: 1}
	b.backBuffer = resource.NewResource(resource.KindTexture,
		&halTexture{texture: acquired.Texture, desc: desc, views: make(map[viewKey]hal.TextureView), swapchain: true},
		resource.WithLabel(desc.Label),
		resource.WithExtent(desc.Width, desc.Height, 1),
		resource.WithFormat(desc.Format),
		resource.WithReleaseFunc(b.releaseNative),
	)
	return b.backBuffer, nil
}

func (b *halRendererBackendImpl) Present() error {
	if b.surface == nil {
		return nil
	}
	if b.acquired == nil {
		return errors.New("present: no acquired back buffer")
	}
	err := b.queue.Present(b.surface, b.acquired.Texture, nil)
	b.backBuffer.Destroy()
	b.backBuffer = nil
	b.acquired = nil
	switch {
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost):
		return fmt.Errorf("%w: %w", ErrSurfaceOutdated, err)
	case err != nil:
		return b.deviceError("present", err)
	}
	return nil
}

func (b *halRendererBackendImpl) Resize(width, height int) error {
	if err := b.WaitIdle(); err != nil {
		return err
	}
	if b.acquired != nil {
		b.surface.DiscardTexture(b.acquired.Texture)
		b.backBuffer.Destroy()
		b.backBuffer = nil
		b.acquired = nil
	}
	b.width, b.height = width, height
	return b.configure()
}

func (b *halRendererBackendImpl) BackBufferSize() (int, int) {
	return b.width, b.height
}

func (b *halRendererBackendImpl) WaitIdle() error {
	if err := b.device.WaitIdle(); err != nil {
		return b.deviceError("wait idle", err)
	}
	b.collect()
	return nil
}

func (b *halRendererBackendImpl) Destroy() {
	if err := b.device.WaitIdle(); err != nil {
		common.Logger().Warn("wait idle before destroy failed", "err", err)
	}
	if b.acquired != nil {
		b.surface.DiscardTexture(b.acquired.Texture)
		b.backBuffer.Destroy()
		b.acquired = nil
	}
	if b.offscreen != nil {
		b.offscreen.Destroy()
	}

	b.mu.Lock()
	deferred := b.deferred
	b.deferred = nil
	b.mu.Unlock()
	for _, d := range deferred {
		d.release()
	}
	for _, l := range b.layouts {
		b.device.DestroyBindGroupLayout(l)
	}
	for _, m := range b.modules {
		b.device.DestroyShaderModule(m)
	}
	if b.surface != nil {
		b.surface.Unconfigure(b.device)
	}
	b.device.Destroy()
	b.destroyInstance()
	common.Logger().Info("hal device destroyed", "backend", b.backendType.String())
}
