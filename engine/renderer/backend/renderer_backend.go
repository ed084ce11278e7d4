// Package backend defines the GPU API abstraction the render context records into, and the registry the
// concrete implementations are selected from once at startup.
//
// Two families exist: the hal backends (Vulkan, Metal, D3D12 and the headless noop device) built on
// github.com/gogpu/wgpu/hal with explicit barriers, and the WebGPU backend in the wgpubackend subpackage
// whose barriers are implicit.
package backend

import (
	"context"
	"errors"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

var (
	// ErrSurfaceOutdated reports that the back buffer no longer matches the window and Resize must be called.
	ErrSurfaceOutdated = errors.New("backend: surface outdated")

	// ErrNotReady reports that no back buffer is available yet; the frame is skipped.
	ErrNotReady = errors.New("backend: back buffer not ready")
)

// BackendType identifies the GPU backend implementation used by the Renderer.
type BackendType int

const (
	// BackendTypeAuto picks the highest priority backend that is registered.
	BackendTypeAuto BackendType = iota
	// BackendTypeVulkan selects the hal Vulkan backend.
	BackendTypeVulkan
	// BackendTypeMetal selects the hal Metal backend.
	BackendTypeMetal
	// BackendTypeD3D12 selects the hal D3D12 backend.
	BackendTypeD3D12
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU
	// BackendTypeNoop selects the headless hal device that records nothing. Buffers are real memory.
	BackendTypeNoop
)

var backendTypeNames = [...]string{
	BackendTypeAuto:   "auto",
	BackendTypeVulkan: "vulkan",
	BackendTypeMetal:  "metal",
	BackendTypeD3D12:  "d3d12",
	BackendTypeWGPU:   "wgpu",
	BackendTypeNoop:   "noop",
}

func (t BackendType) String() string {
	if t < 0 || int(t) >= len(backendTypeNames) {
		return "unknown"
	}
	return backendTypeNames[t]
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4x multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8x multisample anti-aliasing. Adapter-dependent.
	MSAA8x MSAASampleCount = 8
)

// SurfaceSource is the window a backend presents into.
type SurfaceSource interface {
	gpucontext.WindowProvider

	// NativeHandles returns the platform display and window handles for hal surfaces.
	//
	// Returns:
	//   - display: the display connection (X11 Display*), 0 where the platform has none
	//   - window: the window handle (X11 Window, HWND)
	//   - ok: false when the platform exposes no usable handles
	NativeHandles() (display, window uintptr, ok bool)
}

// Config carries the startup settings shared by every backend.
type Config struct {
	// Surface is the window to present into; nil renders into an offscreen back buffer.
	Surface SurfaceSource
	// Width and Height size the offscreen back buffer when Surface is nil.
	Width, Height int
	PresentMode   PresentMode
	// Debug enables API validation where the backend supports it.
	Debug bool
	// BackBufferFormat overrides the surface format; TextureFormatUndefined picks the surface default.
	BackBufferFormat gputypes.TextureFormat
}

// Capabilities describes what a backend actually does.
type Capabilities struct {
	Name string
	Type BackendType
	// ExplicitBarriers is set when recorded barriers reach the GPU API.
	ExplicitBarriers bool
	// ExecutesCompute is false for devices that accept dispatches without running them.
	ExecutesCompute bool
	// BlockingCompute is set when host visible writes land without queue ordering, so a standalone compute
	// submission must complete before the caller may rewrite the buffers it read.
	BlockingCompute bool
	// Headless is set when the back buffer is an offscreen texture.
	Headless bool
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
	// HostVisible places the buffer in CPU writable memory. WriteBuffer then copies straight into it, and the
	// caller must not rewrite a range a submission in flight still reads. Backends whose queue orders every
	// write ignore it.
	HostVisible bool
}

// TextureDescriptor describes a 2D, array or cube texture to create.
type TextureDescriptor struct {
	Label         string
	Width, Height uint32
	// Layers is the array layer count; cube textures use 6.
	Layers      uint32
	Format      gputypes.TextureFormat
	Usage       gputypes.TextureUsage
	SampleCount uint32
	Cube        bool
}

// SamplerDescriptor describes a sampler to create.
type SamplerDescriptor struct {
	Label       string
	AddressMode gputypes.AddressMode
	Filter      gputypes.FilterMode
	Anisotropy  uint16
}

// BindingEntry binds one resource to one shader binding.
type BindingEntry struct {
	Binding shader.Binding
	// Buffer is set for buffer bindings. Size 0 binds the rest of the buffer from Offset.
	Buffer       resource.Resource
	Offset, Size uint64
	// Texture is set for texture bindings. Layer selects a single array layer or cube face, -1 binds all.
	Texture resource.Resource
	Layer   int
	// Sampler is a backend sampler from CreateSampler.
	Sampler any
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	Label      string
	Color      resource.Resource
	ColorLayer int
	// Resolve receives the resolved color of a multisampled Color attachment.
	Resolve     resource.Resource
	ColorLoadOp gputypes.LoadOp
	ClearColor  gputypes.Color
	Depth       resource.Resource
	DepthLayer  int
	DepthLoadOp gputypes.LoadOp
	ClearDepth  float32
	Viewport    [4]float32
	HasViewport bool
}

// CommandList records GPU work. Barriers are recorded through RecordBarrier and must not be recorded while
// a render pass is open.
type CommandList interface {
	resource.BarrierRecorder

	// BeginRenderPass opens a render pass.
	//
	// Parameters:
	//   - desc: the attachments
	//
	// Returns:
	//   - error: an error if an attachment view could not be created
	BeginRenderPass(desc RenderPassDescriptor) error

	// EndRenderPass closes the open render pass.
	EndRenderPass()

	// SetPipeline binds a render pipeline in the open pass.
	SetPipeline(p pipeline.Pipeline)

	// SetBindGroup binds a bind group from CreateBindGroup in the open pass.
	SetBindGroup(index uint32, group any)

	// SetVertexBuffer binds the vertex buffer in slot 0.
	SetVertexBuffer(buf resource.Resource)

	// SetIndexBuffer binds the index buffer.
	SetIndexBuffer(buf resource.Resource, format gputypes.IndexFormat)

	// DrawIndexed records an indexed draw.
	DrawIndexed(indexCount, firstIndex uint32)

	// Dispatch records a compute pass with one dispatch.
	//
	// Parameters:
	//   - p: the compute pipeline
	//   - groups: bind groups by group index, nil entries are skipped
	//   - x, y, z: workgroup counts
	Dispatch(p pipeline.Pipeline, groups []any, x, y, z uint32)

	// CopyBuffer records a buffer to buffer copy.
	CopyBuffer(src, dst resource.Resource, size uint64)

	// Barriers returns the number of barriers recorded so far.
	//
	// Returns:
	//   - int: the barrier count
	Barriers() int
}

// RendererBackend is the GPU API the render context drives. Implementations are not safe for concurrent
// use; the render context owns the single submission goroutine.
type RendererBackend interface {
	gpucontext.DeviceProvider

	// Capabilities reports what this backend does.
	//
	// Returns:
	//   - Capabilities: the backend description
	Capabilities() Capabilities

	// CreateBuffer creates a buffer in StateUndefined.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - resource.Resource: the buffer
	//   - error: creation error
	CreateBuffer(desc BufferDescriptor) (resource.Resource, error)

	// WriteBuffer copies data into a buffer. Writes to host visible buffers land immediately; other writes
	// are ordered after every earlier submission and before the next one.
	WriteBuffer(buf resource.Resource, offset uint64, data []byte) error

	// ReadBuffer copies size bytes back from a buffer, waiting for pending work first.
	ReadBuffer(ctx context.Context, buf resource.Resource, offset, size uint64) ([]byte, error)

	// CreateTexture creates a texture in StateUndefined.
	CreateTexture(desc TextureDescriptor) (resource.Resource, error)

	// WriteTexture uploads tightly packed RGBA8 pixels into one layer of a texture.
	WriteTexture(tex resource.Resource, layer uint32, pixels []byte, width, height uint32) error

	// CreateSampler creates a sampler.
	CreateSampler(desc SamplerDescriptor) (any, error)

	// CreateBindGroup creates a bind group for one group of a shader's bindings.
	//
	// Parameters:
	//   - label: debug label
	//   - shaderType: render groups are visible to vertex and fragment, compute groups to compute
	//   - entries: one entry per binding of the group, in binding order
	//
	// Returns:
	//   - any: the backend bind group, released with Release
	//   - error: creation error
	CreateBindGroup(label string, shaderType shader.ShaderType, entries []BindingEntry) (any, error)

	// BuildPipeline creates the backend pipeline for an unbuilt pipeline. Used as the pipeline.Cache
	// build func.
	BuildPipeline(p pipeline.Pipeline) (any, error)

	// Release destroys a sampler, bind group or pipeline created by this backend.
	Release(native any)

	// Begin opens a command list.
	Begin(label string) (CommandList, error)

	// Submit closes and submits a command list.
	Submit(cl CommandList) error

	// Fence returns the frame fence tracking submitted work.
	Fence() frame.Fence

	// AcquireBackBuffer returns the texture to render into this frame. Its state is StateUndefined or
	// StatePresent from the previous frame.
	//
	// Returns:
	//   - resource.Resource: the back buffer
	//   - error: ErrSurfaceOutdated after a resize, or a fatal device error
	AcquireBackBuffer() (resource.Resource, error)

	// Present hands the acquired back buffer to the display.
	Present() error

	// Resize reconfigures the surface or the offscreen back buffer.
	Resize(width, height int) error

	// BackBufferSize returns the current back buffer size in pixels.
	BackBufferSize() (width, height int)

	// WaitIdle blocks until the GPU has finished all submitted work.
	WaitIdle() error

	// Destroy releases the device. Every resource must be destroyed first.
	Destroy()
}
