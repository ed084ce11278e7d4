// Package renderer is the render context: it owns the backend, the resource arena, the bind group heap,
// the per-draw uniform ring, the pipeline cache, the compute wrapper and the light tiler, and exposes the
// frame-level drawing operations.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/light"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/compute"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/descriptor"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

const (
	// DefaultRingSize is the number of per-draw uniform buffers. A frame may use at most
	// DefaultRingSize / frames in flight of them without waiting on the GPU.
	DefaultRingSize = 512

	// DefaultHeapSize is the capacity of the draw bind group heap.
	DefaultHeapSize = 4096

	// DefaultFenceTimeout bounds the end-of-frame fence wait when the caller's context has no deadline.
	DefaultFenceTimeout = 5 * time.Second

	defaultHeadlessWidth  = 1280
	defaultHeadlessHeight = 720
)

// ErrNoFrame is returned by frame operations called outside BeginFrame/Present.
var ErrNoFrame = errors.New("renderer: no frame in progress")

// ClearFlags selects the attachments ClearScreen clears.
type ClearFlags uint8

const (
	ClearColor ClearFlags = 1 << iota
	ClearDepth
)

// FaceRange selects the primitives of a vertex buffer to draw. Count 0 draws every primitive from First.
type FaceRange struct {
	First int
	Count int
}

// AllFaces draws the whole vertex buffer.
var AllFaces = FaceRange{}

// renderContext is the implementation of the Renderer interface.
type renderContext struct {
	backend backend.RendererBackend
	caps    backend.Capabilities
	arena   resource.Arena
	groups  descriptor.Heap[any]
	cache   pipeline.Cache
	ring    frame.Ring[resource.Resource]
	compute compute.Dispatcher
	tiler   light.Tiler
	drawBG  map[drawGroupKey]descriptor.Slot
	// ringReady is set once every ring slot has been moved to StateUniform.
	ringReady bool

	white     resource.Resource
	magenta   resource.Resource
	sampler   any
	backDepth resource.Resource
	msaaColor resource.Resource

	// Frame state, valid between BeginFrame and Present.
	frameCtx   context.Context
	list       backend.CommandList
	backBuffer resource.Resource
	target     RenderTarget
	face       int
	passOpen   bool
	clearColor gputypes.Color

	frameIndex   uint64
	lastFence    uint64
	lastPipeline pipeline.Key
	lastBarrier  resource.Barrier
	stats        Stats

	// Config collected from builder options before the backend opens.
	backendType      backend.BackendType
	surface          backend.SurfaceSource
	injected         backend.RendererBackend
	presentMode      backend.PresentMode
	msaa             backend.MSAASampleCount
	framesInFlight   int
	ringSize         int
	heapSize         int
	maxLights        int
	maxLightsPerTile int
	cpuCulling       bool
	fenceTimeout     time.Duration
	fatal            FatalHandler
	headlessWidth    int
	headlessHeight   int
	debug            bool
}

// Renderer is the render context of one window or offscreen back buffer.
//
// A frame is recorded between BeginFrame and Present: render targets are selected with SetRenderTarget,
// cleared with ClearScreen, filled with Draw and Dispatch, and lights are assigned to screen tiles with
// CullLights. Every operation records and returns; only Present blocks, on the frame fence.
//
// The Renderer is driven by a single goroutine and is not safe for concurrent use.
type Renderer interface {
	// BeginFrame acquires the back buffer and opens the frame's command list.
	//
	// Parameters:
	//   - ctx: bounds the waits for in-flight ring slots during the frame
	//
	// Returns:
	//   - error: backend.ErrSurfaceOutdated (call Resize), backend.ErrNotReady (skip the frame) or a
	//     device error
	BeginFrame(ctx context.Context) error

	// Draw records an indexed draw of a vertex buffer. The pipeline is resolved from the cache by the
	// vertex layout, shader, states and current render target; resources the shader binds are transitioned
	// first, and the shader's uniform block is copied into a ring slot.
	//
	// Parameters:
	//   - vb: the vertex buffer
	//   - faces: the primitives to draw
	//   - s: a render shader
	//   - blend, depth, cull, fill, topology: the pipeline state
	//
	// Returns:
	//   - error: ErrNoFrame, a pipeline build error, descriptor.ErrHeapExhausted or frame.ErrRingOverrun
	Draw(vb VertexBuffer, faces FaceRange, s shader.Shader, blend pipeline.BlendMode, depth pipeline.DepthMode,
		cull pipeline.CullMode, fill pipeline.FillMode, topology pipeline.Topology) error

	// Dispatch records a compute dispatch with the resources bound to Compute's slots. Any open render pass
	// is closed first.
	//
	// Parameters:
	//   - s: a compute shader
	//   - groupsX, groupsY, groupsZ: workgroup counts
	//
	// Returns:
	//   - error: ErrNoFrame or the compute wrapper's error
	Dispatch(s shader.Shader, groupsX, groupsY, groupsZ uint32) error

	// Compute returns the compute wrapper whose slots Dispatch binds.
	Compute() compute.Dispatcher

	// SetRenderTarget selects where following draws render to. The open render pass ends.
	//
	// Parameters:
	//   - target: the render target, nil for the back buffer
	//   - face: the array layer or cube face, clamped to the target's layers
	SetRenderTarget(target RenderTarget, face int)

	// ClearScreen begins a render pass on the current target that clears the flagged attachments.
	//
	// Parameters:
	//   - flags: ClearColor, ClearDepth or both
	ClearScreen(flags ClearFlags)

	// SetClearColor sets the color ClearScreen clears to.
	SetClearColor(r, g, b, a float64)

	// CullLights uploads the collected lights and assigns them to screen tiles. Shading draws that bind
	// the light buffers see the result. Any open render pass is closed first.
	//
	// Parameters:
	//   - projection: the camera projection
	//   - view: the camera view matrix
	//   - depthNormal: the depth/normal prepass target whose alpha holds view depth, nil to cull against
	//     the full depth range
	//
	// Returns:
	//   - error: ErrNoFrame, light.ErrInvalidState or an upload error
	CullLights(projection, view common.Mat4, depthNormal RenderTarget) error

	// Present submits the frame, presents the back buffer and waits until at most frames-in-flight minus
	// one frames are still executing.
	//
	// Parameters:
	//   - ctx: bounds the fence wait; without a deadline the configured fence timeout applies
	//
	// Returns:
	//   - error: ErrNoFrame, backend.ErrSurfaceOutdated, a wait error or a device error
	Present(ctx context.Context) error

	// Resize resizes the back buffer and rebuilds the light tile grid. Zero sizes are ignored.
	//
	// Parameters:
	//   - width, height: the new size in pixels
	//
	// Returns:
	//   - error: backend or buffer creation error
	Resize(width, height int) error

	// Size returns the back buffer size in pixels.
	Size() (width, height int)

	// CreateShader compiles a WGSL shader. Failures are logged and return the no-op fallback shader.
	//
	// Parameters:
	//   - name: debug name
	//   - shaderType: render or compute
	//   - wgsl: the shader source
	//   - options: entry point and workgroup options
	//
	// Returns:
	//   - shader.Shader: the shader, IsFallback reports a failed compile
	CreateShader(name string, shaderType shader.ShaderType, wgsl string, options ...shader.ShaderBuilderOption) shader.Shader

	// LoadShader reads a WGSL or SPIR-V shader file. Failures return the no-op fallback shader.
	LoadShader(name string, shaderType shader.ShaderType, path string, options ...shader.ShaderBuilderOption) shader.Shader

	// CreateVertexBuffer uploads interleaved vertices and 16-bit triangle indices.
	//
	// Parameters:
	//   - label: debug label
	//   - layout: the vertex layout the data is packed in
	//   - vertices: interleaved vertex data, a multiple of the layout stride
	//   - indices: triangle list indices
	//
	// Returns:
	//   - VertexBuffer: the GPU vertex buffer
	//   - error: validation or buffer creation error
	CreateVertexBuffer(label string, layout pipeline.VertexLayout, vertices []byte, indices []uint16) (VertexBuffer, error)

	// CreateRenderTarget creates an offscreen color target with its depth attachment.
	CreateRenderTarget(desc RenderTargetDescriptor) (RenderTarget, error)

	// CreateTexture uploads RGBA8 pixels into a sampled texture.
	CreateTexture(label string, data common.TextureStagingData) (resource.Resource, error)

	// LoadTexture decodes a PNG, JPEG, BMP, TIFF or WebP file into a sampled texture. Failures are logged
	// and return the shared magenta texture.
	LoadTexture(path string) resource.Resource

	// MagentaTexture returns the shared texture returned for textures that failed to load.
	MagentaTexture() resource.Resource

	// Lights returns the light tiler lights are collected into before CullLights.
	Lights() light.Tiler

	// Stats returns the counters of the current or last frame.
	Stats() Stats

	// Backend returns the GPU backend.
	Backend() backend.RendererBackend

	// Destroy waits for the GPU and releases everything the renderer created, then the backend.
	Destroy()
}

var _ Renderer = &renderContext{}

// NewRenderer opens a backend and creates the render context.
//
// Parameters:
//   - backendType: the backend to open, BackendTypeAuto tries them in priority order
//   - surface: the window to present into, nil renders into an offscreen back buffer
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the render context
//   - error: backend open or resource creation error
func NewRenderer(backendType backend.BackendType, surface backend.SurfaceSource, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderContext{
		backendType:      backendType,
		surface:          surface,
		msaa:             backend.MSAAOff,
		framesInFlight:   frame.DefaultFramesInFlight,
		ringSize:         DefaultRingSize,
		heapSize:         DefaultHeapSize,
		maxLights:        light.DefaultMaxLights,
		maxLightsPerTile: light.DefaultMaxLightsPerTile,
		fenceTimeout:     DefaultFenceTimeout,
		fatal:            PanicOnFatal,
		headlessWidth:    defaultHeadlessWidth,
		headlessHeight:   defaultHeadlessHeight,
		drawBG:           make(map[drawGroupKey]descriptor.Slot),
		clearColor:       gputypes.Color{A: 1},
	}

	// Apply options first so the backend config is complete before the device opens.
	for _, opt := range options {
		opt(r)
	}

	r.backend = r.injected
	if r.backend == nil {
		b, err := backend.Open(backendType, backend.Config{
			Surface:     surface,
			Width:       r.headlessWidth,
			Height:      r.headlessHeight,
			PresentMode: r.presentMode,
			Debug:       r.debug,
		})
		if err != nil {
			return nil, fmt.Errorf("renderer: %w", err)
		}
		r.backend = b
	}
	r.caps = r.backend.Capabilities()

	if err := r.init(); err != nil {
		r.Destroy()
		return nil, err
	}
	common.Logger().Info("renderer created",
		"backend", r.caps.Name,
		"frames_in_flight", r.framesInFlight,
		"ring", r.ringSize,
		"msaa", uint32(r.msaa),
		"max_lights", r.maxLights,
	)
	return r, nil
}

func (r *renderContext) init() error {
	r.arena = resource.NewArena()
	if minHeap := 2 * r.ringSize; r.heapSize < minHeap {
		common.Logger().Warn("draw bind group heap smaller than the uniform ring needs, raising it",
			"heap", r.heapSize, "ring", r.ringSize, "raised_to", minHeap)
		r.heapSize = minHeap
	}
	r.groups = descriptor.NewHeap[any](r.heapSize,
		descriptor.WithLabel[any]("draw bind groups"),
		descriptor.WithReleaseFunc(r.backend.Release),
	)
	r.cache = pipeline.NewCache(r.backend.BuildPipeline, r.backend.Release)
	r.compute = compute.NewDispatcher(r.backend, r.cache)

	slots := make([]resource.Resource, r.ringSize)
	for i := range slots {
		buf, err := r.backend.CreateBuffer(backend.BufferDescriptor{
			Label:       fmt.Sprintf("draw uniforms %d", i),
			Size:        shader.UniformsSize,
			Usage:       gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			HostVisible: true,
		})
		if err != nil {
			return fmt.Errorf("renderer: create uniform ring: %w", err)
		}
		r.arena.Add(buf)
		slots[i] = buf
	}
	r.ring = frame.NewRing(r.backend.Fence(), slots, frame.WithFramesInFlight[resource.Resource](r.framesInFlight))

	var err error
	if r.white, err = r.CreateTexture("white", common.TextureStagingData{Pixels: []byte{255, 255, 255, 255}, Width: 1, Height: 1}); err != nil {
		return err
	}
	if r.magenta, err = r.CreateTexture("magenta", common.Magenta()); err != nil {
		return err
	}
	if r.sampler, err = r.backend.CreateSampler(backend.SamplerDescriptor{
		Label:       "linear repeat",
		AddressMode: gputypes.AddressModeRepeat,
		Filter:      gputypes.FilterModeLinear,
		Anisotropy:  1,
	}); err != nil {
		return fmt.Errorf("renderer: create sampler: %w", err)
	}

	width, height := r.backend.BackBufferSize()
	if err := r.createBackBufferTargets(width, height); err != nil {
		return err
	}

	tilerOpts := []light.TilerBuilderOption{
		light.WithMaxLights(r.maxLights),
		light.WithMaxLightsPerTile(r.maxLightsPerTile),
		light.WithDispatcher(r.compute),
	}
	if r.cpuCulling {
		tilerOpts = append(tilerOpts, light.WithCPUCulling())
	}
	if r.tiler, err = light.NewTiler(r.backend, width, height, tilerOpts...); err != nil {
		return fmt.Errorf("renderer: create light tiler: %w", err)
	}
	return nil
}

// createBackBufferTargets creates the depth buffer and, with MSAA, the multisampled color buffer that
// back buffer passes render into.
func (r *renderContext) createBackBufferTargets(width, height int) error {
	for _, old := range []resource.Resource{r.backDepth, r.msaaColor} {
		if old != nil {
			old.Destroy()
		}
	}
	r.backDepth, r.msaaColor = nil, nil

	var err error
	r.backDepth, err = r.backend.CreateTexture(backend.TextureDescriptor{
		Label:       "back buffer depth",
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		Layers:      1,
		Format:      gputypes.TextureFormatDepth32Float,
		Usage:       gputypes.TextureUsageRenderAttachment,
		SampleCount: uint32(r.msaa),
	})
	if err != nil {
		return r.check(fmt.Errorf("renderer: create depth buffer: %w", err))
	}
	if r.msaa <= backend.MSAAOff {
		return nil
	}
	r.msaaColor, err = r.backend.CreateTexture(backend.TextureDescriptor{
		Label:       "back buffer msaa",
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		Layers:      1,
		Format:      r.backend.SurfaceFormat(),
		Usage:       gputypes.TextureUsageRenderAttachment,
		SampleCount: uint32(r.msaa),
	})
	if err != nil {
		return r.check(fmt.Errorf("renderer: create msaa color buffer: %w", err))
	}
	return nil
}

func (r *renderContext) BeginFrame(ctx context.Context) error {
	if !common.Assert(r.list == nil, "renderer: BeginFrame inside an open frame", "frame", r.frameIndex) {
		return nil
	}
	bb, err := r.backend.AcquireBackBuffer()
	if err != nil {
		return r.check(fmt.Errorf("renderer: acquire back buffer: %w", err))
	}
	cl, err := r.backend.Begin(fmt.Sprintf("frame %d", r.frameIndex))
	if err != nil {
		return r.check(fmt.Errorf("renderer: begin frame %d: %w", r.frameIndex, err))
	}

	r.frameCtx = ctx
	r.list = cl
	r.backBuffer = bb
	r.target, r.face = nil, 0
	r.passOpen = false
	r.stats.beginFrame(r.frameIndex)

	// Ring slots are written through a mapping, never by a copy, so they stay readable as uniforms. Moving
	// them up front keeps the first draws of the first frame from breaking their render pass.
	if !r.ringReady {
		for i := range r.ring.Len() {
			r.transition(r.ring.Slot(i), resource.StateUniform)
		}
		r.ringReady = true
	}
	return nil
}

func (r *renderContext) resetBindGroups() {
	r.groups.Reset()
	clear(r.drawBG)
}

// barrierLog records the render context's barriers and remembers the last one for fatal breadcrumbs.
type barrierLog struct {
	r *renderContext
}

func (l barrierLog) RecordBarrier(b resource.Barrier) {
	l.r.lastBarrier = b
	l.r.list.RecordBarrier(b)
}

// transition moves res into state. A render pass cannot contain barriers, so an open pass is ended and
// the next draw resumes it with load operations.
func (r *renderContext) transition(res resource.Resource, state resource.State) {
	if res == nil || res.State() == state {
		return
	}
	if r.passOpen {
		r.list.EndRenderPass()
		r.passOpen = false
		r.stats.PassRestarts++
	}
	res.Transition(barrierLog{r: r}, state)
}

func (r *renderContext) endPass() {
	if r.passOpen {
		r.list.EndRenderPass()
		r.passOpen = false
	}
}

// attachments returns the textures the current target renders into.
func (r *renderContext) attachments() (color, resolve, depth resource.Resource, layer int) {
	if r.target == nil {
		if r.msaaColor != nil {
			return r.msaaColor, r.backBuffer, r.backDepth, 0
		}
		return r.backBuffer, nil, r.backDepth, 0
	}
	return r.target.Color(), nil, r.target.Depth(), r.face
}

// targetFormat returns the color format and sample count pipelines for the current target are built for.
func (r *renderContext) targetFormat() (gputypes.TextureFormat, uint32) {
	if r.target == nil {
		return r.backBuffer.Format(), uint32(r.msaa)
	}
	return r.target.Format(), 1
}

func (r *renderContext) openPass(colorLoad, depthLoad gputypes.LoadOp) error {
	color, resolve, depth, layer := r.attachments()
	r.transition(color, resource.StateRenderTarget)
	r.transition(resolve, resource.StateRenderTarget)
	r.transition(depth, resource.StateDepthWrite)

	label := "back buffer pass"
	if r.target != nil {
		label = r.target.Label() + " pass"
	}
	err := r.list.BeginRenderPass(backend.RenderPassDescriptor{
		Label:       label,
		Color:       color,
		ColorLayer:  layer,
		Resolve:     resolve,
		ColorLoadOp: colorLoad,
		ClearColor:  r.clearColor,
		Depth:       depth,
		DepthLoadOp: depthLoad,
		ClearDepth:  1,
	})
	if err != nil {
		return r.check(fmt.Errorf("renderer: begin %s: %w", label, err))
	}
	r.passOpen = true
	r.stats.Passes++
	return nil
}

func (r *renderContext) SetRenderTarget(target RenderTarget, face int) {
	if !common.Assert(r.list != nil, "renderer: SetRenderTarget outside a frame") {
		return
	}
	if target != nil && !common.Assert(!target.Destroyed(), "renderer: render target destroyed", "target", target.Label()) {
		target = nil
	}
	layers := 1
	if target != nil {
		layers = target.Layers()
	}
	r.endPass()
	r.target = target
	r.face = common.ClampIndex(face, layers, "renderer: render target face out of range")
}

func (r *renderContext) ClearScreen(flags ClearFlags) {
	if !common.Assert(r.list != nil, "renderer: ClearScreen outside a frame") {
		return
	}
	if flags&(ClearColor|ClearDepth) == 0 {
		return
	}
	colorLoad, depthLoad := gputypes.LoadOpLoad, gputypes.LoadOpLoad
	if flags&ClearColor != 0 {
		colorLoad = gputypes.LoadOpClear
	}
	if flags&ClearDepth != 0 {
		depthLoad = gputypes.LoadOpClear
	}
	r.endPass()
	if err := r.openPass(colorLoad, depthLoad); err != nil {
		common.Logger().Warn("clear failed", "err", err)
	}
}

func (r *renderContext) SetClearColor(red, green, blue, alpha float64) {
	r.clearColor = gputypes.Color{R: red, G: green, B: blue, A: alpha}
}

// validState clamps out of range pipeline state enums to their defaults.
func validState(blend pipeline.BlendMode, depth pipeline.DepthMode, cull pipeline.CullMode, fill pipeline.FillMode,
	topology pipeline.Topology) (pipeline.BlendMode, pipeline.DepthMode, pipeline.CullMode, pipeline.FillMode, pipeline.Topology) {
	if !common.Assert(blend <= pipeline.BlendAdditive, "renderer: invalid blend mode", "blend", blend) {
		blend = pipeline.BlendOff
	}
	if !common.Assert(depth <= pipeline.DepthNoneWriteOff, "renderer: invalid depth mode", "depth", depth) {
		depth = pipeline.DepthLessOrEqualWriteOn
	}
	if !common.Assert(cull <= pipeline.CullFront, "renderer: invalid cull mode", "cull", cull) {
		cull = pipeline.CullOff
	}
	if !common.Assert(fill <= pipeline.FillWireframe, "renderer: invalid fill mode", "fill", fill) {
		fill = pipeline.FillSolid
	}
	if !common.Assert(topology <= pipeline.TopologyLines, "renderer: invalid topology", "topology", topology) {
		topology = pipeline.TopologyTriangles
	}
	return blend, depth, cull, fill, topology
}

func (r *renderContext) Draw(vb VertexBuffer, faces FaceRange, s shader.Shader, blend pipeline.BlendMode, depth pipeline.DepthMode,
	cull pipeline.CullMode, fill pipeline.FillMode, topology pipeline.Topology) error {
	if r.list == nil {
		return ErrNoFrame
	}
	if !common.Assert(vb != nil && !vb.Destroyed(), "renderer: draw without a vertex buffer") ||
		!common.Assert(s != nil && s.Type() == shader.ShaderTypeRender, "renderer: draw with a non-render shader") {
		return nil
	}
	blend, depth, cull, fill, topology = validState(blend, depth, cull, fill, topology)

	indices, first, count, err := r.drawRange(vb, faces, fill, topology)
	if err != nil {
		return r.check(err)
	}
	if count == 0 {
		return nil
	}

	format, samples := r.targetFormat()
	key := pipeline.Key{
		VertexLayout: vb.Layout(),
		Shader:       s.ID(),
		Blend:        blend,
		Depth:        depth,
		Cull:         cull,
		Fill:         fill,
		TargetFormat: format,
		SampleCount:  samples,
		Topology:     topology,
	}
	p, err := r.cache.GetOrCreate(key, s)
	if err != nil {
		return r.check(fmt.Errorf("renderer: draw %q: %w", s.Name(), err))
	}
	r.lastPipeline = key

	groups, err := r.bindDraw(s)
	if err != nil {
		return r.check(err)
	}
	r.transition(vb.Vertices(), resource.StateVertexBuffer)
	r.transition(indices, resource.StateIndexBuffer)
	if !r.passOpen {
		if err := r.openPass(gputypes.LoadOpLoad, gputypes.LoadOpLoad); err != nil {
			return err
		}
	}

	r.list.SetPipeline(p)
	for i, g := range groups {
		if g != nil {
			r.list.SetBindGroup(uint32(i), g)
		}
	}
	r.list.SetVertexBuffer(vb.Vertices())
	r.list.SetIndexBuffer(indices, gputypes.IndexFormatUint16)
	r.list.DrawIndexed(count, first)
	r.stats.Draws++
	return nil
}

// drawRange returns the index buffer and index range a face range covers. Lines topology counts index
// pairs, wireframe fill draws the edge list of the selected triangles.
func (r *renderContext) drawRange(vb VertexBuffer, faces FaceRange, fill pipeline.FillMode, topology pipeline.Topology) (resource.Resource, uint32, uint32, error) {
	indices := vb.Indices()
	perFace, total := 3, vb.FaceCount()
	switch {
	case topology == pipeline.TopologyLines:
		perFace, total = 2, vb.IndexCount()/2
	case fill == pipeline.FillWireframe:
		edges, err := vb.edges(r.backend)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("renderer: wireframe indices of %q: %w", vb.Label(), err)
		}
		indices, perFace = edges, 6
	}
	if total == 0 {
		return indices, 0, 0, nil
	}

	first := common.ClampIndex(faces.First, total, "renderer: first face out of range")
	count := faces.Count
	if count <= 0 {
		count = total - first
	} else if !common.Assert(first+count <= total, "renderer: face range exceeds the vertex buffer", "first", first, "count", count, "faces", total) {
		count = total - first
	}
	return indices, uint32(first * perFace), uint32(count * perFace), nil
}

func (r *renderContext) Dispatch(s shader.Shader, groupsX, groupsY, groupsZ uint32) error {
	if r.list == nil {
		return ErrNoFrame
	}
	r.endPass()
	r.compute.BeginIn(r.list)
	err := r.compute.Dispatch(s, groupsX, groupsY, groupsZ)
	if endErr := r.compute.End(r.frameCtx); err == nil {
		err = endErr
	}
	if err != nil {
		return r.check(fmt.Errorf("renderer: dispatch: %w", err))
	}
	r.stats.Dispatches++
	return nil
}

func (r *renderContext) Compute() compute.Dispatcher {
	return r.compute
}

func (r *renderContext) CullLights(projection, view common.Mat4, depthNormal RenderTarget) error {
	if r.list == nil {
		return ErrNoFrame
	}
	r.endPass()

	// No lights were collected since the last cull; the frame is lit by none.
	if r.tiler.State() == light.TilerStateConsumed {
		r.tiler.Reset()
	}
	if err := r.tiler.UpdateLightBuffers(r.list); err != nil {
		return r.check(err)
	}
	var depthTex resource.Resource
	if depthNormal != nil {
		depthTex = depthNormal.Color()
	}
	if err := r.tiler.CullLights(r.list, projection, view, depthTex); err != nil {
		return r.check(err)
	}
	if _, err := r.tiler.Consume(r.list); err != nil {
		return r.check(err)
	}

	points, spots := light.UnpackLightCounts(r.tiler.PackedCounts())
	r.stats.PointLights, r.stats.SpotLights = points, spots
	r.stats.DroppedLights = r.tiler.Dropped()
	r.stats.LightAssignments = r.tiler.Assignments()
	r.stats.CulledOnGPU = r.tiler.CulledOnGPU()
	return nil
}

func (r *renderContext) Present(ctx context.Context) error {
	if r.list == nil {
		return ErrNoFrame
	}
	r.endPass()
	r.transition(r.backBuffer, resource.StatePresent)
	r.stats.Barriers = r.list.Barriers()
	r.stats.RingSlots = r.ring.UsedThisFrame()

	submitErr := r.backend.Submit(r.list)
	r.list, r.target, r.frameCtx = nil, nil, nil
	if submitErr != nil {
		return r.check(fmt.Errorf("renderer: submit frame %d: %w", r.frameIndex, submitErr))
	}
	presentErr := r.backend.Present()

	if _, ok := ctx.Deadline(); !ok && r.fenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fenceTimeout)
		defer cancel()
	}
	value, err := r.ring.EndFrame(ctx)
	r.tiler.EndFrame(value)
	r.lastFence = value
	r.stats.FenceValue = value
	r.frameIndex++
	if err != nil {
		return r.check(fmt.Errorf("renderer: end frame %d: %w", r.frameIndex-1, err))
	}
	if presentErr != nil {
		return r.check(fmt.Errorf("renderer: present: %w", presentErr))
	}
	return nil
}

func (r *renderContext) Resize(width, height int) error {
	if !common.Assert(r.list == nil, "renderer: Resize inside a frame") {
		return nil
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	if err := r.backend.Resize(width, height); err != nil {
		return r.check(fmt.Errorf("renderer: resize: %w", err))
	}
	width, height = r.backend.BackBufferSize()
	if err := r.createBackBufferTargets(width, height); err != nil {
		return err
	}
	if err := r.tiler.Resize(width, height); err != nil {
		return r.check(fmt.Errorf("renderer: resize light grid: %w", err))
	}
	evicted := r.evictBindGroups()
	common.Logger().Debug("renderer resized", "width", width, "height", height, "evicted_bind_groups", evicted)
	return nil
}

func (r *renderContext) Size() (int, int) {
	return r.backend.BackBufferSize()
}

func (r *renderContext) CreateShader(name string, shaderType shader.ShaderType, wgsl string, options ...shader.ShaderBuilderOption) shader.Shader {
	s, _ := shader.Compile(name, shaderType, wgsl, options...)
	return s
}

func (r *renderContext) LoadShader(name string, shaderType shader.ShaderType, path string, options ...shader.ShaderBuilderOption) shader.Shader {
	s, _ := shader.Load(name, shaderType, path, options...)
	return s
}

func (r *renderContext) MagentaTexture() resource.Resource {
	return r.magenta
}

func (r *renderContext) Lights() light.Tiler {
	return r.tiler
}

func (r *renderContext) Stats() Stats {
	s := r.stats
	s.PipelineBuilds = r.cache.Builds()
	s.Pipelines = r.cache.Len()
	s.BindGroups = r.groups.Len() + r.compute.BindGroups()
	s.RetiredBindGroups = r.groups.Retired()
	s.LiveResources = r.arena.Len()
	return s
}

func (r *renderContext) Backend() backend.RendererBackend {
	return r.backend
}

func (r *renderContext) Destroy() {
	if r.backend == nil {
		return
	}
	if err := r.backend.WaitIdle(); err != nil {
		common.Logger().Warn("wait idle before destroy failed", "err", err)
	}
	if r.tiler != nil {
		r.tiler.Destroy()
	}
	if r.compute != nil {
		r.compute.Destroy()
	}
	if r.groups != nil {
		r.resetBindGroups()
	}
	if r.cache != nil {
		r.cache.Destroy()
	}
	for _, t := range []resource.Resource{r.backDepth, r.msaaColor} {
		if t != nil {
			t.Destroy()
		}
	}
	if r.sampler != nil {
		r.backend.Release(r.sampler)
	}
	if r.arena != nil {
		r.arena.Release()
	}
	if r.injected == nil {
		r.backend.Destroy()
	}
	r.backend = nil
}
