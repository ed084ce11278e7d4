package light

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/compute"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

// ErrInvalidState is returned when a Tiler operation is called out of order.
var ErrInvalidState = errors.New("light: tiler operation invalid in current state")

// TilerState is a step of the per-frame light culling sequence.
type TilerState int

const (
	// TilerStateIdle has no lights collected for the frame.
	TilerStateIdle TilerState = iota
	// TilerStateLightsCollected has at least one light in the CPU arrays.
	TilerStateLightsCollected
	// TilerStateBuffersUploaded has the light arrays written to the GPU buffers.
	TilerStateBuffersUploaded
	// TilerStateCulled has the per-tile index buffer written for the frame.
	TilerStateCulled
	// TilerStateConsumed has the index buffer bound for shading.
	TilerStateConsumed
)

var tilerStateNames = [...]string{
	TilerStateIdle:            "Idle",
	TilerStateLightsCollected: "LightsCollected",
	TilerStateBuffersUploaded: "BuffersUploaded",
	TilerStateCulled:          "Culled",
	TilerStateConsumed:        "Consumed",
}

func (s TilerState) String() string {
	if s < 0 || int(s) >= len(tilerStateNames) {
		return "unknown"
	}
	return tilerStateNames[s]
}

// Compute slots of the culling pass.
const (
	slotCullUniforms = iota
	slotPointLights
	slotSpotLights
	slotDepthNormal
	slotTileLights
)

// Device is the part of the renderer backend the tiler allocates and uploads with.
type Device interface {
	CreateBuffer(desc backend.BufferDescriptor) (resource.Resource, error)
	WriteBuffer(buf resource.Resource, offset uint64, data []byte) error
	ReadBuffer(ctx context.Context, buf resource.Resource, offset, size uint64) ([]byte, error)
	Capabilities() backend.Capabilities
	Fence() frame.Fence
}

// lightSet holds the buffers the CPU rewrites every frame. They are host visible, so a set is only
// rewritten once the last frame that bound it has completed on the GPU.
type lightSet struct {
	point, spot, uniform resource.Resource
	// retired is the fence value of the last frame that bound the set.
	retired uint64
	// inUse is set from acquisition until EndFrame stamps the set.
	inUse bool
}

func (s *lightSet) destroy() {
	for _, r := range []resource.Resource{s.point, s.spot, s.uniform} {
		if r != nil {
			r.Destroy()
		}
	}
}

// tiler is the implementation of the Tiler interface.
type tiler struct {
	device     Device
	dispatcher compute.Dispatcher
	cullShader shader.Shader
	cpu        *cpuCuller

	state            TilerState
	maxLights        int
	maxLightsPerTile int
	workers          int
	forceCPU         bool
	label            string

	points  []GPUPointLight
	spots   []GPUSpotLight
	dropped int

	width, height  int
	tilesX, tilesY uint32
	indices        []uint32
	depthSamples   []float32
	assignments    int
	lastCullOnGPU  bool
	uniforms       GPUCullUniforms
	sets           []*lightSet
	current        *lightSet
	indexBuffer    resource.Resource
}

// Tiler assigns point and spot lights to 16×16 pixel screen tiles every frame.
//
// A frame walks Idle → LightsCollected → BuffersUploaded → Culled → Consumed; Reset or the next Collect
// returns to Idle. Calling an operation in the wrong state is a contract violation: it panics in debug builds
// and returns ErrInvalidState otherwise. The tiler is driven by the render goroutine and is not safe for
// concurrent use.
type Tiler interface {
	// State returns the current step of the frame sequence.
	State() TilerState

	// Collect appends the enabled point and spot lights. Directional lights are ignored. Collecting after
	// the index buffer was consumed starts a new frame.
	//
	// Parameters:
	//   - lights: the scene lights
	//
	// Returns:
	//   - error: ErrInvalidState between UpdateLightBuffers and Consume
	Collect(lights ...Light) error

	// AddPointLight appends one point light. Lights past the capacity are dropped.
	//
	// Parameters:
	//   - center: world-space position
	//   - radius: radius of influence
	//   - color: light color, intensity applied
	//
	// Returns:
	//   - error: ErrInvalidState between UpdateLightBuffers and Consume
	AddPointLight(center common.Vec3, radius float32, color [3]float32) error

	// AddSpotLight appends one spot light. Lights past the capacity are dropped.
	//
	// Parameters:
	//   - center: world-space apex position
	//   - radius: cone length
	//   - color: light color, intensity applied
	//   - coneCos: cosine of the cone half-angle
	//   - axis: world-space cone direction
	//
	// Returns:
	//   - error: ErrInvalidState between UpdateLightBuffers and Consume
	AddSpotLight(center common.Vec3, radius float32, color [3]float32, coneCos float32, axis common.Vec3) error

	// PointLights returns the collected point light records.
	PointLights() []GPUPointLight

	// SpotLights returns the collected spot light records.
	SpotLights() []GPUSpotLight

	// Dropped returns the number of lights dropped for capacity since the last Reset.
	Dropped() int

	// PackedCounts returns the point and spot counts packed as (spot << 16) | point.
	PackedCounts() uint32

	// UpdateLightBuffers writes the point and spot arrays into their GPU buffers, recording the copy
	// destination barriers on rec.
	//
	// Parameters:
	//   - rec: the command list the following CullLights records into
	//
	// Returns:
	//   - error: ErrInvalidState, or the backend write error
	UpdateLightBuffers(rec resource.BarrierRecorder) error

	// SetDepthSamples supplies the linear view depth of every pixel for the CPU culling executor.
	// Nil culls every tile against the full projection depth range.
	//
	// Parameters:
	//   - depth: width*height depths, row-major
	SetDepthSamples(depth []float32)

	// CullLights fills the per-tile index buffer for the frame.
	//
	// The GPU executor writes the culling uniforms, binds the light buffers, depthNormal and the index buffer
	// to the compute wrapper and dispatches (tilesX, tilesY, 1) into cl. Backends that do not execute compute,
	// tilers built WithCPUCulling and frames without a depth/normal target run the CPU executor and upload
	// its result into the same buffer.
	//
	// Parameters:
	//   - cl: the command list of the frame, with no open render pass
	//   - projection: the camera projection
	//   - view: the camera view matrix
	//   - depthNormal: the depth/normal target, linear view depth in .w; may be nil
	//
	// Returns:
	//   - error: ErrInvalidState, a non-invertible projection, or a backend error
	CullLights(cl backend.CommandList, projection, view common.Mat4, depthNormal resource.Resource) error

	// Consume transitions the index buffer to ShaderRead for the shading draws and returns it.
	//
	// Parameters:
	//   - rec: the command list the shading draws record into
	//
	// Returns:
	//   - resource.Resource: the per-tile index buffer
	//   - error: ErrInvalidState before CullLights
	Consume(rec resource.BarrierRecorder) (resource.Resource, error)

	// Reset drops the collected lights and returns to Idle. Valid in every state.
	Reset()

	// EndFrame stamps the light buffers bound this frame with the frame's fence value. They are not
	// rewritten until the fence reaches it.
	//
	// Parameters:
	//   - fenceValue: the value the frame's submission signals
	EndFrame(fenceValue uint64)

	// Resize rebuilds the tile grid for a new back buffer size, then resets. The index buffer only grows:
	// it is replaced when the new grid does not fit, and every list of the grid reads LightListEnd until
	// the next CullLights.
	//
	// Returns:
	//   - error: the buffer creation or upload error
	Resize(width, height int) error

	// TileCount returns the tile grid dimensions.
	TileCount() (tilesX, tilesY uint32)

	// MaxLights returns the capacity of each of the point and spot arrays.
	MaxLights() int

	// MaxLightsPerTile returns the per-tile index list length.
	MaxLightsPerTile() int

	// LightInfo returns the per-draw culling state for shaded draws.
	LightInfo() LightInfo

	// Assignments returns the number of tile/light pairs written by the last CPU cull, 0 after a GPU cull.
	Assignments() int

	// CulledOnGPU reports whether the last CullLights ran the compute shader.
	CulledOnGPU() bool

	// IndexBuffer returns the per-tile index buffer. It holds at least tilesX*tilesY*MaxLightsPerTile
	// entries.
	IndexBuffer() resource.Resource

	// PointLightBuffer returns the point light storage buffer of the last UpdateLightBuffers.
	PointLightBuffer() resource.Resource

	// SpotLightBuffer returns the spot light storage buffer of the last UpdateLightBuffers.
	SpotLightBuffer() resource.Resource

	// LightSets returns the number of light buffer sets allocated to keep frames in flight apart.
	LightSets() int

	// UniformBuffer returns the cull uniform buffer written by the last CullLights. Shading passes bind it
	// for the view matrix and the grid dimensions.
	UniformBuffer() resource.Resource

	// TileLights reads one tile's index list back from the GPU, stopping at LightListEnd.
	//
	// Parameters:
	//   - ctx: bounds the readback wait
	//   - tileX, tileY: the tile coordinates
	//
	// Returns:
	//   - []uint32: indices in the combined space, spots offset by the point count
	//   - error: ErrInvalidState before CullLights, out of range tile, or readback error
	TileLights(ctx context.Context, tileX, tileY uint32) ([]uint32, error)

	// Destroy releases the GPU buffers and stops the CPU executor.
	Destroy()
}

var _ Tiler = &tiler{}

// NewTiler creates a Tiler and its GPU buffers for a back buffer of the given size.
//
// Parameters:
//   - device: the backend that owns the buffers
//   - width, height: the back buffer size in pixels
//   - options: functional options
//
// Returns:
//   - Tiler: the tiler in TilerStateIdle
//   - error: buffer creation error
func NewTiler(device Device, width, height int, options ...TilerBuilderOption) (Tiler, error) {
	t := &tiler{
		device:           device,
		maxLights:        DefaultMaxLights,
		maxLightsPerTile: DefaultMaxLightsPerTile,
		workers:          4,
		label:            "light tiler",
	}
	for _, opt := range options {
		opt(t)
	}
	t.maxLights = max(t.maxLights, 1)
	t.maxLightsPerTile = max(t.maxLightsPerTile, 1)
	t.points = make([]GPUPointLight, 0, t.maxLights)
	t.spots = make([]GPUSpotLight, 0, t.maxLights)

	set, err := t.newLightSet()
	if err != nil {
		return nil, err
	}
	t.current = set
	if err := t.Resize(width, height); err != nil {
		t.Destroy()
		return nil, err
	}

	if t.dispatcher != nil && !t.forceCPU {
		s, err := shader.NewShader("light cull", shader.ShaderTypeCompute, shader.Source{Format: shader.SourceWGSL, WGSL: lightCullSource})
		if err != nil {
			common.Logger().Warn("light cull shader invalid, culling on the CPU", "err", err)
		} else {
			t.cullShader = s
		}
	}
	t.cpu = newCPUCuller(t.workers)
	return t, nil
}

func (t *tiler) createBuffer(name string, size uint64, usage gputypes.BufferUsage, hostVisible bool) (resource.Resource, error) {
	buf, err := t.device.CreateBuffer(backend.BufferDescriptor{
		Label:       t.label + " " + name,
		Size:        size,
		Usage:       usage,
		HostVisible: hostVisible,
	})
	if err != nil {
		return nil, fmt.Errorf("light: create %s buffer: %w", name, err)
	}
	return buf, nil
}

func (t *tiler) newLightSet() (*lightSet, error) {
	n := len(t.sets)
	s := &lightSet{}
	var err error
	if s.point, err = t.createBuffer(fmt.Sprintf("point lights %d", n), uint64(t.maxLights*GPUPointLightSize), gputypes.BufferUsageStorage, true); err != nil {
		return nil, err
	}
	if s.spot, err = t.createBuffer(fmt.Sprintf("spot lights %d", n), uint64(t.maxLights*GPUSpotLightSize), gputypes.BufferUsageStorage, true); err != nil {
		s.destroy()
		return nil, err
	}
	if s.uniform, err = t.createBuffer(fmt.Sprintf("cull uniforms %d", n), GPUCullUniformsSize, gputypes.BufferUsageUniform, true); err != nil {
		s.destroy()
		return nil, err
	}
	t.sets = append(t.sets, s)
	return s, nil
}

// acquireSet returns a light set no frame in flight binds, allocating one when every set is busy.
func (t *tiler) acquireSet() (*lightSet, error) {
	done, err := t.device.Fence().Completed()
	if err != nil {
		return nil, fmt.Errorf("light: acquire light buffers: %w", err)
	}
	for _, s := range t.sets {
		if !s.inUse && s != t.current && s.retired <= done {
			s.inUse = true
			t.current = s
			return s, nil
		}
	}
	s, err := t.newLightSet()
	if err != nil {
		return nil, err
	}
	common.Logger().Debug("light buffer set added", "sets", len(t.sets), "completed", done)
	s.inUse = true
	t.current = s
	return s, nil
}

// expect checks that the tiler is in one of the allowed states.
func (t *tiler) expect(op string, allowed ...TilerState) error {
	for _, s := range allowed {
		if t.state == s {
			return nil
		}
	}
	common.Assert(false, "light: tiler operation in wrong state", "op", op, "state", t.state)
	return fmt.Errorf("%w: %s in %s", ErrInvalidState, op, t.state)
}

func (t *tiler) State() TilerState {
	return t.state
}

// beginCollect moves the tiler into the collecting state, starting a new frame after Consume.
func (t *tiler) beginCollect(op string) error {
	if err := t.expect(op, TilerStateIdle, TilerStateLightsCollected, TilerStateConsumed); err != nil {
		return err
	}
	if t.state == TilerStateConsumed {
		t.Reset()
	}
	t.state = TilerStateLightsCollected
	return nil
}

func (t *tiler) drop(kind string) {
	t.dropped++
	if t.dropped == 1 {
		common.Logger().Debug("light capacity reached, dropping lights", "kind", kind, "max", t.maxLights)
	}
}

func (t *tiler) Collect(lights ...Light) error {
	if err := t.beginCollect("Collect"); err != nil {
		return err
	}
	for _, l := range lights {
		if l == nil || !l.Enabled() {
			continue
		}
		c := l.Color()
		i := l.Intensity()
		color := [3]float32{c[0] * i, c[1] * i, c[2] * i}
		switch l.Type() {
		case LightTypePoint:
			t.appendPoint(l.Position(), l.Range(), color)
		case LightTypeSpot:
			t.appendSpot(l.Position(), l.Range(), color, l.OuterCone(), l.Direction())
		}
	}
	return nil
}

func (t *tiler) AddPointLight(center common.Vec3, radius float32, color [3]float32) error {
	if err := t.beginCollect("AddPointLight"); err != nil {
		return err
	}
	t.appendPoint(center, radius, color)
	return nil
}

func (t *tiler) AddSpotLight(center common.Vec3, radius float32, color [3]float32, coneCos float32, axis common.Vec3) error {
	if err := t.beginCollect("AddSpotLight"); err != nil {
		return err
	}
	t.appendSpot(center, radius, color, coneCos, axis)
	return nil
}

func (t *tiler) appendPoint(center common.Vec3, radius float32, color [3]float32) {
	if len(t.points) >= t.maxLights {
		t.drop("point")
		return
	}
	t.points = append(t.points, GPUPointLight{Center: center, Radius: radius, Color: color})
}

func (t *tiler) appendSpot(center common.Vec3, radius float32, color [3]float32, coneCos float32, axis common.Vec3) {
	if len(t.spots) >= t.maxLights {
		t.drop("spot")
		return
	}
	t.spots = append(t.spots, GPUSpotLight{
		Center:          center,
		Radius:          radius,
		Color:           color,
		ConeAngleCosine: coneCos,
		Axis:            axis.Normalize(),
	})
}

func (t *tiler) PointLights() []GPUPointLight {
	return t.points
}

func (t *tiler) SpotLights() []GPUSpotLight {
	return t.spots
}

func (t *tiler) Dropped() int {
	return t.dropped
}

func (t *tiler) PackedCounts() uint32 {
	return PackLightCounts(len(t.points), len(t.spots))
}

func (t *tiler) UpdateLightBuffers(rec resource.BarrierRecorder) error {
	if err := t.expect("UpdateLightBuffers", TilerStateIdle, TilerStateLightsCollected); err != nil {
		return err
	}
	set, err := t.acquireSet()
	if err != nil {
		return err
	}
	if len(t.points) > 0 {
		if err := t.device.WriteBuffer(set.point, 0, common.SliceToBytes(t.points)); err != nil {
			return fmt.Errorf("light: upload point lights: %w", err)
		}
	}
	if len(t.spots) > 0 {
		if err := t.device.WriteBuffer(set.spot, 0, common.SliceToBytes(t.spots)); err != nil {
			return fmt.Errorf("light: upload spot lights: %w", err)
		}
	}
	set.point.Transition(rec, resource.StateShaderRead)
	set.spot.Transition(rec, resource.StateShaderRead)
	t.state = TilerStateBuffersUploaded
	return nil
}

func (t *tiler) SetDepthSamples(depth []float32) {
	if depth != nil && !common.Assert(len(depth) == t.width*t.height, "light: depth sample count does not match the screen",
		"samples", len(depth), "width", t.width, "height", t.height) {
		return
	}
	t.depthSamples = depth
}

// depthRange returns the near and far view distances of a projection, or [0, MaxFloat32] when the
// matrix is not a perspective projection.
func depthRange(projection common.Mat4) (float32, float32) {
	near, far := common.PerspectiveDepthRange(projection)
	if !(near > 0 && far > near) {
		return 0, math.MaxFloat32
	}
	return near, far
}

func (t *tiler) useGPU(depthNormal resource.Resource) bool {
	return !t.forceCPU && t.cullShader != nil && depthNormal != nil && t.device.Capabilities().ExecutesCompute
}

func (t *tiler) CullLights(cl backend.CommandList, projection, view common.Mat4, depthNormal resource.Resource) error {
	if err := t.expect("CullLights", TilerStateBuffersUploaded); err != nil {
		return err
	}
	invProj, ok := projection.Inverse()
	if !ok {
		return errors.New("light: projection matrix is not invertible")
	}
	near, far := depthRange(projection)
	t.uniforms = GPUCullUniforms{
		InvProjection:    invProj,
		View:             view,
		TileCountX:       t.tilesX,
		TileCountY:       t.tilesY,
		WindowWidth:      uint32(t.width),
		WindowHeight:     uint32(t.height),
		LightCounts:      t.PackedCounts(),
		MaxLightsPerTile: uint32(t.maxLightsPerTile),
		Near:             near,
		Far:              far,
	}
	if err := t.device.WriteBuffer(t.current.uniform, 0, t.uniforms.Marshal()); err != nil {
		return fmt.Errorf("light: upload cull uniforms: %w", err)
	}

	if t.useGPU(depthNormal) {
		if err := t.cullOnGPU(cl, depthNormal); err != nil {
			return err
		}
	} else {
		t.cullOnCPU(cl, invProj, view, near, far)
		t.indexBuffer.Transition(cl, resource.StateCopyDst)
		if err := t.device.WriteBuffer(t.indexBuffer, 0, common.SliceToBytes(t.indices)); err != nil {
			return fmt.Errorf("light: upload tile light indices: %w", err)
		}
	}
	t.state = TilerStateCulled
	return nil
}

func (t *tiler) cullOnGPU(cl backend.CommandList, depthNormal resource.Resource) error {
	d := t.dispatcher
	d.ClearSlots()
	d.SetUniformBuffer(slotCullUniforms, t.current.uniform)
	d.SetReadBuffer(slotPointLights, t.current.point)
	d.SetReadBuffer(slotSpotLights, t.current.spot)
	d.SetTexture(slotDepthNormal, depthNormal)
	d.SetStorageBuffer(slotTileLights, t.indexBuffer)

	d.BeginIn(cl)
	err := d.Dispatch(t.cullShader, t.tilesX, t.tilesY, 1)
	if endErr := d.End(context.Background()); err == nil {
		err = endErr
	}
	if err != nil {
		return fmt.Errorf("light: cull dispatch: %w", err)
	}
	t.assignments = 0
	t.lastCullOnGPU = true
	return nil
}

func (t *tiler) cullOnCPU(cl backend.CommandList, invProj, view common.Mat4, near, far float32) {
	in := &cullInput{
		invProj:          invProj,
		points:           make([]sphere, 0, len(t.points)),
		spots:            make([]sphere, 0, len(t.spots)),
		tilesX:           t.tilesX,
		tilesY:           t.tilesY,
		width:            t.width,
		height:           t.height,
		maxLightsPerTile: t.maxLightsPerTile,
		near:             near,
		far:              far,
		depth:            t.depthSamples,
	}
	pointCount, spotCount := UnpackLightCounts(t.PackedCounts())
	for _, p := range t.points[:pointCount] {
		in.points = append(in.points, sphere{center: view.TransformPoint(p.Center), radius: p.Radius})
	}
	for _, s := range t.spots[:spotCount] {
		apex := view.TransformPoint(s.Center)
		axis := view.TransformDirection(s.Axis).Normalize()
		center, r := ConeBoundingSphere(apex, axis, s.Radius, s.ConeAngleCosine)
		in.spots = append(in.spots, sphere{center: center, radius: r})
	}
	t.assignments = t.cpu.cull(in, t.indices)
	t.lastCullOnGPU = false
}

func (t *tiler) Consume(rec resource.BarrierRecorder) (resource.Resource, error) {
	if err := t.expect("Consume", TilerStateCulled, TilerStateConsumed); err != nil {
		return nil, err
	}
	t.indexBuffer.Transition(rec, resource.StateShaderRead)
	t.state = TilerStateConsumed
	return t.indexBuffer, nil
}

func (t *tiler) Reset() {
	t.points = t.points[:0]
	t.spots = t.spots[:0]
	t.dropped = 0
	t.state = TilerStateIdle
}

func (t *tiler) EndFrame(fenceValue uint64) {
	for _, s := range t.sets {
		if s.inUse || s == t.current {
			s.retired = max(s.retired, fenceValue)
			s.inUse = false
		}
	}
}

// indexCapacity rounds a tile count up to a power of two, so a window dragged larger replaces the index
// buffer a logarithmic number of times.
func indexCapacity(tiles int) int {
	if tiles <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(tiles-1))
}

func (t *tiler) Resize(width, height int) error {
	tilesX, tilesY := TileCounts(width, height)
	if t.indexBuffer == nil || tilesX != t.tilesX || tilesY != t.tilesY {
		n := IndexBufferLength(tilesX, tilesY, t.maxLightsPerTile)
		t.indices = listEnds(t.indices, n)
		if t.indexBuffer == nil || uint64(n)*4 > t.indexBuffer.Size() {
			capacity := indexCapacity(int(tilesX*tilesY)) * t.maxLightsPerTile
			buf, err := t.createBuffer("tile indices", uint64(capacity)*4, gputypes.BufferUsageStorage, false)
			if err != nil {
				return err
			}
			if err := t.device.WriteBuffer(buf, 0, common.SliceToBytes(listEnds(nil, capacity))); err != nil {
				buf.Destroy()
				return fmt.Errorf("light: clear tile light indices: %w", err)
			}
			if t.indexBuffer != nil {
				t.indexBuffer.Destroy()
			}
			t.indexBuffer = buf
		} else if err := t.device.WriteBuffer(t.indexBuffer, 0, common.SliceToBytes(t.indices)); err != nil {
			return fmt.Errorf("light: clear tile light indices: %w", err)
		}
		t.tilesX, t.tilesY = tilesX, tilesY
	}
	t.width, t.height = width, height
	t.depthSamples = nil
	t.Reset()
	return nil
}

// listEnds returns a slice of n LightListEnd entries, reusing buf when it is large enough.
func listEnds(buf []uint32, n int) []uint32 {
	if cap(buf) < n {
		buf = make([]uint32, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = LightListEnd
	}
	return buf
}

func (t *tiler) TileCount() (uint32, uint32) {
	return t.tilesX, t.tilesY
}

func (t *tiler) MaxLights() int {
	return t.maxLights
}

func (t *tiler) MaxLightsPerTile() int {
	return t.maxLightsPerTile
}

func (t *tiler) LightInfo() LightInfo {
	return LightInfo{
		TileCountX:       t.tilesX,
		LightCounts:      t.PackedCounts(),
		MaxLightsPerTile: uint32(t.maxLightsPerTile),
	}
}

func (t *tiler) Assignments() int {
	return t.assignments
}

func (t *tiler) CulledOnGPU() bool {
	return t.lastCullOnGPU
}

func (t *tiler) IndexBuffer() resource.Resource {
	return t.indexBuffer
}

func (t *tiler) PointLightBuffer() resource.Resource {
	return t.current.point
}

func (t *tiler) SpotLightBuffer() resource.Resource {
	return t.current.spot
}

func (t *tiler) UniformBuffer() resource.Resource {
	return t.current.uniform
}

func (t *tiler) LightSets() int {
	return len(t.sets)
}

func (t *tiler) TileLights(ctx context.Context, tileX, tileY uint32) ([]uint32, error) {
	if err := t.expect("TileLights", TilerStateCulled, TilerStateConsumed); err != nil {
		return nil, err
	}
	if tileX >= t.tilesX || tileY >= t.tilesY {
		return nil, fmt.Errorf("light: tile (%d, %d) outside the %dx%d grid", tileX, tileY, t.tilesX, t.tilesY)
	}
	base := (uint64(tileY)*uint64(t.tilesX) + uint64(tileX)) * uint64(t.maxLightsPerTile)
	data, err := t.device.ReadBuffer(ctx, t.indexBuffer, base*4, uint64(t.maxLightsPerTile)*4)
	if err != nil {
		return nil, fmt.Errorf("light: read tile (%d, %d): %w", tileX, tileY, err)
	}
	var out []uint32
	for i := 0; i+4 <= len(data); i += 4 {
		v := binary.LittleEndian.Uint32(data[i:])
		if v == LightListEnd {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *tiler) Destroy() {
	for _, s := range t.sets {
		s.destroy()
	}
	if t.indexBuffer != nil {
		t.indexBuffer.Destroy()
	}
	t.sets, t.indexBuffer = nil, nil
	if t.cpu != nil {
		t.cpu.stop()
		t.cpu = nil
	}
}
