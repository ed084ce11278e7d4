// Package compute wraps compute dispatches: resources are bound to numbered slots, every bound resource is
// transitioned to the state its slot implies, and the compute pipeline is resolved through the pipeline
// cache before the dispatch is recorded.
//
// Slot n binds to the shader binding whose binding index is n, in whatever group the shader declares it.
package compute

import (
	"context"
	"errors"
	"fmt"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/descriptor"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
)

// MaxSlots is the number of resource slots a dispatch can bind.
const MaxSlots = 15

// DefaultBindGroupCapacity is the bind group heap size used when none is configured.
const DefaultBindGroupCapacity = 1024

var (
	// ErrNotRecording is returned by Dispatch and End outside a Begin/End scope.
	ErrNotRecording = errors.New("compute: no recording scope")

	// ErrUnboundSlot is returned when a shader binding has no resource in its slot.
	ErrUnboundSlot = errors.New("compute: shader binding has no bound slot")
)

// SlotKind is what a slot was bound as.
type SlotKind uint8

const (
	// SlotEmpty is an unbound slot.
	SlotEmpty SlotKind = iota
	// SlotTexture is a sampled or depth texture, read in StateShaderRead.
	SlotTexture
	// SlotReadBuffer is a read-only storage buffer, read in StateShaderRead.
	SlotReadBuffer
	// SlotStorageBuffer is a read-write storage buffer or storage texture, used in StateUnorderedAccess.
	SlotStorageBuffer
	// SlotUniformBuffer is a uniform buffer, read in StateUniform.
	SlotUniformBuffer
	// SlotSampler is a sampler. Samplers carry no state.
	SlotSampler
)

// State returns the resource state a slot kind transitions its resource to.
//
// Returns:
//   - resource.State: the target state, StateUndefined for SlotEmpty and SlotSampler
func (k SlotKind) State() resource.State {
	switch k {
	case SlotTexture, SlotReadBuffer:
		return resource.StateShaderRead
	case SlotStorageBuffer:
		return resource.StateUnorderedAccess
	case SlotUniformBuffer:
		return resource.StateUniform
	default:
		return resource.StateUndefined
	}
}

// Device is the part of the renderer backend the dispatcher drives.
type Device interface {
	Begin(label string) (backend.CommandList, error)
	Submit(cl backend.CommandList) error
	Fence() frame.Fence
	Capabilities() backend.Capabilities
	CreateBindGroup(label string, shaderType shader.ShaderType, entries []backend.BindingEntry) (any, error)
	Release(native any)
}

type slot struct {
	kind     SlotKind
	resource resource.Resource
	sampler  any
	layer    int
}

// groupKey identifies a bind group by shader, group index and the objects bound in its slots.
type groupKey struct {
	shader shader.ID
	group  uint32
	bound  [MaxSlots]any
	layers [MaxSlots]int
}

// dispatcher is the implementation of the Dispatcher interface.
type dispatcher struct {
	device       Device
	cache        pipeline.Cache
	slots        [MaxSlots]slot
	groups       descriptor.Heap[any]
	groupSlots   map[groupKey]descriptor.Slot
	capacity     int
	blockingWait bool
	label        string

	list       backend.CommandList
	ownsList   bool
	dispatches int
	recorded   int
}

// Dispatcher records compute work. It is driven by the render goroutine and is not safe for concurrent use.
type Dispatcher interface {
	// SetTexture binds a texture for reading.
	//
	// Parameters:
	//   - slot: the slot index in [0, MaxSlots)
	//   - tex: the texture, nil clears the slot
	SetTexture(slot int, tex resource.Resource)

	// SetTextureLayer binds a single array layer or cube face of a texture for reading.
	SetTextureLayer(slot int, tex resource.Resource, layer int)

	// SetReadBuffer binds a read-only storage buffer.
	SetReadBuffer(slot int, buf resource.Resource)

	// SetStorageBuffer binds a read-write storage buffer or storage texture.
	SetStorageBuffer(slot int, r resource.Resource)

	// SetUniformBuffer binds a uniform buffer.
	SetUniformBuffer(slot int, buf resource.Resource)

	// SetSampler binds a backend sampler.
	SetSampler(slot int, sampler any)

	// Slot returns what is bound to a slot.
	//
	// Returns:
	//   - SlotKind: the binding kind, SlotEmpty for unbound or invalid slots
	//   - resource.Resource: the bound resource, nil for samplers
	Slot(slot int) (SlotKind, resource.Resource)

	// ClearSlots unbinds every slot.
	ClearSlots()

	// Begin opens a command list owned by the dispatcher. End submits it.
	//
	// Returns:
	//   - error: the backend error opening the command list
	Begin() error

	// BeginIn records into a command list owned by the caller. End does not submit or wait.
	//
	// Parameters:
	//   - cl: the command list; it must have no open render pass
	BeginIn(cl backend.CommandList)

	// Dispatch transitions every bound resource the shader uses to its slot state, resolves the compute
	// pipeline and records the dispatch.
	//
	// Parameters:
	//   - s: the compute shader
	//   - x, y, z: workgroup counts
	//
	// Returns:
	//   - error: ErrNotRecording, ErrUnboundSlot, a pipeline build error or descriptor.ErrHeapExhausted
	Dispatch(s shader.Shader, x, y, z uint32) error

	// End closes the recording scope. For lists opened by Begin it submits and, with blocking wait enabled,
	// blocks on the fence until the submission completes. Blocking wait defaults to the device's
	// BlockingCompute capability.
	//
	// Parameters:
	//   - ctx: bounds the fence wait
	//
	// Returns:
	//   - error: submit, device loss or wait error
	End(ctx context.Context) error

	// Recording reports whether a scope is open.
	Recording() bool

	// Dispatches returns the number of dispatches recorded since creation.
	Dispatches() int

	// BindGroups returns the number of bind groups allocated from the descriptor heap.
	BindGroups() int

	// BlockingWait reports whether End waits for the dispatches it submits.
	BlockingWait() bool

	// EvictDestroyed retires every cached bind group that references a destroyed resource.
	//
	// Returns:
	//   - int: the number of bind groups retired
	EvictDestroyed() int

	// Destroy releases every bind group. Pipelines belong to the cache.
	Destroy()
}

var _ Dispatcher = &dispatcher{}

// NewDispatcher creates a Dispatcher.
//
// Parameters:
//   - device: the backend to record and submit with
//   - cache: resolves compute pipelines
//   - options: functional options
//
// Returns:
//   - Dispatcher: the dispatcher
func NewDispatcher(device Device, cache pipeline.Cache, options ...DispatcherBuilderOption) Dispatcher {
	d := &dispatcher{
		device:       device,
		cache:        cache,
		capacity:     DefaultBindGroupCapacity,
		blockingWait: device.Capabilities().BlockingCompute,
		label:        "compute",
		groupSlots:   make(map[groupKey]descriptor.Slot),
	}
	for _, opt := range options {
		opt(d)
	}
	d.groups = descriptor.NewHeap[any](d.capacity,
		descriptor.WithLabel[any](d.label+" bind groups"),
		descriptor.WithReleaseFunc(device.Release),
	)
	return d
}

func (d *dispatcher) set(i int, s slot) {
	if !common.Assert(i >= 0 && i < MaxSlots, "compute: slot out of range", "slot", i, "max", MaxSlots) {
		return
	}
	if s.resource == nil && s.sampler == nil {
		s = slot{}
	}
	d.slots[i] = s
}

func (d *dispatcher) SetTexture(i int, tex resource.Resource) {
	d.set(i, slot{kind: SlotTexture, resource: tex, layer: -1})
}

func (d *dispatcher) SetTextureLayer(i int, tex resource.Resource, layer int) {
	d.set(i, slot{kind: SlotTexture, resource: tex, layer: layer})
}

func (d *dispatcher) SetReadBuffer(i int, buf resource.Resource) {
	d.set(i, slot{kind: SlotReadBuffer, resource: buf})
}

func (d *dispatcher) SetStorageBuffer(i int, r resource.Resource) {
	d.set(i, slot{kind: SlotStorageBuffer, resource: r, layer: -1})
}

func (d *dispatcher) SetUniformBuffer(i int, buf resource.Resource) {
	d.set(i, slot{kind: SlotUniformBuffer, resource: buf})
}

func (d *dispatcher) SetSampler(i int, sampler any) {
	d.set(i, slot{kind: SlotSampler, sampler: sampler})
}

func (d *dispatcher) Slot(i int) (SlotKind, resource.Resource) {
	if i < 0 || i >= MaxSlots {
		return SlotEmpty, nil
	}
	return d.slots[i].kind, d.slots[i].resource
}

func (d *dispatcher) ClearSlots() {
	d.slots = [MaxSlots]slot{}
}

func (d *dispatcher) Begin() error {
	if !common.Assert(d.list == nil, "compute: Begin inside an open scope", "label", d.label) {
		return nil
	}
	cl, err := d.device.Begin(d.label)
	if err != nil {
		return fmt.Errorf("compute: begin: %w", err)
	}
	d.list, d.ownsList, d.recorded = cl, true, 0
	return nil
}

func (d *dispatcher) BeginIn(cl backend.CommandList) {
	if !common.Assert(d.list == nil, "compute: Begin inside an open scope", "label", d.label) {
		return
	}
	d.list, d.ownsList, d.recorded = cl, false, 0
}

// compatible reports whether a slot kind can serve a shader binding kind.
func compatible(k SlotKind, b shader.BindingKind) bool {
	switch b {
	case shader.BindingTexture, shader.BindingDepthTexture:
		return k == SlotTexture
	case shader.BindingStorageTexture:
		return k == SlotStorageBuffer
	case shader.BindingReadBuffer:
		return k == SlotReadBuffer || k == SlotStorageBuffer
	case shader.BindingStorageBuffer:
		return k == SlotStorageBuffer
	case shader.BindingUniformBuffer:
		return k == SlotUniformBuffer
	case shader.BindingSampler:
		return k == SlotSampler
	}
	return false
}

func (d *dispatcher) bindGroup(s shader.Shader, group uint32, bindings []shader.Binding) (any, error) {
	key := groupKey{shader: s.ID(), group: group}
	entries := make([]backend.BindingEntry, len(bindings))
	for i, b := range bindings {
		sl := d.slots[b.Binding]
		if sl.resource != nil {
			key.bound[b.Binding] = sl.resource
		} else {
			key.bound[b.Binding] = sl.sampler
		}
		key.layers[b.Binding] = sl.layer
		entries[i] = backend.BindingEntry{
			Binding: b,
			Sampler: sl.sampler,
			Layer:   sl.layer,
		}
		if b.Kind.IsBuffer() {
			entries[i].Buffer = sl.resource
		} else {
			entries[i].Texture = sl.resource
		}
	}

	if hs, ok := d.groupSlots[key]; ok {
		if g, ok := d.groups.Get(hs); ok {
			return g, nil
		}
	}
	g, err := d.device.CreateBindGroup(fmt.Sprintf("%s group %d", s.Name(), group), shader.ShaderTypeCompute, entries)
	if err != nil {
		return nil, fmt.Errorf("compute: bind group %d of %q: %w", group, s.Name(), err)
	}
	hs, err := d.groups.Allocate(g)
	if err != nil {
		d.device.Release(g)
		return nil, fmt.Errorf("compute: bind group %d of %q: %w", group, s.Name(), err)
	}
	d.groupSlots[key] = hs
	return g, nil
}

func (d *dispatcher) Dispatch(s shader.Shader, x, y, z uint32) error {
	if d.list == nil {
		return ErrNotRecording
	}
	if !common.Assert(s != nil && s.Type() == shader.ShaderTypeCompute, "compute: dispatch of a non-compute shader") {
		return nil
	}
	if x == 0 || y == 0 || z == 0 {
		return nil
	}

	bindings := s.Bindings()
	for _, b := range bindings {
		if b.Binding >= MaxSlots {
			return fmt.Errorf("compute: %q binding %d exceeds %d slots", s.Name(), b.Binding, MaxSlots)
		}
		sl := d.slots[b.Binding]
		if sl.kind == SlotEmpty || !compatible(sl.kind, b.Kind) {
			return fmt.Errorf("%w: %q binding %d (%s) has slot kind %d", ErrUnboundSlot, s.Name(), b.Binding, b.Kind, sl.kind)
		}
	}

	for _, b := range bindings {
		sl := d.slots[b.Binding]
		if sl.resource != nil {
			sl.resource.Transition(d.list, sl.kind.State())
		}
	}

	p, err := d.cache.GetOrCreate(pipeline.ComputeKey(s.ID()), s)
	if err != nil {
		return err
	}

	groups := make([]any, backend.GroupCount(bindings))
	for g := range groups {
		inGroup := shader.BindingsInGroup(bindings, uint32(g))
		if len(inGroup) == 0 {
			continue
		}
		if groups[g], err = d.bindGroup(s, uint32(g), inGroup); err != nil {
			return err
		}
	}

	d.list.Dispatch(p, groups, x, y, z)
	d.dispatches++
	d.recorded++
	return nil
}

func (d *dispatcher) End(ctx context.Context) error {
	if d.list == nil {
		return ErrNotRecording
	}
	cl, owns := d.list, d.ownsList
	d.list, d.ownsList = nil, false
	if !owns {
		return nil
	}

	if err := d.device.Submit(cl); err != nil {
		return fmt.Errorf("compute: submit: %w", err)
	}
	if !d.blockingWait {
		return nil
	}
	fence := d.device.Fence()
	value, err := fence.Signal()
	if err != nil {
		return fmt.Errorf("compute: signal: %w", err)
	}
	if err := fence.Wait(ctx, value); err != nil {
		return fmt.Errorf("compute: wait for %d dispatches: %w", d.recorded, err)
	}
	return nil
}

func (d *dispatcher) Recording() bool {
	return d.list != nil
}

func (d *dispatcher) Dispatches() int {
	return d.dispatches
}

func (d *dispatcher) BindGroups() int {
	return d.groups.Len()
}

func (d *dispatcher) BlockingWait() bool {
	return d.blockingWait
}

func (d *dispatcher) EvictDestroyed() int {
	n := 0
	for key, hs := range d.groupSlots {
		if !referencesDestroyed(key.bound[:]) {
			continue
		}
		d.groups.Retire(hs)
		delete(d.groupSlots, key)
		n++
	}
	return n
}

func referencesDestroyed(bound []any) bool {
	for _, v := range bound {
		if r, ok := v.(resource.Resource); ok && r.Destroyed() {
			return true
		}
	}
	return false
}

func (d *dispatcher) Destroy() {
	d.groups.Reset()
	d.groupSlots = make(map[groupKey]descriptor.Slot)
	d.ClearSlots()
}
