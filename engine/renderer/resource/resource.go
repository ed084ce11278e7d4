package resource

import (
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/gogpu/gputypes"
)

// Resource is a GPU buffer or texture together with its tracked usage state.
//
// The tracked state always equals the target state of the last barrier actually recorded for it.
// A Resource is owned by whoever created it and is released explicitly with Destroy or when its
// owning Arena is released.
type Resource interface {
	// Kind returns whether this resource is a buffer or a texture.
	//
	// Returns:
	//   - Kind: KindBuffer or KindTexture
	Kind() Kind

	// Label returns the debug label given at creation.
	//
	// Returns:
	//   - string: the label
	Label() string

	// Native returns the backend object this resource wraps (e.g. a hal.Buffer or *wgpu.Texture).
	//
	// Returns:
	//   - any: the backend object, nil after Destroy
	Native() any

	// State returns the last recorded usage state.
	//
	// Returns:
	//   - State: the current state
	State() State

	// Transition moves the resource into the requested state.
	// When the requested state equals the current state nothing happens. Otherwise exactly one barrier
	// (current, requested) is recorded on rec and the tracked state is updated.
	//
	// Parameters:
	//   - rec: the command stream receiving the barrier
	//   - requested: the state the next use needs
	//
	// Returns:
	//   - bool: true if a barrier was recorded
	Transition(rec BarrierRecorder, requested State) bool

	// Size returns the byte size of a buffer, or 0 for textures.
	//
	// Returns:
	//   - uint64: the buffer size
	Size() uint64

	// Extent returns the texture width, height and array layer count, or zeros for buffers.
	//
	// Returns:
	//   - width, height, layers: the texture extent
	Extent() (width, height, layers uint32)

	// Format returns the texture format, or TextureFormatUndefined for buffers.
	//
	// Returns:
	//   - gputypes.TextureFormat: the texel format
	Format() gputypes.TextureFormat

	// Destroy releases the backend object. Calling Destroy more than once is a no-op.
	Destroy()

	// Destroyed reports whether Destroy has been called.
	//
	// Returns:
	//   - bool: true after Destroy
	Destroyed() bool
}

// gpuResource is the implementation of the Resource interface.
type gpuResource struct {
	mu        *sync.Mutex
	kind      Kind
	label     string
	native    any
	state     State
	size      uint64
	width     uint32
	height    uint32
	layers    uint32
	format    gputypes.TextureFormat
	release   func(native any)
	destroyed bool
}

var _ Resource = &gpuResource{}

// NewResource wraps a backend object in a state-tracked Resource.
// New resources start in StateUndefined unless WithInitialState says otherwise.
//
// Parameters:
//   - kind: buffer or texture
//   - native: the backend object
//   - options: functional options (label, size, extent, release callback, ...)
//
// Returns:
//   - Resource: the tracked resource
func NewResource(kind Kind, native any, options ...ResourceBuilderOption) Resource {
	r := &gpuResource{
		mu:     &sync.Mutex{},
		kind:   kind,
		native: native,
		state:  StateUndefined,
		layers: 1,
		format: gputypes.TextureFormatUndefined,
	}
	if kind == KindBuffer {
		r.layers = 0
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *gpuResource) Kind() Kind {
	return r.kind
}

func (r *gpuResource) Label() string {
	return r.label
}

func (r *gpuResource) Native() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.native
}

func (r *gpuResource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *gpuResource) Transition(rec BarrierRecorder, requested State) bool {
	if !common.Assert(requested.Valid(), "resource: transition to unknown state", "resource", r.label, "state", uint8(requested)) {
		return false
	}
	if !common.Assert(rec != nil, "resource: transition without a barrier recorder", "resource", r.label) {
		return false
	}

	r.mu.Lock()
	before := r.state
	if before == requested {
		r.mu.Unlock()
		return false
	}
	r.state = requested
	r.mu.Unlock()

	rec.RecordBarrier(Barrier{Resource: r, Before: before, After: requested})
	return true
}

func (r *gpuResource) Size() uint64 {
	return r.size
}

func (r *gpuResource) Extent() (width, height, layers uint32) {
	return r.width, r.height, r.layers
}

func (r *gpuResource) Format() gputypes.TextureFormat {
	return r.format
}

func (r *gpuResource) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	native := r.native
	r.native = nil
	r.destroyed = true
	r.mu.Unlock()

	if r.release != nil && native != nil {
		r.release(native)
	}
}

func (r *gpuResource) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}
