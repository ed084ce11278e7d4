// Package descriptor provides the shader-visible binding table used by the renderer.
//
// Descriptors (bind groups on WebGPU-style backends) are allocated from a pre-sized table with a bump
// pointer and are never freed individually. A descriptor whose resources were destroyed can be retired: it is
// released, but its slot stays consumed. The table is reset only when the renderer shuts down.
package descriptor

import (
	"errors"
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
)

// ErrHeapExhausted is returned when every slot of a heap has been handed out.
var ErrHeapExhausted = errors.New("descriptor: heap exhausted")

// Slot locates a descriptor inside a heap.
type Slot struct {
	// Index is the position of the descriptor in allocation order.
	Index uint32
	// Offset is Index multiplied by the heap's descriptor stride.
	Offset uint64
}

// Heap is a bump allocator over a fixed number of descriptor slots.
type Heap[T any] interface {
	// Allocate stores v in the next free slot.
	//
	// Parameters:
	//   - v: the descriptor to store
	//
	// Returns:
	//   - Slot: the slot holding v
	//   - error: ErrHeapExhausted when the heap is full
	Allocate(v T) (Slot, error)

	// Get returns the descriptor stored in slot.
	//
	// Parameters:
	//   - slot: a slot returned by Allocate
	//
	// Returns:
	//   - T: the descriptor
	//   - bool: false if slot was never allocated or was retired
	Get(slot Slot) (T, bool)

	// Retire releases the descriptor in slot. The slot is not handed out again.
	//
	// Parameters:
	//   - slot: a slot returned by Allocate
	//
	// Returns:
	//   - bool: false if slot was never allocated or was already retired
	Retire(slot Slot) bool

	// Retired returns the number of retired slots.
	Retired() int

	// Len returns the number of allocated slots.
	//
	// Returns:
	//   - int: allocated slot count
	Len() int

	// Cap returns the fixed slot capacity.
	//
	// Returns:
	//   - int: capacity
	Cap() int

	// Stride returns the byte distance between consecutive slots.
	//
	// Returns:
	//   - uint64: descriptor stride
	Stride() uint64

	// Reset releases every descriptor and rewinds the bump pointer. Only valid at shutdown.
	Reset()
}

// bumpHeap is the implementation of the Heap interface.
type bumpHeap[T any] struct {
	mu      *sync.Mutex
	label   string
	entries []T
	retired []bool
	dead    int
	stride  uint64
	release func(T)
}

// NewHeap creates a heap with a fixed capacity.
//
// Parameters:
//   - capacity: number of descriptor slots (values below 1 are raised to 1)
//   - options: functional options (label, stride, release callback)
//
// Returns:
//   - Heap[T]: the heap
func NewHeap[T any](capacity int, options ...HeapBuilderOption[T]) Heap[T] {
	h := &bumpHeap[T]{
		mu:      &sync.Mutex{},
		label:   "descriptor heap",
		entries: make([]T, 0, max(capacity, 1)),
		retired: make([]bool, 0, max(capacity, 1)),
		stride:  1,
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

func (h *bumpHeap[T]) Allocate(v T) (Slot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !common.Assert(len(h.entries) < cap(h.entries), "descriptor: heap exhausted", "heap", h.label, "capacity", cap(h.entries)) {
		return Slot{}, ErrHeapExhausted
	}
	idx := uint32(len(h.entries))
	h.entries = append(h.entries, v)
	h.retired = append(h.retired, false)
	return Slot{Index: idx, Offset: uint64(idx) * h.stride}, nil
}

func (h *bumpHeap[T]) Get(slot Slot) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(slot.Index) >= len(h.entries) || h.retired[slot.Index] {
		var zero T
		return zero, false
	}
	return h.entries[slot.Index], true
}

func (h *bumpHeap[T]) Retire(slot Slot) bool {
	h.mu.Lock()
	if int(slot.Index) >= len(h.entries) || h.retired[slot.Index] {
		h.mu.Unlock()
		return false
	}
	v := h.entries[slot.Index]
	var zero T
	h.entries[slot.Index] = zero
	h.retired[slot.Index] = true
	h.dead++
	h.mu.Unlock()

	if h.release != nil {
		h.release(v)
	}
	return true
}

func (h *bumpHeap[T]) Retired() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead
}

func (h *bumpHeap[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *bumpHeap[T]) Cap() int {
	return cap(h.entries)
}

func (h *bumpHeap[T]) Stride() uint64 {
	return h.stride
}

func (h *bumpHeap[T]) Reset() {
	h.mu.Lock()
	entries, retired := h.entries, h.retired
	h.entries, h.retired, h.dead = h.entries[:0], h.retired[:0], 0
	h.mu.Unlock()

	if h.release != nil {
		for i := len(entries) - 1; i >= 0; i-- {
			if !retired[i] {
				h.release(entries[i])
			}
		}
	}
	clear(entries)
	clear(retired)
}
