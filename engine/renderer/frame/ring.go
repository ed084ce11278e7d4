package frame

import (
	"context"
	"fmt"
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
)

// DefaultFramesInFlight is the number of frames the CPU may record ahead of the GPU.
const DefaultFramesInFlight = 2

// Ring hands out N per-draw slots (typically uniform buffers) in strict rotation.
// A slot is handed out only after the fence value of its previous use has been reached.
//
// Ring is driven by the single submission goroutine and is not safe for concurrent use.
type Ring[T any] interface {
	// Acquire advances to the next slot and returns it.
	// If the slot is still in flight this is a contract violation: debug builds panic, release builds
	// block on the fence until the slot is free.
	//
	// Parameters:
	//   - ctx: bounds the wait for an in-flight slot
	//
	// Returns:
	//   - T: the slot value
	//   - int: the slot index
	//   - error: ErrRingOverrun, ErrDeviceLost or a wait error; the slot must not be used on error
	Acquire(ctx context.Context) (T, int, error)

	// EndFrame signals the fence for the work of this frame, stamps every slot used in it with the
	// signaled value and blocks until at most FramesInFlight-1 frames remain in flight.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//
	// Returns:
	//   - uint64: the signaled fence value
	//   - error: ErrDeviceLost or a wait error
	EndFrame(ctx context.Context) (uint64, error)

	// Slot returns the value of slot i without acquiring it.
	//
	// Parameters:
	//   - i: slot index
	//
	// Returns:
	//   - T: the slot value
	Slot(i int) T

	// Len returns the number of slots.
	//
	// Returns:
	//   - int: slot count
	Len() int

	// Index returns the most recently acquired slot index, or -1 before the first Acquire.
	//
	// Returns:
	//   - int: slot index
	Index() int

	// FramesInFlight returns the configured number of frames in flight.
	//
	// Returns:
	//   - int: frames in flight
	FramesInFlight() int

	// UsedThisFrame returns how many slots have been acquired since the last EndFrame.
	//
	// Returns:
	//   - int: acquire count
	UsedThisFrame() int
}

// fenceRing is the implementation of the Ring interface.
type fenceRing[T any] struct {
	mu             *sync.Mutex
	slots          []T
	pending        []uint64
	used           []int
	index          int
	fence          Fence
	framesInFlight int
}

// NewRing creates a ring over the provided slots.
//
// Parameters:
//   - fence: the fence gating slot reuse
//   - slots: the slot values (at least one)
//   - options: functional options
//
// Returns:
//   - Ring[T]: the ring
func NewRing[T any](fence Fence, slots []T, options ...RingBuilderOption[T]) Ring[T] {
	r := &fenceRing[T]{
		mu:             &sync.Mutex{},
		slots:          slots,
		pending:        make([]uint64, len(slots)),
		index:          -1,
		fence:          fence,
		framesInFlight: DefaultFramesInFlight,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *fenceRing[T]) Acquire(ctx context.Context) (T, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if !common.Assert(len(r.used) < len(r.slots), "frame: more draws this frame than ring slots", "slots", len(r.slots)) {
		return zero, -1, fmt.Errorf("frame: acquiring slot %d of %d: %w", len(r.used)+1, len(r.slots), ErrRingOverrun)
	}

	next := (r.index + 1) % len(r.slots)
	if wait := r.pending[next]; wait != 0 {
		done, err := r.fence.Completed()
		if err != nil {
			return zero, -1, err
		}
		if done < wait {
			common.Assert(false, "frame: ring slot reused while in flight", "slot", next, "fence", wait, "completed", done)
			if err := r.fence.Wait(ctx, wait); err != nil {
				return zero, -1, err
			}
		}
	}

	r.index = next
	r.used = append(r.used, next)
	return r.slots[next], next, nil
}

func (r *fenceRing[T]) EndFrame(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	value, err := r.fence.Signal()
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	for _, i := range r.used {
		r.pending[i] = value
	}
	r.used = r.used[:0]
	behind := uint64(r.framesInFlight - 1)
	r.mu.Unlock()

	if value <= behind {
		return value, nil
	}
	if err := r.fence.Wait(ctx, value-behind); err != nil {
		return value, err
	}
	return value, nil
}

func (r *fenceRing[T]) Slot(i int) T {
	return r.slots[i]
}

func (r *fenceRing[T]) Len() int {
	return len(r.slots)
}

func (r *fenceRing[T]) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

func (r *fenceRing[T]) FramesInFlight() int {
	return r.framesInFlight
}

func (r *fenceRing[T]) UsedThisFrame() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.used)
}
