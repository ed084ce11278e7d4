package resource

import (
	"cmp"
	"slices"
	"sync"
)

// Handle is a generation-checked reference to a Resource held by an Arena.
// A handle whose slot has been destroyed and reused never resolves to the new occupant.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero handle, which never resolves.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

// Arena owns GPU resources and releases them as a group.
// Individual resources can be destroyed early through their handle; everything still alive is
// destroyed by Release in reverse creation order.
type Arena interface {
	// Add takes ownership of r and returns a handle to it.
	//
	// Parameters:
	//   - r: the resource to own
	//
	// Returns:
	//   - Handle: a handle resolving to r until it is destroyed
	Add(r Resource) Handle

	// Get resolves a handle.
	//
	// Parameters:
	//   - h: the handle to resolve
	//
	// Returns:
	//   - Resource: the owned resource, or nil
	//   - bool: false for stale or unknown handles
	Get(h Handle) (Resource, bool)

	// Destroy destroys the resource behind h and frees its slot.
	//
	// Parameters:
	//   - h: the handle to destroy
	//
	// Returns:
	//   - bool: false for stale or unknown handles
	Destroy(h Handle) bool

	// Len returns the number of live resources.
	//
	// Returns:
	//   - int: live resource count
	Len() int

	// Release destroys every live resource, newest first.
	Release()
}

type arenaSlot struct {
	resource   Resource
	generation uint32
	sequence   uint64
}

// resourceArena is the implementation of the Arena interface.
type resourceArena struct {
	mu       *sync.Mutex
	slots    []arenaSlot
	free     []uint32
	sequence uint64
	live     int
}

var _ Arena = &resourceArena{}

// NewArena creates an empty Arena.
//
// Returns:
//   - Arena: the arena
func NewArena() Arena {
	return &resourceArena{mu: &sync.Mutex{}}
}

func (a *resourceArena) Add(r Resource) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sequence++
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.generation++
	s.resource = r
	s.sequence = a.sequence
	a.live++
	return Handle{index: idx, generation: s.generation}
}

func (a *resourceArena) lookup(h Handle) *arenaSlot {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if s.generation != h.generation || s.resource == nil {
		return nil
	}
	return s
}

func (a *resourceArena) Get(h Handle) (Resource, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.lookup(h)
	if s == nil {
		return nil, false
	}
	return s.resource, true
}

func (a *resourceArena) Destroy(h Handle) bool {
	a.mu.Lock()
	s := a.lookup(h)
	if s == nil {
		a.mu.Unlock()
		return false
	}
	r := s.resource
	s.resource = nil
	a.free = append(a.free, h.index)
	a.live--
	a.mu.Unlock()

	r.Destroy()
	return true
}

func (a *resourceArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

func (a *resourceArena) Release() {
	a.mu.Lock()
	type pending struct {
		r   Resource
		seq uint64
	}
	alive := make([]pending, 0, a.live)
	for i := range a.slots {
		s := &a.slots[i]
		if s.resource == nil {
			continue
		}
		alive = append(alive, pending{r: s.resource, seq: s.sequence})
		s.resource = nil
		a.free = append(a.free, uint32(i))
	}
	a.live = 0
	a.mu.Unlock()

	slices.SortFunc(alive, func(x, y pending) int { return cmp.Compare(y.seq, x.seq) })
	for _, p := range alive {
		p.r.Destroy()
	}
}
