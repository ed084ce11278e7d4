package descriptor

import (
	"errors"
	"testing"

	"github.com/bioglaze/aether3d-sub000/common"
)

func TestHeapBumpAllocation(t *testing.T) {
	h := NewHeap(4, WithStride[string](32), WithLabel[string]("test"))

	for i, v := range []string{"a", "b", "c"} {
		slot, err := h.Allocate(v)
		if err != nil {
			t.Fatalf("Allocate(%q): %v", v, err)
		}
		if slot.Index != uint32(i) || slot.Offset != uint64(i)*32 {
			t.Fatalf("slot = %+v, want index %d offset %d", slot, i, i*32)
		}
		got, ok := h.Get(slot)
		if !ok || got != v {
			t.Fatalf("Get(%+v) = %q, %v", slot, got, ok)
		}
	}
	if h.Len() != 3 || h.Cap() != 4 {
		t.Fatalf("len/cap = %d/%d, want 3/4", h.Len(), h.Cap())
	}
}

func TestHeapExhaustion(t *testing.T) {
	if common.DebugBuild {
		t.Skip("contract violations panic in debug builds")
	}
	h := NewHeap[int](2)
	for i := 0; i < 2; i++ {
		if _, err := h.Allocate(i); err != nil {
			t.Fatalf("Allocate(%d): %v", i, err)
		}
	}
	if _, err := h.Allocate(99); !errors.Is(err, ErrHeapExhausted) {
		t.Fatalf("err = %v, want ErrHeapExhausted", err)
	}
	if h.Len() != 2 {
		t.Fatalf("len = %d after exhaustion, want 2", h.Len())
	}
}

func TestHeapResetReleasesNewestFirst(t *testing.T) {
	var released []int
	h := NewHeap(3, WithReleaseFunc(func(v int) { released = append(released, v) }))
	for i := 1; i <= 3; i++ {
		_, _ = h.Allocate(i)
	}
	h.Reset()

	if len(released) != 3 || released[0] != 3 || released[2] != 1 {
		t.Fatalf("released = %v, want [3 2 1]", released)
	}
	if h.Len() != 0 {
		t.Fatalf("len = %d after reset", h.Len())
	}
	if _, ok := h.Get(Slot{Index: 0}); ok {
		t.Fatal("slot resolved after reset")
	}
}

func TestHeapRetireKeepsSlotConsumed(t *testing.T) {
	var released []int
	h := NewHeap(3, WithReleaseFunc(func(v int) { released = append(released, v) }))
	var slots []Slot
	for i := 1; i <= 3; i++ {
		s, err := h.Allocate(i)
		if err != nil {
			t.Fatalf("Allocate(%d): %v", i, err)
		}
		slots = append(slots, s)
	}

	if !h.Retire(slots[1]) {
		t.Fatal("Retire(1) = false")
	}
	if h.Retire(slots[1]) {
		t.Error("second Retire of the same slot = true")
	}
	if h.Retire(Slot{Index: 7}) {
		t.Error("Retire of an unallocated slot = true")
	}
	if _, ok := h.Get(slots[1]); ok {
		t.Error("retired slot still resolves")
	}
	if v, ok := h.Get(slots[2]); !ok || v != 3 {
		t.Errorf("Get(2) = %d, %v", v, ok)
	}
	if h.Len() != 3 || h.Retired() != 1 {
		t.Errorf("len/retired = %d/%d, want 3/1", h.Len(), h.Retired())
	}
	if len(released) != 1 || released[0] != 2 {
		t.Fatalf("released after Retire = %v, want [2]", released)
	}

	if common.DebugBuild {
		return
	}
	if _, err := h.Allocate(4); !errors.Is(err, ErrHeapExhausted) {
		t.Errorf("Allocate into a full heap with a retired slot = %v, want ErrHeapExhausted", err)
	}
	h.Reset()
	if len(released) != 3 || released[1] != 3 || released[2] != 1 {
		t.Errorf("released = %v, want [2 3 1]", released)
	}
	if h.Retired() != 0 {
		t.Errorf("retired = %d after reset", h.Retired())
	}
}
