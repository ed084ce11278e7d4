package resource

import (
	"testing"

	"github.com/bioglaze/aether3d-sub000/common"
)

type recordingList struct {
	barriers []Barrier
}

func (l *recordingList) RecordBarrier(b Barrier) {
	l.barriers = append(l.barriers, b)
}

func TestTransitionBarrierCount(t *testing.T) {
	tests := []struct {
		name     string
		sequence []State
		want     int
	}{
		{"same state twice", []State{StateRenderTarget, StateRenderTarget}, 1},
		{"alternating", []State{StateRenderTarget, StateShaderRead, StateRenderTarget}, 3},
		{"repeat undefined", []State{StateUndefined, StateUndefined}, 0},
		{"write then read then read", []State{StateUnorderedAccess, StateShaderRead, StateShaderRead}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingList{}
			r := NewResource(KindTexture, struct{}{}, WithLabel(tt.name))
			for _, s := range tt.sequence {
				r.Transition(rec, s)
			}
			if len(rec.barriers) != tt.want {
				t.Fatalf("recorded %d barriers, want %d", len(rec.barriers), tt.want)
			}
		})
	}
}

func TestTransitionRecordsOldAndNewState(t *testing.T) {
	rec := &recordingList{}
	r := NewResource(KindBuffer, struct{}{}, WithInitialState(StateCopyDst), WithSize(64))

	if !r.Transition(rec, StateShaderRead) {
		t.Fatal("expected a barrier")
	}
	b := rec.barriers[0]
	if b.Before != StateCopyDst || b.After != StateShaderRead || b.Resource != r {
		t.Fatalf("barrier = %+v, want CopyDst -> ShaderRead", b)
	}
	if r.State() != StateShaderRead {
		t.Fatalf("state = %v, want ShaderRead", r.State())
	}
}

func TestTransitionRejectsUnknownState(t *testing.T) {
	if common.DebugBuild {
		t.Skip("contract violations panic in debug builds")
	}
	rec := &recordingList{}
	r := NewResource(KindBuffer, struct{}{})
	if r.Transition(rec, State(200)) {
		t.Fatal("transition to unknown state must be ignored")
	}
	if len(rec.barriers) != 0 || r.State() != StateUndefined {
		t.Fatalf("state changed to %v with %d barriers", r.State(), len(rec.barriers))
	}
}

func TestDestroyCallsReleaseOnce(t *testing.T) {
	calls := 0
	r := NewResource(KindBuffer, "native", WithReleaseFunc(func(native any) {
		if native != "native" {
			t.Fatalf("release got %v", native)
		}
		calls++
	}))
	r.Destroy()
	r.Destroy()
	if calls != 1 {
		t.Fatalf("release called %d times, want 1", calls)
	}
	if r.Native() != nil || !r.Destroyed() {
		t.Fatal("destroyed resource must drop its native object")
	}
}

func TestArenaGenerations(t *testing.T) {
	a := NewArena()
	first := NewResource(KindBuffer, 1)
	h1 := a.Add(first)
	if !a.Destroy(h1) {
		t.Fatal("destroy of live handle failed")
	}
	if !first.Destroyed() {
		t.Fatal("arena destroy must destroy the resource")
	}

	second := NewResource(KindBuffer, 2)
	h2 := a.Add(second)
	if _, ok := a.Get(h1); ok {
		t.Fatal("stale handle resolved after slot reuse")
	}
	if got, ok := a.Get(h2); !ok || got != second {
		t.Fatal("fresh handle did not resolve")
	}
	if a.Destroy(h1) {
		t.Fatal("destroy through stale handle succeeded")
	}
	if _, ok := a.Get(Handle{}); ok {
		t.Fatal("zero handle resolved")
	}
}

func TestArenaReleaseOrder(t *testing.T) {
	a := NewArena()
	var order []int
	for i := 0; i < 4; i++ {
		i := i
		a.Add(NewResource(KindBuffer, i, WithReleaseFunc(func(any) { order = append(order, i) })))
	}
	a.Release()

	want := []int{3, 2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("released %d resources, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("release order = %v, want %v", order, want)
		}
	}
	if a.Len() != 0 {
		t.Fatalf("arena still holds %d resources", a.Len())
	}
}
