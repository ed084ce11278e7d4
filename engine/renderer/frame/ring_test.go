package frame

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bioglaze/aether3d-sub000/common"
)

// stuckFence signals increasing values but never completes any of them.
type stuckFence struct {
	mu       sync.Mutex
	signaled uint64
	waits    atomic.Int32
}

func (f *stuckFence) Signal() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled++
	return f.signaled, nil
}

func (f *stuckFence) Completed() (uint64, error) { return 0, nil }

func (f *stuckFence) Wait(ctx context.Context, value uint64) error {
	f.waits.Add(1)
	return PollUntil(ctx, value, 0, f.Completed)
}

// instantFence completes every signaled value immediately.
type instantFence struct {
	signaled uint64
}

func (f *instantFence) Signal() (uint64, error) {
	f.signaled++
	return f.signaled, nil
}

func (f *instantFence) Completed() (uint64, error) { return f.signaled, nil }

func (f *instantFence) Wait(ctx context.Context, value uint64) error {
	return PollUntil(ctx, value, 0, f.Completed)
}

type lostFence struct{ instantFence }

func (f *lostFence) Signal() (uint64, error) { return 0, ErrDeviceLost }

func TestRingWrapsModuloN(t *testing.T) {
	r := NewRing[int](&instantFence{}, []int{10, 11, 12})
	ctx := context.Background()

	var got []int
	for frame := 0; frame < 2; frame++ {
		for i := 0; i < 3; i++ {
			v, idx, err := r.Acquire(ctx)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			if v != 10+idx {
				t.Fatalf("slot value %d does not match index %d", v, idx)
			}
			got = append(got, idx)
		}
		if _, err := r.EndFrame(ctx); err != nil {
			t.Fatalf("EndFrame: %v", err)
		}
	}
	want := []int{0, 1, 2, 0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot order = %v, want %v", got, want)
		}
	}
}

// The frame loop must block in EndFrame on a fence that never advances, so the next frame's Acquire
// is never reached and no in-flight slot is handed out.
func TestStuckFenceBlocksEndFrame(t *testing.T) {
	fence := &stuckFence{}
	r := NewRing[int](fence, []int{0, 1, 2, 3}, WithFramesInFlight[int](2))

	var acquiresAfterWait atomic.Int32
	loopDone := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for frame := 0; ; frame++ {
			if frame >= 2 {
				acquiresAfterWait.Add(1)
			}
			if _, _, err := r.Acquire(ctx); err != nil {
				loopDone <- err
				return
			}
			if _, err := r.EndFrame(ctx); err != nil {
				loopDone <- err
				return
			}
		}
	}()

	select {
	case err := <-loopDone:
		t.Fatalf("frame loop returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if n := acquiresAfterWait.Load(); n != 0 {
		t.Fatalf("Acquire called %d times after the blocking EndFrame", n)
	}
	if fence.waits.Load() == 0 {
		t.Fatal("EndFrame never waited on the fence")
	}

	cancel()
	select {
	case err := <-loopDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("loop error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("frame loop did not stop after cancel")
	}
}

func TestSingleFrameInFlightWaitsForOwnSignal(t *testing.T) {
	r := NewRing[int](&stuckFence{}, []int{0}, WithFramesInFlight[int](1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, _, err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := r.EndFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("EndFrame error = %v, want deadline exceeded", err)
	}
}

func TestAcquireWaitsForInFlightSlot(t *testing.T) {
	if common.DebugBuild {
		t.Skip("contract violations panic in debug builds")
	}
	// Two frames in flight with a single slot: the second frame reuses a slot the GPU has not released.
	r := NewRing[int](&stuckFence{}, []int{0}, WithFramesInFlight[int](2))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, _, err := r.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := r.EndFrame(ctx); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if _, idx, err := r.Acquire(ctx); err == nil {
		t.Fatalf("in-flight slot %d handed out", idx)
	}
}

func TestAcquireOverrun(t *testing.T) {
	if common.DebugBuild {
		t.Skip("contract violations panic in debug builds")
	}
	r := NewRing[int](&instantFence{}, []int{0, 1})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, _, err := r.Acquire(ctx); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if _, _, err := r.Acquire(ctx); !errors.Is(err, ErrRingOverrun) {
		t.Fatalf("err = %v, want ErrRingOverrun", err)
	}
}

func TestEndFrameDeviceLost(t *testing.T) {
	r := NewRing[int](&lostFence{}, []int{0})
	if _, err := r.EndFrame(context.Background()); !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("err = %v, want ErrDeviceLost", err)
	}
}

func TestPollUntilTimeout(t *testing.T) {
	err := PollUntil(context.Background(), 5, 10*time.Millisecond, func() (uint64, error) { return 1, nil })
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestPollUntilReachesValue(t *testing.T) {
	var calls atomic.Uint64
	err := PollUntil(context.Background(), 3, time.Second, func() (uint64, error) {
		return calls.Add(1), nil
	})
	if err != nil {
		t.Fatalf("PollUntil: %v", err)
	}
}
