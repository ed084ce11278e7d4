package wgpubackend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/cogentcore/webgpu/wgpu"
)

// pendingQueue holds submitted work callbacks until the test completes them.
type pendingQueue struct {
	callbacks []wgpu.QueueWorkDoneCallback
}

func (q *pendingQueue) OnSubmittedWorkDone(callback wgpu.QueueWorkDoneCallback) {
	q.callbacks = append(q.callbacks, callback)
}

// complete runs the first n callbacks with status.
func (q *pendingQueue) complete(n int, status wgpu.QueueWorkDoneStatus) {
	n = min(n, len(q.callbacks))
	for _, cb := range q.callbacks[:n] {
		cb(status)
	}
	q.callbacks = q.callbacks[n:]
}

func TestWGPUFenceTracksSubmittedWork(t *testing.T) {
	q := &pendingQueue{}
	f := newWGPUFence(q, func(bool) {})

	for want := uint64(1); want <= 3; want++ {
		v, err := f.Signal()
		if err != nil || v != want {
			t.Fatalf("Signal = %d, %v; want %d", v, err, want)
		}
	}
	if done, err := f.Completed(); err != nil || done != 0 {
		t.Fatalf("Completed before any work finished = %d, %v; want 0", done, err)
	}

	q.complete(2, wgpu.QueueWorkDoneStatusSuccess)
	if done, _ := f.Completed(); done != 2 {
		t.Errorf("Completed = %d, want 2", done)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.Wait(ctx, 3); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait(3) with pending work = %v, want deadline exceeded", err)
	}

	q.complete(1, wgpu.QueueWorkDoneStatusSuccess)
	if err := f.Wait(context.Background(), 3); err != nil {
		t.Errorf("Wait(3) after completion: %v", err)
	}
}

func TestWGPUFenceWaitPolls(t *testing.T) {
	q := &pendingQueue{}
	var blocking int
	f := newWGPUFence(q, func(wait bool) {
		if wait {
			blocking++
			q.complete(len(q.callbacks), wgpu.QueueWorkDoneStatusSuccess)
		}
	})

	v, err := f.Signal()
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := f.Wait(context.Background(), v); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if blocking == 0 {
		t.Error("Wait never polled the device")
	}
}

func TestWGPUFenceOutOfOrderCallbacks(t *testing.T) {
	q := &pendingQueue{}
	f := newWGPUFence(q, func(bool) {})
	_, _ = f.Signal()
	_, _ = f.Signal()

	q.callbacks[1](wgpu.QueueWorkDoneStatusSuccess)
	q.callbacks[0](wgpu.QueueWorkDoneStatusSuccess)
	if done, _ := f.Completed(); done != 2 {
		t.Errorf("Completed = %d, want 2", done)
	}
}

func TestWGPUFenceDeviceLost(t *testing.T) {
	q := &pendingQueue{}
	f := newWGPUFence(q, func(bool) {})
	v, _ := f.Signal()
	q.complete(1, wgpu.QueueWorkDoneStatusDeviceLost)

	if _, err := f.Completed(); !errors.Is(err, frame.ErrDeviceLost) {
		t.Errorf("Completed = %v, want ErrDeviceLost", err)
	}
	if err := f.Wait(context.Background(), v); !errors.Is(err, frame.ErrDeviceLost) {
		t.Errorf("Wait = %v, want ErrDeviceLost", err)
	}
	if _, err := f.Signal(); !errors.Is(err, frame.ErrDeviceLost) {
		t.Errorf("Signal after loss = %v, want ErrDeviceLost", err)
	}
}
