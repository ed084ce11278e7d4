package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/gogpu/wgpu/hal"
)

// DefaultFenceTimeout bounds a single fence wait before the device is declared lost.
const DefaultFenceTimeout = 5 * time.Second

type fenceMark struct {
	value      uint64
	submission uint64
}

// halFence maps frame fence values onto hal queue submission indices. Signal stamps the newest submission;
// the value completes once the queue reports that submission finished.
type halFence struct {
	mu         *sync.Mutex
	queue      hal.Queue
	timeout    time.Duration
	signaled   uint64
	submitted  uint64
	completed  uint64
	pending    []fenceMark
	deviceLost bool
}

var _ frame.Fence = &halFence{}

func newHALFence(queue hal.Queue, timeout time.Duration) *halFence {
	return &halFence{
		mu:      &sync.Mutex{},
		queue:   queue,
		timeout: timeout,
	}
}

// noteSubmit records the index returned by the last queue submission.
func (f *halFence) noteSubmit(index uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = max(f.submitted, index)
}

func (f *halFence) lastSubmitted() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func (f *halFence) markLost() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceLost = true
}

func (f *halFence) Signal() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deviceLost {
		return 0, frame.ErrDeviceLost
	}
	f.signaled++
	f.pending = append(f.pending, fenceMark{value: f.signaled, submission: f.submitted})
	return f.signaled, nil
}

func (f *halFence) Completed() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deviceLost {
		return f.completed, frame.ErrDeviceLost
	}
	done := f.queue.PollCompleted()
	n := 0
	for _, m := range f.pending {
		if m.submission > done {
			break
		}
		f.completed = m.value
		n++
	}
	f.pending = f.pending[n:]
	return f.completed, nil
}

func (f *halFence) Wait(ctx context.Context, value uint64) error {
	err := frame.PollUntil(ctx, value, f.timeout, f.Completed)
	if errors.Is(err, frame.ErrTimeout) {
		// A queue that stops advancing for the whole timeout is treated as a lost device.
		f.markLost()
		return fmt.Errorf("%w: %w", frame.ErrDeviceLost, err)
	}
	return err
}

// waitSubmitted blocks until every submission made so far has completed.
func (f *halFence) waitSubmitted(ctx context.Context) error {
	f.mu.Lock()
	target := f.submitted
	f.mu.Unlock()
	return frame.PollUntil(ctx, target, f.timeout, func() (uint64, error) {
		return f.queue.PollCompleted(), nil
	})
}
