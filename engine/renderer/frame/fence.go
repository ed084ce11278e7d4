// Package frame implements the fence-gated frame pacing of the renderer: a fence abstraction over the
// backend's submission tracking and a ring of per-draw uniform buffers that are only reused once the GPU
// has finished reading them.
package frame

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceLost reports that the GPU device stopped responding. It is fatal and never retried.
	ErrDeviceLost = errors.New("frame: device lost")

	// ErrTimeout reports that a fence value was not reached within the configured timeout.
	ErrTimeout = errors.New("frame: fence wait timed out")

	// ErrRingOverrun reports that more ring slots were requested in one frame than the ring holds.
	ErrRingOverrun = errors.New("frame: ring overrun")
)

// Fence is a monotonically increasing GPU progress counter.
type Fence interface {
	// Signal enqueues a signal after all work submitted so far.
	//
	// Returns:
	//   - uint64: the value that Completed reaches once that work has finished
	//   - error: ErrDeviceLost (wrapped) if the device is gone
	Signal() (uint64, error)

	// Completed returns the highest value the GPU has reached.
	//
	// Returns:
	//   - uint64: the completed value
	//   - error: ErrDeviceLost (wrapped) if the device is gone
	Completed() (uint64, error)

	// Wait blocks until Completed reaches value, the context ends, or the device is lost.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - value: the fence value to wait for
	//
	// Returns:
	//   - error: nil once the value is reached
	Wait(ctx context.Context, value uint64) error
}

const (
	minPollInterval = 50 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// PollUntil blocks until completed() reports at least value. It polls with an exponential backoff
// between minPollInterval and maxPollInterval.
//
// Parameters:
//   - ctx: bounds the wait; its error is returned wrapped when it ends first
//   - value: the fence value to wait for
//   - timeout: maximum total wait, 0 for none; expiry returns ErrTimeout
//   - completed: reports the current completed value
//
// Returns:
//   - error: nil once reached, ErrTimeout, the context error, or the error from completed
func PollUntil(ctx context.Context, value uint64, timeout time.Duration, completed func() (uint64, error)) error {
	done, err := completed()
	if err != nil {
		return err
	}
	if done >= value {
		return nil
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	interval := minPollInterval
	tick := time.NewTimer(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("frame: waiting for fence value %d (completed %d): %w", value, done, ctx.Err())
		case <-deadline:
			return fmt.Errorf("frame: waiting for fence value %d (completed %d) after %v: %w", value, done, timeout, ErrTimeout)
		case <-tick.C:
		}

		done, err = completed()
		if err != nil {
			return err
		}
		if done >= value {
			return nil
		}
		interval = min(interval*2, maxPollInterval)
		tick.Reset(interval)
	}
}
