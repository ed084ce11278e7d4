package renderer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/frame"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/gogpu/wgpu/hal"
)

// ErrOutOfMemory reports that the GPU ran out of memory. Like frame.ErrDeviceLost it is fatal.
var ErrOutOfMemory = errors.New("renderer: out of GPU memory")

// Breadcrumb is the renderer state recorded with a fatal error.
type Breadcrumb struct {
	Frame          uint64
	Backend        string
	FenceSignaled  uint64
	FenceCompleted uint64
	LastPipeline   pipeline.Key
	LastBarrier    resource.Barrier
}

// LogValue implements slog.LogValuer.
func (b Breadcrumb) LogValue() slog.Value {
	barrier := "none"
	if b.LastBarrier.Resource != nil {
		barrier = fmt.Sprintf("%s %s->%s", b.LastBarrier.Resource.Label(), b.LastBarrier.Before, b.LastBarrier.After)
	}
	return slog.GroupValue(
		slog.Uint64("frame", b.Frame),
		slog.String("backend", b.Backend),
		slog.Uint64("fence_signaled", b.FenceSignaled),
		slog.Uint64("fence_completed", b.FenceCompleted),
		slog.String("last_pipeline", b.LastPipeline.String()),
		slog.String("last_barrier", barrier),
	)
}

// FatalHandler handles an unrecoverable GPU error.
type FatalHandler func(err error, crumb Breadcrumb)

// PanicOnFatal is the default FatalHandler: it logs the breadcrumb at error level and panics.
func PanicOnFatal(err error, crumb Breadcrumb) {
	common.Logger().Error("fatal GPU error", "err", err, "state", crumb)
	panic(err)
}

// IsFatal reports whether err is a device loss or out of memory error.
func IsFatal(err error) bool {
	return errors.Is(err, frame.ErrDeviceLost) || errors.Is(err, ErrOutOfMemory) ||
		errors.Is(err, hal.ErrDeviceLost) || errors.Is(err, hal.ErrDeviceOutOfMemory)
}

// check passes fatal errors to the fatal handler and returns err, marked with ErrOutOfMemory when the
// backend reported memory exhaustion.
func (r *renderContext) check(err error) error {
	if err == nil || !IsFatal(err) {
		return err
	}
	if errors.Is(err, hal.ErrDeviceOutOfMemory) && !errors.Is(err, ErrOutOfMemory) {
		err = fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	r.fatal(err, r.breadcrumb())
	return err
}

func (r *renderContext) breadcrumb() Breadcrumb {
	crumb := Breadcrumb{
		Frame:         r.frameIndex,
		Backend:       r.caps.Name,
		FenceSignaled: r.lastFence,
		LastPipeline:  r.lastPipeline,
		LastBarrier:   r.lastBarrier,
	}
	if r.backend != nil {
		if done, err := r.backend.Fence().Completed(); err == nil {
			crumb.FenceCompleted = done
		}
	}
	return crumb
}
