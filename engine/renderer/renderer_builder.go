package renderer

import (
	"time"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderContext)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode backend.PresentMode) RendererBuilderOption {
	return func(r *renderContext) {
		r.presentMode = mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count of back buffer passes.
// When not specified, MSAA is off. Offscreen render targets are always single sampled.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff, MSAA4x or MSAA8x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count backend.MSAASampleCount) RendererBuilderOption {
	return func(r *renderContext) {
		if count >= backend.MSAAOff {
			r.msaa = count
		}
	}
}

// WithFramesInFlight sets how many frames the CPU may record ahead of the GPU.
//
// Parameters:
//   - n: frames in flight, at least 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to a renderer
func WithFramesInFlight(n int) RendererBuilderOption {
	return func(r *renderContext) {
		if n >= 1 {
			r.framesInFlight = n
		}
	}
}

// WithRingSize sets the number of per-draw uniform buffers.
//
// Parameters:
//   - n: ring slots, at least 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to a renderer
func WithRingSize(n int) RendererBuilderOption {
	return func(r *renderContext) {
		if n >= 1 {
			r.ringSize = n
		}
	}
}

// WithHeapSize sets the capacity of the draw bind group heap. The heap never recycles, so it holds one
// uniform bind group per ring slot besides the material groups; values below twice the ring size are
// raised to it.
func WithHeapSize(n int) RendererBuilderOption {
	return func(r *renderContext) {
		if n >= 1 {
			r.heapSize = n
		}
	}
}

// WithMaxLights sets the capacity of each of the point and spot light arrays.
func WithMaxLights(n int) RendererBuilderOption {
	return func(r *renderContext) {
		if n >= 1 {
			r.maxLights = n
		}
	}
}

// WithMaxLightsPerTile sets the length of each tile's light index list.
func WithMaxLightsPerTile(n int) RendererBuilderOption {
	return func(r *renderContext) {
		if n >= 1 {
			r.maxLightsPerTile = n
		}
	}
}

// WithCPULightCulling culls lights on the CPU worker pool even when the backend executes compute shaders.
func WithCPULightCulling() RendererBuilderOption {
	return func(r *renderContext) {
		r.cpuCulling = true
	}
}

// WithFenceTimeout bounds the end-of-frame fence wait when Present's context has no deadline.
//
// Parameters:
//   - d: the timeout, 0 waits as long as the context allows
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to a renderer
func WithFenceTimeout(d time.Duration) RendererBuilderOption {
	return func(r *renderContext) {
		r.fenceTimeout = d
	}
}

// WithFatalHandler replaces PanicOnFatal as the handler of device loss and out of memory errors.
// Frame operations still return the error after the handler returns.
//
// Parameters:
//   - h: the handler
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to a renderer
func WithFatalHandler(h FatalHandler) RendererBuilderOption {
	return func(r *renderContext) {
		if h != nil {
			r.fatal = h
		}
	}
}

// WithHeadlessSize sets the offscreen back buffer size used when the renderer has no surface.
func WithHeadlessSize(width, height int) RendererBuilderOption {
	return func(r *renderContext) {
		r.headlessWidth, r.headlessHeight = width, height
	}
}

// WithDebug enables GPU API validation where the backend supports it.
func WithDebug(debug bool) RendererBuilderOption {
	return func(r *renderContext) {
		r.debug = debug
	}
}

// WithBackend uses an already opened backend instead of opening one. The caller keeps ownership:
// Destroy releases the renderer's resources but not the backend.
//
// Parameters:
//   - b: the opened backend
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to a renderer
func WithBackend(b backend.RendererBackend) RendererBuilderOption {
	return func(r *renderContext) {
		r.injected = b
	}
}
