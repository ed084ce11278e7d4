package light

import "github.com/bioglaze/aether3d-sub000/engine/renderer/compute"

// TilerBuilderOption is a function that configures a Tiler during construction.
type TilerBuilderOption func(*tiler)

// WithMaxLights sets the capacity of each of the point and spot light arrays.
//
// Parameters:
//   - n: the capacity, DefaultMaxLights when unset
//
// Returns:
//   - TilerBuilderOption: a function that applies the capacity to a tiler
func WithMaxLights(n int) TilerBuilderOption {
	return func(t *tiler) {
		t.maxLights = n
	}
}

// WithMaxLightsPerTile sets the length of each tile's index list.
//
// Parameters:
//   - n: the per-tile cap, DefaultMaxLightsPerTile when unset
//
// Returns:
//   - TilerBuilderOption: a function that applies the cap to a tiler
func WithMaxLightsPerTile(n int) TilerBuilderOption {
	return func(t *tiler) {
		t.maxLightsPerTile = n
	}
}

// WithDispatcher enables the compute shader executor. Without it the tiler always culls on the CPU.
//
// Parameters:
//   - d: the compute wrapper the culling pass is recorded through
//
// Returns:
//   - TilerBuilderOption: a function that applies the dispatcher to a tiler
func WithDispatcher(d compute.Dispatcher) TilerBuilderOption {
	return func(t *tiler) {
		t.dispatcher = d
	}
}

// WithCPUCulling forces the CPU executor even on backends that execute compute.
func WithCPUCulling() TilerBuilderOption {
	return func(t *tiler) {
		t.forceCPU = true
	}
}

// WithWorkers sets the number of worker pool goroutines of the CPU executor.
func WithWorkers(n int) TilerBuilderOption {
	return func(t *tiler) {
		if n > 0 {
			t.workers = n
		}
	}
}

// WithLabel sets the debug label prefix of the tiler's buffers.
func WithLabel(label string) TilerBuilderOption {
	return func(t *tiler) {
		t.label = label
	}
}
