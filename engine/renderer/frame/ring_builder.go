package frame

// RingBuilderOption is a functional option for configuring a fenceRing.
type RingBuilderOption[T any] func(r *fenceRing[T])

// WithFramesInFlight sets how many frames the CPU may record ahead of the GPU.
// Values below 1 are ignored.
//
// Parameters:
//   - n: frames in flight
//
// Returns:
//   - RingBuilderOption[T]: option function to apply
func WithFramesInFlight[T any](n int) RingBuilderOption[T] {
	return func(r *fenceRing[T]) {
		if n >= 1 {
			r.framesInFlight = n
		}
	}
}
