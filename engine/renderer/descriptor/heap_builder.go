package descriptor

// HeapBuilderOption is a functional option for configuring a bumpHeap.
type HeapBuilderOption[T any] func(h *bumpHeap[T])

// WithLabel sets the label used in diagnostics.
//
// Parameters:
//   - label: the heap label
//
// Returns:
//   - HeapBuilderOption[T]: option function to apply
func WithLabel[T any](label string) HeapBuilderOption[T] {
	return func(h *bumpHeap[T]) {
		h.label = label
	}
}

// WithStride sets the byte size of one descriptor slot.
//
// Parameters:
//   - stride: descriptor increment size in bytes
//
// Returns:
//   - HeapBuilderOption[T]: option function to apply
func WithStride[T any](stride uint64) HeapBuilderOption[T] {
	return func(h *bumpHeap[T]) {
		if stride > 0 {
			h.stride = stride
		}
	}
}

// WithReleaseFunc sets the callback that frees each descriptor on Reset.
//
// Parameters:
//   - release: called once per allocated descriptor, newest first
//
// Returns:
//   - HeapBuilderOption[T]: option function to apply
func WithReleaseFunc[T any](release func(T)) HeapBuilderOption[T] {
	return func(h *bumpHeap[T]) {
		h.release = release
	}
}
