package resource

import "github.com/gogpu/gputypes"

// ResourceBuilderOption is a functional option for configuring a gpuResource.
type ResourceBuilderOption func(r *gpuResource)

// WithLabel sets the debug label.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - ResourceBuilderOption: option function to apply
func WithLabel(label string) ResourceBuilderOption {
	return func(r *gpuResource) {
		r.label = label
	}
}

// WithInitialState sets the state the resource is created in.
// Backends use this for resources that come out of creation already in a known layout,
// such as a swapchain image that was just presented.
//
// Parameters:
//   - state: the initial state
//
// Returns:
//   - ResourceBuilderOption: option function to apply
func WithInitialState(state State) ResourceBuilderOption {
	return func(r *gpuResource) {
		if state.Valid() {
			r.state = state
		}
	}
}

// WithSize records the byte size of a buffer.
//
// Parameters:
//   - size: size in bytes
//
// Returns:
//   - ResourceBuilderOption: option function to apply
func WithSize(size uint64) ResourceBuilderOption {
	return func(r *gpuResource) {
		r.size = size
	}
}

// WithExtent records the dimensions of a texture.
//
// Parameters:
//   - width, height: size in pixels
//   - layers: array layer (face) count, at least 1
//
// Returns:
//   - ResourceBuilderOption: option function to apply
func WithExtent(width, height, layers uint32) ResourceBuilderOption {
	return func(r *gpuResource) {
		r.width = width
		r.height = height
		r.layers = max(layers, 1)
	}
}

// WithFormat records the texel format of a texture.
//
// Parameters:
//   - format: the texel format
//
// Returns:
//   - ResourceBuilderOption: option function to apply
func WithFormat(format gputypes.TextureFormat) ResourceBuilderOption {
	return func(r *gpuResource) {
		r.format = format
	}
}

// WithReleaseFunc sets the callback that frees the backend object on Destroy.
//
// Parameters:
//   - release: called once with the native object
//
// Returns:
//   - ResourceBuilderOption: option function to apply
func WithReleaseFunc(release func(native any)) ResourceBuilderOption {
	return func(r *gpuResource) {
		r.release = release
	}
}
