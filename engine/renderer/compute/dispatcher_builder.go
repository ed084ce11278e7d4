package compute

// DispatcherBuilderOption is a functional option for configuring a dispatcher.
type DispatcherBuilderOption func(d *dispatcher)

// WithBlockingWait overrides whether End blocks on the fence until the submitted dispatches complete. The
// default comes from the device's BlockingCompute capability.
//
// Parameters:
//   - block: true to wait in End
//
// Returns:
//   - DispatcherBuilderOption: option function to apply
func WithBlockingWait(block bool) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.blockingWait = block
	}
}

// WithBindGroupCapacity sets the size of the bind group heap. Values below 1 are ignored.
//
// Parameters:
//   - n: the maximum number of distinct bind groups
//
// Returns:
//   - DispatcherBuilderOption: option function to apply
func WithBindGroupCapacity(n int) DispatcherBuilderOption {
	return func(d *dispatcher) {
		if n >= 1 {
			d.capacity = n
		}
	}
}

// WithLabel sets the debug label of command lists opened by Begin.
func WithLabel(label string) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.label = label
	}
}
