package shader

// ShaderBuilderOption is a functional option for configuring a shader.
type ShaderBuilderOption func(s *shader)

// WithVertexEntryPoint overrides the vertex entry point name (default "vs_main").
//
// Parameters:
//   - name: the entry point name
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithVertexEntryPoint(name string) ShaderBuilderOption {
	return func(s *shader) {
		s.vertexEntry = name
	}
}

// WithFragmentEntryPoint overrides the fragment entry point name (default "fs_main").
//
// Parameters:
//   - name: the entry point name
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithFragmentEntryPoint(name string) ShaderBuilderOption {
	return func(s *shader) {
		s.fragmentEntry = name
	}
}

// WithComputeEntryPoint overrides the compute entry point name (default "cs_main").
//
// Parameters:
//   - name: the entry point name
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithComputeEntryPoint(name string) ShaderBuilderOption {
	return func(s *shader) {
		s.computeEntry = name
	}
}

// WithBindings declares the resource bindings of a shader whose source cannot be reflected (SPIR-V).
// Reflected WGSL bindings replace these.
//
// Parameters:
//   - bindings: the declared bindings
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithBindings(bindings ...Binding) ShaderBuilderOption {
	return func(s *shader) {
		s.bindings = append([]Binding(nil), bindings...)
	}
}

// WithWorkgroupSize declares the workgroup size of a SPIR-V compute shader.
//
// Parameters:
//   - x, y, z: the workgroup dimensions
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithWorkgroupSize(x, y, z uint32) ShaderBuilderOption {
	return func(s *shader) {
		s.workgroupSize = [3]uint32{x, y, z}
	}
}
