// Package shader holds GPU programs as opaque source blobs with a stable identity.
//
// WGSL sources are validated and reflected with naga when the shader is created; SPIR-V blobs are
// accepted as-is after a header check. A shader that fails validation is a soft failure: callers log
// the error and use the matching no-op fallback instead.
package shader

import (
	"fmt"
	"sync/atomic"
)

// ShaderType identifies whether a shader is a render (vertex + fragment) or a compute program.
type ShaderType int

const (
	// ShaderTypeRender is a shader containing a vertex and a fragment entry point.
	ShaderTypeRender ShaderType = iota

	// ShaderTypeCompute is a shader containing a @compute entry point.
	ShaderTypeCompute
)

func (t ShaderType) String() string {
	if t == ShaderTypeCompute {
		return "compute"
	}
	return "render"
}

// SourceFormat identifies the encoding of a shader blob.
type SourceFormat int

const (
	// SourceWGSL is WGSL text.
	SourceWGSL SourceFormat = iota
	// SourceSPIRV is a SPIR-V binary.
	SourceSPIRV
)

// Source is the program blob supplied by the caller.
type Source struct {
	Format SourceFormat
	WGSL   string
	SPIRV  []uint32
}

// ID is a process-unique shader identity. IDs are never reused, so they are safe to store in
// pipeline keys.
type ID uint64

var nextID atomic.Uint64

func newID() ID {
	return ID(nextID.Add(1))
}

// Default entry point names.
const (
	DefaultVertexEntryPoint   = "vs_main"
	DefaultFragmentEntryPoint = "fs_main"
	DefaultComputeEntryPoint  = "cs_main"
)

// shader is the implementation of the Shader interface.
type shader struct {
	id            ID
	name          string
	shaderType    ShaderType
	source        Source
	vertexEntry   string
	fragmentEntry string
	computeEntry  string
	workgroupSize [3]uint32
	bindings      []Binding
	fallback      bool
	uniforms      *Uniforms
}

// Shader defines the interface for a validated GPU program and its per-draw uniform block.
type Shader interface {
	// ID returns the process-unique identity used in pipeline keys.
	//
	// Returns:
	//   - ID: the shader identity
	ID() ID

	// Name returns the debug name given at creation.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Type returns whether this is a render or a compute shader.
	//
	// Returns:
	//   - ShaderType: ShaderTypeRender or ShaderTypeCompute
	Type() ShaderType

	// Source returns the program blob.
	//
	// Returns:
	//   - Source: the WGSL or SPIR-V source
	Source() Source

	// VertexEntryPoint returns the vertex stage entry point of a render shader.
	//
	// Returns:
	//   - string: the entry point name
	VertexEntryPoint() string

	// FragmentEntryPoint returns the fragment stage entry point of a render shader.
	//
	// Returns:
	//   - string: the entry point name
	FragmentEntryPoint() string

	// ComputeEntryPoint returns the entry point of a compute shader.
	//
	// Returns:
	//   - string: the entry point name
	ComputeEntryPoint() string

	// WorkgroupSize returns the @workgroup_size of a compute shader, or zeros when unknown.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Bindings returns the resource bindings declared by the source, sorted by group then binding.
	// Empty for SPIR-V shaders unless declared with WithBindings.
	//
	// Returns:
	//   - []Binding: the declared bindings
	Bindings() []Binding

	// IsFallback reports whether this is a no-op stand-in created after a failed load.
	//
	// Returns:
	//   - bool: true for fallback shaders
	IsFallback() bool

	// Uniforms returns the per-draw uniform block. Callers fill it before each Draw; the renderer
	// copies it into the acquired ring slot.
	//
	// Returns:
	//   - *Uniforms: the uniform block
	Uniforms() *Uniforms
}

var _ Shader = &shader{}

// NewShader validates src and creates a Shader.
//
// Parameters:
//   - name: debug name
//   - shaderType: render or compute
//   - src: the program blob
//   - options: functional options (entry points, explicit bindings)
//
// Returns:
//   - Shader: the shader
//   - error: validation error; callers treat it as a soft failure and use Fallback
func NewShader(name string, shaderType ShaderType, src Source, options ...ShaderBuilderOption) (Shader, error) {
	s := &shader{
		id:            newID(),
		name:          name,
		shaderType:    shaderType,
		source:        src,
		vertexEntry:   DefaultVertexEntryPoint,
		fragmentEntry: DefaultFragmentEntryPoint,
		computeEntry:  DefaultComputeEntryPoint,
		uniforms:      NewUniforms(),
	}
	for _, opt := range options {
		opt(s)
	}

	switch src.Format {
	case SourceWGSL:
		if err := s.reflectWGSL(); err != nil {
			return nil, fmt.Errorf("shader %q: %w", name, err)
		}
	case SourceSPIRV:
		if err := checkSPIRV(src.SPIRV); err != nil {
			return nil, fmt.Errorf("shader %q: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("shader %q: unknown source format %d", name, src.Format)
	}
	return s, nil
}

func (s *shader) ID() ID {
	return s.id
}

func (s *shader) Name() string {
	return s.name
}

func (s *shader) Type() ShaderType {
	return s.shaderType
}

func (s *shader) Source() Source {
	return s.source
}

func (s *shader) VertexEntryPoint() string {
	return s.vertexEntry
}

func (s *shader) FragmentEntryPoint() string {
	return s.fragmentEntry
}

func (s *shader) ComputeEntryPoint() string {
	return s.computeEntry
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workgroupSize
}

func (s *shader) Bindings() []Binding {
	return s.bindings
}

func (s *shader) IsFallback() bool {
	return s.fallback
}

func (s *shader) Uniforms() *Uniforms {
	return s.uniforms
}
