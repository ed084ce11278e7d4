package resource

// State is the last usage recorded for a GPU resource. Transitions between states are what barriers express.
type State uint8

const (
	// StateUndefined is the state of a freshly created resource whose contents are not yet meaningful.
	StateUndefined State = iota
	// StateCopySrc is used when the resource is the source of a copy.
	StateCopySrc
	// StateCopyDst is used when the resource is the destination of a copy or queue write.
	StateCopyDst
	// StateVertexBuffer is used when the buffer feeds vertex input.
	StateVertexBuffer
	// StateIndexBuffer is used when the buffer feeds index input.
	StateIndexBuffer
	// StateUniform is used when the buffer is bound as a uniform/constant buffer.
	StateUniform
	// StateShaderRead is used when the resource is read by shaders (sampled texture, read-only storage).
	StateShaderRead
	// StateUnorderedAccess is used when the resource is written by shaders (storage / UAV).
	StateUnorderedAccess
	// StateRenderTarget is used when the texture is bound as a color attachment.
	StateRenderTarget
	// StateDepthWrite is used when the texture is bound as a writable depth attachment.
	StateDepthWrite
	// StateDepthRead is used when a depth texture is read (read-only attachment or sampled).
	StateDepthRead
	// StatePresent is used when the back buffer is handed to the presentation engine.
	StatePresent

	stateCount
)

var stateNames = [...]string{
	StateUndefined:       "Undefined",
	StateCopySrc:         "CopySrc",
	StateCopyDst:         "CopyDst",
	StateVertexBuffer:    "VertexBuffer",
	StateIndexBuffer:     "IndexBuffer",
	StateUniform:         "Uniform",
	StateShaderRead:      "ShaderRead",
	StateUnorderedAccess: "UnorderedAccess",
	StateRenderTarget:    "RenderTarget",
	StateDepthWrite:      "DepthWrite",
	StateDepthRead:       "DepthRead",
	StatePresent:         "Present",
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s < stateCount
}

func (s State) String() string {
	if !s.Valid() {
		return "Invalid"
	}
	return stateNames[s]
}

// Kind distinguishes buffers from textures.
type Kind uint8

const (
	// KindBuffer is a linear GPU buffer.
	KindBuffer Kind = iota
	// KindTexture is a GPU image.
	KindTexture
)

func (k Kind) String() string {
	if k == KindTexture {
		return "Texture"
	}
	return "Buffer"
}

// Barrier describes a single usage transition of one resource.
type Barrier struct {
	Resource Resource
	Before   State
	After    State
}

// BarrierRecorder receives barriers in submission order. Command lists implement it.
type BarrierRecorder interface {
	// RecordBarrier appends a transition to the current command stream.
	//
	// Parameters:
	//   - b: the transition to record
	RecordBarrier(b Barrier)
}
