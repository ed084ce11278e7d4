package pipeline

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

// VertexLayout identifies the interleaved vertex format of a vertex buffer.
type VertexLayout uint8

const (
	// VertexLayoutPTC is position, texcoord, color.
	VertexLayoutPTC VertexLayout = iota
	// VertexLayoutPTN is position, texcoord, normal.
	VertexLayoutPTN
	// VertexLayoutPTNTC is position, texcoord, normal, tangent, color.
	VertexLayoutPTNTC
)

// BlendMode selects the color blend equation.
type BlendMode uint8

const (
	BlendOff BlendMode = iota
	BlendAlpha
	BlendAdditive
)

// DepthMode selects the depth test and write state.
type DepthMode uint8

const (
	DepthLessOrEqualWriteOn DepthMode = iota
	DepthLessOrEqualWriteOff
	DepthNoneWriteOff
)

// CullMode selects which triangle faces are discarded.
type CullMode uint8

const (
	CullOff CullMode = iota
	CullBack
	CullFront
)

// FillMode selects solid or wireframe rasterization.
type FillMode uint8

const (
	FillSolid FillMode = iota
	FillWireframe
)

// Topology selects the primitive type of a draw.
type Topology uint8

const (
	TopologyTriangles Topology = iota
	TopologyLines
)

// Key is the structural identity of a pipeline. Two keys with equal fields always resolve to the same
// cached pipeline. Compute pipelines use only Shader; every other field stays zero.
type Key struct {
	VertexLayout VertexLayout
	Shader       shader.ID
	Blend        BlendMode
	Depth        DepthMode
	Cull         CullMode
	Fill         FillMode
	TargetFormat gputypes.TextureFormat
	SampleCount  uint32
	Topology     Topology
}

// ComputeKey returns the key of the compute pipeline for a shader.
//
// Parameters:
//   - id: the compute shader ID
//
// Returns:
//   - Key: the compute pipeline key
func ComputeKey(id shader.ID) Key {
	return Key{Shader: id}
}

// Hash returns the FNV-1a hash of the serialized key fields.
//
// Returns:
//   - uint64: the key hash
func (k Key) Hash() uint64 {
	var buf [24]byte
	buf[0] = byte(k.VertexLayout)
	buf[1] = byte(k.Blend)
	buf[2] = byte(k.Depth)
	buf[3] = byte(k.Cull)
	buf[4] = byte(k.Fill)
	buf[5] = byte(k.Topology)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(k.Shader))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(k.TargetFormat))
	binary.LittleEndian.PutUint32(buf[20:24], k.SampleCount)

	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

func (k Key) String() string {
	return fmt.Sprintf("pipeline{layout=%d shader=%d blend=%d depth=%d cull=%d fill=%d format=%d samples=%d topology=%d}",
		k.VertexLayout, k.Shader, k.Blend, k.Depth, k.Cull, k.Fill, k.TargetFormat, k.SampleCount, k.Topology)
}

// VertexStride returns the byte stride of one vertex in the layout.
//
// Returns:
//   - uint64: the vertex stride in bytes
func (l VertexLayout) VertexStride() uint64 {
	return vertexLayouts[l].ArrayStride
}

// BufferLayout returns the vertex buffer layout for the layout. Attribute locations follow the order
// position, texcoord, normal, tangent, color.
//
// Returns:
//   - gputypes.VertexBufferLayout: the buffer layout
func (l VertexLayout) BufferLayout() gputypes.VertexBufferLayout {
	return vertexLayouts[l]
}

var vertexLayouts = [...]gputypes.VertexBufferLayout{
	VertexLayoutPTC: {
		ArrayStride: 36,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 20, ShaderLocation: 2},
		},
	},
	VertexLayoutPTN: {
		ArrayStride: 32,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 20, ShaderLocation: 2},
		},
	},
	VertexLayoutPTNTC: {
		ArrayStride: 64,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 20, ShaderLocation: 2},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 3},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 4},
		},
	},
}
