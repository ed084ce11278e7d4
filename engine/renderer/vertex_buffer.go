package renderer

import (
	"fmt"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/gogpu/gputypes"
)

// bufferDevice is the part of the backend vertex buffers upload with.
type bufferDevice interface {
	CreateBuffer(desc backend.BufferDescriptor) (resource.Resource, error)
	WriteBuffer(buf resource.Resource, offset uint64, data []byte) error
}

// vertexBuffer is the implementation of the VertexBuffer interface.
type vertexBuffer struct {
	label    string
	layout   pipeline.VertexLayout
	arena    resource.Arena
	vertices resource.Handle
	indices  resource.Handle
	// edgeList is built on the first wireframe draw.
	edgeList resource.Handle

	cpuIndices  []uint16
	vertexCount int
	destroyed   bool
}

// VertexBuffer is an uploaded mesh: interleaved vertices in one layout and a 16-bit triangle index list.
type VertexBuffer interface {
	// Label returns the debug label.
	Label() string

	// Layout returns the vertex layout.
	Layout() pipeline.VertexLayout

	// Vertices returns the vertex buffer resource.
	Vertices() resource.Resource

	// Indices returns the index buffer resource.
	Indices() resource.Resource

	// VertexCount returns the number of vertices.
	VertexCount() int

	// IndexCount returns the number of indices.
	IndexCount() int

	// FaceCount returns the number of triangles.
	FaceCount() int

	// Destroy releases the GPU buffers.
	Destroy()

	// Destroyed reports whether Destroy has been called.
	Destroyed() bool

	edges(device bufferDevice) (resource.Resource, error)
}

var _ VertexBuffer = &vertexBuffer{}

func (r *renderContext) CreateVertexBuffer(label string, layout pipeline.VertexLayout, vertices []byte, indices []uint16) (VertexBuffer, error) {
	if !common.Assert(layout <= pipeline.VertexLayoutPTNTC, "renderer: invalid vertex layout", "layout", layout) {
		layout = pipeline.VertexLayoutPTN
	}
	stride := int(layout.VertexStride())
	if len(vertices) == 0 || len(vertices)%stride != 0 {
		return nil, fmt.Errorf("renderer: vertex buffer %q: %d bytes is not a multiple of the %d byte stride", label, len(vertices), stride)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("renderer: vertex buffer %q has no indices", label)
	}
	vertexCount := len(vertices) / stride
	for i, idx := range indices {
		if int(idx) >= vertexCount {
			return nil, fmt.Errorf("renderer: vertex buffer %q: index %d references vertex %d of %d", label, i, idx, vertexCount)
		}
	}

	vb := &vertexBuffer{
		label:       label,
		layout:      layout,
		arena:       r.arena,
		cpuIndices:  append([]uint16(nil), indices...),
		vertexCount: vertexCount,
	}
	vbuf, err := upload(r.backend, label+" vertices", gputypes.BufferUsageVertex, vertices)
	if err != nil {
		return nil, r.check(err)
	}
	vb.vertices = r.arena.Add(vbuf)
	ibuf, err := upload(r.backend, label+" indices", gputypes.BufferUsageIndex, common.SliceToBytes(indices))
	if err != nil {
		vb.Destroy()
		return nil, r.check(err)
	}
	vb.indices = r.arena.Add(ibuf)
	return vb, nil
}

// upload creates a buffer and writes data into it, padding to the 4 byte copy alignment.
func upload(device bufferDevice, label string, usage gputypes.BufferUsage, data []byte) (resource.Resource, error) {
	if pad := len(data) % 4; pad != 0 {
		data = append(append([]byte(nil), data...), make([]byte, 4-pad)...)
	}
	buf, err := device.CreateBuffer(backend.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: create %s: %w", label, err)
	}
	if err := device.WriteBuffer(buf, 0, data); err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("renderer: upload %s: %w", label, err)
	}
	return buf, nil
}

// EdgeIndices expands a triangle list into a line list with the three edges of every triangle.
//
// Parameters:
//   - triangles: triangle list indices
//
// Returns:
//   - []uint16: two indices per edge, six per triangle
func EdgeIndices(triangles []uint16) []uint16 {
	faces := len(triangles) / 3
	out := make([]uint16, 0, faces*6)
	for f := range faces {
		a, b, c := triangles[f*3], triangles[f*3+1], triangles[f*3+2]
		out = append(out, a, b, b, c, c, a)
	}
	return out
}

func (vb *vertexBuffer) edges(device bufferDevice) (resource.Resource, error) {
	if res, ok := vb.arena.Get(vb.edgeList); ok {
		return res, nil
	}
	buf, err := upload(device, vb.label+" edges", gputypes.BufferUsageIndex, common.SliceToBytes(EdgeIndices(vb.cpuIndices)))
	if err != nil {
		return nil, err
	}
	vb.edgeList = vb.arena.Add(buf)
	return buf, nil
}

func (vb *vertexBuffer) Label() string {
	return vb.label
}

func (vb *vertexBuffer) Layout() pipeline.VertexLayout {
	return vb.layout
}

func (vb *vertexBuffer) Vertices() resource.Resource {
	res, _ := vb.arena.Get(vb.vertices)
	return res
}

func (vb *vertexBuffer) Indices() resource.Resource {
	res, _ := vb.arena.Get(vb.indices)
	return res
}

func (vb *vertexBuffer) VertexCount() int {
	return vb.vertexCount
}

func (vb *vertexBuffer) IndexCount() int {
	return len(vb.cpuIndices)
}

func (vb *vertexBuffer) FaceCount() int {
	return len(vb.cpuIndices) / 3
}

func (vb *vertexBuffer) Destroy() {
	if vb.destroyed {
		return
	}
	vb.destroyed = true
	for _, h := range []resource.Handle{vb.vertices, vb.indices, vb.edgeList} {
		if !h.IsZero() {
			vb.arena.Destroy(h)
		}
	}
}

func (vb *vertexBuffer) Destroyed() bool {
	return vb.destroyed
}
