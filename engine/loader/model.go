package loader

import (
	"fmt"
	"math"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/bioglaze/aether3d-sub000/engine/scene"
)

// MaxVerticesPerBuffer is the number of vertices a 16-bit index list can address. Larger meshes are
// split into several vertex buffers.
const MaxVerticesPerBuffer = math.MaxUint16 + 1

// Part is one uploaded vertex buffer of a Model with the draw state of its material.
type Part struct {
	Name string

	// Mesh is in pipeline.VertexLayoutPTN.
	Mesh renderer.VertexBuffer

	// Texture is nil for untextured materials, which sample white.
	Texture resource.Resource

	Tint  [4]float32
	Blend pipeline.BlendMode
	Cull  pipeline.CullMode

	// Radius is the bounding sphere radius around the model origin.
	Radius float32
}

// Model is an uploaded model: one Part per primitive, or several when a primitive has more than
// MaxVerticesPerBuffer vertices.
type Model struct {
	Name  string
	Parts []Part

	// Radius is the bounding sphere radius of every part around the model origin.
	Radius float32

	// textures owned by the model, one per textured material.
	textures []resource.Resource
}

// meshChunk is a piece of a mesh addressable with 16-bit indices.
type meshChunk struct {
	vertices []Vertex
	indices  []uint16
}

// Upload creates the vertex buffers and textures of an imported model. Textures that fail to decode or
// upload fall back to the renderer's magenta texture.
//
// Parameters:
//   - r: the renderer to upload to
//   - imported: the CPU-side model
//
// Returns:
//   - *Model: the uploaded model
//   - error: error if a vertex buffer cannot be created; nothing stays allocated in that case
func Upload(r renderer.Renderer, imported *ImportedModel) (*Model, error) {
	m := &Model{Name: common.Coalesce(imported.Name, "model")}

	textures := make([]resource.Resource, len(imported.Materials))
	for i := range imported.Materials {
		mat := &imported.Materials[i]
		switch {
		case mat.TextureFailed:
			textures[i] = r.MagentaTexture()
		case mat.BaseColorTexture != nil:
			tex, err := r.CreateTexture(m.Name+"/"+mat.Name, *mat.BaseColorTexture)
			if err != nil {
				common.Logger().Warn("model texture upload failed, using fallback", "model", m.Name, "material", mat.Name, "err", err)
				textures[i] = r.MagentaTexture()
				continue
			}
			textures[i] = tex
			m.textures = append(m.textures, tex)
		}
	}

	for _, mesh := range imported.Meshes {
		if len(mesh.Indices) < 3 {
			continue
		}
		part := Part{
			Tint:  [4]float32{1, 1, 1, 1},
			Blend: pipeline.BlendOff,
			Cull:  pipeline.CullBack,
		}
		if mesh.MaterialIndex >= 0 && mesh.MaterialIndex < len(imported.Materials) {
			mat := &imported.Materials[mesh.MaterialIndex]
			part.Texture = textures[mesh.MaterialIndex]
			part.Tint = mat.BaseColor
			if mat.Blend {
				part.Blend = pipeline.BlendAlpha
			}
			if mat.DoubleSided {
				part.Cull = pipeline.CullOff
			}
		}

		chunks := splitMesh(mesh.Vertices, mesh.Indices, MaxVerticesPerBuffer)
		for ci, chunk := range chunks {
			part.Name = m.Name + "/" + mesh.Name
			if len(chunks) > 1 {
				part.Name = fmt.Sprintf("%s#%d", part.Name, ci)
			}
			vb, err := r.CreateVertexBuffer(part.Name, pipeline.VertexLayoutPTN, common.SliceToBytes(chunk.vertices), chunk.indices)
			if err != nil {
				m.Destroy()
				return nil, fmt.Errorf("loader: upload %q: %w", part.Name, err)
			}
			part.Mesh = vb
			part.Radius = boundingRadius(chunk.vertices)
			m.Radius = max(m.Radius, part.Radius)
			m.Parts = append(m.Parts, part)
		}
	}
	common.Logger().Debug("model uploaded", "name", m.Name, "parts", len(m.Parts), "textures", len(m.textures))
	return m, nil
}

// Objects creates one scene object per part sharing the given shader. Options apply after the part's own
// texture, tint, bounds, blend and cull state, so a transform passed here places the whole model.
//
// Parameters:
//   - s: the shader of the shaded pass, laid out for pipeline.VertexLayoutPTN
//   - options: extra object options
//
// Returns:
//   - []scene.Object: the objects, not yet added to a scene
func (m *Model) Objects(s shader.Shader, options ...scene.ObjectBuilderOption) []scene.Object {
	objects := make([]scene.Object, 0, len(m.Parts))
	for _, p := range m.Parts {
		opts := []scene.ObjectBuilderOption{
			scene.WithTexture(p.Texture),
			scene.WithTint(p.Tint[0], p.Tint[1], p.Tint[2], p.Tint[3]),
			scene.WithBoundingRadius(p.Radius),
			scene.WithBlend(p.Blend),
			scene.WithCull(p.Cull),
		}
		objects = append(objects, scene.NewObject(p.Name, p.Mesh, s, append(opts, options...)...))
	}
	return objects
}

// FaceCount returns the number of triangles over every part.
func (m *Model) FaceCount() int {
	n := 0
	for _, p := range m.Parts {
		n += p.Mesh.FaceCount()
	}
	return n
}

// Destroy releases the vertex buffers and textures of the model.
func (m *Model) Destroy() {
	for _, p := range m.Parts {
		p.Mesh.Destroy()
	}
	for _, tex := range m.textures {
		tex.Destroy()
	}
	m.Parts, m.textures = nil, nil
}

// splitMesh cuts a triangle list into chunks of at most limit vertices each. Meshes that already fit are
// returned as one chunk sharing the vertex slice.
func splitMesh(vertices []Vertex, indices []uint32, limit int) []meshChunk {
	if len(vertices) <= limit {
		out := make([]uint16, len(indices))
		for i, idx := range indices {
			out[i] = uint16(idx)
		}
		return []meshChunk{{vertices: vertices, indices: out}}
	}

	var chunks []meshChunk
	var cur meshChunk
	remap := make(map[uint32]uint16)
	flush := func() {
		if len(cur.indices) > 0 {
			chunks = append(chunks, cur)
		}
		cur = meshChunk{}
		clear(remap)
	}
	for t := 0; t+2 < len(indices); t += 3 {
		tri := indices[t : t+3]
		missing := 0
		for _, idx := range tri {
			if _, ok := remap[idx]; !ok {
				missing++
			}
		}
		if len(cur.vertices)+missing > limit {
			flush()
		}
		for _, idx := range tri {
			n, ok := remap[idx]
			if !ok {
				n = uint16(len(cur.vertices))
				remap[idx] = n
				cur.vertices = append(cur.vertices, vertices[idx])
			}
			cur.indices = append(cur.indices, n)
		}
	}
	flush()
	return chunks
}

// boundingRadius returns the distance of the farthest vertex from the origin.
func boundingRadius(vertices []Vertex) float32 {
	var r float32
	for _, v := range vertices {
		r = max(r, common.Vec3(v.Position).Length())
	}
	return r
}
