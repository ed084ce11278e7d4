package loader

import (
	"github.com/bioglaze/aether3d-sub000/common"
)

// Vertex is one vertex in pipeline.VertexLayoutPTN.
type Vertex struct {
	Position [3]float32
	TexCoord [2]float32
	Normal   [3]float32
}

// ImportedMesh is one triangle primitive of a model, in model space with node transforms applied.
type ImportedMesh struct {
	// Name is the glTF mesh name, suffixed with the primitive index after the first.
	Name string

	// Vertices holds the baked vertices.
	Vertices []Vertex

	// Indices is a triangle list into Vertices, counter-clockwise front faces.
	Indices []uint32

	// MaterialIndex indexes ImportedModel.Materials, -1 for the default material.
	MaterialIndex int

	// BoundingMin and BoundingMax are the axis-aligned bounds of Vertices.
	BoundingMin [3]float32
	BoundingMax [3]float32
}

// ImportedMaterial is the part of a glTF metallic-roughness material the forward shader uses.
type ImportedMaterial struct {
	// Name is the glTF material name.
	Name string

	// BaseColor is the base color factor, multiplied with the texture.
	BaseColor [4]float32

	// BaseColorTexture holds the decoded base color image, nil when the material has none.
	BaseColorTexture *common.TextureStagingData

	// TextureFailed reports that the material references an image that could not be read or decoded.
	TextureFailed bool

	// Blend is set for alphaMode BLEND.
	Blend bool

	// DoubleSided disables back-face culling.
	DoubleSided bool
}

// ImportedModel is the CPU-side result of importing a model file.
type ImportedModel struct {
	Name      string
	Meshes    []ImportedMesh
	Materials []ImportedMaterial
}

// FaceCount returns the number of triangles over every mesh.
func (m *ImportedModel) FaceCount() int {
	n := 0
	for i := range m.Meshes {
		n += len(m.Meshes[i].Indices) / 3
	}
	return n
}
