package loader

import (
	"fmt"
	"math"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/qmuntal/gltf"
)

// maxNodeDepth bounds the node hierarchy walk; deeper (or cyclic) hierarchies are rejected.
const maxNodeDepth = 64

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	doc *gltf.Document
}

// gltfMeshExtractor converts the triangle primitives of a decoded glTF document into ImportedMesh values.
type gltfMeshExtractor interface {
	// ExtractScene walks the default scene (or every root node when the document has no scenes) and bakes
	// each node's world transform into the meshes it references. Documents without nodes extract every
	// mesh untransformed.
	//
	// Returns:
	//   - []ImportedMesh: one ImportedMesh per triangle primitive instance
	//   - error: error if an accessor cannot be read
	ExtractScene() ([]ImportedMesh, error)

	// ExtractMesh extracts one mesh with the given model transform.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh in the document
	//   - world: the transform baked into positions and normals
	//
	// Returns:
	//   - []ImportedMesh: one ImportedMesh per triangle primitive
	//   - error: error if extraction fails
	ExtractMesh(meshIndex int, world common.Mat4) ([]ImportedMesh, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a mesh extractor for a decoded document.
func newGLTFMeshExtractor(doc *gltf.Document) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{doc: doc}
}

func (e *gltfMeshExtractorImpl) ExtractScene() ([]ImportedMesh, error) {
	if len(e.doc.Nodes) == 0 {
		var all []ImportedMesh
		for i := range e.doc.Meshes {
			meshes, err := e.ExtractMesh(i, common.Identity())
			if err != nil {
				return nil, err
			}
			all = append(all, meshes...)
		}
		return all, nil
	}

	var out []ImportedMesh
	for _, root := range e.rootNodes() {
		if err := e.walk(root, common.Identity(), 0, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rootNodes returns the nodes of the default scene, the first scene when none is marked default, or every
// node that is nobody's child when the document has no scenes.
func (e *gltfMeshExtractorImpl) rootNodes() []int {
	if len(e.doc.Scenes) > 0 {
		idx := 0
		if e.doc.Scene != nil && *e.doc.Scene >= 0 && *e.doc.Scene < len(e.doc.Scenes) {
			idx = *e.doc.Scene
		}
		return e.doc.Scenes[idx].Nodes
	}
	child := make([]bool, len(e.doc.Nodes))
	for _, n := range e.doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots
}

func (e *gltfMeshExtractorImpl) walk(index int, parent common.Mat4, depth int, out *[]ImportedMesh) error {
	if index < 0 || index >= len(e.doc.Nodes) {
		return fmt.Errorf("node %d out of range", index)
	}
	if depth > maxNodeDepth {
		return fmt.Errorf("node %d: hierarchy deeper than %d", index, maxNodeDepth)
	}
	node := e.doc.Nodes[index]
	world := parent.Mul(gltfNodeMatrix(node))
	if node.Mesh != nil {
		meshes, err := e.ExtractMesh(*node.Mesh, world)
		if err != nil {
			return fmt.Errorf("node %d: %w", index, err)
		}
		*out = append(*out, meshes...)
	}
	for _, c := range node.Children {
		if err := e.walk(c, world, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int, world common.Mat4) ([]ImportedMesh, error) {
	if meshIndex < 0 || meshIndex >= len(e.doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", meshIndex)
	}
	mesh := e.doc.Meshes[meshIndex]

	var result []ImportedMesh
	for primIdx, prim := range mesh.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			common.Logger().Warn("skipping non-triangle primitive", "mesh", mesh.Name, "primitive", primIdx, "mode", prim.Mode)
			continue
		}
		imported, err := e.extractPrimitive(prim, mesh.Name, primIdx, world)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, primIdx, err)
		}
		result = append(result, *imported)
	}
	return result, nil
}

// extractPrimitive reads one triangle primitive and bakes world into it.
func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltf.Primitive, meshName string, primIndex int, world common.Mat4) (*ImportedMesh, error) {
	posAccessor, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := gltfReadVec3(e.doc, posAccessor)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	vertexCount := len(positions)
	vertices := make([]Vertex, vertexCount)
	for i, pos := range positions {
		vertices[i].Position = pos
	}

	hasNormals := false
	if normalAccessor, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, err := gltfReadVec3(e.doc, normalAccessor)
		if err != nil {
			return nil, fmt.Errorf("failed to read normals: %w", err)
		}
		for i := range min(len(normals), vertexCount) {
			vertices[i].Normal = normals[i]
		}
		hasNormals = len(normals) >= vertexCount
	}

	if texCoordAccessor, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		texCoords, err := gltfReadVec2(e.doc, texCoordAccessor)
		if err != nil {
			return nil, fmt.Errorf("failed to read texcoords: %w", err)
		}
		for i := range min(len(texCoords), vertexCount) {
			vertices[i].TexCoord = texCoords[i]
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = gltfReadIndices(e.doc, *prim.Indices)
		if err != nil {
			return nil, fmt.Errorf("failed to read indices: %w", err)
		}
		for i, idx := range indices {
			if int(idx) >= vertexCount {
				return nil, fmt.Errorf("index %d references vertex %d of %d", i, idx, vertexCount)
			}
		}
	} else {
		indices = make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	indices = indices[:len(indices)/3*3]

	bakeTransform(vertices, indices, world, hasNormals)
	if !hasNormals {
		generateNormals(vertices, indices)
	}

	materialIndex := -1
	if prim.Material != nil && *prim.Material >= 0 && *prim.Material < len(e.doc.Materials) {
		materialIndex = *prim.Material
	}

	name := meshName
	if name == "" {
		name = "mesh"
	}
	if primIndex > 0 {
		name = fmt.Sprintf("%s_prim%d", name, primIndex)
	}

	bmin, bmax := calculateBoundingBox(vertices)
	return &ImportedMesh{
		Name:          name,
		Vertices:      vertices,
		Indices:       indices,
		MaterialIndex: materialIndex,
		BoundingMin:   bmin,
		BoundingMax:   bmax,
	}, nil
}

// gltfNodeMatrix returns the local transform of a node: its matrix when set, otherwise T * R * S.
func gltfNodeMatrix(n *gltf.Node) common.Mat4 {
	var m common.Mat4
	mat := n.MatrixOrDefault()
	if mat != gltf.DefaultMatrix {
		for i, v := range mat {
			m[i] = float32(v)
		}
		return m
	}

	t, q, s := n.TranslationOrDefault(), n.RotationOrDefault(), n.ScaleOrDefault()
	x, y, z, w := float32(q[0]), float32(q[1]), float32(q[2]), float32(q[3])
	sx, sy, sz := float32(s[0]), float32(s[1]), float32(s[2])
	return common.Mat4{
		(1 - 2*(y*y+z*z)) * sx, 2 * (x*y + z*w) * sx, 2 * (x*z - y*w) * sx, 0,
		2 * (x*y - z*w) * sy, (1 - 2*(x*x+z*z)) * sy, 2 * (y*z + x*w) * sy, 0,
		2 * (x*z + y*w) * sz, 2 * (y*z - x*w) * sz, (1 - 2*(x*x+y*y)) * sz, 0,
		float32(t[0]), float32(t[1]), float32(t[2]), 1,
	}
}

// bakeTransform moves vertices into model space. Normals use the inverse transpose; a mirroring
// transform also reverses the winding so front faces stay counter-clockwise.
func bakeTransform(vertices []Vertex, indices []uint32, world common.Mat4, transformNormals bool) {
	if world == common.Identity() {
		return
	}
	for i := range vertices {
		vertices[i].Position = world.TransformPoint(vertices[i].Position)
	}
	if transformNormals {
		inv, ok := world.Inverse()
		if !ok {
			inv = world
		}
		for i := range vertices {
			n := vertices[i].Normal
			var r common.Vec3
			for row := range 3 {
				r[row] = inv[row*4]*n[0] + inv[row*4+1]*n[1] + inv[row*4+2]*n[2]
			}
			vertices[i].Normal = r.Normalize()
		}
	}

	c0 := common.Vec3{world[0], world[1], world[2]}
	c1 := common.Vec3{world[4], world[5], world[6]}
	c2 := common.Vec3{world[8], world[9], world[10]}
	if c0.Dot(c1.Cross(c2)) < 0 {
		for i := 0; i+2 < len(indices); i += 3 {
			indices[i+1], indices[i+2] = indices[i+2], indices[i+1]
		}
	}
}

// calculateBoundingBox computes the axis-aligned bounding box of the vertices.
func calculateBoundingBox(vertices []Vertex) ([3]float32, [3]float32) {
	if len(vertices) == 0 {
		return [3]float32{}, [3]float32{}
	}
	bmin := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	bmax := [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, v := range vertices {
		for j := range 3 {
			bmin[j] = min(bmin[j], v.Position[j])
			bmax[j] = max(bmax[j], v.Position[j])
		}
	}
	return bmin, bmax
}

// generateNormals computes smooth vertex normals when the file has none. Each face normal is accumulated,
// area weighted, onto its three vertices and the sums are normalized.
//
// Parameters:
//   - vertices: the vertex slice to write normal data into
//   - indices: the triangle index list
func generateNormals(vertices []Vertex, indices []uint32) {
	accum := make([]common.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := common.Vec3(vertices[i0].Position)
		p1 := common.Vec3(vertices[i1].Position)
		p2 := common.Vec3(vertices[i2].Position)
		face := p1.Sub(p0).Cross(p2.Sub(p0))
		accum[i0] = accum[i0].Add(face)
		accum[i1] = accum[i1].Add(face)
		accum[i2] = accum[i2].Add(face)
	}
	for i, n := range accum {
		if n.Length() < 1e-6 {
			vertices[i].Normal = [3]float32{0, 1, 0}
			continue
		}
		vertices[i].Normal = n.Normalize()
	}
}
