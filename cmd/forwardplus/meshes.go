package main

import (
	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
)

// ptnVertex matches pipeline.VertexLayoutPTN.
type ptnVertex struct {
	Position [3]float32
	TexCoord [2]float32
	Normal   [3]float32
}

// ptcVertex matches pipeline.VertexLayoutPTC.
type ptcVertex struct {
	Position [3]float32
	TexCoord [2]float32
	Color    [4]float32
}

type cubeFace struct {
	corners [4][3]float32
	normal  [3]float32
}

// cubeFaces lists the faces of a unit cube, corners counter-clockwise seen from outside.
var cubeFaces = []cubeFace{
	{corners: [4][3]float32{{0.5, -0.5, 0.5}, {0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {0.5, 0.5, 0.5}}, normal: [3]float32{1, 0, 0}},
	{corners: [4][3]float32{{-0.5, -0.5, -0.5}, {-0.5, -0.5, 0.5}, {-0.5, 0.5, 0.5}, {-0.5, 0.5, -0.5}}, normal: [3]float32{-1, 0, 0}},
	{corners: [4][3]float32{{-0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5}}, normal: [3]float32{0, 1, 0}},
	{corners: [4][3]float32{{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, -0.5, 0.5}, {-0.5, -0.5, 0.5}}, normal: [3]float32{0, -1, 0}},
	{corners: [4][3]float32{{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5}}, normal: [3]float32{0, 0, 1}},
	{corners: [4][3]float32{{0.5, -0.5, -0.5}, {-0.5, -0.5, -0.5}, {-0.5, 0.5, -0.5}, {0.5, 0.5, -0.5}}, normal: [3]float32{0, 0, -1}},
}

var quadTexCoords = [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

// buildCube returns the 24 vertices and 36 indices of a unit cube with per-face normals.
func buildCube() ([]ptnVertex, []uint16) {
	vertices := make([]ptnVertex, 0, 24)
	indices := make([]uint16, 0, 36)
	for fi, face := range cubeFaces {
		for ci, corner := range face.corners {
			vertices = append(vertices, ptnVertex{Position: corner, TexCoord: quadTexCoords[ci], Normal: face.normal})
		}
		base := uint16(fi * 4)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

// buildMarkerCube returns a white unit cube in the unlit vertex layout; the tint colors it.
func buildMarkerCube() ([]ptcVertex, []uint16) {
	lit, indices := buildCube()
	vertices := make([]ptcVertex, len(lit))
	for i, v := range lit {
		vertices[i] = ptcVertex{Position: v.Position, TexCoord: v.TexCoord, Color: [4]float32{1, 1, 1, 1}}
	}
	return vertices, indices
}

// buildGround returns an upward facing square of the given half extent in the XZ plane. Texture
// coordinates repeat once per world unit.
func buildGround(half float32) ([]ptnVertex, []uint16) {
	up := [3]float32{0, 1, 0}
	vertices := []ptnVertex{
		{Position: [3]float32{-half, 0, half}, TexCoord: [2]float32{0, 0}, Normal: up},
		{Position: [3]float32{half, 0, half}, TexCoord: [2]float32{half * 2, 0}, Normal: up},
		{Position: [3]float32{half, 0, -half}, TexCoord: [2]float32{half * 2, half * 2}, Normal: up},
		{Position: [3]float32{-half, 0, -half}, TexCoord: [2]float32{0, half * 2}, Normal: up},
	}
	return vertices, []uint16{0, 1, 2, 0, 2, 3}
}

// uploadMesh creates a vertex buffer of the given layout.
func uploadMesh[V ptnVertex | ptcVertex](r renderer.Renderer, label string, layout pipeline.VertexLayout, vertices []V, indices []uint16) (renderer.VertexBuffer, error) {
	return r.CreateVertexBuffer(label, layout, common.SliceToBytes(vertices), indices)
}

// checker builds an RGBA checkerboard with cells of the given size in pixels.
func checker(size, cell uint32, a, b [4]byte) common.TextureStagingData {
	pixels := make([]byte, 0, size*size*4)
	for y := range size {
		for x := range size {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			pixels = append(pixels, c[:]...)
		}
	}
	return common.TextureStagingData{Pixels: pixels, Width: size, Height: size}
}
