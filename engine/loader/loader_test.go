package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
)

// docBuilder assembles a glTF document with one binary buffer.
type docBuilder struct {
	bin       []byte
	views     []map[string]any
	accessors []map[string]any
}

func floatBytes(values ...float32) []byte {
	out := make([]byte, 0, len(values)*4)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func ushortBytes(values ...uint16) []byte {
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint16(out, v)
	}
	return out
}

// accessor appends data as a new buffer view and returns the index of an accessor over it.
func (b *docBuilder) accessor(data []byte, count int, typ string, componentType int) int {
	for len(b.bin)%4 != 0 {
		b.bin = append(b.bin, 0)
	}
	b.views = append(b.views, map[string]any{"buffer": 0, "byteOffset": len(b.bin), "byteLength": len(data)})
	b.bin = append(b.bin, data...)
	b.accessors = append(b.accessors, map[string]any{
		"bufferView": len(b.views) - 1, "count": count, "type": typ, "componentType": componentType,
	})
	return len(b.accessors) - 1
}

// quad adds a unit quad in the XY plane facing +Z and returns its primitive.
func (b *docBuilder) quad(withNormals bool) map[string]any {
	attrs := map[string]any{
		"POSITION":   b.accessor(floatBytes(-0.5, -0.5, 0, 0.5, -0.5, 0, 0.5, 0.5, 0, -0.5, 0.5, 0), 4, "VEC3", 5126),
		"TEXCOORD_0": b.accessor(floatBytes(0, 1, 1, 1, 1, 0, 0, 0), 4, "VEC2", 5126),
	}
	if withNormals {
		attrs["NORMAL"] = b.accessor(floatBytes(0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1), 4, "VEC3", 5126)
	}
	return map[string]any{
		"attributes": attrs,
		"indices":    b.accessor(ushortBytes(0, 1, 2, 0, 2, 3), 6, "SCALAR", 5123),
	}
}

// json renders the document with the buffer embedded as a data URI.
func (b *docBuilder) json(t *testing.T, extra map[string]any) []byte {
	t.Helper()
	doc := b.document(extra)
	doc["buffers"] = []map[string]any{{
		"byteLength": len(b.bin),
		"uri":        "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(b.bin),
	}}
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return out
}

// glb renders the document as a binary GLB container.
func (b *docBuilder) glb(t *testing.T, extra map[string]any) []byte {
	t.Helper()
	doc := b.document(extra)
	doc["buffers"] = []map[string]any{{"byteLength": len(b.bin)}}
	js, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	bin := append([]byte(nil), b.bin...)
	for len(bin)%4 != 0 {
		bin = append(bin, 0)
	}

	var out []byte
	out = binary.LittleEndian.AppendUint32(out, 0x46546C67)
	out = binary.LittleEndian.AppendUint32(out, 2)
	out = binary.LittleEndian.AppendUint32(out, uint32(12+8+len(js)+8+len(bin)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(js)))
	out = binary.LittleEndian.AppendUint32(out, 0x4E4F534A)
	out = append(out, js...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(bin)))
	out = binary.LittleEndian.AppendUint32(out, 0x004E4942)
	return append(out, bin...)
}

func (b *docBuilder) document(extra map[string]any) map[string]any {
	doc := map[string]any{
		"asset":       map[string]any{"version": "2.0"},
		"bufferViews": b.views,
		"accessors":   b.accessors,
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func newTestRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(backend.BackendTypeNoop, nil, renderer.WithHeadlessSize(64, 48))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r
}

func near(a, b [3]float32) bool {
	for i := range 3 {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

func TestImportBakesNodeTransforms(t *testing.T) {
	b := &docBuilder{}
	prim := b.quad(true)
	data := b.json(t, map[string]any{
		"meshes": []any{map[string]any{"name": "quad", "primitives": []any{prim}}},
		"nodes": []any{
			map[string]any{"translation": []float32{0, 2, 0}, "children": []int{1}},
			map[string]any{"scale": []float32{2, 2, 2}, "mesh": 0},
		},
		"scenes": []any{map[string]any{"name": "lifted", "nodes": []int{0}}},
		"scene":  0,
	})

	imported, err := NewLoader(BackendTypeGLTF).Import(writeFile(t, "quad.gltf", data))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if imported.Name != "lifted" {
		t.Errorf("name = %q, want the scene name", imported.Name)
	}
	if len(imported.Meshes) != 1 {
		t.Fatalf("imported %d meshes, want 1", len(imported.Meshes))
	}
	m := imported.Meshes[0]
	if !near(m.Vertices[0].Position, [3]float32{-1, 1, 0}) {
		t.Errorf("vertex 0 at %v, want (-1, 1, 0)", m.Vertices[0].Position)
	}
	if !near(m.Vertices[2].Normal, [3]float32{0, 0, 1}) {
		t.Errorf("normal = %v, want +Z", m.Vertices[2].Normal)
	}
	if m.Vertices[1].TexCoord != [2]float32{1, 1} {
		t.Errorf("texcoord = %v, want (1, 1)", m.Vertices[1].TexCoord)
	}
	if m.BoundingMin != [3]float32{-1, 1, 0} || m.BoundingMax != [3]float32{1, 3, 0} {
		t.Errorf("bounds = %v..%v", m.BoundingMin, m.BoundingMax)
	}
	if m.MaterialIndex != -1 {
		t.Errorf("material = %d, want -1", m.MaterialIndex)
	}
	if imported.FaceCount() != 2 {
		t.Errorf("FaceCount = %d, want 2", imported.FaceCount())
	}
}

func TestImportNodeRotationAndMirror(t *testing.T) {
	s := float32(math.Sqrt2 / 2)
	tests := []struct {
		name        string
		node        map[string]any
		wantPos1    [3]float32
		wantNormal  [3]float32
		wantIndices []uint32
	}{
		{
			name:        "rotate 90 around Y",
			node:        map[string]any{"rotation": []float32{0, s, 0, s}, "mesh": 0},
			wantPos1:    [3]float32{0, -0.5, -0.5},
			wantNormal:  [3]float32{1, 0, 0},
			wantIndices: []uint32{0, 1, 2, 0, 2, 3},
		},
		{
			name:        "mirror X",
			node:        map[string]any{"scale": []float32{-1, 1, 1}, "mesh": 0},
			wantPos1:    [3]float32{-0.5, -0.5, 0},
			wantNormal:  [3]float32{0, 0, 1},
			wantIndices: []uint32{0, 2, 1, 0, 3, 2},
		},
		{
			name:        "matrix translation",
			node:        map[string]any{"matrix": []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 3, 0, 0, 1}, "mesh": 0},
			wantPos1:    [3]float32{3.5, -0.5, 0},
			wantNormal:  [3]float32{0, 0, 1},
			wantIndices: []uint32{0, 1, 2, 0, 2, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &docBuilder{}
			prim := b.quad(true)
			data := b.json(t, map[string]any{
				"meshes": []any{map[string]any{"primitives": []any{prim}}},
				"nodes":  []any{tt.node},
			})
			imported, err := newGLTFLoaderBackend().LoadReader(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("LoadReader: %v", err)
			}
			m := imported.Meshes[0]
			if !near(m.Vertices[1].Position, tt.wantPos1) {
				t.Errorf("vertex 1 at %v, want %v", m.Vertices[1].Position, tt.wantPos1)
			}
			if !near(m.Vertices[1].Normal, tt.wantNormal) {
				t.Errorf("normal = %v, want %v", m.Vertices[1].Normal, tt.wantNormal)
			}
			for i, idx := range tt.wantIndices {
				if m.Indices[i] != idx {
					t.Fatalf("indices = %v, want %v", m.Indices, tt.wantIndices)
				}
			}
		})
	}
}

func TestImportGeneratesMissingNormals(t *testing.T) {
	b := &docBuilder{}
	prim := b.quad(false)
	data := b.glb(t, map[string]any{
		"meshes": []any{map[string]any{"name": "flat", "primitives": []any{prim, prim}}},
	})

	imported, err := newGLTFLoaderBackend().LoadReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if len(imported.Meshes) != 2 {
		t.Fatalf("imported %d meshes, want 2", len(imported.Meshes))
	}
	if imported.Meshes[1].Name != "flat_prim1" {
		t.Errorf("second primitive named %q", imported.Meshes[1].Name)
	}
	for i, v := range imported.Meshes[0].Vertices {
		if !near(v.Normal, [3]float32{0, 0, 1}) {
			t.Errorf("vertex %d normal = %v, want +Z", i, v.Normal)
		}
	}
	if imported.Name != "" {
		t.Errorf("stream without a scene named %q", imported.Name)
	}
}

func TestImportErrors(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)

	if _, err := l.Import("model.obj"); err == nil {
		t.Error("Import accepted an .obj file")
	}
	if _, err := l.Import(filepath.Join(t.TempDir(), "missing.glb")); err == nil {
		t.Error("Import of a missing file succeeded")
	}

	b := &docBuilder{}
	prim := b.quad(true)
	b.accessors[0]["count"] = 40
	data := b.json(t, map[string]any{
		"meshes": []any{map[string]any{"primitives": []any{prim}}},
	})
	_, err := l.Import(writeFile(t, "short.gltf", data))
	if !errors.Is(err, errAccessorBounds) {
		t.Errorf("Import = %v, want errAccessorBounds", err)
	}

	if _, err := l.Load("model.gltf"); !errors.Is(err, ErrNoRenderer) {
		t.Errorf("Load without renderer = %v, want ErrNoRenderer", err)
	}
}

func TestSplitMesh(t *testing.T) {
	vertices := make([]Vertex, 10)
	for i := range vertices {
		vertices[i].Position = [3]float32{float32(i), 0, 0}
	}
	var indices []uint32
	for i := uint32(0); i < 10; i += 2 {
		indices = append(indices, i, (i+1)%10, (i+2)%10)
	}

	whole := splitMesh(vertices, indices, MaxVerticesPerBuffer)
	if len(whole) != 1 || &whole[0].vertices[0] != &vertices[0] {
		t.Fatal("a mesh within the limit was copied or split")
	}

	chunks := splitMesh(vertices, indices, 4)
	var triangles int
	for ci, c := range chunks {
		if len(c.vertices) > 4 {
			t.Errorf("chunk %d has %d vertices", ci, len(c.vertices))
		}
		for k := 0; k < len(c.indices); k += 3 {
			want := indices[(triangles+k/3)*3 : (triangles+k/3)*3+3]
			for j := range 3 {
				idx := c.indices[k+j]
				if int(idx) >= len(c.vertices) {
					t.Fatalf("chunk %d index %d out of range", ci, idx)
				}
				if c.vertices[idx] != vertices[want[j]] {
					t.Errorf("chunk %d triangle %d corner %d moved", ci, k/3, j)
				}
			}
		}
		triangles += len(c.indices) / 3
	}
	if triangles != len(indices)/3 {
		t.Errorf("chunks hold %d triangles, want %d", triangles, len(indices)/3)
	}
}

func TestLoadReaderUploadsModel(t *testing.T) {
	r := newTestRenderer(t)
	b := &docBuilder{}
	glass := b.quad(true)
	glass["material"] = 0
	broken := b.quad(true)
	broken["material"] = 1
	plain := b.quad(true)
	data := b.json(t, map[string]any{
		"meshes": []any{map[string]any{"name": "panes", "primitives": []any{glass, broken, plain}}},
		"materials": []any{
			map[string]any{
				"name":                 "glass",
				"alphaMode":            "BLEND",
				"doubleSided":          true,
				"pbrMetallicRoughness": map[string]any{"baseColorFactor": []float32{0.5, 1, 1, 0.25}, "baseColorTexture": map[string]any{"index": 0}},
			},
			map[string]any{
				"name":                 "broken",
				"pbrMetallicRoughness": map[string]any{"baseColorTexture": map[string]any{"index": 1}},
			},
		},
		"textures": []any{map[string]any{"source": 0}, map[string]any{"source": 1}},
		"images":   []any{map[string]any{"uri": pngDataURI(t)}, map[string]any{"uri": "data:image/png;base64,AAAA"}},
	})

	l := NewLoader(BackendTypeGLTF, WithRenderer(r))
	t.Cleanup(l.Destroy)
	m, err := l.LoadReader("panes", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if m.Name != "panes" {
		t.Errorf("model name = %q, want the cache key", m.Name)
	}
	if len(m.Parts) != 3 {
		t.Fatalf("model has %d parts, want 3", len(m.Parts))
	}

	glassPart := m.Parts[0]
	if glassPart.Blend != pipeline.BlendAlpha || glassPart.Cull != pipeline.CullOff {
		t.Errorf("glass blend %v cull %v, want alpha and off", glassPart.Blend, glassPart.Cull)
	}
	if glassPart.Tint != [4]float32{0.5, 1, 1, 0.25} {
		t.Errorf("glass tint = %v", glassPart.Tint)
	}
	if glassPart.Texture == nil || glassPart.Texture == r.MagentaTexture() {
		t.Error("glass texture was not uploaded")
	}
	if m.Parts[1].Texture != r.MagentaTexture() {
		t.Error("undecodable image did not fall back to magenta")
	}
	if p := m.Parts[2]; p.Texture != nil || p.Blend != pipeline.BlendOff || p.Cull != pipeline.CullBack {
		t.Errorf("untextured part = %+v, want opaque, back-face culled and untextured", p)
	}
	if got := float64(m.Radius); math.Abs(got-math.Sqrt(0.5)) > 1e-5 {
		t.Errorf("radius = %v, want %v", got, math.Sqrt(0.5))
	}
	if m.FaceCount() != 6 {
		t.Errorf("FaceCount = %d, want 6", m.FaceCount())
	}
	if m.Parts[0].Mesh.Layout() != pipeline.VertexLayoutPTN {
		t.Errorf("layout = %v, want PTN", m.Parts[0].Mesh.Layout())
	}

	again, err := l.LoadReader("panes", bytes.NewReader(nil))
	if err != nil || again != m {
		t.Errorf("second LoadReader = %p, %v; want the cached model", again, err)
	}
	if objects := m.Objects(nil); len(objects) != 3 || !objects[0].Transparent() {
		t.Errorf("Objects returned %d objects, first transparent: %v", len(objects), len(objects) > 0 && objects[0].Transparent())
	}

	parts := m.Parts
	l.Destroy()
	if len(l.Models()) != 0 {
		t.Error("Destroy kept cached models")
	}
	for i, p := range parts {
		if !p.Mesh.Destroyed() {
			t.Errorf("part %d mesh still alive", i)
		}
	}
}

func TestLoadCachesByPath(t *testing.T) {
	r := newTestRenderer(t)
	b := &docBuilder{}
	prim := b.quad(true)
	path := writeFile(t, "crate.glb", b.glb(t, map[string]any{
		"meshes": []any{map[string]any{"primitives": []any{prim}}},
		"nodes":  []any{map[string]any{"mesh": 0}},
	}))

	l := NewLoader(BackendTypeGLTF, WithRenderer(r))
	t.Cleanup(l.Destroy)
	m, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Name != "crate" {
		t.Errorf("name = %q, want the file name", m.Name)
	}
	if l.Get(path) != m {
		t.Error("model was not cached by path")
	}
	again, err := l.Load(path)
	if err != nil || again != m {
		t.Errorf("second Load = %p, %v; want the cached model", again, err)
	}
}
