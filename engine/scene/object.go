package scene

import (
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
)

// objectImpl is the implementation of the Object interface.
type objectImpl struct {
	mu *sync.Mutex

	id   uint64
	name string

	mesh    renderer.VertexBuffer
	faces   renderer.FaceRange
	shader  shader.Shader
	texture resource.Resource
	tint    [4]float32

	position common.Vec3
	rotation common.Vec3
	scale    common.Vec3
	// bounds is the local-space bounding sphere radius around the origin.
	bounds float32

	blend    pipeline.BlendMode
	depth    pipeline.DepthMode
	cull     pipeline.CullMode
	fill     pipeline.FillMode
	topology pipeline.Topology

	visible bool
	// depthPrepass includes the object in the depth/normal pass; off for blended and unlit objects.
	depthPrepass bool
}

// Object is a mesh instance placed in a Scene: a vertex buffer, the shader it is shaded with and the
// fixed function state of its draws.
type Object interface {
	// ID returns the scene assigned identifier, 0 until the object is added.
	ID() uint64

	// Name returns the debug name.
	Name() string

	// Mesh returns the vertex buffer.
	Mesh() renderer.VertexBuffer

	// Shader returns the shader of the shaded pass.
	Shader() shader.Shader

	// SetShader replaces the shader of the shaded pass.
	//
	// Parameters:
	//   - s: a render shader
	SetShader(s shader.Shader)

	// Texture returns the sampled texture, nil for the renderer's white texture.
	Texture() resource.Resource

	// SetTexture sets the sampled texture.
	//
	// Parameters:
	//   - tex: the texture, or nil
	SetTexture(tex resource.Resource)

	// Tint returns the color multiplied into the shaded result.
	Tint() [4]float32

	// SetTint sets the tint color.
	SetTint(r, g, b, a float32)

	// Position returns the world-space translation.
	Position() common.Vec3

	// SetPosition sets the world-space translation.
	SetPosition(x, y, z float32)

	// Rotation returns the Euler rotation in radians.
	Rotation() common.Vec3

	// SetRotation sets the Euler rotation in radians.
	SetRotation(x, y, z float32)

	// Scale returns the per-axis scale.
	Scale() common.Vec3

	// SetScale sets the per-axis scale.
	SetScale(x, y, z float32)

	// ModelMatrix returns the local to world transform.
	//
	// Returns:
	//   - common.Mat4: translation * rotation * scale
	ModelMatrix() common.Mat4

	// BoundingSphere returns the world-space bounding sphere used for frustum culling.
	//
	// Returns:
	//   - common.Vec3: the center
	//   - float32: the radius, scaled by the largest scale axis
	BoundingSphere() (common.Vec3, float32)

	// Visible reports whether the object is drawn.
	Visible() bool

	// SetVisible shows or hides the object.
	SetVisible(visible bool)

	// Transparent reports whether the object blends, which sorts it back to front after opaque objects.
	Transparent() bool

	setID(id uint64)
	state() drawState
}

// drawState is a consistent copy of everything one draw of an object needs.
type drawState struct {
	mesh     renderer.VertexBuffer
	faces    renderer.FaceRange
	shader   shader.Shader
	texture  resource.Resource
	tint     [4]float32
	model    common.Mat4
	center   common.Vec3
	radius   float32
	blend    pipeline.BlendMode
	depth    pipeline.DepthMode
	cull     pipeline.CullMode
	fill     pipeline.FillMode
	topology pipeline.Topology
	prepass  bool
}

var _ Object = &objectImpl{}

// NewObject creates an opaque, back-face culled, depth tested object for mesh shaded with s.
// The bounding radius defaults to the distance of the farthest vertex of a unit cube corner; meshes
// larger than that should set WithBoundingRadius.
//
// Parameters:
//   - name: debug name
//   - mesh: the vertex buffer to draw
//   - s: the shader of the shaded pass
//   - options: functional options
//
// Returns:
//   - Object: the new object
func NewObject(name string, mesh renderer.VertexBuffer, s shader.Shader, options ...ObjectBuilderOption) Object {
	o := &objectImpl{
		mu:       &sync.Mutex{},
		name:     name,
		mesh:     mesh,
		faces:    renderer.AllFaces,
		shader:   s,
		tint:     [4]float32{1, 1, 1, 1},
		scale:    common.Vec3{1, 1, 1},
		bounds:   1.7320508,
		blend:    pipeline.BlendOff,
		depth:    pipeline.DepthLessOrEqualWriteOn,
		cull:     pipeline.CullBack,
		fill:     pipeline.FillSolid,
		topology: pipeline.TopologyTriangles,
		visible:  true,
	}
	for _, option := range options {
		option(o)
	}
	o.depthPrepass = o.blend == pipeline.BlendOff && o.topology == pipeline.TopologyTriangles &&
		mesh != nil && mesh.Layout() != pipeline.VertexLayoutPTC
	return o
}

func (o *objectImpl) ID() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

func (o *objectImpl) setID(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.id = id
}

func (o *objectImpl) Name() string {
	return o.name
}

func (o *objectImpl) Mesh() renderer.VertexBuffer {
	return o.mesh
}

func (o *objectImpl) Shader() shader.Shader {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shader
}

func (o *objectImpl) SetShader(s shader.Shader) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shader = s
}

func (o *objectImpl) Texture() resource.Resource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.texture
}

func (o *objectImpl) SetTexture(tex resource.Resource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texture = tex
}

func (o *objectImpl) Tint() [4]float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tint
}

func (o *objectImpl) SetTint(r, g, b, a float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tint = [4]float32{r, g, b, a}
}

func (o *objectImpl) Position() common.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position
}

func (o *objectImpl) SetPosition(x, y, z float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.position = common.Vec3{x, y, z}
}

func (o *objectImpl) Rotation() common.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rotation
}

func (o *objectImpl) SetRotation(x, y, z float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rotation = common.Vec3{x, y, z}
}

func (o *objectImpl) Scale() common.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scale
}

func (o *objectImpl) SetScale(x, y, z float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scale = common.Vec3{x, y, z}
}

func (o *objectImpl) ModelMatrix() common.Mat4 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return common.ModelMatrix(o.position, o.rotation, o.scale)
}

func (o *objectImpl) BoundingSphere() (common.Vec3, float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position, o.worldRadius()
}

// worldRadius scales the local bound by the largest axis. Caller must hold the mutex.
func (o *objectImpl) worldRadius() float32 {
	s := max(abs(o.scale[0]), abs(o.scale[1]), abs(o.scale[2]))
	return o.bounds * s
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func (o *objectImpl) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

func (o *objectImpl) SetVisible(visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = visible
}

func (o *objectImpl) Transparent() bool {
	return o.blend != pipeline.BlendOff
}

func (o *objectImpl) state() drawState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return drawState{
		mesh:     o.mesh,
		faces:    o.faces,
		shader:   o.shader,
		texture:  o.texture,
		tint:     o.tint,
		model:    common.ModelMatrix(o.position, o.rotation, o.scale),
		center:   o.position,
		radius:   o.worldRadius(),
		blend:    o.blend,
		depth:    o.depth,
		cull:     o.cull,
		fill:     o.fill,
		topology: o.topology,
		prepass:  o.depthPrepass,
	}
}
